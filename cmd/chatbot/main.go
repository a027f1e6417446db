package main

import (
	"net"
	"net/http"
	"os"

	"github.com/beris147/chatbot-debate/internal/chat"
	"github.com/beris147/chatbot-debate/internal/config"
	"github.com/beris147/chatbot-debate/internal/llm"
	"github.com/beris147/chatbot-debate/internal/logger"
	"github.com/beris147/chatbot-debate/internal/persona"
	"github.com/beris147/chatbot-debate/internal/server"
	"github.com/beris147/chatbot-debate/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.L.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.L.Warn("closing store", "error", cerr)
		}
	}()

	gateway := llm.NewClient(cfg.LLM)
	formatter := persona.NewFormatter(cfg.Persona.Instruction)
	svc := chat.NewService(st, gateway, formatter)
	srv := server.New(svc)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	logger.L.Info("starting server", "address", addr)
	if err := http.ListenAndServe(addr, srv); err != nil {
		logger.L.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

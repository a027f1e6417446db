// Package server exposes the chat service over HTTP: a blocking chat
// endpoint, a server-sent-event streaming endpoint, and a welcome route.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/beris147/chatbot-debate/internal/chat"
	"github.com/beris147/chatbot-debate/internal/logger"
	"github.com/beris147/chatbot-debate/internal/store"
)

// sendMessageRequest is the body of both chat endpoints. A missing
// conversation id starts a new conversation.
type sendMessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// conversationResponse returns the conversation id with the last messages
// sent, ordered from last to first.
type conversationResponse struct {
	ConversationID string                   `json:"conversation_id"`
	Message        []chat.TranscriptMessage `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server routes HTTP requests to the chat service.
type Server struct {
	svc *chat.Service
	mux *http.ServeMux
}

// New builds the server and its routes.
func New(svc *chat.Service) *Server {
	s := &Server{svc: svc, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("POST /chat/{$}", s.handleChat)
	s.mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to chatbot debate, go to /chat to get started",
	})
}

// handleChat is the blocking endpoint: failures map to HTTP statuses because
// nothing has been written when they occur.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSendMessage(w, r)
	if !ok {
		return
	}

	res, err := s.svc.Send(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		var notFound *store.NotFoundError
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: notFound.Error()})
			return
		}
		logger.L.Error("chat turn failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, conversationResponse{
		ConversationID: res.ConversationID,
		Message:        res.Messages,
	})
}

// handleChatStream commits to a 200 event stream once the turn begins; from
// that point failures are in-band error events, never HTTP statuses.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSendMessage(w, r)
	if !ok {
		return
	}

	turn, err := s.svc.Begin(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		var notFound *store.NotFoundError
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: notFound.Error()})
			return
		}
		logger.L.Error("stream turn setup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	sink := &sseSink{w: w, flusher: flusher}
	if err := s.svc.StreamTurn(r.Context(), turn, sink); err != nil {
		// Already surfaced through the event stream; log only.
		logger.L.Warn("stream turn ended with error",
			"conversation_id", turn.ConversationID, "error", err)
	}
}

func decodeSendMessage(w http.ResponseWriter, r *http.Request) (sendMessageRequest, bool) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return req, false
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message must not be empty"})
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Warn("writing response", "error", err)
	}
}

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/beris147/chatbot-debate/internal/chat"
)

// chunkPayload is one streamed chunk on the wire.
type chunkPayload struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	Role           string `json:"role"`
	Part           int    `json:"part"`
}

// finalPayload carries the complete transcript after the last chunk.
type finalPayload struct {
	ConversationID string                   `json:"conversation_id"`
	Message        []chat.TranscriptMessage `json:"message"`
	Part           string                   `json:"part"`
}

// sseSink writes turn events as server-sent events, flushing after every
// write so chunks reach the client as they are produced.
type sseSink struct {
	w       io.Writer
	flusher http.Flusher
}

func (s *sseSink) Start() error {
	return s.write("event: start\n\n")
}

func (s *sseSink) Chunk(conversationID string, part int, text string) error {
	return s.data(chunkPayload{
		ConversationID: conversationID,
		Message:        text,
		Role:           "bot",
		Part:           part,
	})
}

func (s *sseSink) Final(conversationID string, transcript []chat.TranscriptMessage) error {
	return s.data(finalPayload{
		ConversationID: conversationID,
		Message:        transcript,
		Part:           "final",
	})
}

func (s *sseSink) End() error {
	return s.write("event: end\n\n")
}

func (s *sseSink) Error(message string) error {
	payload, err := json.Marshal(errorResponse{Error: message})
	if err != nil {
		return err
	}
	return s.write(fmt.Sprintf("event: error\ndata: %s\n\n", payload))
}

func (s *sseSink) data(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(fmt.Sprintf("data: %s\n\n", payload))
}

func (s *sseSink) write(frame string) error {
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

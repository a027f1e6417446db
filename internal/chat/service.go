// Package chat drives conversation turns end to end: persisting both halves
// of a turn, projecting history for the upstream LLM, and orchestrating the
// streaming pipeline.
package chat

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/beris147/chatbot-debate/internal/llm"
	"github.com/beris147/chatbot-debate/internal/persona"
	"github.com/beris147/chatbot-debate/internal/store"
)

// TranscriptMessage is one role/content pair as exposed to API clients.
type TranscriptMessage struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Result is the outcome of a blocking turn: the conversation id and its
// recent transcript, most recent first.
type Result struct {
	ConversationID string
	Messages       []TranscriptMessage
}

// Service owns one persona and one gateway and runs turns against the store.
type Service struct {
	store     *store.Store
	gateway   llm.Gateway
	formatter *persona.Formatter
}

// NewService wires a chat service.
func NewService(st *store.Store, gw llm.Gateway, f *persona.Formatter) *Service {
	return &Service{store: st, gateway: gw, formatter: f}
}

// Send runs one blocking turn: resolve or create the conversation, persist
// the user message, ask the gateway for a counter-argument, persist it, and
// return the updated transcript. The user message is durably committed before
// the upstream call, so a generation failure never loses the user's input.
func (s *Service) Send(ctx context.Context, conversationID, message string) (*Result, error) {
	conv, err := s.resolveConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.AppendMessage(ctx, conv.ID, message, store.RoleUser); err != nil {
		return nil, err
	}

	history, err := s.history(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	reply, err := s.gateway.Complete(ctx, s.formatter.Format(history))
	if err != nil {
		return nil, err
	}

	if _, err := s.store.AppendMessage(ctx, conv.ID, reply, store.RoleBot); err != nil {
		return nil, err
	}

	transcript, err := s.transcript(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return &Result{ConversationID: conv.ID, Messages: transcript}, nil
}

// resolveConversation creates a new conversation when no id was supplied and
// otherwise looks the id up, surfacing *store.NotFoundError on a miss.
func (s *Service) resolveConversation(ctx context.Context, id string) (store.Conversation, error) {
	if id == "" {
		return s.store.CreateConversation(ctx)
	}
	return s.store.GetConversation(ctx, id)
}

// history projects the stored messages into the upstream vocabulary, oldest
// first, with the bot role translated to the assistant role.
func (s *Service) history(ctx context.Context, conversationID string) ([]openai.ChatCompletionMessage, error) {
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		if role == store.RoleBot {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out, nil
}

// transcript is the client-facing view: recent messages, newest first, with
// the stored role names intact.
func (s *Service) transcript(ctx context.Context, conversationID string) ([]TranscriptMessage, error) {
	msgs, err := s.store.ListRecent(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]TranscriptMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, TranscriptMessage{Role: m.Role, Message: m.Content})
	}
	return out, nil
}

package chat

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/beris147/chatbot-debate/internal/chunk"
	"github.com/beris147/chatbot-debate/internal/logger"
	"github.com/beris147/chatbot-debate/internal/store"
)

// turnState values for the streaming turn state machine.
type turnState stateless.State

var (
	stateStarted    turnState = "Started"
	stateStreaming  turnState = "Streaming"
	stateFinalizing turnState = "Finalizing"
	stateCompleted  turnState = "Completed"
	stateFailed     turnState = "Failed"
)

// turnTrigger values driving transitions between turn states.
type turnTrigger stateless.Trigger

var (
	triggerOpenStream    turnTrigger = "OpenStream"
	triggerStreamDrained turnTrigger = "StreamDrained"
	triggerFinalized     turnTrigger = "Finalized"
	triggerErrorOccurred turnTrigger = "ErrorOccurred"
)

// Turn is the prepared state of one streaming exchange: the conversation is
// resolved, the user message is durably persisted, and the formatted history
// is ready for the gateway. Begin produces it before any response bytes are
// written, so a bad conversation id can still become a plain HTTP error.
type Turn struct {
	ConversationID string

	history []openai.ChatCompletionMessage
}

// EventSink receives the ordered events of one streaming turn. The HTTP
// layer implements it as a server-sent-event writer; tests record it.
// Implementations must flush each write independently.
type EventSink interface {
	Start() error
	Chunk(conversationID string, part int, text string) error
	Final(conversationID string, transcript []TranscriptMessage) error
	End() error
	Error(message string) error
}

// Begin performs the work of the Started state. It is split from StreamTurn
// so that a NotFoundError surfaces before the response is committed to
// streaming.
func (s *Service) Begin(ctx context.Context, conversationID, message string) (*Turn, error) {
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
	return &Turn{ConversationID: conv.ID, history: s.formatter.Format(history)}, nil
}

// StreamTurn runs a prepared turn through the streaming state machine:
//
//	Started -> Streaming -> Finalizing -> Completed
//	                   \          \
//	                    +-> Failed +
//
// Streaming opens the gateway stream, pipes it through the chunk assembler,
// and writes every chunk to the sink while accumulating the full text.
// Finalizing persists the accumulated text as one bot message and emits the
// final transcript. Any failure lands in Failed, which writes an in-band
// error event and nothing else: the accumulated partial text is dropped, and
// the error is never re-raised past the sink. The returned error exists for
// the caller's logs only.
func (s *Service) StreamTurn(ctx context.Context, turn *Turn, sink EventSink) error {
	type turnContext struct {
		accumulator strings.Builder
		parts       int
		lastErr     error
	}
	tc := &turnContext{}

	fsm := stateless.NewStateMachine(stateStarted)

	fsm.Configure(stateStarted).
		Permit(triggerOpenStream, stateStreaming)

	fsm.Configure(stateStreaming).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if err := sink.Start(); err != nil {
				tc.lastErr = err
				return fsm.FireCtx(ctx, triggerErrorOccurred)
			}

			deltas, err := s.gateway.Stream(ctx, turn.history)
			if err != nil {
				tc.lastErr = err
				return fsm.FireCtx(ctx, triggerErrorOccurred)
			}
			defer func() {
				// Cancel-and-release: whatever happened, the upstream
				// connection is returned.
				if cerr := deltas.Close(); cerr != nil {
					logger.L.Warn("closing upstream stream", "error", cerr)
				}
			}()

			chunks := chunk.NewAssembler(deltas)
			for {
				text, err := chunks.Next()
				if errors.Is(err, io.EOF) {
					return fsm.FireCtx(ctx, triggerStreamDrained)
				}
				if err != nil {
					tc.lastErr = err
					return fsm.FireCtx(ctx, triggerErrorOccurred)
				}
				tc.parts++
				if err := sink.Chunk(turn.ConversationID, tc.parts, text); err != nil {
					tc.lastErr = err
					return fsm.FireCtx(ctx, triggerErrorOccurred)
				}
				tc.accumulator.WriteString(text)
			}
		}).
		Permit(triggerStreamDrained, stateFinalizing).
		Permit(triggerErrorOccurred, stateFailed)

	fsm.Configure(stateFinalizing).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if _, err := s.store.AppendMessage(ctx, turn.ConversationID, tc.accumulator.String(), store.RoleBot); err != nil {
				tc.lastErr = err
				return fsm.FireCtx(ctx, triggerErrorOccurred)
			}
			transcript, err := s.transcript(ctx, turn.ConversationID)
			if err != nil {
				tc.lastErr = err
				return fsm.FireCtx(ctx, triggerErrorOccurred)
			}
			if err := sink.Final(turn.ConversationID, transcript); err != nil {
				tc.lastErr = err
				return fsm.FireCtx(ctx, triggerErrorOccurred)
			}
			if err := sink.End(); err != nil {
				tc.lastErr = err
				return fsm.FireCtx(ctx, triggerErrorOccurred)
			}
			return fsm.FireCtx(ctx, triggerFinalized)
		}).
		Permit(triggerFinalized, stateCompleted).
		Permit(triggerErrorOccurred, stateFailed)

	fsm.Configure(stateFailed).
		OnEntry(func(ctx context.Context, _ ...any) error {
			logger.L.Error("streaming turn failed",
				"conversation_id", turn.ConversationID,
				"parts_sent", tc.parts,
				"error", tc.lastErr)
			if ctx.Err() != nil {
				// Client is gone or the turn was cancelled; nobody is
				// listening for an error event.
				return nil
			}
			if err := sink.Error(tc.lastErr.Error()); err != nil {
				logger.L.Warn("writing error event", "error", err)
			}
			return nil
		})

	if err := fsm.FireCtx(ctx, triggerOpenStream); err != nil {
		logger.L.Warn("turn state machine fire", "error", err)
	}

	state, err := fsm.State(ctx)
	if err != nil {
		return err
	}
	if state == stateFailed {
		return tc.lastErr
	}
	return nil
}

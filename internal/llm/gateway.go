// Package llm wraps a single OpenAI-compatible chat-completion endpoint
// behind a gateway that offers a blocking call and an incremental streaming
// call, with retry/backoff and response-shape validation.
package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/beris147/chatbot-debate/internal/config"
	"github.com/beris147/chatbot-debate/internal/logger"
)

// Gateway is the upstream capability the chat service depends on. Both modes
// share one abstraction so callers never touch the concrete transport.
type Gateway interface {
	// Complete returns the full generated text for the given history.
	Complete(ctx context.Context, history []openai.ChatCompletionMessage) (string, error)
	// Stream opens a live completion and returns a single-pass delta stream.
	Stream(ctx context.Context, history []openai.ChatCompletionMessage) (DeltaStream, error)
}

// DeltaStream is a lazy, finite, non-restartable sequence of raw content
// fragments. Recv returns io.EOF on normal stream end; any other error means
// the stream died and must not be consumed further. Consume exactly once.
type DeltaStream interface {
	Recv() (string, error)
	Close() error
}

// Client is the production Gateway over go-openai.
type Client struct {
	api         *openai.Client
	cfg         config.LLMConfig
	backoffUnit time.Duration
}

var _ Gateway = (*Client)(nil)

// NewClient builds a gateway from the LLM configuration. Endpoint,
// credential, model, sampling parameters, timeout, and retry count are all
// fixed here.
func NewClient(cfg config.LLMConfig) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}

	backoff := time.Duration(cfg.RetryBackoffMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		cfg:         cfg,
		backoffUnit: backoff,
	}
}

func (c *Client) request(history []openai.ChatCompletionMessage, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:           c.cfg.Model,
		Messages:        history,
		Temperature:     c.cfg.Temperature,
		MaxTokens:       c.cfg.MaxTokens,
		PresencePenalty: c.cfg.PresencePenalty,
		Stream:          stream,
	}
}

func (c *Client) attempts() int {
	if c.cfg.MaxRetries < 1 {
		return 1
	}
	return c.cfg.MaxRetries
}

// Complete performs the blocking chat-completion call. Transient failures are
// retried up to MaxRetries with linearly increasing backoff; the last cause
// is wrapped in *UpstreamError when everything failed.
func (c *Client) Complete(ctx context.Context, history []openai.ChatCompletionMessage) (string, error) {
	attempts := c.attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.api.CreateChatCompletion(ctx, c.request(history, false))
		if err != nil {
			lastErr = err
			logger.L.Warn("chat completion attempt failed", "attempt", attempt, "error", err)
			if ctx.Err() != nil {
				break
			}
			if attempt < attempts {
				if serr := sleep(ctx, time.Duration(attempt)*c.backoffUnit); serr != nil {
					break
				}
			}
			continue
		}

		if len(resp.Choices) == 0 {
			return "", &ProtocolError{Reason: "response has no choices"}
		}
		content := resp.Choices[0].Message.Content
		if strings.TrimSpace(content) == "" {
			return "", ErrEmptyResponse
		}
		return content, nil
	}

	return "", &UpstreamError{Attempts: attempts, Err: lastErr}
}

// Stream opens the streaming completion. Only connection establishment is
// retried; once deltas are flowing a failure is surfaced immediately, since
// replaying a partially-consumed stream would duplicate or lose content.
func (c *Client) Stream(ctx context.Context, history []openai.ChatCompletionMessage) (DeltaStream, error) {
	attempts := c.attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		upstream, err := c.api.CreateChatCompletionStream(ctx, c.request(history, true))
		if err == nil {
			return &deltaStream{upstream: upstream}, nil
		}
		lastErr = err
		logger.L.Warn("chat stream connect attempt failed", "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			if serr := sleep(ctx, time.Duration(attempt)*c.backoffUnit); serr != nil {
				break
			}
		}
	}

	return nil, &UpstreamError{Attempts: attempts, Err: lastErr}
}

type deltaStream struct {
	upstream *openai.ChatCompletionStream
}

// Recv returns the next non-empty content fragment. Fragments without
// content are skipped here so downstream only ever sees text.
func (d *deltaStream) Recv() (string, error) {
	for {
		resp, err := d.upstream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", &UpstreamError{Attempts: 1, Err: err}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if content := resp.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
}

func (d *deltaStream) Close() error {
	return d.upstream.Close()
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

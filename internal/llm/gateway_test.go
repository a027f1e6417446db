package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/beris147/chatbot-debate/internal/config"
)

func testConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		Model:          "test-model",
		Temperature:    0.7,
		MaxTokens:      128,
		TimeoutSeconds: 5,
		MaxRetries:     3,
		RetryBackoffMS: 1,
	}
}

func history() []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "The earth is round."},
	}
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func streamDelta(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion.chunk",
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func TestComplete_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "test-model", req.Model)
		require.Equal(t, openai.ChatMessageRoleUser, req.Messages[0].Role)
		require.False(t, req.Stream)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody("Actually, flat-earth maps predict flight times better."))
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL))
	out, err := c.Complete(context.Background(), history())
	require.NoError(t, err)
	require.Equal(t, "Actually, flat-earth maps predict flight times better.", out)
}

func TestComplete_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody("third time lucky"))
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL))
	out, err := c.Complete(context.Background(), history())
	require.NoError(t, err)
	require.Equal(t, "third time lucky", out)
	require.EqualValues(t, 3, calls.Load(), "expected exactly MaxRetries attempts")
}

func TestComplete_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL))
	_, err := c.Complete(context.Background(), history())

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, 3, upstream.Attempts)
	require.EqualValues(t, 3, calls.Load())
}

func TestComplete_NoChoicesIsProtocolError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","object":"chat.completion","choices":[]}`)
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL))
	_, err := c.Complete(context.Background(), history())

	var protocol *ProtocolError
	require.ErrorAs(t, err, &protocol)
}

func TestComplete_BlankContentIsEmptyResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody("   \n\t "))
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL))
	_, err := c.Complete(context.Background(), history())
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestStream_DeliversDeltasInOrder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, content := range []string{"Wrong", ".", "", " Here is why."} {
			fmt.Fprintf(w, "data: %s\n\n", streamDelta(content))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL))
	stream, err := c.Stream(context.Background(), history())
	require.NoError(t, err)
	defer stream.Close()

	var got []string
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, delta)
	}
	// The empty fragment is skipped, order is preserved.
	require.Equal(t, []string{"Wrong", ".", " Here is why."}, got)
}

func TestStream_RetriesConnectionEstablishment(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", streamDelta("recovered"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL))
	stream, err := c.Stream(context.Background(), history())
	require.NoError(t, err)
	defer stream.Close()

	delta, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, "recovered", delta)
	require.EqualValues(t, 2, calls.Load())
}

func TestStream_ConnectFailureExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL))
	_, err := c.Stream(context.Background(), history())

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.EqualValues(t, 3, calls.Load())
}

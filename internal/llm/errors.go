package llm

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse reports an upstream reply whose content was blank after
// trimming. Callers must never persist such a reply as a bot message.
var ErrEmptyResponse = errors.New("llm: upstream returned empty content")

// UpstreamError wraps the last underlying cause after the network call to the
// upstream endpoint failed for good (retries exhausted, or a mid-stream drop
// which is never retried).
type UpstreamError struct {
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm: upstream request failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ProtocolError reports an upstream payload that does not have the expected
// chat-completion shape.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "llm: unexpected upstream payload: " + e.Reason
}

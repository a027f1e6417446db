// Package chunk re-buffers raw upstream deltas into coarser, flush-ready
// text chunks. Deltas are tiny and arrive at token granularity; emitting each
// one to the wire would be noisy, so the assembler holds text until a
// sentence boundary shows up or the buffer grows past a size bound.
package chunk

import (
	"errors"
	"io"
	"strings"
)

// FlushThreshold is the buffer length beyond which a chunk is emitted even
// without a sentence boundary.
const FlushThreshold = 100

// boundaryChars end a flushable unit of text.
const boundaryChars = ".!?\n"

// ErrEmptyStream reports a stream that terminated without producing any
// content at all. Downstream must not persist an empty bot message, so this
// is surfaced as an error rather than a silent zero-chunk sequence.
var ErrEmptyStream = errors.New("chunk: upstream stream produced no content")

// DeltaSource yields raw text fragments. io.EOF signals normal end.
type DeltaSource interface {
	Recv() (string, error)
}

// Assembler is a single-pass reducer over a DeltaSource. It performs no I/O
// and never reorders input: concatenating every chunk it emits reproduces the
// exact concatenation of every delta it consumed.
type Assembler struct {
	src     DeltaSource
	buf     strings.Builder
	emitted bool
	done    bool
}

// NewAssembler wraps src. The assembler, like its source, is consumable
// exactly once.
func NewAssembler(src DeltaSource) *Assembler {
	return &Assembler{src: src}
}

// Next returns the next flush-ready chunk. It returns io.EOF after the final
// chunk, ErrEmptyStream when the source ended without any content, and
// propagates source errors as-is.
func (a *Assembler) Next() (string, error) {
	if a.done {
		return "", io.EOF
	}
	for {
		delta, err := a.src.Recv()
		if err != nil {
			a.done = true
			if !errors.Is(err, io.EOF) {
				return "", err
			}
			if a.buf.Len() > 0 {
				return a.flush(), nil
			}
			if !a.emitted {
				return "", ErrEmptyStream
			}
			return "", io.EOF
		}
		if delta == "" {
			continue
		}
		a.buf.WriteString(delta)
		if strings.ContainsAny(delta, boundaryChars) || a.buf.Len() > FlushThreshold {
			return a.flush(), nil
		}
	}
}

func (a *Assembler) flush() string {
	out := a.buf.String()
	a.buf.Reset()
	a.emitted = true
	return out
}

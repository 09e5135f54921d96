package tts

import (
	"errors"
	"fmt"
)

// Kind classifies a synthesis failure.
type Kind int

const (
	// KindUpstream covers transport errors, timeouts and non-2xx statuses.
	KindUpstream Kind = iota + 1
	// KindInvalidResponse is a payload that is neither audio nor a known envelope.
	KindInvalidResponse
	// KindUnsupportedFormat is audio with a sample width other than 16-bit int or float.
	KindUnsupportedFormat
)

func (k Kind) String() string {
	switch k {
	case KindUpstream:
		return "upstream"
	case KindInvalidResponse:
		return "invalid_response"
	case KindUnsupportedFormat:
		return "unsupported_format"
	default:
		return "unknown"
	}
}

// SynthesisError is the typed failure of one synthesis call. SegmentIndex is
// -1 until the orchestrator tags it.
type SynthesisError struct {
	Kind         Kind
	SegmentIndex int
	Err          error
}

func (e *SynthesisError) Error() string {
	if e.SegmentIndex >= 0 {
		return fmt.Sprintf("tts %s (segment %d): %v", e.Kind, e.SegmentIndex, e.Err)
	}
	return fmt.Sprintf("tts %s: %v", e.Kind, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *SynthesisError {
	return &SynthesisError{Kind: kind, SegmentIndex: -1, Err: err}
}

// AtSegment tags err with the segment it came from. Errors that are not a
// SynthesisError are treated as upstream failures.
func AtSegment(err error, index int) *SynthesisError {
	if err == nil {
		return nil
	}
	var se *SynthesisError
	if errors.As(err, &se) {
		tagged := *se
		tagged.SegmentIndex = index
		return &tagged
	}
	return &SynthesisError{Kind: KindUpstream, SegmentIndex: index, Err: err}
}

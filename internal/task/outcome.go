package task

import (
	"errors"

	"github.com/ankit-pn/video-ocr-service/internal/event"
)

type (
	OutcomeKind int

	// Outcome is the result of processing a single Descriptor. Reason is
	// only populated for Failed outcomes, and is always a Failure.
	Outcome struct {
		Kind   OutcomeKind
		Reason error
		Frames int
	}

	FailureKind int

	// Failure wraps the error that caused a task to fail along with
	// the category of failure.
	Failure struct {
		error
		kind FailureKind
	}
)

const (
	Skipped OutcomeKind = iota
	Stored
	Failed
)

const (
	DecodeFailure FailureKind = iota
	ExtractFailure
	StoreFailure
	UnexpectedFailure
)

var (
	ErrInvalidFrameRate  = errors.New("video reports a zero or undefined frame rate")
	ErrInvalidFrameCount = errors.New("video reports a negative frame count")
	ErrInvalidDuration   = errors.New("video reports an implausibly long duration")
)

func newFailure(kind FailureKind, err error) Failure {
	return Failure{error: err, kind: kind}
}

func (f Failure) Type() FailureKind { return f.kind }
func (f Failure) Unwrap() error     { return f.error }

func (k FailureKind) String() string {
	switch k {
	case DecodeFailure:
		return "decode"
	case ExtractFailure:
		return "extract"
	case StoreFailure:
		return "store"
	default:
		return "unexpected"
	}
}

func (k OutcomeKind) String() string {
	switch k {
	case Skipped:
		return "skipped"
	case Stored:
		return "stored"
	default:
		return "failed"
	}
}

// Event returns the event which should be dispatched to report this outcome.
func (o Outcome) Event() event.Event {
	switch o.Kind {
	case Skipped:
		return event.TASK_SKIPPED
	case Stored:
		return event.TASK_STORED
	default:
		return event.TASK_FAILED
	}
}

// FailureKind returns the kind of failure for a Failed outcome. The
// boolean is false for outcomes that did not fail.
func (o Outcome) FailureKind() (FailureKind, bool) {
	var failure Failure
	if o.Kind != Failed || !errors.As(o.Reason, &failure) {
		return 0, false
	}

	return failure.Type(), true
}

func failed(kind FailureKind, err error, frames int) Outcome {
	return Outcome{Kind: Failed, Reason: newFailure(kind, err), Frames: frames}
}

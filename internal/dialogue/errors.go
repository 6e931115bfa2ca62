package dialogue

import "errors"

var (
	ErrBusy     = errors.New("dialogue: previous turn still in progress")
	ErrClosed   = errors.New("dialogue: session closed")
	ErrFinished = errors.New("dialogue: session finished")

	// ErrInterpretationSkipped lets an Interpreter decline a turn without it
	// being reported as a failure (rate limiting, disabled backend).
	ErrInterpretationSkipped = errors.New("dialogue: interpretation skipped")
)

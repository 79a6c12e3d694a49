package graph

import "errors"

// Error kinds raised by the graph/recorder layer (spec §7).
var (
	ErrRecordingNotActive   = errors.New("forge: recording is not active")
	ErrRecorderAlreadyActive = errors.New("forge: a recorder is already active on this thread")
	ErrNoOutputsMarked      = errors.New("forge: stop called without marking any output")
	ErrActiveBoolInBranch   = errors.New("forge: active boolean coerced to a native branch while recording")
	ErrInvalidConstPoolIndex = errors.New("forge: constant node references an invalid constant-pool index")
	ErrOperandOutOfRange    = errors.New("forge: node references an operand id >= its own id")
	ErrEmptyArrayIndex      = errors.New("forge: fint.Index called on a zero-length array")
)

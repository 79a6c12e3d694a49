package buffer

import "errors"

// ErrNoReversePass is returned by gradient accessors when the Kernel a
// Buffer was sized against carries no reverse pass (spec §6.2: the
// adjoint region is only allocated "when a reverse pass was emitted").
var ErrNoReversePass = errors.New("buffer: kernel carries no reverse pass, no gradients available")

// ErrNodeOutOfRange is returned when a NodeId is used that exceeds the
// Buffer's node count.
var ErrNodeOutOfRange = errors.New("buffer: node id out of range")

// ErrLaneCountMismatch is returned by SetLanes/GetLanes when the supplied
// slice length does not equal the Buffer's vector width.
var ErrLaneCountMismatch = errors.New("buffer: lane slice length does not match vector width")

package regalloc

import "errors"

// ErrRegisterLocked is returned when an operation would need to evict a
// register that is currently pinned by a lock (spec §9 open question 3:
// the allocator must never evict a locked register).
var ErrRegisterLocked = errors.New("regalloc: all candidate registers are locked")

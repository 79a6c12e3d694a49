package trace

import (
	"log"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// warnLogger and warnLimiter implement spec §7's "Warnings (non-fatal)"
// diagnostics for this package: marking a passive value as output produces
// a rate-limited diagnostic (the unsupported-opcode warning lives in
// jit/warn.go) rather than silently doing nothing or flooding stderr in a
// hot recording loop. Five bursts, refilling one per second, mirrors the
// teacher's own restraint around diagnostic output (its Print* toggles are
// opt-in per call, not per-event) while still surfacing the condition.
var (
	warnLogger  = log.New(os.Stderr, "forge/trace: ", 0)
	warnLimiter = rate.NewLimiter(rate.Every(time.Second), 5)
)

func warn(format string, args ...interface{}) {
	if warnLimiter.Allow() {
		warnLogger.Printf(format, args...)
	}
}

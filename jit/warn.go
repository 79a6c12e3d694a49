package jit

import (
	"log"
	"time"

	"golang.org/x/time/rate"
)

// opcodeWarnLimiter rate-limits the "unsupported opcode reached codegen"
// diagnostic (spec §7's "Warnings (non-fatal)"), so a graph that repeatedly
// hits the NaN fallback during a single compile doesn't flood Logger with
// one line per node.
var opcodeWarnLimiter = rate.NewLimiter(rate.Every(time.Second), 5)

func warnUnsupportedOpcode(l *log.Logger, op string) {
	if opcodeWarnLimiter.Allow() {
		l.Printf("forge/jit: unsupported opcode %s reached codegen, emitting NaN", op)
	}
}

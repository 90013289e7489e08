// Package igislog provides the DEBUG-gated trace logger used across the
// core. Trace output always goes to stderr so stdout stays reserved for the
// remote-helper protocol.
package igislog

import (
	"fmt"
	"log"
	"os"
)

var enabled = os.Getenv("DEBUG") != ""

// Debugf writes a trace line to stderr when DEBUG is set in the
// environment. It is a no-op otherwise.
func Debugf(format string, args ...interface{}) {
	if !enabled {
		return
	}
	log.New(os.Stderr, "git-remote-igis: ", log.LstdFlags).Output(2, fmt.Sprintf(format, args...))
}

// Warnf always writes to stderr: a warning, not a fatal error (e.g. an
// unrepresentable tree entry that gets skipped rather than aborting the
// whole push).
func Warnf(format string, args ...interface{}) {
	log.New(os.Stderr, "git-remote-igis: warning: ", log.LstdFlags).Printf(format, args...)
}

// Package logging configures the standard logger.
package logging

import (
	"log"
	"os"
	"sync/atomic"
)

var debug atomic.Bool

// Init sends log output to stdout with microsecond timestamps. The debug level
// adds file:line and enables Debugf.
func Init(level string) {
	log.SetOutput(os.Stdout)
	flags := log.LstdFlags | log.Lmicroseconds
	if level == "debug" {
		flags |= log.Lshortfile
	}
	log.SetFlags(flags)
	debug.Store(level == "debug")
}

// Debugf logs only when the debug level is active
func Debugf(format string, args ...any) {
	if debug.Load() {
		log.Printf("🔍 "+format, args...)
	}
}

// Package monitoring holds the process-wide diagnostic log hooks.
package monitoring

import "log"

// Logf is the service log sink. Defaults to log.Printf; replace it with
// SetLogger to redirect or mute output.
var Logf func(format string, v ...interface{}) = log.Printf

// debug guards Debugf output. Chunk-level fitting chatter (ten optimizer
// attempts per estimate call) is only worth emitting when investigating.
var debug bool

// SetLogger replaces the log sink. A nil sink mutes all output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug toggles Debugf output.
func SetDebug(on bool) {
	debug = on
}

// Debugf logs through the same sink as Logf, but only when debug output is
// enabled.
func Debugf(format string, v ...interface{}) {
	if debug {
		Logf(format, v...)
	}
}

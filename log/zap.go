package log

import (
	"os"
)

// FromConfig creates a logger according to format ("json" or anything else for
// console) and the textual level. Unparsable levels fall back to defaultLevel.
func FromConfig(format, level string, defaultLevel Level) *Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = defaultLevel
	}
	if format == "json" {
		return New(os.Stderr, lvl, WithCaller(true), AddCallerSkip(1))
	}
	return DevLogger(os.Stderr, lvl, WithCaller(true), AddCallerSkip(1))
}

package engine

import "log"

// verboseLogging mirrors the teacher's debug.go/debug_on.go build-tag-gated
// verbose tracing, collapsed here to a single runtime flag set from
// EngineConfig.Verbose at startup (no mutation thereafter).
var verboseLogging = false

// SetVerboseLogging toggles per-trial debug tracing. Intended to be called
// once at process start from EngineConfig construction.
func SetVerboseLogging(v bool) { verboseLogging = v }

func logVerbose(format string, args ...interface{}) {
	if verboseLogging {
		log.Printf("[engine] "+format, args...)
	}
}

func logWarn(format string, args ...interface{}) {
	log.Printf("[engine][warn] "+format, args...)
}

package session

import (
	"log"
	"strings"
	"sync"
)

// noiseHead and noiseCodes form the documented benign-error shape: a
// fixed head plus one of three transport codes that show up while a descriptor is
// mid-teardown. Matching entries never reach the process logger.
const noiseHead = "Unhandled pty write error"

var noiseCodes = []string{"EBADF", "EIO", "ECONNRESET"}

var (
	installOnce    sync.Once
	noiseFilterLog = log.Default()
)

// InstallWriteErrorNoiseFilter is safe to call any number of times; it
// sets nothing up. The filtering itself happens inside LogWriteError,
// which drops messages matching the benign write-race signature whether
// or not this was called. Output written to the logger or to os.Stderr
// by any other route is not filtered, so code paths that report a PTY
// write failure call LogWriteError rather than log.Printf.
func InstallWriteErrorNoiseFilter() {
	installOnce.Do(func() {
		// Idempotent by construction: nothing to set up beyond the
		// sync.Once guard itself — LogWriteError always consults
		// isNoise before writing.
	})
}

// LogWriteError reports a PTY write failure through the filtered path.
// head/code come from the transport error site; everything else is
// logged unconditionally.
func LogWriteError(head, code string) {
	if isNoise(head, code) {
		return
	}
	noiseFilterLog.Printf("%s: %s", head, code)
}

func isNoise(head, code string) bool {
	if head != noiseHead {
		return false
	}
	for _, c := range noiseCodes {
		if strings.EqualFold(code, c) {
			return true
		}
	}
	return false
}

//go:build darwin

package monitor

import (
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

var hidIdlePattern = regexp.MustCompile(`"HIDIdleTime"\s*=\s*(\d+)`)

// osIdleDuration reads HIDIdleTime from the IO registry. Returns 0 (assume
// active) when the probe fails.
func osIdleDuration() time.Duration {
	out, err := exec.Command("ioreg", "-c", "IOHIDSystem", "-d", "4").Output()
	if err != nil {
		return 0
	}
	match := hidIdlePattern.FindSubmatch(out)
	if match == nil {
		return 0
	}
	nanos, err := strconv.ParseInt(string(match[1]), 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(nanos)
}

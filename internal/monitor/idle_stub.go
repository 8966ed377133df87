//go:build !linux && !darwin

package monitor

import "time"

// osIdleDuration has no probe on this platform; assume active.
func osIdleDuration() time.Duration {
	return 0
}

// Package monitor hosts the signal detectors that feed the coordinator:
// process lifecycle, idle time, sleep/wake, and auto-close inactivity.
package monitor

import "context"

// Processes abstracts the host's process table. Identifiers are the same
// opaque bundle identifiers the registry stores. Terminating an
// already-terminated process is not an error.
type Processes interface {
	// Running returns the identifiers of all running applications.
	Running(ctx context.Context) (map[string]bool, error)

	// Foreground returns the identifier of the focused application, or ""
	// when it cannot be determined on this host.
	Foreground(ctx context.Context) (string, error)

	// Terminate asks the application with the given identifier to exit.
	Terminate(ctx context.Context, bundleID string) error

	// Activate brings the application to the foreground if it is running;
	// it never launches anything.
	Activate(ctx context.Context, bundleID string) error
}

package core

import "time"

// Event is the tagged union delivered to the coordinator. Every signal
// source (process monitor, idle poll, power notifications, BLE radio,
// overlay failsafe, auth completions) funnels through one channel so the
// coordinator processes events strictly in arrival order.
type Event interface {
	event()
}

// ProtectionRequired reports that an unauthenticated protected app was
// launched, activated, or found already running.
type ProtectionRequired struct {
	App     ProtectedApp
	Trigger string // "launch", "activate" or "scan"
}

// AppActivated reports a foreground change, used for auto-close tracking.
type AppActivated struct {
	BundleID string
}

// AppTerminated reports that a process with the given identifier exited.
type AppTerminated struct {
	BundleID string
}

// IdleTimeoutReached fires when system idle time crosses the configured
// threshold. The coordinator's handling is idempotent, so repeated firings
// while the user stays idle are harmless.
type IdleTimeoutReached struct {
	Idle time.Duration
}

// SystemSleeping fires when the host is about to (or did) suspend.
type SystemSleeping struct{}

// SystemWoke fires after the host resumes.
type SystemWoke struct{}

// CompanionInRange fires on the out-of-range -> in-range transition.
type CompanionInRange struct {
	RSSI int
}

// CompanionOutOfRange fires on the in-range -> out-of-range transition and
// on companion loss.
type CompanionOutOfRange struct {
	RSSI int
}

// AuthCompleted carries the result of an asynchronous authentication
// attempt back into the coordinator.
type AuthCompleted struct {
	BundleID string
	Method   UnlockMethod
	Success  bool
	Reason   string // failure reason, empty on success or cancellation
	Canceled bool
}

// OverlayTimedOut fires from the overlay failsafe timer; the session is
// treated as abandoned.
type OverlayTimedOut struct {
	BundleID string
}

// AutoCloseElapsed fires when a protected auto-close app has been out of
// focus for the configured inactivity window.
type AutoCloseElapsed struct {
	BundleID string
}

// PanicRequested unconditionally dismisses any overlay without granting
// trust.
type PanicRequested struct{}

func (ProtectionRequired) event()  {}
func (AppActivated) event()        {}
func (AppTerminated) event()       {}
func (IdleTimeoutReached) event()  {}
func (SystemSleeping) event()      {}
func (SystemWoke) event()          {}
func (CompanionInRange) event()    {}
func (CompanionOutOfRange) event() {}
func (AuthCompleted) event()       {}
func (OverlayTimedOut) event()     {}
func (AutoCloseElapsed) event()    {}
func (PanicRequested) event()      {}

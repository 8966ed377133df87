// Package overlay holds the per-app overlay presentation state machine:
// Hidden -> Authenticating -> AwaitingUser (retry loops back) -> Hidden.
// Presentation itself is external; the lifecycle only tells a Presenter
// when to raise and drop the blocking surface.
package overlay

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"appguard/internal/core"
)

// Failsafe auto-dismiss windows. A stuck overlay must never lock the user
// out of their own machine.
const (
	DefaultTimeout = 60 * time.Second
	DevModeTimeout = 10 * time.Second
)

// Phase is the overlay presentation phase.
type Phase int

const (
	Hidden Phase = iota
	Authenticating
	AwaitingUser
)

func (p Phase) String() string {
	switch p {
	case Authenticating:
		return "authenticating"
	case AwaitingUser:
		return "awaiting-user"
	default:
		return "hidden"
	}
}

// Reason explains why an overlay was dismissed.
type Reason string

const (
	ReasonAuthenticated Reason = "authenticated"
	ReasonPanic         Reason = "panic"
	ReasonTimeout       Reason = "timeout"
)

// Presenter is the external presentation layer.
type Presenter interface {
	OverlayShown(app core.ProtectedApp)
	OverlayHidden(app core.ProtectedApp, reason Reason)
}

// ErrOverlayActive is returned by Show while another overlay is up.
var ErrOverlayActive = errors.New("an overlay is already showing")

// Lifecycle owns at most one active overlay system-wide.
type Lifecycle struct {
	presenter Presenter
	timeout   time.Duration
	onTimeout func(bundleID string)
	logger    *slog.Logger

	mu       sync.Mutex
	phase    Phase
	current  core.ProtectedApp
	raisedAt time.Time
	timer    *time.Timer
	epoch    uint64 // invalidates failsafe timers from earlier overlays
}

// New creates a lifecycle. onTimeout is called (off the caller's goroutine)
// when the failsafe window elapses; the coordinator routes it back through
// its event channel.
func New(presenter Presenter, timeout time.Duration, onTimeout func(bundleID string), logger *slog.Logger) *Lifecycle {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		presenter: presenter,
		timeout:   timeout,
		onTimeout: onTimeout,
		logger:    logger.With("component", "overlay"),
	}
}

// Show raises the overlay for app and starts the failsafe timer. Only one
// overlay may exist at a time; a second detection is suppressed, not queued.
func (l *Lifecycle) Show(app core.ProtectedApp) error {
	l.mu.Lock()
	if l.phase != Hidden {
		l.mu.Unlock()
		return ErrOverlayActive
	}
	l.phase = Authenticating
	l.current = app
	l.raisedAt = time.Now()
	l.epoch++
	epoch := l.epoch
	bundleID := app.BundleID
	l.timer = time.AfterFunc(l.timeout, func() {
		l.fireTimeout(epoch, bundleID)
	})
	l.mu.Unlock()

	l.logger.Info("overlay shown", "bundle_id", app.BundleID, "name", app.Name)
	if l.presenter != nil {
		l.presenter.OverlayShown(app)
	}
	return nil
}

func (l *Lifecycle) fireTimeout(epoch uint64, bundleID string) {
	l.mu.Lock()
	stale := l.epoch != epoch || l.phase == Hidden
	l.mu.Unlock()
	if stale {
		return
	}
	l.logger.Warn("overlay failsafe timeout reached", "bundle_id", bundleID, "timeout", l.timeout.String())
	if l.onTimeout != nil {
		l.onTimeout(bundleID)
	}
}

// AwaitUser moves a failed or cancelled authentication into the
// awaiting-user phase (retry / fallback offered by the presentation layer).
func (l *Lifecycle) AwaitUser() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == Authenticating {
		l.phase = AwaitingUser
	}
}

// BeginAuth marks a retry attempt in flight.
func (l *Lifecycle) BeginAuth() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == AwaitingUser {
		l.phase = Authenticating
	}
}

// Hide dismisses the overlay from any phase. It returns the app the overlay
// was covering and false if nothing was showing (hiding an absent overlay
// is a no-op, which makes the panic command idempotent).
func (l *Lifecycle) Hide(reason Reason) (core.ProtectedApp, bool) {
	l.mu.Lock()
	if l.phase == Hidden {
		l.mu.Unlock()
		return core.ProtectedApp{}, false
	}
	app := l.current
	l.phase = Hidden
	l.current = core.ProtectedApp{}
	l.epoch++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()

	l.logger.Info("overlay dismissed", "bundle_id", app.BundleID, "reason", string(reason))
	if l.presenter != nil {
		l.presenter.OverlayHidden(app, reason)
	}
	return app, true
}

// Showing reports whether any overlay is up.
func (l *Lifecycle) Showing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase != Hidden
}

// Current returns the app under overlay, if any.
func (l *Lifecycle) Current() (core.ProtectedApp, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == Hidden {
		return core.ProtectedApp{}, false
	}
	return l.current, true
}

// Phase returns the current presentation phase.
func (l *Lifecycle) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// RaisedAt returns when the current overlay went up.
func (l *Lifecycle) RaisedAt() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == Hidden {
		return time.Time{}, false
	}
	return l.raisedAt, true
}

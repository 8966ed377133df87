// Package guard contains the protection coordinator: the single decision
// authority that fuses process, idle, power and proximity events into
// lock/unlock actions. All mutation of trust state and overlay state
// happens on its event loop; detectors only read.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"appguard/internal/auth"
	"appguard/internal/core"
	"appguard/internal/monitor"
	"appguard/internal/overlay"
)

// Control surface errors.
var (
	ErrNothingLocked = errors.New("no overlay is currently showing")
	ErrWrongSecret   = errors.New("wrong secret")
)

// TrustSource is the proximity detector's synchronous read side.
type TrustSource interface {
	Trust() core.CompanionTrust
}

// Registry is the read side of the protected-app registry.
type Registry interface {
	Lookup(bundleID string) (core.ProtectedApp, bool)
	List() []core.ProtectedApp
}

// SecretVerifier checks the backup secret.
type SecretVerifier interface {
	Verify(ctx context.Context, secret string) (bool, error)
}

// Activations receives foreground changes for auto-close tracking.
type Activations interface {
	NoteActivation(bundleID string)
	NoteTerminated(bundleID string)
}

// Notifier receives user-facing notifications.
type Notifier interface {
	AppUnlocked(name string, method core.UnlockMethod)
	RelockTriggered(trigger string, terminated, locked int)
}

// Deps holds everything the coordinator drives.
type Deps struct {
	// Events is the shared channel every signal source feeds. When nil the
	// coordinator creates its own; callers that wire detectors before the
	// coordinator pass theirs in.
	Events chan core.Event

	Sessions      *core.SessionStore
	Overlay       *overlay.Lifecycle
	Registry      Registry
	Processes     monitor.Processes
	Trust         TrustSource
	Settings      monitor.SettingsSource
	Authenticator auth.Authenticator
	Secrets       SecretVerifier
	Notifier      Notifier
	Inactivity    Activations
	Logger        *slog.Logger
}

// Coordinator applies the lock/unlock decision policy.
type Coordinator struct {
	deps   Deps
	events chan core.Event
	logger *slog.Logger

	authMu     sync.Mutex
	authCancel context.CancelFunc
}

const eventBuffer = 64

// New creates the coordinator. Detectors send into Events().
func New(deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := deps.Events
	if events == nil {
		events = make(chan core.Event, eventBuffer)
	}
	return &Coordinator{
		deps:   deps,
		events: events,
		logger: logger.With("component", "coordinator"),
	}
}

// Events returns the channel every signal source feeds.
func (c *Coordinator) Events() chan<- core.Event {
	return c.events
}

// Run consumes events in arrival order until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Info("coordinator started")
	for {
		select {
		case <-ctx.Done():
			c.cancelAuth()
			c.logger.Info("coordinator stopped")
			return
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, ev core.Event) {
	switch ev := ev.(type) {
	case core.ProtectionRequired:
		c.handleProtectionRequired(ctx, ev)
	case core.AppActivated:
		if c.deps.Inactivity != nil {
			c.deps.Inactivity.NoteActivation(ev.BundleID)
		}
	case core.AppTerminated:
		c.handleAppTerminated(ev.BundleID)
	case core.IdleTimeoutReached:
		if c.deps.Settings.Current().LockOnIdle {
			c.relockSweep(ctx, "idle")
		}
	case core.SystemSleeping:
		if c.deps.Settings.Current().LockOnSleep {
			c.relockSweep(ctx, "sleep")
		}
	case core.SystemWoke:
		c.handleWake(ctx)
	case core.CompanionOutOfRange:
		if c.deps.Settings.Current().UseCompanionUnlock {
			c.relockSweep(ctx, "companion")
		}
	case core.CompanionInRange:
		c.handleCompanionInRange(ctx)
	case core.AuthCompleted:
		c.handleAuthCompleted(ctx, ev)
	case core.OverlayTimedOut:
		c.handleOverlayTimeout(ev.BundleID)
	case core.AutoCloseElapsed:
		c.handleAutoClose(ctx, ev.BundleID)
	case core.PanicRequested:
		c.handlePanic()
	}
}

// handleProtectionRequired implements the first two rows of the decision
// table: suppress while any overlay is up, terminate auto-close apps,
// grant companion trust without an overlay, otherwise lock.
func (c *Coordinator) handleProtectionRequired(ctx context.Context, ev core.ProtectionRequired) {
	app := ev.App
	if core.IsExempt(app.BundleID) {
		return
	}
	if c.deps.Sessions.IsAuthenticated(app.BundleID) {
		return
	}
	if c.deps.Overlay.Showing() {
		// At-most-one overlay: a second detection is dropped, not queued.
		return
	}

	if app.AutoClose {
		c.logger.Info("auto-closing protected app", "bundle_id", app.BundleID, "trigger", ev.Trigger)
		c.terminate(ctx, app.BundleID)
		return
	}

	settings := c.deps.Settings.Current()
	if settings.UseCompanionUnlock && c.deps.Trust != nil {
		if c.deps.Trust.Trust().Grants(settings.AssumeUnlockedWhenUnknown) {
			c.logger.Info("companion trust granted, skipping overlay", "bundle_id", app.BundleID)
			c.grantTrust(ctx, app, core.UnlockCompanion)
			return
		}
	}

	if err := c.deps.Overlay.Show(app); err != nil {
		return
	}
	c.startAuthentication(app)
}

// handleAppTerminated: termination always invalidates trust; an app that
// quits and relaunches must re-authenticate.
func (c *Coordinator) handleAppTerminated(bundleID string) {
	c.deps.Sessions.Clear(bundleID)
	if c.deps.Inactivity != nil {
		c.deps.Inactivity.NoteTerminated(bundleID)
	}
	if current, ok := c.deps.Overlay.Current(); ok && current.BundleID == bundleID {
		c.cancelAuth()
		c.deps.Overlay.Hide(overlay.ReasonTimeout)
	}
}

// relockSweep is shared by idle timeout, sleep, and companion loss: revoke
// every session, terminate running auto-close apps, and raise an overlay
// for the first running locked app. The remaining apps re-lock lazily on
// their next activation because their sessions are gone.
func (c *Coordinator) relockSweep(ctx context.Context, trigger string) {
	c.deps.Sessions.ClearAll()

	running, err := c.deps.Processes.Running(ctx)
	if err != nil {
		c.logger.Error("re-lock sweep could not list processes", "trigger", trigger, "error", err)
		return
	}

	terminated, locked := 0, 0
	var toLock []core.ProtectedApp
	for _, app := range c.deps.Registry.List() {
		if !app.Enabled || !running[app.BundleID] || core.IsExempt(app.BundleID) {
			continue
		}
		if app.AutoClose {
			c.terminate(ctx, app.BundleID)
			terminated++
			continue
		}
		toLock = append(toLock, app)
	}

	for _, app := range toLock {
		if err := c.deps.Overlay.Show(app); err != nil {
			break // single active overlay; the rest stay locked via cleared sessions
		}
		c.startAuthentication(app)
		locked++
	}

	c.logger.Info("re-lock sweep completed",
		"trigger", trigger,
		"terminated", terminated,
		"overlays", locked,
		"pending", len(toLock)-locked,
	)
	if c.deps.Notifier != nil && (terminated > 0 || len(toLock) > 0) {
		c.deps.Notifier.RelockTriggered(trigger, terminated, len(toLock))
	}
}

// handleWake is the safety net against sleep not actually suspending
// processes: auto-close apps still alive after resume are terminated.
func (c *Coordinator) handleWake(ctx context.Context) {
	running, err := c.deps.Processes.Running(ctx)
	if err != nil {
		c.logger.Error("wake sweep could not list processes", "error", err)
		return
	}
	for _, app := range c.deps.Registry.List() {
		if !app.Enabled || !app.AutoClose || !running[app.BundleID] || core.IsExempt(app.BundleID) {
			continue
		}
		c.terminate(ctx, app.BundleID)
		if current, ok := c.deps.Overlay.Current(); ok && current.BundleID == app.BundleID {
			c.cancelAuth()
			c.deps.Overlay.Hide(overlay.ReasonTimeout)
		}
	}
}

// handleCompanionInRange auto-unlocks the current overlay target when the
// companion returns trusted.
func (c *Coordinator) handleCompanionInRange(ctx context.Context) {
	settings := c.deps.Settings.Current()
	if !settings.UseCompanionUnlock || c.deps.Trust == nil {
		return
	}
	app, ok := c.deps.Overlay.Current()
	if !ok {
		return
	}
	if !c.deps.Trust.Trust().Grants(settings.AssumeUnlockedWhenUnknown) {
		return
	}
	c.logger.Info("companion returned, auto-unlocking", "bundle_id", app.BundleID)
	c.cancelAuth()
	c.deps.Overlay.Hide(overlay.ReasonAuthenticated)
	c.grantTrust(ctx, app, core.UnlockCompanion)
}

func (c *Coordinator) handleAuthCompleted(ctx context.Context, ev core.AuthCompleted) {
	current, ok := c.deps.Overlay.Current()
	if !ok || current.BundleID != ev.BundleID {
		// Late completion after panic/timeout/termination: a no-op.
		return
	}
	switch {
	case ev.Success:
		// A secret unlock can race a still-open biometric prompt; close it.
		c.cancelAuth()
		c.deps.Overlay.Hide(overlay.ReasonAuthenticated)
		c.grantTrust(ctx, current, ev.Method)
	case ev.Canceled:
		c.deps.Overlay.AwaitUser()
	default:
		c.logger.Info("authentication failed", "bundle_id", ev.BundleID, "reason", ev.Reason)
		c.deps.Overlay.AwaitUser()
	}
}

func (c *Coordinator) handleOverlayTimeout(bundleID string) {
	current, ok := c.deps.Overlay.Current()
	if !ok || current.BundleID != bundleID {
		return
	}
	// Abandoned: no trust granted.
	c.cancelAuth()
	c.deps.Overlay.Hide(overlay.ReasonTimeout)
}

func (c *Coordinator) handleAutoClose(ctx context.Context, bundleID string) {
	if core.IsExempt(bundleID) {
		return
	}
	app, ok := c.deps.Registry.Lookup(bundleID)
	if !ok || !app.Enabled || !app.AutoClose {
		return
	}
	c.logger.Info("auto-closing inactive app", "bundle_id", bundleID)
	c.terminate(ctx, bundleID)
}

func (c *Coordinator) handlePanic() {
	c.cancelAuth()
	if app, ok := c.deps.Overlay.Hide(overlay.ReasonPanic); ok {
		c.logger.Warn("panic: overlay dismissed without trust", "bundle_id", app.BundleID)
	}
}

// grantTrust records the session, notifies, and brings the app forward.
func (c *Coordinator) grantTrust(ctx context.Context, app core.ProtectedApp, method core.UnlockMethod) {
	c.deps.Sessions.MarkAuthenticated(app.BundleID, method)
	if c.deps.Notifier != nil {
		c.deps.Notifier.AppUnlocked(app.Name, method)
	}
	if err := c.deps.Processes.Activate(ctx, app.BundleID); err != nil {
		c.logger.Debug("could not activate app", "bundle_id", app.BundleID, "error", err)
	}
}

// terminate asks the process layer to close an app and drops its trust.
func (c *Coordinator) terminate(ctx context.Context, bundleID string) {
	if err := c.deps.Processes.Terminate(ctx, bundleID); err != nil {
		c.logger.Error("failed to terminate app", "bundle_id", bundleID, "error", err)
	}
	c.deps.Sessions.Clear(bundleID)
}

// startAuthentication launches the biometric prompt off the event loop;
// the result re-enters as an AuthCompleted event.
func (c *Coordinator) startAuthentication(app core.ProtectedApp) {
	if c.deps.Authenticator == nil {
		return
	}
	c.authMu.Lock()
	if c.authCancel != nil {
		c.authCancel()
	}
	authCtx, cancel := context.WithCancel(context.Background())
	c.authCancel = cancel
	c.authMu.Unlock()

	go func() {
		result := c.deps.Authenticator.Authenticate(authCtx, "Unlock "+app.Name)
		c.events <- core.AuthCompleted{
			BundleID: app.BundleID,
			Method:   core.UnlockBiometric,
			Success:  result.Outcome == auth.Success,
			Reason:   string(result.Reason),
			Canceled: result.Outcome == auth.Cancelled,
		}
	}()
}

// cancelAuth aborts any in-flight authentication. Safe to call when none
// is in flight, from any goroutine.
func (c *Coordinator) cancelAuth() {
	c.authMu.Lock()
	if c.authCancel != nil {
		c.authCancel()
		c.authCancel = nil
	}
	c.authMu.Unlock()
}

// Panic unconditionally dismisses any overlay without granting trust. The
// in-flight prompt is cancelled immediately, before the event is even
// processed, so the override never waits on the authenticator.
func (c *Coordinator) Panic() {
	c.cancelAuth()
	c.events <- core.PanicRequested{}
}

// SubmitSecret verifies the fallback secret for the current overlay
// target. Verification happens here so the API can answer synchronously;
// the trust mutation still flows through the event loop.
func (c *Coordinator) SubmitSecret(ctx context.Context, secret string) error {
	app, ok := c.deps.Overlay.Current()
	if !ok {
		return ErrNothingLocked
	}
	c.deps.Overlay.BeginAuth()

	valid, err := c.deps.Secrets.Verify(ctx, secret)
	if err != nil {
		if errors.Is(err, auth.ErrNoSecret) {
			c.events <- core.AuthCompleted{BundleID: app.BundleID, Method: core.UnlockSecret, Reason: string(auth.ReasonNoSecretSet)}
		}
		return err
	}
	if !valid {
		c.events <- core.AuthCompleted{BundleID: app.BundleID, Method: core.UnlockSecret, Reason: string(auth.ReasonWrongSecret)}
		return ErrWrongSecret
	}
	c.events <- core.AuthCompleted{BundleID: app.BundleID, Method: core.UnlockSecret, Success: true}
	return nil
}

// RetryBiometric re-runs the biometric prompt for the current target.
func (c *Coordinator) RetryBiometric() error {
	app, ok := c.deps.Overlay.Current()
	if !ok {
		return ErrNothingLocked
	}
	c.deps.Overlay.BeginAuth()
	c.startAuthentication(app)
	return nil
}

// Status is a snapshot for the control API.
type Status struct {
	ProtectionEnabled bool
	OverlayPhase      string
	OverlayTarget     string
	Sessions          int
	CompanionInRange  bool
	CompanionOnBody   string
	OverlayRaisedAt   time.Time
}

// Status reports the current protection state.
func (c *Coordinator) Status() Status {
	st := Status{
		ProtectionEnabled: c.deps.Settings.Current().ProtectionEnabled,
		OverlayPhase:      c.deps.Overlay.Phase().String(),
		Sessions:          c.deps.Sessions.Count(),
	}
	if app, ok := c.deps.Overlay.Current(); ok {
		st.OverlayTarget = app.BundleID
	}
	if at, ok := c.deps.Overlay.RaisedAt(); ok {
		st.OverlayRaisedAt = at
	}
	if c.deps.Trust != nil {
		trust := c.deps.Trust.Trust()
		st.CompanionInRange = trust.InRange
		st.CompanionOnBody = trust.OnBody.String()
	}
	return st
}

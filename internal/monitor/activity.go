package monitor

import (
	"context"
	"log/slog"
	"time"

	"appguard/internal/core"
)

// Registry is the read side of the protected-app registry.
type Registry interface {
	// Lookup returns the entry for an identifier, enabled or not.
	Lookup(bundleID string) (core.ProtectedApp, bool)
}

// Sessions is the read side of the session store.
type Sessions interface {
	IsAuthenticated(bundleID string) bool
}

// SettingsSource exposes the current user settings.
type SettingsSource interface {
	Current() core.Settings
}

const (
	defaultActivityPoll = 2 * time.Second

	// DefaultSettleDelay gives the proximity detector a head start after
	// startup, so an already-running protected app is not locked while the
	// companion is still reconnecting.
	DefaultSettleDelay = 5 * time.Second
)

// ActivityMonitor derives process lifecycle events (launch, activate,
// terminate) from periodic process-table snapshots and emits
// ProtectionRequired when an unauthenticated protected app needs locking.
// It only ever reads shared state; all writes happen in the coordinator.
type ActivityMonitor struct {
	procs    Processes
	registry Registry
	sessions Sessions
	settings SettingsSource
	overlay  func() bool // is an overlay currently showing
	events   chan<- core.Event
	clock    Clock
	logger   *slog.Logger

	pollInterval time.Duration
	settleDelay  time.Duration

	known          map[string]bool
	lastForeground string
	startupScan    bool
}

// NewActivityMonitor wires the monitor. overlayShowing is consulted to
// suppress detections while an overlay is already up.
func NewActivityMonitor(procs Processes, registry Registry, sessions Sessions, settings SettingsSource,
	overlayShowing func() bool, events chan<- core.Event, clock Clock, logger *slog.Logger) *ActivityMonitor {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityMonitor{
		procs:        procs,
		registry:     registry,
		sessions:     sessions,
		settings:     settings,
		overlay:      overlayShowing,
		events:       events,
		clock:        clock,
		logger:       logger.With("component", "activity"),
		pollInterval: defaultActivityPoll,
		settleDelay:  DefaultSettleDelay,
	}
}

// Run polls the process table until ctx is cancelled.
func (m *ActivityMonitor) Run(ctx context.Context) {
	m.logger.Info("activity monitor started",
		"poll_interval", m.pollInterval.String(),
		"settle_delay", m.settleDelay.String(),
	)

	select {
	case <-ctx.Done():
		return
	case <-time.After(m.settleDelay):
	}

	// Baseline snapshot: everything already running is "known" so the
	// first diff does not report a storm of launches.
	if running, err := m.procs.Running(ctx); err == nil {
		m.known = running
	} else {
		m.logger.Error("initial process snapshot failed", "error", err)
		m.known = map[string]bool{}
	}
	m.startupScan = true

	ticker := m.clock.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("activity monitor stopped")
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *ActivityMonitor) poll(ctx context.Context) {
	if m.startupScan && !m.overlay() {
		m.scanRunning()
		m.startupScan = false
	}

	running, err := m.procs.Running(ctx)
	if err != nil {
		m.logger.Error("process snapshot failed", "error", err)
		return
	}

	for id := range running {
		if !m.known[id] {
			m.handleDetected(id, "launch")
		}
	}
	for id := range m.known {
		if !running[id] {
			if _, ok := m.registry.Lookup(id); ok {
				m.logger.Info("protected app terminated", "bundle_id", id)
				m.events <- core.AppTerminated{BundleID: id}
			}
		}
	}
	m.known = running

	fg, err := m.procs.Foreground(ctx)
	if err == nil && fg != "" && fg != m.lastForeground {
		m.lastForeground = fg
		m.events <- core.AppActivated{BundleID: fg}
		m.handleDetected(fg, "activate")
	}
}

// scanRunning locks at most one already-running unauthenticated protected
// app. One overlay at a time; the rest re-lock on their next activation.
func (m *ActivityMonitor) scanRunning() {
	settings := m.settings.Current()
	if !settings.ProtectionEnabled {
		return
	}
	for id := range m.known {
		if app, ok := m.eligible(id, settings); ok {
			m.logger.Info("found running protected app", "bundle_id", id, "name", app.Name)
			m.events <- core.ProtectionRequired{App: app, Trigger: "scan"}
			return
		}
	}
}

func (m *ActivityMonitor) handleDetected(bundleID, trigger string) {
	settings := m.settings.Current()
	if !settings.ProtectionEnabled {
		return
	}
	switch trigger {
	case "launch":
		if !settings.RequireAuthOnLaunch {
			return
		}
	case "activate":
		if !settings.RequireAuthOnActivate {
			return
		}
	}
	app, ok := m.eligible(bundleID, settings)
	if !ok {
		return
	}
	if m.overlay() {
		// At-most-one overlay: drop, never queue.
		return
	}
	m.logger.Info("protected app detected", "bundle_id", bundleID, "name", app.Name, "trigger", trigger)
	m.events <- core.ProtectionRequired{App: app, Trigger: trigger}
}

// eligible applies the filter chain: exempt, registered+enabled, and not
// already authenticated.
func (m *ActivityMonitor) eligible(bundleID string, settings core.Settings) (core.ProtectedApp, bool) {
	if core.IsExempt(bundleID) {
		return core.ProtectedApp{}, false
	}
	app, ok := m.registry.Lookup(bundleID)
	if !ok || !app.Enabled {
		return core.ProtectedApp{}, false
	}
	if m.sessions.IsAuthenticated(bundleID) {
		return core.ProtectedApp{}, false
	}
	return app, true
}

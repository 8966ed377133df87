package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"appguard/internal/core"
)

const defaultInactivityPoll = 15 * time.Second

// InactivityTracker arms a close deadline for each protected auto-close
// app that loses foreground focus, and cancels it on re-focus. Expiry is
// not acted on here: it re-enters the coordinator as an AutoCloseElapsed
// event so process termination stays on the single writer.
type InactivityTracker struct {
	registry Registry
	settings SettingsSource
	events   chan<- core.Event
	clock    Clock
	logger   *slog.Logger

	pollInterval time.Duration

	mu           sync.Mutex
	deadlinesMap map[string]time.Time
	lastActive   string
}

// NewInactivityTracker creates the tracker.
func NewInactivityTracker(registry Registry, settings SettingsSource, events chan<- core.Event, clock Clock, logger *slog.Logger) *InactivityTracker {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InactivityTracker{
		registry:     registry,
		settings:     settings,
		events:       events,
		clock:        clock,
		logger:       logger.With("component", "inactivity"),
		pollInterval: defaultInactivityPoll,
	}
}

// Run expires armed deadlines until ctx is cancelled.
func (t *InactivityTracker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.expire()
		}
	}
}

// NoteActivation records a foreground change. The previously focused
// auto-close app gets a deadline; the newly focused one loses any pending
// deadline.
func (t *InactivityTracker) NoteActivation(bundleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if previous := t.lastActive; previous != "" && previous != bundleID {
		t.armLocked(previous)
	}

	if t.shouldAutoClose(bundleID) {
		delete(t.deadlines(), bundleID)
		t.lastActive = bundleID
	} else {
		t.lastActive = ""
	}
}

// NoteTerminated drops the deadline for an app that already exited.
func (t *InactivityTracker) NoteTerminated(bundleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.deadlines(), bundleID)
	if t.lastActive == bundleID {
		t.lastActive = ""
	}
}

// Cancel removes a pending deadline (e.g. auto-close toggled off).
func (t *InactivityTracker) Cancel(bundleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.deadlines(), bundleID)
}

func (t *InactivityTracker) armLocked(bundleID string) {
	if !t.shouldAutoClose(bundleID) {
		return
	}
	window := time.Duration(t.settings.Current().InactiveCloseMinutes) * time.Minute
	if window <= 0 {
		return
	}
	t.deadlines()[bundleID] = t.clock.Now().Add(window)
	t.logger.Info("auto-close timer armed", "bundle_id", bundleID, "window", window.String())
}

func (t *InactivityTracker) shouldAutoClose(bundleID string) bool {
	if core.IsExempt(bundleID) {
		return false
	}
	app, ok := t.registry.Lookup(bundleID)
	return ok && app.Enabled && app.AutoClose
}

func (t *InactivityTracker) deadlines() map[string]time.Time {
	if t.deadlinesMap == nil {
		t.deadlinesMap = make(map[string]time.Time)
	}
	return t.deadlinesMap
}

func (t *InactivityTracker) expire() {
	now := t.clock.Now()
	var due []string

	t.mu.Lock()
	for id, deadline := range t.deadlines() {
		if !now.Before(deadline) {
			due = append(due, id)
			delete(t.deadlinesMap, id)
		}
	}
	t.mu.Unlock()

	for _, id := range due {
		t.logger.Info("auto-close window elapsed", "bundle_id", id)
		t.events <- core.AutoCloseElapsed{BundleID: id}
	}
}

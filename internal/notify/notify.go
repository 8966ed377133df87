// Package notify delivers user-facing notifications about guard activity:
// unlocks, re-lock sweeps, overlay presentation. Sinks are pluggable; the
// daemon always carries the log sink and adds Telegram when configured.
package notify

import (
	"fmt"
	"log/slog"
	"sync"

	"appguard/internal/core"
	"appguard/internal/overlay"
)

// Sink receives guard notifications.
type Sink interface {
	AppUnlocked(name string, method core.UnlockMethod)
	RelockTriggered(trigger string, terminated, locked int)
	OverlayShown(app core.ProtectedApp)
	OverlayHidden(app core.ProtectedApp, reason overlay.Reason)
}

const queueSize = 64

// Fanout delivers every notification to all registered sinks. Deliveries
// are queued and drained in order by a single worker goroutine, so a slow
// sink never stalls the caller. When the queue is full, new notifications
// are dropped; delivery is best effort.
type Fanout struct {
	mu    sync.Mutex
	sinks []Sink
	queue chan func(Sink)
}

// NewFanout creates a fan-out over the given sinks and starts its
// delivery worker.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{
		sinks: sinks,
		queue: make(chan func(Sink), queueSize),
	}
	go f.deliver()
	return f
}

// Add registers an extra sink.
func (f *Fanout) Add(sink Sink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
}

func (f *Fanout) deliver() {
	for fn := range f.queue {
		f.mu.Lock()
		sinks := append([]Sink(nil), f.sinks...)
		f.mu.Unlock()
		for _, s := range sinks {
			fn(s)
		}
	}
}

func (f *Fanout) dispatch(fn func(Sink)) {
	select {
	case f.queue <- fn:
	default:
		// Queue full: the notification is dropped.
	}
}

func (f *Fanout) AppUnlocked(name string, method core.UnlockMethod) {
	f.dispatch(func(s Sink) { s.AppUnlocked(name, method) })
}

func (f *Fanout) RelockTriggered(trigger string, terminated, locked int) {
	f.dispatch(func(s Sink) { s.RelockTriggered(trigger, terminated, locked) })
}

func (f *Fanout) OverlayShown(app core.ProtectedApp) {
	f.dispatch(func(s Sink) { s.OverlayShown(app) })
}

func (f *Fanout) OverlayHidden(app core.ProtectedApp, reason overlay.Reason) {
	f.dispatch(func(s Sink) { s.OverlayHidden(app, reason) })
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "notify")}
}

func (s *LogSink) AppUnlocked(name string, method core.UnlockMethod) {
	s.logger.Info("app unlocked", "name", name, "method", string(method))
}

func (s *LogSink) RelockTriggered(trigger string, terminated, locked int) {
	s.logger.Info("apps re-locked", "trigger", trigger, "terminated", terminated, "locked", locked)
}

func (s *LogSink) OverlayShown(app core.ProtectedApp) {
	s.logger.Info("overlay raised", "name", app.Name, "bundle_id", app.BundleID)
}

func (s *LogSink) OverlayHidden(app core.ProtectedApp, reason overlay.Reason) {
	s.logger.Info("overlay dropped", "name", app.Name, "reason", string(reason))
}

func methodLabel(method core.UnlockMethod) string {
	switch method {
	case core.UnlockCompanion:
		return "companion"
	case core.UnlockSecret:
		return "backup secret"
	case core.UnlockBiometric:
		return "biometric"
	default:
		return string(method)
	}
}

func unlockText(name string, method core.UnlockMethod) string {
	return fmt.Sprintf("🔓 *%s* unlocked via %s", name, methodLabel(method))
}

func relockText(trigger string, terminated, locked int) string {
	return fmt.Sprintf("🔒 Re-lock (%s): %d app(s) closed, %d locked", trigger, terminated, locked)
}

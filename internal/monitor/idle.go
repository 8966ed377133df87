package monitor

import (
	"context"
	"log/slog"
	"time"

	"appguard/internal/core"
)

const defaultIdlePoll = 10 * time.Second

// IdleDetector polls system idle duration and emits IdleTimeoutReached when
// it crosses the configured threshold. The event fires on the rising edge
// only; the coordinator's handling is idempotent regardless, so a missed
// edge after a settings change cannot double-lock.
type IdleDetector struct {
	settings SettingsSource
	events   chan<- core.Event
	clock    Clock
	logger   *slog.Logger

	pollInterval time.Duration
	idleFn       func() time.Duration
	wasIdle      bool
}

// NewIdleDetector creates the detector. idleFn defaults to the host probe
// for this OS.
func NewIdleDetector(settings SettingsSource, events chan<- core.Event, clock Clock, logger *slog.Logger) *IdleDetector {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdleDetector{
		settings:     settings,
		events:       events,
		clock:        clock,
		logger:       logger.With("component", "idle"),
		pollInterval: defaultIdlePoll,
		idleFn:       osIdleDuration,
	}
}

// Run polls until ctx is cancelled.
func (d *IdleDetector) Run(ctx context.Context) {
	d.logger.Info("idle monitor started", "poll_interval", d.pollInterval.String())
	ticker := d.clock.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("idle monitor stopped")
			return
		case <-ticker.C:
			d.check()
		}
	}
}

func (d *IdleDetector) check() {
	settings := d.settings.Current()
	if !settings.LockOnIdle {
		d.wasIdle = false
		return
	}

	threshold := time.Duration(settings.IdleTimeoutMinutes) * time.Minute
	if threshold <= 0 {
		return
	}

	idle := d.idleFn()
	if idle >= threshold {
		if !d.wasIdle {
			d.wasIdle = true
			d.logger.Info("idle timeout reached", "idle", idle.String(), "threshold", threshold.String())
			d.events <- core.IdleTimeoutReached{Idle: idle}
		}
	} else {
		d.wasIdle = false
	}
}

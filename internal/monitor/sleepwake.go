package monitor

import (
	"context"
	"log/slog"
	"time"

	"appguard/internal/core"
)

const (
	defaultSleepPoll = 5 * time.Second

	// A tick arriving this much later than scheduled means the host was
	// suspended in between.
	defaultSleepGap = 30 * time.Second
)

// SleepWakeDetector infers suspend/resume from scheduler gaps: a ticker
// that fires far later than its period means the host slept in between.
// There is no portable pre-sleep notification, so both events are emitted
// on resume: SystemSleeping first (revoke trust held across the suspend),
// then SystemWoke (auto-close safety net). Duplicates are harmless; the
// coordinator handles both idempotently.
type SleepWakeDetector struct {
	events   chan<- core.Event
	clock    Clock
	logger   *slog.Logger
	interval time.Duration
	gap      time.Duration
	last     time.Time
}

// NewSleepWakeDetector creates the detector.
func NewSleepWakeDetector(events chan<- core.Event, clock Clock, logger *slog.Logger) *SleepWakeDetector {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SleepWakeDetector{
		events:   events,
		clock:    clock,
		logger:   logger.With("component", "sleepwake"),
		interval: defaultSleepPoll,
		gap:      defaultSleepGap,
	}
}

// Run watches for scheduler gaps until ctx is cancelled.
func (d *SleepWakeDetector) Run(ctx context.Context) {
	d.logger.Info("sleep/wake observer started")
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	d.last = d.clock.Now()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("sleep/wake observer stopped")
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *SleepWakeDetector) tick() {
	now := d.clock.Now()
	if gap := now.Sub(d.last); gap > d.interval+d.gap {
		d.logger.Info("system resume detected", "gap", gap.String())
		d.events <- core.SystemSleeping{}
		d.events <- core.SystemWoke{}
	}
	d.last = now
}

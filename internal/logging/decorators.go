package logging

import (
	"context"
	"log/slog"
	"time"

	"appguard/internal/guard"
)

// GuardControlLogger wraps the coordinator control surface and logs all
// method calls
type GuardControlLogger struct {
	control guard.Control
	logger  *slog.Logger
}

// NewGuardControlLogger creates a new logging decorator for guard.Control
func NewGuardControlLogger(control guard.Control, logger *slog.Logger) guard.Control {
	return &GuardControlLogger{
		control: control,
		logger:  logger.With("interface", "GuardControl"),
	}
}

func (l *GuardControlLogger) Panic() {
	l.logger.Warn("Panic called")
	l.control.Panic()
	l.logger.Warn("Panic completed")
}

func (l *GuardControlLogger) SubmitSecret(ctx context.Context, secret string) error {
	start := time.Now()
	l.logger.Info("SubmitSecret called")

	// The secret itself is never logged.
	err := l.control.SubmitSecret(ctx, secret)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("SubmitSecret failed",
			"duration", duration,
			"error", err)
		return err
	}

	l.logger.Info("SubmitSecret completed",
		"duration", duration)
	return nil
}

func (l *GuardControlLogger) RetryBiometric() error {
	start := time.Now()
	l.logger.Info("RetryBiometric called")

	err := l.control.RetryBiometric()
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("RetryBiometric failed",
			"duration", duration,
			"error", err)
		return err
	}

	l.logger.Info("RetryBiometric completed",
		"duration", duration)
	return nil
}

func (l *GuardControlLogger) Status() guard.Status {
	return l.control.Status()
}

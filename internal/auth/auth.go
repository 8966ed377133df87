// Package auth wraps the two ways a user proves themselves to the guard:
// an opaque asynchronous biometric prompt and a bcrypt-hashed backup
// secret. Neither touches trust state; callers act on the returned result.
package auth

import (
	"context"
	"errors"
	"os/exec"
)

// Reason identifies why an authentication attempt failed. Each maps to a
// distinct user-facing message in the presentation layer.
type Reason string

const (
	ReasonBiometryUnavailable Reason = "biometry_unavailable"
	ReasonBiometryNotEnrolled Reason = "biometry_not_enrolled"
	ReasonBiometryLockout     Reason = "biometry_lockout"
	ReasonWrongSecret         Reason = "wrong_secret"
	ReasonNoSecretSet         Reason = "no_secret_set"
	ReasonSystemError         Reason = "system_error"
)

// Outcome is the coarse result of an attempt.
type Outcome int

const (
	Failure Outcome = iota
	Success
	Cancelled
)

// Result is the contract every authenticator fulfills.
type Result struct {
	Outcome Outcome
	Reason  Reason // set when Outcome == Failure
	Detail  string // optional diagnostic, never shown verbatim to the user
}

// Authenticator is the opaque async yes/no authenticator. Authenticate
// blocks until the prompt resolves or ctx is cancelled; cancellation must
// be safe at any time, including when no attempt is in flight.
type Authenticator interface {
	Authenticate(ctx context.Context, reason string) Result
}

// ExecAuthenticator shells out to an external verifier command (for
// example fprintd-verify on Linux). Exit status zero means the user passed
// the prompt. Cancelling the context kills the prompt process.
type ExecAuthenticator struct {
	Command string
	Args    []string
}

// Authenticate runs the verifier command under ctx.
func (a *ExecAuthenticator) Authenticate(ctx context.Context, reason string) Result {
	if a.Command == "" {
		return Result{Outcome: Failure, Reason: ReasonBiometryUnavailable}
	}
	cmd := exec.CommandContext(ctx, a.Command, a.Args...)
	err := cmd.Run()
	if err == nil {
		return Result{Outcome: Success}
	}
	if ctx.Err() != nil {
		return Result{Outcome: Cancelled}
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		// Verifier binary missing or not runnable on this host.
		return Result{Outcome: Failure, Reason: ReasonBiometryUnavailable, Detail: execErr.Error()}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{Outcome: Failure, Reason: ReasonBiometryLockout, Detail: exitErr.Error()}
	}
	return Result{Outcome: Failure, Reason: ReasonSystemError, Detail: err.Error()}
}

// Unavailable is the authenticator wired on hosts with no biometric
// hardware; every attempt fails with a distinct, recoverable reason so the
// presentation layer steers the user to the backup secret.
type Unavailable struct{}

// Authenticate always reports biometry as unavailable.
func (Unavailable) Authenticate(ctx context.Context, reason string) Result {
	return Result{Outcome: Failure, Reason: ReasonBiometryUnavailable}
}

package core

import (
	"errors"
	"time"
)

// ProtectedApp is an application the user has chosen to guard.
type ProtectedApp struct {
	ID        string
	BundleID  string // stable application identifier, e.g. "org.mozilla.firefox"
	Name      string // display name
	Path      string // filesystem path to the application
	Enabled   bool
	AutoClose bool // terminate instead of locking on re-lock triggers
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settings holds the user preferences consumed by the guard core.
type Settings struct {
	ProtectionEnabled      bool `json:"protection_enabled"`
	LockOnSleep            bool `json:"lock_on_sleep"`
	LockOnIdle             bool `json:"lock_on_idle"`
	IdleTimeoutMinutes     int  `json:"idle_timeout_minutes"`
	RequireAuthOnLaunch    bool `json:"require_auth_on_launch"`
	RequireAuthOnActivate  bool `json:"require_auth_on_activate"`
	UseCompanionUnlock     bool `json:"use_companion_unlock"`
	CompanionRSSIThreshold int  `json:"companion_rssi_threshold"`
	InactiveCloseMinutes   int  `json:"inactive_close_minutes"`

	// AssumeUnlockedWhenUnknown keeps the legacy behavior of trusting a
	// companion whose on-body state has not been decoded yet.
	AssumeUnlockedWhenUnknown bool `json:"assume_unlocked_when_unknown"`

	// SessionGraceSeconds switches the session store to the timed-grace
	// model. 0 keeps sessions until explicitly cleared.
	SessionGraceSeconds int `json:"session_grace_seconds"`
}

// DefaultSettings mirrors the defaults a fresh install runs with.
func DefaultSettings() Settings {
	return Settings{
		ProtectionEnabled:         true,
		LockOnSleep:               true,
		LockOnIdle:                false,
		IdleTimeoutMinutes:        5,
		RequireAuthOnLaunch:       true,
		RequireAuthOnActivate:     false,
		UseCompanionUnlock:        false,
		CompanionRSSIThreshold:    -70,
		InactiveCloseMinutes:      10,
		AssumeUnlockedWhenUnknown: true,
	}
}

// OnBodyState is the decoded companion wear/lock state.
type OnBodyState int

const (
	OnBodyUnknown OnBodyState = iota
	OnBodyUnlocked
	OnBodyLocked
)

func (s OnBodyState) String() string {
	switch s {
	case OnBodyUnlocked:
		return "unlocked"
	case OnBodyLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// CompanionTrust is the proximity detector's derived view of the paired
// wearable, consulted synchronously by the coordinator.
type CompanionTrust struct {
	InRange bool
	OnBody  OnBodyState
}

// Grants reports whether this trust state allows an automatic unlock.
// An unknown on-body state only grants trust when the caller opts into the
// legacy assume-unlocked behavior.
func (t CompanionTrust) Grants(assumeUnlockedWhenUnknown bool) bool {
	if !t.InRange {
		return false
	}
	switch t.OnBody {
	case OnBodyUnlocked:
		return true
	case OnBodyUnknown:
		return assumeUnlockedWhenUnknown
	default:
		return false
	}
}

// UnlockMethod identifies how a protected app was unlocked.
type UnlockMethod string

const (
	UnlockBiometric UnlockMethod = "biometric"
	UnlockSecret    UnlockMethod = "secret"
	UnlockCompanion UnlockMethod = "companion"
)

// PairedCompanion is the persisted identity of the paired wearable.
type PairedCompanion struct {
	Address  string
	Name     string
	PairedAt time.Time
}

// Validation errors.
var (
	ErrInvalidBundleID = errors.New("bundle identifier cannot be empty")
	ErrInvalidName     = errors.New("app name cannot be empty")
	ErrAppNotFound     = errors.New("protected app not found")
	ErrAppExists       = errors.New("app is already protected")
)

// Validate validates a ProtectedApp.
func (a *ProtectedApp) Validate() error {
	if a.BundleID == "" {
		return ErrInvalidBundleID
	}
	if a.Name == "" {
		return ErrInvalidName
	}
	return nil
}

package guard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appguard/internal/auth"
	"appguard/internal/core"
	"appguard/internal/overlay"
)

// Mock implementations

type mockProcesses struct {
	mu         sync.Mutex
	running    map[string]bool
	terminated []string
	activated  []string
}

func newMockProcesses(running ...string) *mockProcesses {
	m := &mockProcesses{running: make(map[string]bool)}
	for _, id := range running {
		m.running[id] = true
	}
	return m
}

func (m *mockProcesses) Running(ctx context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.running))
	for id, v := range m.running {
		out[id] = v
	}
	return out, nil
}

func (m *mockProcesses) Foreground(ctx context.Context) (string, error) {
	return "", nil
}

func (m *mockProcesses) Terminate(ctx context.Context, bundleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = append(m.terminated, bundleID)
	delete(m.running, bundleID)
	return nil
}

func (m *mockProcesses) Activate(ctx context.Context, bundleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activated = append(m.activated, bundleID)
	return nil
}

func (m *mockProcesses) terminatedApps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.terminated...)
}

type mockRegistry struct {
	apps map[string]core.ProtectedApp
}

func (m *mockRegistry) Lookup(bundleID string) (core.ProtectedApp, bool) {
	app, ok := m.apps[bundleID]
	return app, ok
}

func (m *mockRegistry) List() []core.ProtectedApp {
	out := make([]core.ProtectedApp, 0, len(m.apps))
	for _, app := range m.apps {
		out = append(out, app)
	}
	return out
}

type stubTrust struct {
	mu    sync.Mutex
	trust core.CompanionTrust
}

func (s *stubTrust) Trust() core.CompanionTrust {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trust
}

func (s *stubTrust) set(trust core.CompanionTrust) {
	s.mu.Lock()
	s.trust = trust
	s.mu.Unlock()
}

type stubSettings struct {
	mu       sync.Mutex
	settings core.Settings
}

func (s *stubSettings) Current() core.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *stubSettings) update(mutate func(*core.Settings)) {
	s.mu.Lock()
	mutate(&s.settings)
	s.mu.Unlock()
}

type mockNotifier struct {
	mu       sync.Mutex
	unlocked []string
	relocks  []string
}

func (m *mockNotifier) AppUnlocked(name string, method core.UnlockMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlocked = append(m.unlocked, name+"/"+string(method))
}

func (m *mockNotifier) RelockTriggered(trigger string, terminated, locked int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relocks = append(m.relocks, trigger)
}

// stubAuthenticator blocks until the prompt context is cancelled, like a
// real modal biometric dialog. Immediate results are configured via result.
type stubAuthenticator struct {
	result *auth.Result
}

func (s *stubAuthenticator) Authenticate(ctx context.Context, reason string) auth.Result {
	if s.result != nil {
		return *s.result
	}
	<-ctx.Done()
	return auth.Result{Outcome: auth.Cancelled}
}

type stubSecrets struct {
	secret string
	err    error
}

func (s *stubSecrets) Verify(ctx context.Context, candidate string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return candidate == s.secret, nil
}

// Test fixture

var (
	browserApp = core.ProtectedApp{ID: "app_1", BundleID: "org.mozilla.firefox", Name: "Firefox"}
	diaryApp   = core.ProtectedApp{ID: "app_2", BundleID: "com.example.diary", Name: "Diary", AutoClose: true}
)

type fixture struct {
	c        *Coordinator
	sessions *core.SessionStore
	overlay  *overlay.Lifecycle
	procs    *mockProcesses
	registry *mockRegistry
	trust    *stubTrust
	settings *stubSettings
	notifier *mockNotifier
	secrets  *stubSecrets
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	browser, diary := browserApp, diaryApp
	browser.Enabled = true
	diary.Enabled = true

	f := &fixture{
		sessions: core.NewSessionStore(0),
		procs:    newMockProcesses(browser.BundleID, diary.BundleID),
		registry: &mockRegistry{apps: map[string]core.ProtectedApp{
			browser.BundleID: browser,
			diary.BundleID:   diary,
		}},
		trust:    &stubTrust{},
		settings: &stubSettings{settings: core.DefaultSettings()},
		notifier: &mockNotifier{},
		secrets:  &stubSecrets{secret: "hunter2"},
	}

	events := make(chan core.Event, 64)
	f.overlay = overlay.New(nil, time.Minute, func(bundleID string) {
		events <- core.OverlayTimedOut{BundleID: bundleID}
	}, nil)

	f.c = New(Deps{
		Events:        events,
		Sessions:      f.sessions,
		Overlay:       f.overlay,
		Registry:      f.registry,
		Processes:     f.procs,
		Trust:         f.trust,
		Settings:      f.settings,
		Authenticator: &stubAuthenticator{},
		Secrets:       f.secrets,
		Notifier:      f.notifier,
	})
	t.Cleanup(f.c.cancelAuth)
	return f
}

func (f *fixture) handle(ev core.Event) {
	f.c.handle(context.Background(), ev)
}

func (f *fixture) enabledApp(bundleID string) core.ProtectedApp {
	app, _ := f.registry.Lookup(bundleID)
	return app
}

func (f *fixture) waitEvent(t *testing.T) core.Event {
	t.Helper()
	select {
	case ev := <-f.c.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event arrived")
		return nil
	}
}

// Tests

func TestCoordinator_ProtectionShowsOverlay(t *testing.T) {
	f := newFixture(t)

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})

	assert.True(t, f.overlay.Showing())
	current, _ := f.overlay.Current()
	assert.Equal(t, browserApp.BundleID, current.BundleID)
	assert.False(t, f.sessions.IsAuthenticated(browserApp.BundleID))
}

func TestCoordinator_BiometricSuccessGrantsSession(t *testing.T) {
	f := newFixture(t)
	f.c.deps.Authenticator = &stubAuthenticator{result: &auth.Result{Outcome: auth.Success}}

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})
	ev := f.waitEvent(t)
	completed, ok := ev.(core.AuthCompleted)
	require.True(t, ok)
	assert.True(t, completed.Success)

	f.handle(ev)

	assert.False(t, f.overlay.Showing())
	assert.True(t, f.sessions.IsAuthenticated(browserApp.BundleID))
	assert.Equal(t, []string{"Firefox/biometric"}, f.notifier.unlocked)
	assert.Contains(t, f.procs.activated, browserApp.BundleID)
}

func TestCoordinator_BiometricFailureAwaitsUser(t *testing.T) {
	f := newFixture(t)
	f.c.deps.Authenticator = &stubAuthenticator{result: &auth.Result{
		Outcome: auth.Failure,
		Reason:  auth.ReasonBiometryLockout,
	}}

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})
	f.handle(f.waitEvent(t))

	assert.True(t, f.overlay.Showing())
	assert.Equal(t, overlay.AwaitingUser, f.overlay.Phase())
	assert.False(t, f.sessions.IsAuthenticated(browserApp.BundleID))
}

func TestCoordinator_SecondDetectionDroppedWhileOverlayUp(t *testing.T) {
	f := newFixture(t)

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})
	f.handle(core.ProtectionRequired{App: f.enabledApp(diaryApp.BundleID), Trigger: "launch"})

	current, _ := f.overlay.Current()
	assert.Equal(t, browserApp.BundleID, current.BundleID)
	assert.Empty(t, f.procs.terminatedApps(), "the dropped detection must not auto-close either")
}

func TestCoordinator_AuthenticatedAppNotRelocked(t *testing.T) {
	f := newFixture(t)
	f.sessions.MarkAuthenticated(browserApp.BundleID, core.UnlockBiometric)

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "activate"})

	assert.False(t, f.overlay.Showing())
}

func TestCoordinator_ExemptAppNeverLocked(t *testing.T) {
	f := newFixture(t)
	terminal := core.ProtectedApp{ID: "app_x", BundleID: "com.apple.Terminal", Name: "Terminal", Enabled: true}

	f.handle(core.ProtectionRequired{App: terminal, Trigger: "launch"})

	assert.False(t, f.overlay.Showing())
}

func TestCoordinator_AutoCloseAppTerminatedNotLocked(t *testing.T) {
	f := newFixture(t)

	f.handle(core.ProtectionRequired{App: f.enabledApp(diaryApp.BundleID), Trigger: "launch"})

	assert.False(t, f.overlay.Showing())
	assert.Equal(t, []string{diaryApp.BundleID}, f.procs.terminatedApps())
}

func TestCoordinator_CompanionTrustSkipsOverlay(t *testing.T) {
	f := newFixture(t)
	f.settings.update(func(s *core.Settings) { s.UseCompanionUnlock = true })
	f.trust.set(core.CompanionTrust{InRange: true, OnBody: core.OnBodyUnlocked})

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})

	assert.False(t, f.overlay.Showing())
	assert.True(t, f.sessions.IsAuthenticated(browserApp.BundleID))
	assert.Equal(t, []string{"Firefox/companion"}, f.notifier.unlocked)
}

func TestCoordinator_LockedCompanionDoesNotSkipOverlay(t *testing.T) {
	f := newFixture(t)
	f.settings.update(func(s *core.Settings) { s.UseCompanionUnlock = true })
	f.trust.set(core.CompanionTrust{InRange: true, OnBody: core.OnBodyLocked})

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})

	assert.True(t, f.overlay.Showing())
	assert.False(t, f.sessions.IsAuthenticated(browserApp.BundleID))
}

func TestCoordinator_UnknownOnBodyFollowsSetting(t *testing.T) {
	f := newFixture(t)
	f.settings.update(func(s *core.Settings) {
		s.UseCompanionUnlock = true
		s.AssumeUnlockedWhenUnknown = false
	})
	f.trust.set(core.CompanionTrust{InRange: true, OnBody: core.OnBodyUnknown})

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})
	assert.True(t, f.overlay.Showing(), "unknown state must not grant trust when disabled")

	f.overlay.Hide(overlay.ReasonPanic)
	f.settings.update(func(s *core.Settings) { s.AssumeUnlockedWhenUnknown = true })
	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})
	assert.False(t, f.overlay.Showing(), "legacy assumption grants trust on unknown")
}

func TestCoordinator_IdleRelockSweep(t *testing.T) {
	f := newFixture(t)
	f.settings.update(func(s *core.Settings) { s.LockOnIdle = true })
	f.sessions.MarkAuthenticated(browserApp.BundleID, core.UnlockBiometric)
	f.sessions.MarkAuthenticated(diaryApp.BundleID, core.UnlockBiometric)

	f.handle(core.IdleTimeoutReached{Idle: 6 * time.Minute})

	assert.False(t, f.sessions.IsAuthenticated(browserApp.BundleID))
	assert.Equal(t, []string{diaryApp.BundleID}, f.procs.terminatedApps(), "auto-close apps are terminated, not locked")
	assert.True(t, f.overlay.Showing())
	current, _ := f.overlay.Current()
	assert.Equal(t, browserApp.BundleID, current.BundleID)
	assert.Equal(t, []string{"idle"}, f.notifier.relocks)
}

func TestCoordinator_IdleIgnoredWhenDisabled(t *testing.T) {
	f := newFixture(t)
	f.sessions.MarkAuthenticated(browserApp.BundleID, core.UnlockBiometric)

	f.handle(core.IdleTimeoutReached{Idle: 6 * time.Minute})

	assert.True(t, f.sessions.IsAuthenticated(browserApp.BundleID))
	assert.False(t, f.overlay.Showing())
}

func TestCoordinator_SleepRelocksWhenEnabled(t *testing.T) {
	f := newFixture(t)
	f.sessions.MarkAuthenticated(browserApp.BundleID, core.UnlockBiometric)

	f.handle(core.SystemSleeping{})

	// LockOnSleep defaults to true.
	assert.False(t, f.sessions.IsAuthenticated(browserApp.BundleID))
}

func TestCoordinator_CompanionLossRequiresSetting(t *testing.T) {
	f := newFixture(t)
	f.sessions.MarkAuthenticated(browserApp.BundleID, core.UnlockBiometric)

	f.handle(core.CompanionOutOfRange{RSSI: -85})
	assert.True(t, f.sessions.IsAuthenticated(browserApp.BundleID), "companion loss is inert without companion unlock")

	f.settings.update(func(s *core.Settings) { s.UseCompanionUnlock = true })
	f.handle(core.CompanionOutOfRange{RSSI: -85})
	assert.False(t, f.sessions.IsAuthenticated(browserApp.BundleID))
}

func TestCoordinator_CompanionReturnUnlocksOverlay(t *testing.T) {
	f := newFixture(t)
	f.settings.update(func(s *core.Settings) { s.UseCompanionUnlock = true })

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})
	require.True(t, f.overlay.Showing())

	f.trust.set(core.CompanionTrust{InRange: true, OnBody: core.OnBodyUnlocked})
	f.handle(core.CompanionInRange{RSSI: -55})

	assert.False(t, f.overlay.Showing())
	assert.True(t, f.sessions.IsAuthenticated(browserApp.BundleID))
}

func TestCoordinator_WakeTerminatesAutoCloseApps(t *testing.T) {
	f := newFixture(t)

	f.handle(core.SystemWoke{})

	assert.Equal(t, []string{diaryApp.BundleID}, f.procs.terminatedApps())
}

func TestCoordinator_AppTerminationInvalidatesSession(t *testing.T) {
	f := newFixture(t)
	f.sessions.MarkAuthenticated(browserApp.BundleID, core.UnlockBiometric)

	f.handle(core.AppTerminated{BundleID: browserApp.BundleID})

	assert.False(t, f.sessions.IsAuthenticated(browserApp.BundleID))
}

func TestCoordinator_TerminationOfOverlayTargetDismisses(t *testing.T) {
	f := newFixture(t)
	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})

	f.handle(core.AppTerminated{BundleID: browserApp.BundleID})

	assert.False(t, f.overlay.Showing())
}

func TestCoordinator_OverlayTimeoutHidesWithoutTrust(t *testing.T) {
	f := newFixture(t)
	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})

	f.handle(core.OverlayTimedOut{BundleID: browserApp.BundleID})

	assert.False(t, f.overlay.Showing())
	assert.False(t, f.sessions.IsAuthenticated(browserApp.BundleID))
}

func TestCoordinator_StaleAuthCompletionIgnored(t *testing.T) {
	f := newFixture(t)
	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})
	f.c.Panic()
	f.handle(core.PanicRequested{})
	require.False(t, f.overlay.Showing())

	// A success that resolves after the overlay is gone grants nothing.
	f.handle(core.AuthCompleted{BundleID: browserApp.BundleID, Method: core.UnlockBiometric, Success: true})

	assert.False(t, f.sessions.IsAuthenticated(browserApp.BundleID))
}

func TestCoordinator_PanicIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})

	f.handle(core.PanicRequested{})
	assert.False(t, f.overlay.Showing())
	assert.False(t, f.sessions.IsAuthenticated(browserApp.BundleID))

	// Panic with nothing showing is a no-op.
	f.handle(core.PanicRequested{})
	assert.False(t, f.overlay.Showing())
}

func TestCoordinator_AutoCloseElapsed(t *testing.T) {
	f := newFixture(t)
	f.sessions.MarkAuthenticated(diaryApp.BundleID, core.UnlockBiometric)

	f.handle(core.AutoCloseElapsed{BundleID: diaryApp.BundleID})
	assert.Equal(t, []string{diaryApp.BundleID}, f.procs.terminatedApps())
	assert.False(t, f.sessions.IsAuthenticated(diaryApp.BundleID))

	// Non-auto-close apps are never closed this way.
	f.handle(core.AutoCloseElapsed{BundleID: browserApp.BundleID})
	assert.Equal(t, []string{diaryApp.BundleID}, f.procs.terminatedApps())
}

func TestCoordinator_SubmitSecret(t *testing.T) {
	f := newFixture(t)

	err := f.c.SubmitSecret(context.Background(), "hunter2")
	assert.ErrorIs(t, err, ErrNothingLocked)

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})

	err = f.c.SubmitSecret(context.Background(), "wrong")
	assert.ErrorIs(t, err, ErrWrongSecret)
	ev := f.waitEvent(t)
	f.handle(ev)
	assert.True(t, f.overlay.Showing(), "wrong secret keeps the overlay up")
	assert.Equal(t, overlay.AwaitingUser, f.overlay.Phase())

	require.NoError(t, f.c.SubmitSecret(context.Background(), "hunter2"))
	f.handle(f.waitEvent(t))
	assert.False(t, f.overlay.Showing())
	assert.True(t, f.sessions.IsAuthenticated(browserApp.BundleID))
	assert.Equal(t, []string{"Firefox/secret"}, f.notifier.unlocked)
}

func TestCoordinator_SecretUnlockCancelsBiometricPrompt(t *testing.T) {
	f := newFixture(t)
	// The default authenticator blocks until its context is cancelled,
	// like a modal prompt nobody answered.

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})
	require.True(t, f.overlay.Showing())

	require.NoError(t, f.c.SubmitSecret(context.Background(), "hunter2"))
	f.handle(f.waitEvent(t))
	assert.False(t, f.overlay.Showing())
	assert.True(t, f.sessions.IsAuthenticated(browserApp.BundleID))

	// The lingering prompt was cancelled; its completion arrives as a
	// cancellation and changes nothing.
	ev := f.waitEvent(t)
	completed, ok := ev.(core.AuthCompleted)
	require.True(t, ok)
	assert.True(t, completed.Canceled)
	f.handle(ev)
	assert.False(t, f.overlay.Showing())
}

func TestCoordinator_RetryBiometric(t *testing.T) {
	f := newFixture(t)
	f.c.deps.Authenticator = &stubAuthenticator{result: &auth.Result{
		Outcome: auth.Failure,
		Reason:  auth.ReasonBiometryLockout,
	}}

	assert.ErrorIs(t, f.c.RetryBiometric(), ErrNothingLocked)

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})
	f.handle(f.waitEvent(t))
	require.Equal(t, overlay.AwaitingUser, f.overlay.Phase())

	f.c.deps.Authenticator = &stubAuthenticator{result: &auth.Result{Outcome: auth.Success}}
	require.NoError(t, f.c.RetryBiometric())
	f.handle(f.waitEvent(t))

	assert.False(t, f.overlay.Showing())
	assert.True(t, f.sessions.IsAuthenticated(browserApp.BundleID))
}

func TestCoordinator_Status(t *testing.T) {
	f := newFixture(t)
	f.trust.set(core.CompanionTrust{InRange: true, OnBody: core.OnBodyUnlocked})

	st := f.c.Status()
	assert.True(t, st.ProtectionEnabled)
	assert.Equal(t, "hidden", st.OverlayPhase)
	assert.Empty(t, st.OverlayTarget)
	assert.True(t, st.CompanionInRange)
	assert.Equal(t, "unlocked", st.CompanionOnBody)

	f.handle(core.ProtectionRequired{App: f.enabledApp(browserApp.BundleID), Trigger: "launch"})
	st = f.c.Status()
	assert.Equal(t, "authenticating", st.OverlayPhase)
	assert.Equal(t, browserApp.BundleID, st.OverlayTarget)
}

package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"appguard/internal/core"
	"appguard/internal/overlay"
)

// recordingSink captures deliveries. When release is set, every delivery
// blocks on it first, simulating a stalled transport.
type recordingSink struct {
	mu      sync.Mutex
	calls   []string
	entered chan struct{}
	release chan struct{}
}

func (s *recordingSink) record(call string) {
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *recordingSink) AppUnlocked(name string, method core.UnlockMethod) {
	s.record("unlocked:" + name + "/" + string(method))
}

func (s *recordingSink) RelockTriggered(trigger string, terminated, locked int) {
	s.record("relock:" + trigger)
}

func (s *recordingSink) OverlayShown(app core.ProtectedApp) {
	s.record("shown:" + app.BundleID)
}

func (s *recordingSink) OverlayHidden(app core.ProtectedApp, reason overlay.Reason) {
	s.record("hidden:" + app.BundleID + "/" + string(reason))
}

func TestFanout_DeliversToAllSinksInOrder(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	f := NewFanout(first)
	f.Add(second)

	app := core.ProtectedApp{BundleID: "org.mozilla.firefox", Name: "Firefox"}
	f.OverlayShown(app)
	f.AppUnlocked("Firefox", core.UnlockBiometric)
	f.OverlayHidden(app, overlay.ReasonAuthenticated)
	f.RelockTriggered("idle", 1, 2)

	want := []string{
		"shown:org.mozilla.firefox",
		"unlocked:Firefox/biometric",
		"hidden:org.mozilla.firefox/authenticated",
		"relock:idle",
	}
	assert.Eventually(t, func() bool {
		return len(first.snapshot()) == len(want) && len(second.snapshot()) == len(want)
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, want, first.snapshot())
	assert.Equal(t, want, second.snapshot())
}

func TestFanout_StalledSinkDoesNotBlockCaller(t *testing.T) {
	sink := &recordingSink{release: make(chan struct{})}
	f := NewFanout(sink)

	done := make(chan struct{})
	go func() {
		f.AppUnlocked("Firefox", core.UnlockCompanion)
		f.OverlayShown(core.ProtectedApp{BundleID: "org.mozilla.firefox"})
		f.RelockTriggered("sleep", 0, 1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notification calls blocked on a stalled sink")
	}

	close(sink.release)
	assert.Eventually(t, func() bool {
		return len(sink.snapshot()) == 3
	}, time.Second, 10*time.Millisecond)
}

func TestFanout_DropsWhenQueueFull(t *testing.T) {
	sink := &recordingSink{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	f := NewFanout(sink)

	f.AppUnlocked("Firefox", core.UnlockSecret)
	<-sink.entered // the worker is now parked inside the sink

	for i := 0; i < queueSize+10; i++ {
		f.RelockTriggered("idle", 0, 0)
	}
	close(sink.release)

	assert.Eventually(t, func() bool {
		return len(sink.snapshot()) == queueSize+1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sink.snapshot(), queueSize+1, "overflow beyond the queue is dropped, not delivered late")
}

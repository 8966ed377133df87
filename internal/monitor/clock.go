package monitor

import "time"

// Clock abstracts time for the polling detectors so tests can drive them
// deterministically.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) *time.Ticker
}

// RealClock implements Clock using system time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

// MockClock implements Clock for testing.
type MockClock struct {
	CurrentTime time.Time
	ticker      *time.Ticker
}

func (m *MockClock) Now() time.Time { return m.CurrentTime }

func (m *MockClock) NewTicker(d time.Duration) *time.Ticker {
	if m.ticker == nil {
		m.ticker = time.NewTicker(d)
	}
	return m.ticker
}

// Advance moves the mocked time forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.CurrentTime = m.CurrentTime.Add(d)
}

// Set pins the mocked time to t.
func (m *MockClock) Set(t time.Time) {
	m.CurrentTime = t
}

var (
	_ Clock = RealClock{}
	_ Clock = (*MockClock)(nil)
)

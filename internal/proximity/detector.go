package proximity

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"appguard/internal/core"
)

// RadioState reflects the BLE adapter's availability. Anything but
// powered-on is a degraded mode: the detector reports it, emits no range
// events, and keeps retrying.
type RadioState int

const (
	RadioUnknown RadioState = iota
	RadioPoweredOn
	RadioPoweredOff
	RadioUnauthorized
	RadioUnsupported
)

func (s RadioState) String() string {
	switch s {
	case RadioPoweredOn:
		return "powered-on"
	case RadioPoweredOff:
		return "powered-off"
	case RadioUnauthorized:
		return "unauthorized"
	case RadioUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// ManufacturerField is one vendor-specific data element from an
// advertisement.
type ManufacturerField struct {
	CompanyID uint16
	Data      []byte
}

// Advertisement is a single received BLE advertisement.
type Advertisement struct {
	Address          string
	Name             string
	RSSI             int
	ManufacturerData []ManufacturerField
}

// Central abstracts the BLE radio so the detector logic can be driven by a
// fake in tests. Scan blocks, invoking fn for every advertisement
// (duplicates included), until ctx is cancelled or the radio fails.
type Central interface {
	Enable() (RadioState, error)
	Scan(ctx context.Context, fn func(Advertisement)) error
}

// PairingStorage persists the paired companion identity.
type PairingStorage interface {
	GetCompanion(ctx context.Context) (*core.PairedCompanion, error)
	SetCompanion(ctx context.Context, c core.PairedCompanion) error
	DeleteCompanion(ctx context.Context) error
}

// Config tunes the detector. Zero values pick the defaults below.
type Config struct {
	RSSIThreshold          int           // readings below are out of range
	NameFilter             string        // substring adopted at pairing time
	PollInterval           time.Duration // range evaluation cadence
	StaleAfter             time.Duration // silence treated as a sub-threshold reading
	LostAfter              time.Duration // silence treated as a disconnect
	OutOfRangeCount        int           // consecutive low readings before out-of-range
	LockedReadingsRequired int           // consecutive locked readings before trust drops
}

const (
	defaultRSSIThreshold   = -70
	defaultNameFilter      = "watch"
	defaultPollInterval    = 5 * time.Second
	defaultStaleAfter      = 12 * time.Second
	defaultLostAfter       = 30 * time.Second
	defaultOutOfRangeCount = 3
	defaultLockedReadings  = 5
)

func (c *Config) fillDefaults() {
	if c.RSSIThreshold == 0 {
		c.RSSIThreshold = defaultRSSIThreshold
	}
	if c.NameFilter == "" {
		c.NameFilter = defaultNameFilter
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.LostAfter <= 0 {
		c.LostAfter = defaultLostAfter
	}
	if c.OutOfRangeCount <= 0 {
		c.OutOfRangeCount = defaultOutOfRangeCount
	}
	if c.LockedReadingsRequired <= 0 {
		c.LockedReadingsRequired = defaultLockedReadings
	}
}

type rssiSample struct {
	rssi int
	at   time.Time
}

// Detector fuses advertisement traffic into two derived booleans: whether
// the paired companion is in range and whether it is worn/unlocked. Range
// transitions are emitted as events; the derived state is also readable
// synchronously via Trust.
type Detector struct {
	central Central
	storage PairingStorage
	events  chan<- core.Event
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time

	mu                    sync.Mutex
	radio                 RadioState
	paired                *core.PairedCompanion
	inRange               bool
	onBody                core.OnBodyState
	consecutiveOutOfRange int
	consecutiveLocked     int
	lastSample            *rssiSample
	threshold             int
}

// NewDetector creates a detector. events receives CompanionInRange /
// CompanionOutOfRange transitions.
func NewDetector(central Central, storage PairingStorage, events chan<- core.Event, cfg Config, logger *slog.Logger) *Detector {
	cfg.fillDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		central:   central,
		storage:   storage,
		events:    events,
		logger:    logger.With("component", "proximity"),
		cfg:       cfg,
		now:       time.Now,
		onBody:    core.OnBodyUnknown,
		threshold: cfg.RSSIThreshold,
	}
}

// Run owns the radio session until ctx is cancelled: enable, scan,
// evaluate range on a fixed cadence, and reconnect with backoff after any
// radio failure.
func (d *Detector) Run(ctx context.Context) {
	if stored, err := d.storage.GetCompanion(ctx); err != nil {
		d.logger.Error("failed to load paired companion", "error", err)
	} else if stored != nil {
		d.mu.Lock()
		d.paired = stored
		d.mu.Unlock()
		d.logger.Info("restored paired companion", "address", stored.Address, "name", stored.Name)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0 // retry forever
	policy.MaxInterval = time.Minute

	for {
		if ctx.Err() != nil {
			return
		}

		state, err := d.central.Enable()
		d.setRadioState(state)
		if err != nil || state != RadioPoweredOn {
			d.logger.Warn("radio not available", "state", state.String(), "error", err)
			d.markLost()
			if !d.sleep(ctx, policy.NextBackOff()) {
				return
			}
			continue
		}
		policy.Reset()

		if err := d.scanSession(ctx); err != nil {
			d.logger.Warn("scan session ended", "error", err)
			d.markLost()
			if !d.sleep(ctx, policy.NextBackOff()) {
				return
			}
		}
	}
}

func (d *Detector) sleep(ctx context.Context, delay time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// scanSession runs one scan plus the range-evaluation ticker until the
// radio fails or ctx is cancelled.
func (d *Detector) scanSession(ctx context.Context) error {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(d.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-scanCtx.Done():
				return
			case <-ticker.C:
				d.evaluateRange()
			}
		}
	}()

	err := d.central.Scan(scanCtx, d.handleAdvertisement)
	cancel()
	<-done
	return err
}

// handleAdvertisement processes one received advertisement: pairing,
// RSSI sampling, and on-body decoding.
func (d *Detector) handleAdvertisement(adv Advertisement) {
	d.mu.Lock()

	if d.paired == nil {
		if adv.Name == "" || !strings.Contains(strings.ToLower(adv.Name), strings.ToLower(d.cfg.NameFilter)) {
			d.mu.Unlock()
			return
		}
		companion := core.PairedCompanion{Address: adv.Address, Name: adv.Name, PairedAt: d.now()}
		d.paired = &companion
		d.mu.Unlock()

		d.logger.Info("paired with companion", "address", adv.Address, "name", adv.Name)
		if err := d.storage.SetCompanion(context.Background(), companion); err != nil {
			d.logger.Error("failed to persist pairing", "error", err)
		}
		return
	}

	if adv.Address != d.paired.Address {
		d.mu.Unlock()
		return
	}

	d.lastSample = &rssiSample{rssi: adv.RSSI, at: d.now()}

	for _, field := range adv.ManufacturerData {
		if field.CompanyID != CompanyID {
			continue
		}
		unlocked, ok := ParseNearbyInfo(field.Data)
		if !ok {
			continue
		}
		if unlocked {
			// Putting the device back on restores trust instantly.
			d.consecutiveLocked = 0
			if d.onBody != core.OnBodyUnlocked {
				d.onBody = core.OnBodyUnlocked
				d.logger.Info("companion on-body state changed", "on_body", d.onBody.String())
			}
		} else {
			// One noisy locked packet must not revoke trust.
			d.consecutiveLocked++
			if d.consecutiveLocked >= d.cfg.LockedReadingsRequired && d.onBody != core.OnBodyLocked {
				d.onBody = core.OnBodyLocked
				d.logger.Info("companion on-body state changed",
					"on_body", d.onBody.String(),
					"readings", d.consecutiveLocked)
			}
		}
	}
	d.mu.Unlock()
}

// evaluateRange folds the most recent RSSI sample into the hysteresis
// counters. Silence past the staleness window counts as a sub-threshold
// reading; silence past the loss window is a disconnect.
func (d *Detector) evaluateRange() {
	d.mu.Lock()

	if d.radio != RadioPoweredOn || d.paired == nil {
		d.mu.Unlock()
		return
	}

	now := d.now()
	if d.lastSample != nil && now.Sub(d.lastSample.at) > d.cfg.LostAfter {
		lost := d.lostLocked()
		d.mu.Unlock()
		if lost {
			d.emit(core.CompanionOutOfRange{})
		}
		return
	}

	rssi := d.threshold - 1 // no sample yet reads as out of range
	if d.lastSample != nil && now.Sub(d.lastSample.at) <= d.cfg.StaleAfter {
		rssi = d.lastSample.rssi
	}

	var ev core.Event
	if rssi < d.threshold {
		d.consecutiveOutOfRange++
		if d.consecutiveOutOfRange >= d.cfg.OutOfRangeCount && d.inRange {
			d.inRange = false
			ev = core.CompanionOutOfRange{RSSI: rssi}
			d.logger.Info("companion out of range", "rssi", rssi, "threshold", d.threshold)
		}
	} else {
		d.consecutiveOutOfRange = 0
		if !d.inRange {
			d.inRange = true
			ev = core.CompanionInRange{RSSI: rssi}
			d.logger.Info("companion in range", "rssi", rssi)
		}
	}
	d.mu.Unlock()

	if ev != nil {
		d.emit(ev)
	}
}

// markLost handles a dropped radio session: out of range immediately,
// on-body unknown, counters reset.
func (d *Detector) markLost() {
	d.mu.Lock()
	lost := d.lostLocked()
	d.mu.Unlock()
	if lost {
		d.emit(core.CompanionOutOfRange{})
	}
}

// lostLocked requires d.mu held. It reports whether an out-of-range
// transition happened; the caller emits the event after releasing the
// mutex so deliveries stay in call order.
func (d *Detector) lostLocked() bool {
	d.lastSample = nil
	d.onBody = core.OnBodyUnknown
	d.consecutiveLocked = 0
	d.consecutiveOutOfRange = 0
	if !d.inRange {
		return false
	}
	d.inRange = false
	d.logger.Info("companion connection lost")
	return true
}

func (d *Detector) emit(ev core.Event) {
	if d.events != nil {
		d.events <- ev
	}
}

// Trust returns the current derived companion state.
func (d *Detector) Trust() core.CompanionTrust {
	d.mu.Lock()
	defer d.mu.Unlock()
	return core.CompanionTrust{InRange: d.inRange, OnBody: d.onBody}
}

// RadioState returns the adapter availability.
func (d *Detector) RadioState() RadioState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.radio
}

func (d *Detector) setRadioState(state RadioState) {
	d.mu.Lock()
	d.radio = state
	d.mu.Unlock()
}

// Paired returns the persisted companion identity, if any.
func (d *Detector) Paired() (core.PairedCompanion, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paired == nil {
		return core.PairedCompanion{}, false
	}
	return *d.paired, true
}

// Unpair forgets the companion and resets all derived state.
func (d *Detector) Unpair(ctx context.Context) error {
	if err := d.storage.DeleteCompanion(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	d.paired = nil
	d.lastSample = nil
	d.inRange = false
	d.onBody = core.OnBodyUnknown
	d.consecutiveLocked = 0
	d.consecutiveOutOfRange = 0
	d.mu.Unlock()
	d.logger.Info("companion unpaired")
	return nil
}

// SetRSSIThreshold applies a new threshold from a settings change.
func (d *Detector) SetRSSIThreshold(threshold int) {
	d.mu.Lock()
	d.threshold = threshold
	d.mu.Unlock()
}

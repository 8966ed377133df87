package proximity

import (
	"context"
	"strings"

	"tinygo.org/x/bluetooth"
)

// BLECentral adapts the host Bluetooth stack (BlueZ, CoreBluetooth or
// WinRT, via tinygo bluetooth) to the Central interface.
type BLECentral struct {
	adapter *bluetooth.Adapter
	enabled bool
}

// NewBLECentral wraps the default host adapter.
func NewBLECentral() *BLECentral {
	return &BLECentral{adapter: bluetooth.DefaultAdapter}
}

// Enable powers up the adapter, mapping stack errors onto the degraded
// radio states the detector understands.
func (c *BLECentral) Enable() (RadioState, error) {
	if !c.enabled {
		if err := c.adapter.Enable(); err != nil {
			return classifyRadioError(err), err
		}
		c.enabled = true
	}
	return RadioPoweredOn, nil
}

// Scan delivers every advertisement (duplicates included) to fn until ctx
// is cancelled or the stack reports an error.
func (c *BLECentral) Scan(ctx context.Context, fn func(Advertisement)) error {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.adapter.StopScan()
		case <-stop:
		}
	}()
	defer close(stop)

	return c.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		adv := Advertisement{
			Address: result.Address.String(),
			Name:    result.LocalName(),
			RSSI:    int(result.RSSI),
		}
		for _, element := range result.ManufacturerData() {
			adv.ManufacturerData = append(adv.ManufacturerData, ManufacturerField{
				CompanyID: element.CompanyID,
				Data:      element.Data,
			})
		}
		fn(adv)
	})
}

// classifyRadioError guesses a degraded state from the stack's error text.
// The stacks expose no structured error codes, so this stays a heuristic;
// anything unrecognized reads as powered-off, which only delays the retry.
func classifyRadioError(err error) RadioState {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "not authorized") || strings.Contains(msg, "permission"):
		return RadioUnauthorized
	case strings.Contains(msg, "unsupported") || strings.Contains(msg, "no such device") || strings.Contains(msg, "no adapter"):
		return RadioUnsupported
	default:
		return RadioPoweredOff
	}
}

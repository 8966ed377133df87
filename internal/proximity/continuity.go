// Package proximity owns the BLE central session for the paired companion
// wearable: pairing, RSSI-based range detection with hysteresis, and
// decoding of the vendor Nearby-Info advertisement that reveals whether
// the device is worn and unlocked.
package proximity

import "encoding/binary"

// Vendor advertisement constants. Manufacturer data opens with a 2-byte
// little-endian company identifier followed by TLV records; the Nearby-Info
// record carries the on-body lock state.
const (
	CompanyID        uint16 = 0x004C
	nearbyInfoType   byte   = 0x10
	nearbyInfoMinLen        = 3
	unlockedFlagBit  byte   = 0x80
)

// ParseNearbyInfo walks the TLV sequence that follows the company
// identifier and extracts the on-body lock state from the first Nearby-Info
// record. ok is false when no such record is present. Records with lengths
// that run past the payload terminate the walk; other record types are
// skipped. A malformed payload can never panic or return a bogus reading.
func ParseNearbyInfo(tlv []byte) (unlocked bool, ok bool) {
	offset := 0
	for offset+1 < len(tlv) {
		recType := tlv[offset]
		recLen := int(tlv[offset+1])
		valueStart := offset + 2

		if recType == nearbyInfoType && recLen >= nearbyInfoMinLen && valueStart+2 < len(tlv) {
			flags := tlv[valueStart+1]
			return flags&unlockedFlagBit != 0, true
		}

		offset = valueStart + recLen
	}
	return false, false
}

// ParseManufacturerData checks the leading company identifier and then
// delegates to ParseNearbyInfo. Payloads from other vendors or shorter
// than a minimal Nearby-Info advertisement yield ok == false.
func ParseManufacturerData(data []byte) (unlocked bool, ok bool) {
	if len(data) < 6 {
		return false, false
	}
	if binary.LittleEndian.Uint16(data[:2]) != CompanyID {
		return false, false
	}
	return ParseNearbyInfo(data[2:])
}

package proximity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestParseNearbyInfo(t *testing.T) {
	tests := []struct {
		name         string
		tlv          []byte
		wantUnlocked bool
		wantOK       bool
	}{
		{
			name:         "unlocked flag set",
			tlv:          []byte{0x10, 0x05, 0x01, 0x98, 0x8F, 0x00, 0x00},
			wantUnlocked: true,
			wantOK:       true,
		},
		{
			name:         "unlocked flag clear",
			tlv:          []byte{0x10, 0x05, 0x01, 0x18, 0x8F, 0x00, 0x00},
			wantUnlocked: false,
			wantOK:       true,
		},
		{
			name:         "nearby info after another record",
			tlv:          []byte{0x0C, 0x02, 0xAA, 0xBB, 0x10, 0x03, 0x01, 0x80, 0x00},
			wantUnlocked: true,
			wantOK:       true,
		},
		{
			name:   "no nearby info record",
			tlv:    []byte{0x0C, 0x02, 0xAA, 0xBB},
			wantOK: false,
		},
		{
			name:   "record length below minimum",
			tlv:    []byte{0x10, 0x02, 0x01, 0x80},
			wantOK: false,
		},
		{
			name:   "declared length overruns payload",
			tlv:    []byte{0x10, 0x7F, 0x01},
			wantOK: false,
		},
		{
			name:   "empty payload",
			tlv:    nil,
			wantOK: false,
		},
		{
			name:   "single byte",
			tlv:    []byte{0x10},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unlocked, ok := ParseNearbyInfo(tt.tlv)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantUnlocked, unlocked)
		})
	}
}

func TestParseManufacturerData(t *testing.T) {
	unlocked, ok := ParseManufacturerData([]byte{0x4C, 0x00, 0x10, 0x05, 0x01, 0x98, 0x8F})
	assert.True(t, ok)
	assert.True(t, unlocked)

	_, ok = ParseManufacturerData([]byte{0x4D, 0x00, 0x10, 0x05, 0x01, 0x98, 0x8F})
	assert.False(t, ok, "foreign company identifier must be rejected")

	_, ok = ParseManufacturerData([]byte{0x4C, 0x00, 0x10})
	assert.False(t, ok, "truncated payload must be rejected")
}

// Arbitrary radio noise must never panic the parser or terminate the walk
// in an unbounded way.
func TestParseManufacturerData_NeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "data")
		ParseManufacturerData(data)
		ParseNearbyInfo(data)
	})
}

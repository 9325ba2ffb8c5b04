package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
)

// ErrSettingsLength is returned when a settings buffer is not the fixed
// 32-byte block size.
var ErrSettingsLength = errors.New("codec: settings block must be 32 bytes")

// Settings is the decoded device settings block. Only the first 8 bytes
// carry known fields; the rest of the block is reserved and must be
// carried through unchanged on write.
type Settings struct {
	DefaultFrequency float64 `json:"default_frequency_mhz"`
	TxPower          uint8   `json:"tx_power"`
	AutoScan         bool    `json:"auto_scan"`
	Backlight        uint8   `json:"backlight"`
	AutoBacklightOff bool    `json:"auto_backlight_off"`
}

// DecodeSettings interprets the raw settings block. Out-of-range values
// stored by the device are reported as-is; validation applies on encode.
func DecodeSettings(block []byte) (*Settings, error) {
	if len(block) != protocol.SettingsSize {
		return nil, fmt.Errorf("%w, got %d", ErrSettingsLength, len(block))
	}
	return &Settings{
		DefaultFrequency: float64(binary.LittleEndian.Uint32(block[0:4])) / 1000000.0,
		TxPower:          block[4],
		AutoScan:         block[5] != 0,
		Backlight:        block[6],
		AutoBacklightOff: block[7] != 0,
	}, nil
}

// EncodeSettings overlays s onto a copy of prev, the block previously
// read from the device, so the reserved bytes survive a write. A nil
// prev starts from a zero block.
func EncodeSettings(s *Settings, prev []byte) ([]byte, error) {
	if prev != nil && len(prev) != protocol.SettingsSize {
		return nil, fmt.Errorf("%w, got %d", ErrSettingsLength, len(prev))
	}
	if s.TxPower > 2 {
		return nil, fmt.Errorf("codec: tx power %d out of range 0-2", s.TxPower)
	}
	if s.Backlight > 100 {
		return nil, fmt.Errorf("codec: backlight %d out of range 0-100", s.Backlight)
	}
	if !PlausibleFrequency(s.DefaultFrequency) {
		return nil, fmt.Errorf("codec: default frequency %.5f MHz out of band %.1f-%.1f",
			s.DefaultFrequency, MinFrequencyMHz, MaxFrequencyMHz)
	}

	block := make([]byte, protocol.SettingsSize)
	copy(block, prev)

	binary.LittleEndian.PutUint32(block[0:4], uint32(math.Round(s.DefaultFrequency*1000000)))
	block[4] = s.TxPower
	block[5] = boolByte(s.AutoScan)
	block[6] = s.Backlight
	block[7] = boolByte(s.AutoBacklightOff)
	return block, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

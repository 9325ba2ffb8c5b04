// Package codec interprets the radio's on-wire records: 16-byte channel
// entries, the 32-byte settings block, calibration blobs and the battery
// ADC word. Decoding is deliberately lenient because the device never
// confirms which firmware revision wrote a record; encoding always emits
// the primary layout.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
)

// Frequency band accepted as a plausible channel frequency, in MHz.
const (
	MinFrequencyMHz = 136.0
	MaxFrequencyMHz = 520.0
)

// maxNameLen caps the channel name both on decode and encode.
const maxNameLen = 7

// nameOffsets are the record offsets where firmware revisions have been
// seen to place the name, in probing order.
var nameOffsets = [...]int{9, 8, 0}

// Channel is one decoded channel table entry.
type Channel struct {
	Index     int     `json:"index"`
	Frequency float64 `json:"frequency_mhz"`
	TxPower   uint8   `json:"tx_power"`
	Narrow    bool    `json:"narrow"`
	Scrambler bool    `json:"scrambler"`
	RXTone    Tone    `json:"rx_tone"`
	TXTone    Tone    `json:"tx_tone"`
	Name      string  `json:"name"`
}

// DecodeChannel interprets a 16-byte record. It returns nil for an empty
// record (uniformly 0x00 or 0xFF) or a wrong-sized slice; a decoded
// channel with an out-of-band frequency is still returned, the caller
// decides whether to keep it.
func DecodeChannel(rec []byte, index int) *Channel {
	if len(rec) != protocol.ChannelRecordSize || IsEmptyRecord(rec) {
		return nil
	}

	flags := rec[4]
	return &Channel{
		Index:     index,
		Frequency: decodeFrequency(rec[0:4]),
		TxPower:   flags & 0x03,
		Narrow:    flags&0x10 != 0,
		Scrambler: flags&0x20 != 0,
		RXTone:    DecodeTone(binary.LittleEndian.Uint16(rec[5:7])),
		TXTone:    DecodeTone(binary.LittleEndian.Uint16(rec[7:9])),
		Name:      decodeName(rec, index),
	}
}

// EncodeChannel produces the 16-byte primary-layout record for ch. The
// name is truncated to 7 bytes and non-ASCII bytes are dropped.
func EncodeChannel(ch *Channel) []byte {
	rec := make([]byte, protocol.ChannelRecordSize)

	binary.LittleEndian.PutUint32(rec[0:4], uint32(math.Round(ch.Frequency*100000)))

	flags := ch.TxPower & 0x03
	if ch.Narrow {
		flags |= 0x10
	}
	if ch.Scrambler {
		flags |= 0x20
	}
	rec[4] = flags

	binary.LittleEndian.PutUint16(rec[5:7], ch.RXTone.Encode())
	binary.LittleEndian.PutUint16(rec[7:9], ch.TXTone.Encode())
	copy(rec[9:], encodeName(ch.Name))
	return rec
}

// IsEmptyRecord reports whether rec is uniformly 0x00 or uniformly 0xFF,
// the two erased-cell patterns the device produces.
func IsEmptyRecord(rec []byte) bool {
	if len(rec) == 0 {
		return true
	}
	fill := rec[0]
	if fill != 0x00 && fill != 0xFF {
		return false
	}
	for _, b := range rec[1:] {
		if b != fill {
			return false
		}
	}
	return true
}

// PlausibleFrequency reports whether f lies in the radio's usable band.
func PlausibleFrequency(f float64) bool {
	return f >= MinFrequencyMHz && f <= MaxFrequencyMHz
}

// decodeFrequency tries the known frequency encodings in order and takes
// the first one landing in band. When none does, the little-endian
// reading is kept as-is rather than substituted with a default, so the
// caller sees what the device actually stores.
func decodeFrequency(b []byte) float64 {
	le := binary.LittleEndian.Uint32(b)
	if f := float64(le) / 100000.0; PlausibleFrequency(f) {
		return f
	}
	if v, ok := bcdValue(b); ok {
		if f := float64(v) / 100000.0; PlausibleFrequency(f) {
			return f
		}
	}
	if f := float64(le) / 10000.0; PlausibleFrequency(f) {
		return f
	}
	if f := float64(binary.BigEndian.Uint32(b)) / 100000.0; PlausibleFrequency(f) {
		return f
	}
	return float64(le) / 100000.0
}

// bcdValue reads b as little-endian packed BCD, two digits per byte.
func bcdValue(b []byte) (uint32, bool) {
	var v uint32
	for i := len(b) - 1; i >= 0; i-- {
		hi, lo := b[i]>>4, b[i]&0x0F
		if hi > 9 || lo > 9 {
			return 0, false
		}
		v = v*100 + uint32(hi)*10 + uint32(lo)
	}
	return v, true
}

func decodeName(rec []byte, index int) string {
	for _, off := range nameOffsets {
		if name := printableRun(rec[off:], maxNameLen); len(name) >= 2 {
			return name
		}
	}
	return fmt.Sprintf("CH-%d", index+1)
}

// printableRun collects the printable ASCII bytes at the start of b, up
// to max, and trims surrounding whitespace.
func printableRun(b []byte, max int) string {
	n := 0
	for n < len(b) && n < max && b[n] >= 0x20 && b[n] <= 0x7E {
		n++
	}
	return strings.TrimSpace(string(b[:n]))
}

func encodeName(name string) []byte {
	out := make([]byte, 0, maxNameLen)
	for i := 0; i < len(name) && len(out) < maxNameLen; i++ {
		if c := name[i]; c >= 0x20 && c <= 0x7E {
			out = append(out, c)
		}
	}
	return out
}

package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToneKind distinguishes the sub-audible squelch modes a channel can
// carry.
type ToneKind int

const (
	ToneNone ToneKind = iota
	ToneCTCSS
	ToneDCS
)

// Tone is a decoded squelch tone. CTCSS is in Hz, DCS is the raw code.
type Tone struct {
	Kind  ToneKind `json:"kind"`
	CTCSS float64  `json:"ctcss_hz,omitempty"`
	DCS   int      `json:"dcs_code,omitempty"`
}

// DecodeTone maps the on-wire tone word: 0x0000 and 0xFFFF mean no tone,
// values below 1000 are CTCSS in tenths of Hz, everything else is a DCS
// code.
func DecodeTone(v uint16) Tone {
	switch {
	case v == 0x0000 || v == 0xFFFF:
		return Tone{Kind: ToneNone}
	case v < 1000:
		return Tone{Kind: ToneCTCSS, CTCSS: float64(v) / 10.0}
	default:
		return Tone{Kind: ToneDCS, DCS: int(v)}
	}
}

// Encode produces the on-wire word for t. No-tone encodes as 0x0000.
func (t Tone) Encode() uint16 {
	switch t.Kind {
	case ToneCTCSS:
		return uint16(math.Round(t.CTCSS * 10.0))
	case ToneDCS:
		return uint16(t.DCS)
	default:
		return 0x0000
	}
}

// String renders t for CSV and console output: "-" for none, the Hz
// value for CTCSS, "D<code>" for DCS.
func (t Tone) String() string {
	switch t.Kind {
	case ToneCTCSS:
		return strconv.FormatFloat(t.CTCSS, 'f', 1, 64)
	case ToneDCS:
		return fmt.Sprintf("D%d", t.DCS)
	default:
		return "-"
	}
}

// ParseTone is the inverse of String, accepting "" as no tone too.
func ParseTone(s string) (Tone, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "-":
		return Tone{Kind: ToneNone}, nil
	case s[0] == 'D' || s[0] == 'd':
		code, err := strconv.Atoi(s[1:])
		if err != nil {
			return Tone{}, fmt.Errorf("codec: bad DCS tone %q", s)
		}
		return Tone{Kind: ToneDCS, DCS: code}, nil
	default:
		hz, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Tone{}, fmt.Errorf("codec: bad CTCSS tone %q", s)
		}
		return Tone{Kind: ToneCTCSS, CTCSS: hz}, nil
	}
}

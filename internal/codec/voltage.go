package codec

// VoltageCoefficient is one candidate linear ADC-to-volts mapping.
// Different hardware revisions wire the battery divider differently, so
// the conversion tries each candidate and keeps the first plausible
// result.
type VoltageCoefficient struct {
	Scale   float64
	Divisor float64
}

// Apply converts a raw ADC word to volts under this coefficient.
func (c VoltageCoefficient) Apply(adc uint16) float64 {
	return float64(adc) * c.Scale / c.Divisor
}

// VoltageCoefficients are the known candidates in probing order. The
// first entry doubles as the default when no candidate lands inside the
// plausibility window.
var VoltageCoefficients = []VoltageCoefficient{
	{Scale: 7.6, Divisor: 4096},
	{Scale: 8.4, Divisor: 4096},
	{Scale: 7.6, Divisor: 1024},
	{Scale: 3.7, Divisor: 4096},
	{Scale: 3.7, Divisor: 1024},
}

// VoltageWindow bounds a plausible battery voltage in volts.
type VoltageWindow struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies inside the window.
func (w VoltageWindow) Contains(v float64) bool {
	return v >= w.Min && v <= w.Max
}

// Windows for the two battery chemistries seen in the field: the stock
// 7.4 V pack and the single-cell conversion some units carry.
var (
	DefaultVoltageWindow = VoltageWindow{Min: 6.0, Max: 9.0}
	LegacyVoltageWindow  = VoltageWindow{Min: 2.5, Max: 4.5}
)

// BatteryReading is the converted battery measurement. Coefficient is
// the index into VoltageCoefficients that produced Volts; Plausible is
// false when no candidate landed inside the window and the default
// coefficient was used.
type BatteryReading struct {
	ADC         uint16  `json:"adc"`
	Volts       float64 `json:"volts"`
	Coefficient int     `json:"coefficient"`
	Plausible   bool    `json:"plausible"`
}

// ConvertBatteryADC maps a raw ADC word to volts, trying each candidate
// coefficient and keeping the first inside win. When none lands, the
// first coefficient's value is reported with Plausible false; the
// conversion never fails. A zero window falls back to the default.
func ConvertBatteryADC(adc uint16, win VoltageWindow) BatteryReading {
	if win.Max <= win.Min {
		win = DefaultVoltageWindow
	}
	for i, c := range VoltageCoefficients {
		if v := c.Apply(adc); win.Contains(v) {
			return BatteryReading{ADC: adc, Volts: v, Coefficient: i, Plausible: true}
		}
	}
	return BatteryReading{ADC: adc, Volts: VoltageCoefficients[0].Apply(adc)}
}

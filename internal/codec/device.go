package codec

import (
	"fmt"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
)

// ModelName is the only model this protocol dialect is known to speak.
const ModelName = "Quansheng UV-K5"

// UnknownVersion is reported when no version string can be recovered.
const UnknownVersion = "unknown"

// DeviceInfo aggregates what the radio reveals about itself. The device
// has no persistent identity fields, so everything here is derived from
// readable memory.
type DeviceInfo struct {
	Model             string  `json:"model"`
	FirmwareVersion   string  `json:"firmware_version"`
	BootloaderVersion string  `json:"bootloader_version"`
	BatteryVoltage    float64 `json:"battery_voltage"`
}

// FirmwareString recovers a version string from a raw memory window: the
// first printable ASCII run of at least 3 characters, or UnknownVersion.
func FirmwareString(raw []byte) string {
	for i := 0; i < len(raw); {
		run := printableRun(raw[i:], len(raw))
		if len(run) >= 3 {
			return run
		}
		// Skip past the bytes the run consumed plus the terminator.
		if run == "" {
			i++
		} else {
			i += len(run) + 1
		}
	}
	return UnknownVersion
}

// CalibrationSet groups the radio's calibration blobs. The blobs are
// opaque; only their sizes and addresses are known.
type CalibrationSet struct {
	Battery []byte `json:"battery"`
	TX      []byte `json:"tx"`
	RX      []byte `json:"rx"`
	RSSI    []byte `json:"rssi"`
}

// CalibrationBlock is one named blob with its device address, in the
// shape export encoders want.
type CalibrationBlock struct {
	Name    string
	Address uint16
	Data    []byte
}

// Blocks returns the set's blobs in fixed order with their addresses.
// Nil blobs are included so callers can tell "not read" from "empty".
func (c *CalibrationSet) Blocks() []CalibrationBlock {
	return []CalibrationBlock{
		{Name: "battery", Address: protocol.BatteryCalAddr, Data: c.Battery},
		{Name: "tx", Address: protocol.TXCalAddr, Data: c.TX},
		{Name: "rx", Address: protocol.RXCalAddr, Data: c.RX},
		{Name: "rssi", Address: protocol.RSSICalAddr, Data: c.RSSI},
	}
}

// Set stores data under the block name used by Blocks.
func (c *CalibrationSet) Set(name string, data []byte) error {
	switch name {
	case "battery":
		c.Battery = data
	case "tx":
		c.TX = data
	case "rx":
		c.RX = data
	case "rssi":
		c.RSSI = data
	default:
		return fmt.Errorf("codec: unknown calibration block %q", name)
	}
	return nil
}

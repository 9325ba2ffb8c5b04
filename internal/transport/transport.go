// Package transport provides byte-level access to the radio: a real
// serial port fixed at the radio's line settings, port enumeration, and
// an in-memory simulated radio for development without hardware.
package transport

import "time"

// DefaultBaudRate is the only rate the radio's bootloader and firmware
// speak.
const DefaultBaudRate = 38400

// Transport is the byte pipe the protocol session drives. Read returns
// whatever arrived within the timeout, an empty slice when nothing did;
// a zero timeout polls without blocking. Neither direction frames or
// interprets bytes.
type Transport interface {
	Write(p []byte) (int, error)
	Read(timeout time.Duration) ([]byte, error)
	Close() error
}

// Config holds serial connection settings. The line is always 8 data
// bits, no parity, one stop bit; only the device path and rate vary.
type Config struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

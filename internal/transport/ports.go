package transport

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial port candidate on this machine.
type PortInfo struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// ListPorts enumerates serial ports with USB detail where the platform
// provides it, falling back to the plain device list otherwise. An
// empty list with no error means no ports exist.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		out := make([]PortInfo, 0, len(details))
		for _, d := range details {
			out = append(out, PortInfo{Path: d.Name, Description: describePort(d)})
		}
		return out, nil
	}

	names, listErr := serial.GetPortsList()
	if listErr != nil {
		return nil, fmt.Errorf("transport: list ports: %w", listErr)
	}
	out := make([]PortInfo, 0, len(names))
	for _, name := range names {
		out = append(out, PortInfo{Path: name})
	}
	return out, nil
}

func describePort(d *enumerator.PortDetails) string {
	if !d.IsUSB {
		return ""
	}
	parts := []string{fmt.Sprintf("USB %s:%s", d.VID, d.PID)}
	if d.Product != "" {
		parts = append(parts, d.Product)
	}
	if d.SerialNumber != "" {
		parts = append(parts, "SN "+d.SerialNumber)
	}
	return strings.Join(parts, " ")
}

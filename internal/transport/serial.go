package transport

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Port is a Transport over a physical serial port.
type Port struct {
	path string
	baud int

	mu   sync.Mutex
	port serial.Port
	buf  []byte
}

// Open opens the serial port in raw 8N1 mode at the configured rate.
// Opening does not verify the endpoint is a radio; that is the session
// handshake's job. The OS input buffer is reset once so a previous
// crashed session cannot leave stale bytes behind.
func Open(cfg Config) (*Port, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.PortPath, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.PortPath, err)
	}
	port.ResetInputBuffer()

	return &Port{
		path: cfg.PortPath,
		baud: cfg.BaudRate,
		port: port,
		buf:  make([]byte, 256),
	}, nil
}

func (p *Port) String() string {
	return fmt.Sprintf("%s@%d", p.path, p.baud)
}

// Write sends p down the line in one call.
func (p *Port) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.port.Write(data)
	if err != nil {
		return n, fmt.Errorf("transport: write %s: %w", p.path, err)
	}
	return n, nil
}

// Read returns the bytes that arrive within timeout, at most one driver
// read's worth. A timeout of zero polls the driver without blocking.
func (p *Port) Read(timeout time.Duration) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("transport: set read timeout on %s: %w", p.path, err)
	}
	n, err := p.port.Read(p.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, p.buf[:n])
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transport: read %s: %w", p.path, err)
	}
	return nil, nil
}

// Close releases the port.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}

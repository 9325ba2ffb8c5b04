// Package radio implements the UV-K5 host-side protocol: a session
// owning one serial transport, a transaction engine with buffer
// clearing, response assembly and retry backoff, and variant probing
// that copes with the firmware dialects seen in the field. One session
// serializes all device operations; callers may share it freely.
package radio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/codec"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/logging"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/transport"
)

// maxReadChunk is the largest window one read command requests; region
// reads above this size are assembled from chunks.
const maxReadChunk = 128

// Session drives one radio over one transport. All operations take the
// session lock, so concurrent callers are serialized; all blocking
// operations honor their context between protocol steps.
type Session struct {
	tr  transport.Transport
	cfg Config
	log logging.Logger

	mu          sync.Mutex
	sleep       func(time.Duration)
	channelBase uint16
	closed      bool
}

// New wraps an open transport in a session. The session owns the
// transport from here on; Close releases it.
func New(tr transport.Transport, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Session{
		tr:          tr,
		cfg:         cfg,
		log:         cfg.Logger,
		sleep:       time.Sleep,
		channelBase: cfg.ChannelBase,
	}
}

// Close releases the transport. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.tr == nil {
		return nil
	}
	s.closed = true
	return s.tr.Close()
}

// Handshake checks that something protocol-aware answers on the line:
// a 1-byte read probe first, then the header-less minimal form. Any
// non-empty response satisfies it.
func (s *Session) Handshake(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakeLocked(ctx)
}

func (s *Session) handshakeLocked(ctx context.Context) error {
	probes := []candidate{
		{name: "read-probe", frame: protocol.BuildReadCommand(protocol.DeviceInfoAddr, 1)},
		{name: "minimal-probe", frame: protocol.BuildMinimalReadCommand(protocol.DeviceInfoAddr, 1)},
	}
	_, _, err := s.firstAccepted(ctx, "handshake", probes, defaultExpect+1, acceptAny)
	return err
}

// bestEffortHandshake logs instead of failing; every operation runs it
// first so a sleepy radio gets one nudge, but a silent one does not
// abort reads that might still work.
func (s *Session) bestEffortHandshake(ctx context.Context) {
	if err := s.handshakeLocked(ctx); err != nil {
		s.log.Warn("handshake got no answer, proceeding anyway", "err", err)
	}
}

// ReadDeviceInfo assembles what is knowable about the radio: the model
// constant, version strings recovered from the device-info block and
// the version window, and a battery reading. Unreadable parts degrade
// to their fallbacks rather than failing the whole call.
func (s *Session) ReadDeviceInfo(ctx context.Context) (*codec.DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestEffortHandshake(ctx)

	info := &codec.DeviceInfo{
		Model:             codec.ModelName,
		FirmwareVersion:   codec.UnknownVersion,
		BootloaderVersion: codec.UnknownVersion,
	}

	if block, err := s.readRegion(ctx, "device-info", protocol.DeviceInfoAddr, protocol.DeviceInfoSize); err == nil {
		info.BootloaderVersion = codec.FirmwareString(block)
	} else {
		s.log.Warn("device-info block unreadable", "err", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if window, err := s.readRegion(ctx, "version", protocol.VersionAddr, protocol.VersionSize); err == nil {
		info.FirmwareVersion = codec.FirmwareString(window)
	} else {
		s.log.Warn("version window unreadable", "err", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if reading, err := s.readBatteryVoltageLocked(ctx); err == nil {
		info.BatteryVoltage = reading.Volts
	} else {
		s.log.Warn("battery voltage unreadable", "err", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.log.Info("device info assembled",
		"model", info.Model,
		"firmware", info.FirmwareVersion,
		"bootloader", info.BootloaderVersion)
	return info, nil
}

// DumpEEPROM reads the whole EEPROM image.
func (s *Session) DumpEEPROM(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestEffortHandshake(ctx)
	return s.dumpLocked(ctx)
}

func (s *Session) dumpLocked(ctx context.Context) ([]byte, error) {
	dump, err := s.readRegion(ctx, "eeprom-dump", 0x0000, protocol.EEPROMSize)
	if err != nil {
		return nil, err
	}
	s.log.Info("eeprom dumped", "bytes", len(dump))
	return dump, nil
}

// readRegion assembles a mapped region from chunked primary reads.
func (s *Session) readRegion(ctx context.Context, label string, addr uint16, size int) ([]byte, error) {
	return s.readRegionAs(ctx, label, protocol.OpReadEEPROM, addr, size)
}

func (s *Session) readRegionAs(ctx context.Context, label string, op byte, addr uint16, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	for off := 0; off < size; off += maxReadChunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := size - off
		if n > maxReadChunk {
			n = maxReadChunk
		}
		frame := protocol.BuildReadCommandAs(op, addr+uint16(off), uint16(n))
		raw, err := s.exchange(ctx, label, frame, txOptions{expect: protocol.HeaderedPayloadOffset + n})
		if err != nil {
			return nil, err
		}
		payload := protocol.Payload(raw)
		if len(payload) < n {
			return nil, &InvalidResponseError{
				Op:   label,
				Got:  raw,
				Want: fmt.Sprintf("at least %d payload bytes", n),
			}
		}
		out = append(out, payload[:n]...)
	}
	return out, nil
}

// writeBlock sends one write command and demands the device confirm it
// with an opcode echo or the acknowledge byte.
func (s *Session) writeBlock(ctx context.Context, label string, op byte, addr uint16, data []byte) error {
	frame, err := protocol.BuildWriteCommandAs(op, addr, data)
	if err != nil {
		return &UnsupportedOperationError{Op: label, Reason: err.Error()}
	}
	raw, err := s.exchange(ctx, label, frame, txOptions{expect: 2})
	if err != nil {
		return err
	}
	if !protocol.Acknowledges(raw, op) {
		return &InvalidResponseError{
			Op:   label,
			Got:  raw,
			Want: fmt.Sprintf("opcode echo 0x%02X or ack", op),
		}
	}
	return nil
}

// controlCommand sends a parameterless command requiring confirmation.
func (s *Session) controlCommand(ctx context.Context, label string, op byte) error {
	raw, err := s.exchange(ctx, label, protocol.BuildControlCommand(op), txOptions{expect: 2})
	if err != nil {
		return err
	}
	if !protocol.Acknowledges(raw, op) {
		return &InvalidResponseError{
			Op:   label,
			Got:  raw,
			Want: fmt.Sprintf("opcode echo 0x%02X or ack", op),
		}
	}
	return nil
}

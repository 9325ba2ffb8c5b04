package radio

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/codec"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
)

// FallbackBatteryCalibration is the neutral curve reported when the
// radio's battery calibration block cannot be read: eight ascending
// little-endian words. Reads degrade to it; writes never use it.
var FallbackBatteryCalibration = []byte{
	0x64, 0x00, 0x78, 0x00, 0x8C, 0x00, 0xA0, 0x00,
	0xB4, 0x00, 0xC8, 0x00, 0xDC, 0x00, 0xF0, 0x00,
}

// calibrationSizes maps Blocks names to their on-device sizes.
var calibrationSizes = map[string]int{
	"battery": protocol.BatteryCalSize,
	"tx":      protocol.TXCalSize,
	"rx":      protocol.RXCalSize,
	"rssi":    protocol.RSSICalSize,
}

// calibrationCandidates builds the read variants for a calibration
// window in probing order: the primary read, the same window under the
// memory and minimal dialects, the calibration opcode, and finally the
// earlier-revision address.
func calibrationCandidates(addr, alt uint16, want int) []candidate {
	n := uint16(want)
	return []candidate{
		{name: "eeprom-read", frame: protocol.BuildReadCommand(addr, n)},
		{name: "memory-read", frame: protocol.BuildReadCommandAs(protocol.OpReadMemory, addr, n)},
		{name: "minimal-read", frame: protocol.BuildMinimalReadCommand(addr, n)},
		{name: "calibration-read", frame: protocol.BuildReadCommandAs(protocol.OpReadCalibration, addr, n)},
		{name: "alternate-address", frame: protocol.BuildReadCommand(alt, n)},
	}
}

// ReadBatteryCalibration reads the 16-byte battery calibration block,
// probing the known dialects. When no variant answers, the fallback
// curve is returned instead of an error; only context cancellation
// aborts the call.
func (s *Session) ReadBatteryCalibration(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestEffortHandshake(ctx)
	return s.readBatteryCalibrationLocked(ctx)
}

func (s *Session) readBatteryCalibrationLocked(ctx context.Context) ([]byte, error) {
	cands := calibrationCandidates(protocol.BatteryCalAddr, protocol.BatteryCalAltAddr, protocol.BatteryCalSize)
	payload, variant, err := s.firstAccepted(ctx, "battery-calibration", cands,
		protocol.HeaderedPayloadOffset+protocol.BatteryCalSize, acceptLength(protocol.BatteryCalSize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log.Warn("battery calibration unreadable, using fallback curve", "err", err)
		return append([]byte(nil), FallbackBatteryCalibration...), nil
	}
	s.log.Success("battery calibration read", "variant", variant, "bytes", len(payload))
	return payload, nil
}

// WriteBatteryCalibration writes the 16-byte battery calibration block.
func (s *Session) WriteBatteryCalibration(ctx context.Context, data []byte) error {
	if len(data) != protocol.BatteryCalSize {
		return &UnsupportedOperationError{
			Op:     "write-battery-calibration",
			Reason: fmt.Sprintf("calibration block is %d bytes, got %d", protocol.BatteryCalSize, len(data)),
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestEffortHandshake(ctx)
	if err := s.writeBlock(ctx, "write-battery-calibration", protocol.OpWriteCalibration, protocol.BatteryCalAddr, data); err != nil {
		return err
	}
	s.log.Success("battery calibration written", "bytes", len(data))
	return nil
}

// ReadFullCalibration reads every calibration blob. The battery block
// degrades to its fallback curve; the TX, RX and RSSI blocks have no
// fallback, so an unreadable one fails the call.
func (s *Session) ReadFullCalibration(ctx context.Context) (*codec.CalibrationSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestEffortHandshake(ctx)

	battery, err := s.readBatteryCalibrationLocked(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := s.readRegion(ctx, "tx-calibration", protocol.TXCalAddr, protocol.TXCalSize)
	if err != nil {
		return nil, err
	}
	rx, err := s.readRegion(ctx, "rx-calibration", protocol.RXCalAddr, protocol.RXCalSize)
	if err != nil {
		return nil, err
	}
	rssi, err := s.readRegion(ctx, "rssi-calibration", protocol.RSSICalAddr, protocol.RSSICalSize)
	if err != nil {
		return nil, err
	}

	set := &codec.CalibrationSet{Battery: battery, TX: tx, RX: rx, RSSI: rssi}
	s.log.Success("calibration read", "blocks", len(set.Blocks()))
	return set, nil
}

// WriteFullCalibration writes back the set's blobs. Nil blobs are
// skipped so a partially restored set only touches what it carries;
// present blobs must match their block sizes exactly.
func (s *Session) WriteFullCalibration(ctx context.Context, set *codec.CalibrationSet) error {
	for _, b := range set.Blocks() {
		if b.Data == nil {
			continue
		}
		if want := calibrationSizes[b.Name]; len(b.Data) != want {
			return &UnsupportedOperationError{
				Op:     "write-calibration",
				Reason: fmt.Sprintf("%s block is %d bytes, got %d", b.Name, want, len(b.Data)),
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestEffortHandshake(ctx)

	written := 0
	for _, b := range set.Blocks() {
		if b.Data == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeBlock(ctx, "write-calibration/"+b.Name, protocol.OpWriteCalibration, b.Address, b.Data); err != nil {
			return err
		}
		written++
	}
	s.log.Success("calibration written", "blocks", written)
	return nil
}

// ReadBatteryVoltage reads the live battery ADC word and converts it to
// volts. The reading is returned even when implausible; Plausible tells
// the caller which case it got.
func (s *Session) ReadBatteryVoltage(ctx context.Context) (codec.BatteryReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestEffortHandshake(ctx)
	return s.readBatteryVoltageLocked(ctx)
}

func (s *Session) readBatteryVoltageLocked(ctx context.Context) (codec.BatteryReading, error) {
	cands := calibrationCandidates(protocol.BatteryADCAddr, protocol.BatteryADCAltAddr, protocol.BatteryADCSize)
	payload, variant, err := s.firstAccepted(ctx, "battery-adc", cands,
		protocol.HeaderedPayloadOffset+protocol.BatteryADCSize, acceptLength(protocol.BatteryADCSize))
	if err != nil {
		return codec.BatteryReading{}, err
	}

	adc := binary.LittleEndian.Uint16(payload[:protocol.BatteryADCSize])
	reading := codec.ConvertBatteryADC(adc, s.cfg.VoltageWindow)
	if !reading.Plausible {
		s.log.Warn("battery voltage outside plausible window",
			"adc", reading.ADC, "volts", reading.Volts)
	}
	s.log.Debug("battery adc read",
		"variant", variant, "adc", adc, "volts", reading.Volts)
	return reading, nil
}

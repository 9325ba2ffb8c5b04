package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/codec"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
)

var _ Transport = (*Sim)(nil)
var _ Transport = (*Port)(nil)

var errSimClosed = errors.New("transport: sim is closed")

// Sim emulates enough of the radio's serial dialect to develop and test
// against without hardware: a seeded EEPROM image, the version window,
// and the bootloader flash sequence. Responses are queued by Write and
// drained by Read, so the request/response cadence matches a real port
// minus the waiting.
type Sim struct {
	mu      sync.Mutex
	eeprom  [protocol.EEPROMSize]byte
	version [protocol.VersionSize]byte
	pending []byte
	closed  bool

	booted bool
	erased bool
	flash  []byte

	// ChunkSize caps how many bytes one Read returns, so tests can
	// force multi-round response assembly. Zero returns everything.
	ChunkSize int

	// Mute drops every command unanswered, emulating a dead or
	// incompatible device.
	Mute bool

	// RefuseErase leaves erase-flash unanswered while the rest of the
	// bootloader sequence works.
	RefuseErase bool
}

// NewSim builds a simulator with a plausible factory image: three
// channels, a settings block, calibration data with the live ADC word
// inside the battery block, and version strings.
func NewSim() *Sim {
	s := &Sim{}

	copy(s.version[:], "k5_v2.01.26")
	copy(s.eeprom[protocol.DeviceInfoAddr:], "UV-K5 bootloader v1.1.0")

	if block, err := codec.EncodeSettings(&codec.Settings{
		DefaultFrequency: 446.0,
		TxPower:          1,
		Backlight:        50,
		AutoBacklightOff: true,
	}, nil); err == nil {
		copy(s.eeprom[protocol.SettingsAddr:], block)
	}

	channels := []codec.Channel{
		{Frequency: 145.0, TxPower: 2, RXTone: codec.Tone{Kind: codec.ToneCTCSS, CTCSS: 88.5}, Name: "HAM1"},
		{Frequency: 146.5, TxPower: 1, Name: "HAM2"},
		{Frequency: 433.5, TxPower: 2, Narrow: true, Name: "UHF1"},
	}
	for i := range channels {
		rec := codec.EncodeChannel(&channels[i])
		copy(s.eeprom[int(protocol.ChannelBase)+i*protocol.ChannelRecordSize:], rec)
	}

	// Battery calibration words, with the live ADC reading occupying
	// its in-block window (a real-device quirk worth reproducing).
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint16(s.eeprom[int(protocol.BatteryCalAddr)+2*i:], uint16(1500+100*i))
	}
	binary.LittleEndian.PutUint16(s.eeprom[protocol.BatteryADCAddr:], 0x0F00)

	for i := 0; i < protocol.TXCalSize; i++ {
		s.eeprom[int(protocol.TXCalAddr)+i] = byte(0x10 + i)
	}
	for i := 0; i < protocol.RXCalSize; i++ {
		s.eeprom[int(protocol.RXCalAddr)+i] = byte(0x40 + i)
	}
	for i := 0; i < protocol.RSSICalSize; i++ {
		s.eeprom[int(protocol.RSSICalAddr)+i] = byte(0x70 + i)
	}

	return s
}

// Write parses one command frame and queues its response.
func (s *Sim) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errSimClosed
	}
	if !s.Mute {
		if resp := s.handleFrame(p); len(resp) > 0 {
			s.pending = append(s.pending, resp...)
		}
	}
	return len(p), nil
}

// Read drains queued response bytes; the timeout is irrelevant because
// the simulator answers instantly or not at all.
func (s *Sim) Read(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSimClosed
	}
	if len(s.pending) == 0 {
		return nil, nil
	}
	n := len(s.pending)
	if s.ChunkSize > 0 && n > s.ChunkSize {
		n = s.ChunkSize
	}
	out := append([]byte(nil), s.pending[:n]...)
	s.pending = s.pending[n:]
	return out, nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Sim) handleFrame(frame []byte) []byte {
	if len(frame) >= 2 && frame[0] == protocol.Preamble[0] && frame[1] == protocol.Preamble[1] {
		frame = frame[2:]
	}
	if len(frame) == 0 {
		return nil
	}

	switch op := frame[0]; op {
	case protocol.OpReadEEPROM, protocol.OpReadMemory, protocol.OpReadCalibration,
		protocol.OpReadVersion, protocol.OpReadSettings, protocol.OpReadDeviceID:
		return s.handleRead(frame)

	case protocol.OpWriteEEPROM, protocol.OpWriteMemory,
		protocol.OpWriteSettings, protocol.OpWriteCalibration:
		return s.handleWrite(frame)

	case protocol.OpHandshake:
		return []byte{protocol.OpAck}

	case protocol.OpEnterBootloader:
		s.booted = true
		s.erased = false
		return []byte{op, 0x00}

	case protocol.OpEraseFlash:
		if !s.booted || s.RefuseErase {
			return nil
		}
		s.erased = true
		s.flash = nil
		return []byte{op, 0x00}

	case protocol.OpWriteFlash:
		return s.handleFlashWrite(frame)

	case protocol.OpExitBootloader:
		s.booted = false
		return []byte{op, 0x00}
	}
	return nil
}

func (s *Sim) handleRead(frame []byte) []byte {
	var addr, length uint16
	switch {
	case len(frame) == protocol.ReadFrameSize && bytes.Equal(frame[1:4], protocol.Header[:]):
		addr = binary.LittleEndian.Uint16(frame[4:6])
		length = uint16(frame[6])
	case len(frame) == protocol.MinimalReadFrameSize:
		addr = binary.LittleEndian.Uint16(frame[1:3])
		length = uint16(frame[3])
	default:
		return nil
	}

	data := s.window(addr, int(length))
	resp := make([]byte, 0, protocol.HeaderedPayloadOffset+len(data))
	resp = append(resp, frame[0])
	resp = append(resp, protocol.Header[:]...)
	resp = append(resp, byte(addr), byte(addr>>8))
	resp = append(resp, byte(len(data)), 0x00)
	return append(resp, data...)
}

func (s *Sim) handleWrite(frame []byte) []byte {
	if len(frame) < protocol.ReadFrameSize || !bytes.Equal(frame[1:4], protocol.Header[:]) {
		return nil
	}
	addr := int(binary.LittleEndian.Uint16(frame[4:6]))
	length := int(frame[6])
	payload := frame[7:]
	if length > len(payload) {
		length = len(payload)
	}
	if addr < len(s.eeprom) {
		end := addr + length
		if end > len(s.eeprom) {
			end = len(s.eeprom)
		}
		copy(s.eeprom[addr:end], payload)
	}
	return []byte{frame[0], 0x00}
}

func (s *Sim) handleFlashWrite(frame []byte) []byte {
	if !s.booted || !s.erased {
		return nil
	}
	if len(frame) < 10 || !bytes.Equal(frame[1:4], protocol.Header[:]) {
		return nil
	}
	off := int(binary.LittleEndian.Uint32(frame[4:8]))
	n := int(binary.LittleEndian.Uint16(frame[8:10]))
	block := frame[10:]
	if n > len(block) {
		n = len(block)
	}
	if end := off + n; end > len(s.flash) {
		s.flash = append(s.flash, make([]byte, end-len(s.flash))...)
	}
	copy(s.flash[off:], block[:n])
	return []byte{protocol.OpAck}
}

// window copies n bytes starting at addr, clipped to the region bounds.
// Addresses at the version window and above read the version string.
func (s *Sim) window(addr uint16, n int) []byte {
	a := int(addr)
	if a >= int(protocol.VersionAddr) {
		off := a - int(protocol.VersionAddr)
		if off >= len(s.version) {
			return nil
		}
		end := off + n
		if end > len(s.version) {
			end = len(s.version)
		}
		return append([]byte(nil), s.version[off:end]...)
	}
	if a >= len(s.eeprom) {
		return nil
	}
	end := a + n
	if end > len(s.eeprom) {
		end = len(s.eeprom)
	}
	return append([]byte(nil), s.eeprom[a:end]...)
}

// Fill overwrites the whole EEPROM image with b.
func (s *Sim) Fill(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.eeprom {
		s.eeprom[i] = b
	}
}

// Seed copies data into the EEPROM image at addr.
func (s *Sim) Seed(addr int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.eeprom[addr:], data)
}

// Peek returns a copy of n EEPROM bytes starting at addr.
func (s *Sim) Peek(addr, n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.eeprom[addr:addr+n]...)
}

// FlashImage returns the bytes programmed since the last erase.
func (s *Sim) FlashImage() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.flash...)
}

// InBootloader reports whether the sim is sitting in bootloader mode.
func (s *Sim) InBootloader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.booted
}

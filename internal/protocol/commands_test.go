package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuildReadCommand(t *testing.T) {
	tests := []struct {
		name   string
		addr   uint16
		length uint16
	}{
		{name: "zero address", addr: 0x0000, length: 1},
		{name: "battery calibration", addr: 0x1EC0, length: 16},
		{name: "settings block", addr: 0x0E70, length: 32},
		{name: "high address", addr: 0x1F80, length: 32},
		{name: "length above one byte", addr: 0x0000, length: 0x0180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := BuildReadCommand(tt.addr, tt.length)

			if len(frame) != ReadFrameSize {
				t.Fatalf("frame length = %d, want %d", len(frame), ReadFrameSize)
			}

			if frame[0] != OpReadEEPROM {
				t.Errorf("opcode = 0x%02X, want 0x%02X", frame[0], OpReadEEPROM)
			}

			if !bytes.Equal(frame[1:4], Header[:]) {
				t.Errorf("header = % X, want % X", frame[1:4], Header[:])
			}

			if frame[4] != byte(tt.addr) || frame[5] != byte(tt.addr>>8) {
				t.Errorf("address bytes = %02X %02X, want %02X %02X",
					frame[4], frame[5], byte(tt.addr), byte(tt.addr>>8))
			}

			if frame[6] != byte(tt.length) {
				t.Errorf("length byte = 0x%02X, want 0x%02X", frame[6], byte(tt.length))
			}

			if frame[7] != 0x00 {
				t.Errorf("pad byte = 0x%02X, want 0x00", frame[7])
			}
		})
	}
}

func TestBuildReadCommandAs(t *testing.T) {
	tests := []struct {
		name string
		op   byte
	}{
		{name: "read memory", op: OpReadMemory},
		{name: "read calibration", op: OpReadCalibration},
		{name: "read version", op: OpReadVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := BuildReadCommandAs(tt.op, 0x1EC0, 16)

			if frame[0] != tt.op {
				t.Errorf("opcode = 0x%02X, want 0x%02X", frame[0], tt.op)
			}

			want := BuildReadCommand(0x1EC0, 16)
			if !bytes.Equal(frame[1:], want[1:]) {
				t.Errorf("frame body = % X, want % X", frame[1:], want[1:])
			}
		})
	}
}

func TestBuildMinimalReadCommand(t *testing.T) {
	frame := BuildMinimalReadCommand(0x1EC0, 16)

	if len(frame) != MinimalReadFrameSize {
		t.Fatalf("frame length = %d, want %d", len(frame), MinimalReadFrameSize)
	}

	want := []byte{OpReadEEPROM, 0xC0, 0x1E, 0x10}
	if !bytes.Equal(frame, want) {
		t.Errorf("frame = % X, want % X", frame, want)
	}
}

func TestBuildPreambledReadCommand(t *testing.T) {
	frame := BuildPreambledReadCommand(0x0E70, 32)

	if len(frame) != len(Preamble)+ReadFrameSize {
		t.Fatalf("frame length = %d, want %d", len(frame), len(Preamble)+ReadFrameSize)
	}

	if !bytes.Equal(frame[:2], Preamble[:]) {
		t.Errorf("preamble = % X, want % X", frame[:2], Preamble[:])
	}

	if !bytes.Equal(frame[2:], BuildReadCommand(0x0E70, 32)) {
		t.Errorf("frame body = % X, want primary read frame", frame[2:])
	}
}

func TestBuildControlCommand(t *testing.T) {
	tests := []struct {
		name string
		op   byte
	}{
		{name: "enter bootloader", op: OpEnterBootloader},
		{name: "erase flash", op: OpEraseFlash},
		{name: "exit bootloader", op: OpExitBootloader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := BuildControlCommand(tt.op)

			if len(frame) != ReadFrameSize {
				t.Fatalf("frame length = %d, want %d", len(frame), ReadFrameSize)
			}

			if frame[0] != tt.op {
				t.Errorf("opcode = 0x%02X, want 0x%02X", frame[0], tt.op)
			}

			for i, b := range frame[4:] {
				if b != 0 {
					t.Errorf("frame[%d] = 0x%02X, want 0x00", i+4, b)
				}
			}
		})
	}
}

func TestBuildWriteCommand(t *testing.T) {
	tests := []struct {
		name    string
		addr    uint16
		payload []byte
		wantErr error
	}{
		{
			name:    "single byte",
			addr:    0x0F30,
			payload: []byte{0xAA},
		},
		{
			name:    "channel record",
			addr:    0x0F30,
			payload: bytes.Repeat([]byte{0x55}, 16),
		},
		{
			name:    "max payload",
			addr:    0x0000,
			payload: make([]byte, MaxWritePayload),
		},
		{
			name:    "nil payload",
			addr:    0x0F30,
			payload: nil,
			wantErr: ErrEmptyPayload,
		},
		{
			name:    "empty payload",
			addr:    0x0F30,
			payload: []byte{},
			wantErr: ErrEmptyPayload,
		},
		{
			name:    "oversized payload",
			addr:    0x0F30,
			payload: make([]byte, MaxWritePayload+1),
			wantErr: ErrPayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildWriteCommand(tt.addr, tt.payload)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if frame[0] != OpWriteEEPROM {
				t.Errorf("opcode = 0x%02X, want 0x%02X", frame[0], OpWriteEEPROM)
			}

			if !bytes.Equal(frame[1:4], Header[:]) {
				t.Errorf("header = % X, want % X", frame[1:4], Header[:])
			}

			if frame[4] != byte(tt.addr) || frame[5] != byte(tt.addr>>8) {
				t.Errorf("address bytes = %02X %02X, want %02X %02X",
					frame[4], frame[5], byte(tt.addr), byte(tt.addr>>8))
			}

			if frame[6] != byte(len(tt.payload)) {
				t.Errorf("length byte = 0x%02X, want 0x%02X", frame[6], byte(len(tt.payload)))
			}

			if !bytes.Equal(frame[7:], tt.payload) {
				t.Errorf("payload in frame = % X, want % X", frame[7:], tt.payload)
			}
		})
	}
}

func TestBuildWriteCommandAs(t *testing.T) {
	frame, err := BuildWriteCommandAs(OpWriteCalibration, 0x1EC0, make([]byte, 16))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if frame[0] != OpWriteCalibration {
		t.Errorf("opcode = 0x%02X, want 0x%02X", frame[0], OpWriteCalibration)
	}
}

func TestBuildFlashWriteCommand(t *testing.T) {
	tests := []struct {
		name    string
		offset  uint32
		block   []byte
		wantErr error
	}{
		{
			name:   "first block",
			offset: 0x00000000,
			block:  make([]byte, FlashBlockSize),
		},
		{
			name:   "offset above 16 bits",
			offset: 0x00012A00,
			block:  []byte{0x01, 0x02, 0x03, 0x04},
		},
		{
			name:    "empty block",
			offset:  0,
			block:   nil,
			wantErr: ErrEmptyPayload,
		},
		{
			name:    "oversized block",
			offset:  0,
			block:   make([]byte, FlashBlockSize+1),
			wantErr: ErrPayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildFlashWriteCommand(tt.offset, tt.block)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if frame[0] != OpWriteFlash {
				t.Errorf("opcode = 0x%02X, want 0x%02X", frame[0], OpWriteFlash)
			}

			wantOffset := []byte{
				byte(tt.offset), byte(tt.offset >> 8),
				byte(tt.offset >> 16), byte(tt.offset >> 24),
			}
			if !bytes.Equal(frame[4:8], wantOffset) {
				t.Errorf("offset bytes = % X, want % X", frame[4:8], wantOffset)
			}

			n := len(tt.block)
			if frame[8] != byte(n) || frame[9] != byte(n>>8) {
				t.Errorf("length bytes = %02X %02X, want %02X %02X",
					frame[8], frame[9], byte(n), byte(n>>8))
			}

			if !bytes.Equal(frame[10:], tt.block) {
				t.Errorf("block in frame does not match input")
			}
		})
	}
}

func BenchmarkBuildReadCommand(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = BuildReadCommand(0x1EC0, 16)
	}
}

func BenchmarkBuildWriteCommand(b *testing.B) {
	payload := make([]byte, 16)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = BuildWriteCommand(0x0F30, payload)
	}
}

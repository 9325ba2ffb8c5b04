package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame build errors.
var (
	// ErrEmptyPayload is returned when a write frame is built with no data.
	ErrEmptyPayload = errors.New("protocol: empty payload")

	// ErrPayloadTooLarge is returned when a payload exceeds what one
	// frame's length field can carry.
	ErrPayloadTooLarge = errors.New("protocol: payload too large for one frame")
)

// BuildReadCommand constructs the primary read frame:
//
//	[OP][H0][H1][H2][ADDR_L][ADDR_H][LEN][PAD]
//
// with opcode read-EEPROM. The length byte is always length & 0xFF; a
// larger request is not an error here, the caller splits it into chunks.
func BuildReadCommand(addr, length uint16) []byte {
	return BuildReadCommandAs(OpReadEEPROM, addr, length)
}

// BuildReadCommandAs builds the primary read layout with an alternate
// opcode (read-memory, read-calibration, read-version, ...). The probing
// session uses these as command variants.
func BuildReadCommandAs(op byte, addr, length uint16) []byte {
	frame := make([]byte, 0, ReadFrameSize)
	frame = append(frame, op)
	frame = append(frame, Header[:]...)
	frame = append(frame, byte(addr), byte(addr>>8))
	frame = append(frame, byte(length))
	frame = append(frame, 0x00)
	return frame
}

// BuildMinimalReadCommand builds the header-less 4-byte read variant:
//
//	[OP][ADDR_L][ADDR_H][LEN]
func BuildMinimalReadCommand(addr, length uint16) []byte {
	return []byte{OpReadEEPROM, byte(addr), byte(addr >> 8), byte(length)}
}

// BuildPreambledReadCommand builds the preamble-prefixed variant: the
// AA 55 preamble followed by the primary read frame.
func BuildPreambledReadCommand(addr, length uint16) []byte {
	frame := make([]byte, 0, len(Preamble)+ReadFrameSize)
	frame = append(frame, Preamble[:]...)
	frame = append(frame, BuildReadCommand(addr, length)...)
	return frame
}

// BuildControlCommand builds a parameterless command (handshake, enter/
// exit bootloader, erase) in the primary layout with address and length
// zero.
func BuildControlCommand(op byte) []byte {
	return BuildReadCommandAs(op, 0, 0)
}

// BuildWriteCommand constructs the primary write frame with opcode
// write-EEPROM:
//
//	[OP][H0][H1][H2][ADDR_L][ADDR_H][LEN][DATA...]
func BuildWriteCommand(addr uint16, payload []byte) ([]byte, error) {
	return BuildWriteCommandAs(OpWriteEEPROM, addr, payload)
}

// BuildWriteCommandAs builds the primary write layout with an alternate
// opcode (write-memory, write-settings, write-calibration).
func BuildWriteCommandAs(op byte, addr uint16, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(payload) > MaxWritePayload {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(payload), MaxWritePayload)
	}
	frame := make([]byte, 0, ReadFrameSize-1+len(payload))
	frame = append(frame, op)
	frame = append(frame, Header[:]...)
	frame = append(frame, byte(addr), byte(addr>>8))
	frame = append(frame, byte(len(payload)))
	frame = append(frame, payload...)
	return frame, nil
}

// BuildFlashWriteCommand constructs the bootloader block-write frame.
// Flash lives outside the 16-bit EEPROM space, so this variant carries a
// little-endian 32-bit offset and a 16-bit length:
//
//	[OP][H0][H1][H2][OFF0][OFF1][OFF2][OFF3][LEN_L][LEN_H][DATA...]
func BuildFlashWriteCommand(offset uint32, block []byte) ([]byte, error) {
	if len(block) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(block) > FlashBlockSize {
		return nil, fmt.Errorf("%w: %d bytes, max block %d", ErrPayloadTooLarge, len(block), FlashBlockSize)
	}
	frame := make([]byte, 0, 10+len(block))
	frame = append(frame, OpWriteFlash)
	frame = append(frame, Header[:]...)
	frame = binary.LittleEndian.AppendUint32(frame, offset)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(block)))
	frame = append(frame, block...)
	return frame, nil
}

package protocol

// Command opcodes. The table mirrors the command set recovered from
// working captures; not every opcode is answered by every firmware
// revision, which is why the session layer probes variants.
const (
	// OpHandshake is the link-test command. In practice the handshake is
	// performed with a 1-byte read probe instead (see the session layer),
	// but the opcode remains part of the device command set.
	OpHandshake byte = 0x14

	// OpAck is the acknowledge byte some firmware revisions answer with
	// instead of echoing the written opcode.
	OpAck byte = 0x06

	// OpReadMemory reads arbitrary device memory.
	OpReadMemory byte = 0x52

	// OpWriteMemory writes arbitrary device memory.
	OpWriteMemory byte = 0x57

	// OpReadEEPROM reads the EEPROM region. This is the primary read
	// opcode; every mapped region answers it on the reference firmware.
	OpReadEEPROM byte = 0x1B

	// OpWriteEEPROM writes the EEPROM region.
	OpWriteEEPROM byte = 0x1D

	// OpEnterBootloader switches the radio into its bootloader.
	OpEnterBootloader byte = 0x18

	// OpExitBootloader leaves the bootloader; the radio reboots.
	OpExitBootloader byte = 0x16

	// OpEraseFlash erases the application flash before programming.
	OpEraseFlash byte = 0x15

	// OpWriteFlash programs one firmware block at a 32-bit flash offset.
	OpWriteFlash byte = 0x19

	// OpReadVersion reads the firmware version string.
	OpReadVersion byte = 0x0B

	// OpReadDeviceID reads the device identification block.
	OpReadDeviceID byte = 0x0C

	// OpReadCalibration reads a calibration region with the
	// calibration-specific dialect.
	OpReadCalibration byte = 0x33

	// OpWriteCalibration writes a calibration region.
	OpWriteCalibration byte = 0x34

	// OpReadSettings reads the settings block.
	OpReadSettings byte = 0x35

	// OpWriteSettings writes the settings block.
	OpWriteSettings byte = 0x36
)

// Header is the constant 3-byte protocol tag following the opcode in
// every headered frame.
var Header = [3]byte{0xAB, 0xCD, 0x01}

// Preamble prefixes the preambled frame variant.
var Preamble = [2]byte{0xAA, 0x55}

// Frame geometry.
const (
	// ReadFrameSize is the size of the primary read/control frame:
	// opcode + header(3) + address(2) + length + pad.
	ReadFrameSize = 8

	// MinimalReadFrameSize is the header-less variant:
	// opcode + address(2) + length.
	MinimalReadFrameSize = 4

	// HeaderedPayloadOffset is where payload bytes start in a headered
	// response: echo + header(3) + address(2) + length + status.
	HeaderedPayloadOffset = 8

	// MaxWritePayload is the largest payload a single-length-byte write
	// frame can carry.
	MaxWritePayload = 255
)

// Memory address map. The map is read-only configuration; addresses are
// in the device's flat 16-bit space. Two quirks are deliberate: the live
// battery ADC window sits inside the battery calibration block, and the
// version string sits just above the EEPROM region.
const (
	// EEPROMSize bounds the EEPROM address space (0x0000-0x1FFF).
	EEPROMSize = 0x2000

	// DeviceInfoAddr is the device identification block.
	DeviceInfoAddr uint16 = 0x0000
	DeviceInfoSize        = 64

	// SettingsAddr is the 32-byte device settings block.
	SettingsAddr uint16 = 0x0E70
	SettingsSize        = 32

	// ChannelBase is the channel table base on the reference firmware.
	// ChannelBaseAlt is the base reported by other revisions; both are
	// probed by the discovery strategies, never assumed.
	ChannelBase    uint16 = 0x0F30
	ChannelBaseAlt uint16 = 0x0000

	// ChannelRecordSize is the fixed on-wire channel record size.
	ChannelRecordSize = 16

	// MaxChannels bounds the channel table.
	MaxChannels = 200

	// BatteryCalAddr is the 16-byte battery calibration block.
	// BatteryCalAltAddr is the earlier-revision location probed as the
	// last calibration read variant.
	BatteryCalAddr    uint16 = 0x1EC0
	BatteryCalSize           = 16
	BatteryCalAltAddr uint16 = 0x1E00

	// BatteryADCAddr is the live battery ADC word.
	BatteryADCAddr    uint16 = 0x1EC8
	BatteryADCSize           = 2
	BatteryADCAltAddr uint16 = 0x1E08

	// TX/RX/RSSI calibration blocks.
	TXCalAddr   uint16 = 0x1F40
	TXCalSize          = 32
	RXCalAddr   uint16 = 0x1F60
	RXCalSize          = 32
	RSSICalAddr uint16 = 0x1F80
	RSSICalSize        = 32

	// VersionAddr is the firmware version string window.
	VersionAddr uint16 = 0x2000
	VersionSize        = 16
)

// Flash programming limits for the bootloader sub-protocol.
const (
	// FlashBlockSize is the fixed block size the bootloader accepts.
	FlashBlockSize = 256

	// MaxFirmwareSize is the largest image the application flash holds;
	// the top of flash belongs to the bootloader itself.
	MaxFirmwareSize = 0xF000
)

package export

import (
	"bytes"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/codec"
)

func sampleCalibration() *codec.CalibrationSet {
	set := &codec.CalibrationSet{
		Battery: make([]byte, 16),
		TX:      make([]byte, 32),
		RSSI:    make([]byte, 32),
	}
	for i := range set.Battery {
		set.Battery[i] = byte(0xB0 + i)
	}
	for i := range set.TX {
		set.TX[i] = byte(0x10 + i)
	}
	for i := range set.RSSI {
		set.RSSI[i] = byte(0x70 + i)
	}
	return set
}

func TestCalibrationRecordRoundTrip(t *testing.T) {
	set := sampleCalibration()
	info := &codec.DeviceInfo{Model: codec.ModelName, FirmwareVersion: "k5_v2.01.26"}

	rec := NewCalibrationRecord(set, info)
	if rec.FormatVersion != CalibrationFormatVersion {
		t.Fatalf("FormatVersion = %d, want %d", rec.FormatVersion, CalibrationFormatVersion)
	}
	if rec.Model != codec.ModelName || rec.Firmware != "k5_v2.01.26" {
		t.Fatalf("metadata = %q / %q", rec.Model, rec.Firmware)
	}
	if rec.SavedAt.IsZero() {
		t.Fatal("SavedAt not stamped")
	}
	// RX was never read and must not appear in the file.
	if len(rec.Blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(rec.Blocks))
	}
	wantAddrs := map[string]string{"battery": "0x1EC0", "tx": "0x1F40", "rssi": "0x1F80"}
	for _, b := range rec.Blocks {
		if wantAddrs[b.Name] != b.Address {
			t.Errorf("block %s address = %s, want %s", b.Name, b.Address, wantAddrs[b.Name])
		}
	}

	path := filepath.Join(t.TempDir(), "cal.json")
	if err := WriteCalibration(path, rec); err != nil {
		t.Fatalf("WriteCalibration: %v", err)
	}
	loaded, err := ReadCalibration(path)
	if err != nil {
		t.Fatalf("ReadCalibration: %v", err)
	}
	restored, err := loaded.Restore()
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !bytes.Equal(restored.Battery, set.Battery) ||
		!bytes.Equal(restored.TX, set.TX) ||
		!bytes.Equal(restored.RSSI, set.RSSI) {
		t.Error("restored blobs differ from originals")
	}
	if restored.RX != nil {
		t.Errorf("RX = % X, want nil", restored.RX)
	}
}

func TestCalibrationRecordWithoutDeviceInfo(t *testing.T) {
	rec := NewCalibrationRecord(sampleCalibration(), nil)
	if rec.Model != codec.ModelName {
		t.Errorf("Model = %q, want %q", rec.Model, codec.ModelName)
	}
	if rec.Firmware != codec.UnknownVersion {
		t.Errorf("Firmware = %q, want %q", rec.Firmware, codec.UnknownVersion)
	}
}

func TestRestoreRejectsUnknownVersion(t *testing.T) {
	rec := NewCalibrationRecord(sampleCalibration(), nil)
	rec.FormatVersion = 99
	if _, err := rec.Restore(); err == nil || !strings.Contains(err.Error(), "format version 99") {
		t.Fatalf("err = %v, want version complaint", err)
	}
}

func TestRestoreRejectsBadHex(t *testing.T) {
	rec := &CalibrationRecord{
		FormatVersion: CalibrationFormatVersion,
		Blocks:        []CalibrationBlockRecord{{Name: "battery", Data: "zz"}},
	}
	if _, err := rec.Restore(); err == nil || !strings.Contains(err.Error(), "battery") {
		t.Fatalf("err = %v, want hex complaint naming the block", err)
	}
}

func TestRestoreRejectsUnknownBlock(t *testing.T) {
	rec := &CalibrationRecord{
		FormatVersion: CalibrationFormatVersion,
		Blocks:        []CalibrationBlockRecord{{Name: "sidetone", Data: "00"}},
	}
	if _, err := rec.Restore(); err == nil || !strings.Contains(err.Error(), "sidetone") {
		t.Fatalf("err = %v, want unknown block complaint", err)
	}
}

func TestRawRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery.bin")
	data := []byte{0x64, 0x00, 0x78, 0x00, 0x8C, 0x00}
	if err := WriteRaw(path, data); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	got, err := ReadRaw(path)
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got % X, want % X", got, data)
	}
}

func TestTimestampedPath(t *testing.T) {
	p := TimestampedPath("out", "uvk5_eeprom", ".bin")
	if filepath.Dir(p) != "out" {
		t.Errorf("dir = %s, want out", filepath.Dir(p))
	}
	base := filepath.Base(p)
	if !strings.HasPrefix(base, "uvk5_eeprom_") || !strings.HasSuffix(base, ".bin") {
		t.Errorf("base = %s", base)
	}
	if TimestampedPath("", "dump", ".bin") == "" {
		t.Error("empty dir must still yield a name")
	}
}

func csvFixture() []codec.Channel {
	return []codec.Channel{
		{
			Index:     0,
			Name:      "HAM1",
			Frequency: 145.0,
			TxPower:   2,
			RXTone:    codec.Tone{Kind: codec.ToneCTCSS, CTCSS: 88.5},
			TXTone:    codec.Tone{Kind: codec.ToneNone},
		},
		{
			Index:     5,
			Name:      "PMR-CH1",
			Frequency: 446.00625,
			Narrow:    true,
			Scrambler: true,
			RXTone:    codec.Tone{Kind: codec.ToneNone},
			TXTone:    codec.Tone{Kind: codec.ToneDCS, DCS: 1351},
		},
		{
			Index:     7,
			Name:      "UHF1",
			Frequency: 433.5,
			TxPower:   1,
			RXTone:    codec.Tone{Kind: codec.ToneNone},
			TXTone:    codec.Tone{Kind: codec.ToneNone},
		},
	}
}

func TestChannelsCSVRoundTrip(t *testing.T) {
	chans := csvFixture()

	var buf bytes.Buffer
	if err := WriteChannelsCSV(&buf, chans); err != nil {
		t.Fatalf("WriteChannelsCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header plus 3 rows:\n%s", len(lines), buf.String())
	}
	if lines[0] != "index,name,frequency_mhz,tx_power,narrow,scrambler,rx_tone,tx_tone" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[2] != "5,PMR-CH1,446.00625,0,true,true,-,D1351" {
		t.Fatalf("row = %q", lines[2])
	}

	got, err := ReadChannelsCSV(&buf)
	if err != nil {
		t.Fatalf("ReadChannelsCSV: %v", err)
	}
	if !reflect.DeepEqual(got, chans) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, chans)
	}
}

func TestChannelsCSVFileRoundTrip(t *testing.T) {
	chans := csvFixture()
	path := filepath.Join(t.TempDir(), "channels.csv")
	if err := SaveChannelsCSV(path, chans); err != nil {
		t.Fatalf("SaveChannelsCSV: %v", err)
	}
	got, err := LoadChannelsCSV(path)
	if err != nil {
		t.Fatalf("LoadChannelsCSV: %v", err)
	}
	if !reflect.DeepEqual(got, chans) {
		t.Error("file round trip mismatch")
	}
}

func TestReadChannelsCSVRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		csv  string
		want string
	}{
		{
			name: "wrong header",
			csv:  "slot,name,frequency_mhz,tx_power,narrow,scrambler,rx_tone,tx_tone\n",
			want: "header",
		},
		{
			name: "missing column",
			csv:  "index,name,frequency_mhz,tx_power,narrow,scrambler,rx_tone,tx_tone\n1,HAM1,145.0,2,false,false,-\n",
			want: "line 2",
		},
		{
			name: "bad frequency",
			csv:  "index,name,frequency_mhz,tx_power,narrow,scrambler,rx_tone,tx_tone\n1,HAM1,x,2,false,false,-,-\n",
			want: "bad frequency",
		},
		{
			name: "bad tone",
			csv:  "index,name,frequency_mhz,tx_power,narrow,scrambler,rx_tone,tx_tone\n1,HAM1,145.0,2,false,false,Dxx,-\n",
			want: "bad DCS tone",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadChannelsCSV(strings.NewReader(tc.csv))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

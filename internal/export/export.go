// Package export persists what the radio gives up: calibration sets as
// structured JSON records with device metadata, raw binary images, and
// the channel table as CSV. Encodings are symmetric so a saved file can
// be pushed back to a radio later.
package export

import (
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/codec"
)

// CalibrationFormatVersion tags calibration record files; readers
// refuse versions they do not know.
const CalibrationFormatVersion = 1

// CalibrationBlockRecord is one calibration blob in file form.
type CalibrationBlockRecord struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Data    string `json:"data"`
}

// CalibrationRecord is the structured backup format: device metadata,
// a timestamp, and the hex-encoded blobs.
type CalibrationRecord struct {
	FormatVersion int                      `json:"format_version"`
	Model         string                   `json:"model"`
	Firmware      string                   `json:"firmware"`
	SavedAt       time.Time                `json:"saved_at"`
	Blocks        []CalibrationBlockRecord `json:"blocks"`
}

// NewCalibrationRecord builds a record from a calibration set. Blobs
// that were never read are left out of the file. info may be nil when
// the device identity is unknown.
func NewCalibrationRecord(set *codec.CalibrationSet, info *codec.DeviceInfo) *CalibrationRecord {
	rec := &CalibrationRecord{
		FormatVersion: CalibrationFormatVersion,
		Model:         codec.ModelName,
		Firmware:      codec.UnknownVersion,
		SavedAt:       time.Now().UTC(),
	}
	if info != nil {
		rec.Model = info.Model
		rec.Firmware = info.FirmwareVersion
	}
	for _, b := range set.Blocks() {
		if b.Data == nil {
			continue
		}
		rec.Blocks = append(rec.Blocks, CalibrationBlockRecord{
			Name:    b.Name,
			Address: fmt.Sprintf("0x%04X", b.Address),
			Data:    hex.EncodeToString(b.Data),
		})
	}
	return rec
}

// Restore decodes the record back into a calibration set. Blocks absent
// from the file stay nil in the set.
func (r *CalibrationRecord) Restore() (*codec.CalibrationSet, error) {
	if r.FormatVersion != CalibrationFormatVersion {
		return nil, fmt.Errorf("export: unsupported calibration format version %d", r.FormatVersion)
	}
	set := &codec.CalibrationSet{}
	for _, b := range r.Blocks {
		data, err := hex.DecodeString(b.Data)
		if err != nil {
			return nil, fmt.Errorf("export: block %s: %w", b.Name, err)
		}
		if err := set.Set(b.Name, data); err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
	}
	return set, nil
}

// WriteCalibration writes the record as indented JSON.
func WriteCalibration(path string, rec *CalibrationRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("export: encode calibration: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return nil
}

// ReadCalibration loads a calibration record file.
func ReadCalibration(path string) (*CalibrationRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("export: read %s: %w", path, err)
	}
	var rec CalibrationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("export: decode %s: %w", path, err)
	}
	return &rec, nil
}

// WriteRaw writes bytes with no framing, the format other UV-K5 tools
// exchange.
func WriteRaw(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return nil
}

// ReadRaw loads a raw binary file.
func ReadRaw(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("export: read %s: %w", path, err)
	}
	return data, nil
}

// TimestampedPath builds "<dir>/<prefix>_<timestamp><ext>" for default
// output filenames.
func TimestampedPath(dir, prefix, ext string) string {
	name := fmt.Sprintf("%s_%s%s", prefix, time.Now().Format("2006-01-02_150405"), ext)
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

var channelCSVHeader = []string{
	"index", "name", "frequency_mhz", "tx_power", "narrow", "scrambler",
	"rx_tone", "tx_tone",
}

// WriteChannelsCSV renders the channel table as CSV with a header row.
func WriteChannelsCSV(w io.Writer, chans []codec.Channel) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(channelCSVHeader); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, ch := range chans {
		row := []string{
			strconv.Itoa(ch.Index),
			ch.Name,
			strconv.FormatFloat(ch.Frequency, 'f', 5, 64),
			strconv.Itoa(int(ch.TxPower)),
			strconv.FormatBool(ch.Narrow),
			strconv.FormatBool(ch.Scrambler),
			ch.RXTone.String(),
			ch.TXTone.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write channel %d: %w", ch.Index, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadChannelsCSV parses a channel CSV produced by WriteChannelsCSV.
// The header row is required; every following row is one channel.
func ReadChannelsCSV(r io.Reader) ([]codec.Channel, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(channelCSVHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("export: read csv header: %w", err)
	}
	for i, col := range channelCSVHeader {
		if header[i] != col {
			return nil, fmt.Errorf("export: csv header column %d is %q, want %q", i, header[i], col)
		}
	}

	var chans []codec.Channel
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("export: csv line %d: %w", line, err)
		}
		ch, err := parseChannelRow(row)
		if err != nil {
			return nil, fmt.Errorf("export: csv line %d: %w", line, err)
		}
		chans = append(chans, ch)
	}
	return chans, nil
}

func parseChannelRow(row []string) (codec.Channel, error) {
	var ch codec.Channel

	index, err := strconv.Atoi(row[0])
	if err != nil {
		return ch, fmt.Errorf("bad index %q", row[0])
	}
	freq, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return ch, fmt.Errorf("bad frequency %q", row[2])
	}
	power, err := strconv.ParseUint(row[3], 10, 8)
	if err != nil {
		return ch, fmt.Errorf("bad tx power %q", row[3])
	}
	narrow, err := strconv.ParseBool(row[4])
	if err != nil {
		return ch, fmt.Errorf("bad narrow flag %q", row[4])
	}
	scrambler, err := strconv.ParseBool(row[5])
	if err != nil {
		return ch, fmt.Errorf("bad scrambler flag %q", row[5])
	}
	rxTone, err := codec.ParseTone(row[6])
	if err != nil {
		return ch, err
	}
	txTone, err := codec.ParseTone(row[7])
	if err != nil {
		return ch, err
	}

	ch = codec.Channel{
		Index:     index,
		Name:      row[1],
		Frequency: freq,
		TxPower:   uint8(power),
		Narrow:    narrow,
		Scrambler: scrambler,
		RXTone:    rxTone,
		TXTone:    txTone,
	}
	return ch, nil
}

// SaveChannelsCSV writes the table to a file.
func SaveChannelsCSV(path string, chans []codec.Channel) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	if err := WriteChannelsCSV(f, chans); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", path, err)
	}
	return nil
}

// LoadChannelsCSV reads a channel table file.
func LoadChannelsCSV(path string) ([]codec.Channel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("export: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadChannelsCSV(f)
}

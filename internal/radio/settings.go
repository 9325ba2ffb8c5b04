package radio

import (
	"context"
	"fmt"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/codec"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
)

// ReadSettings reads and decodes the device settings block.
func (s *Session) ReadSettings(ctx context.Context) (*codec.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestEffortHandshake(ctx)

	block, err := s.readRegion(ctx, "settings", protocol.SettingsAddr, protocol.SettingsSize)
	if err != nil {
		return nil, err
	}
	settings, err := codec.DecodeSettings(block)
	if err != nil {
		return nil, err
	}
	s.log.Info("settings read",
		"frequency_mhz", settings.DefaultFrequency,
		"tx_power", settings.TxPower,
		"backlight", settings.Backlight)
	return settings, nil
}

// WriteSettings overlays the known fields onto the device's current
// block and writes the result back. The pre-read is mandatory: the
// reserved bytes must be carried through unchanged, so a block that
// cannot be read cannot be safely written either.
func (s *Session) WriteSettings(ctx context.Context, settings *codec.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestEffortHandshake(ctx)

	prev, err := s.readRegion(ctx, "settings", protocol.SettingsAddr, protocol.SettingsSize)
	if err != nil {
		return fmt.Errorf("radio: settings pre-read for reserved bytes: %w", err)
	}
	block, err := codec.EncodeSettings(settings, prev)
	if err != nil {
		return err
	}
	if err := s.writeBlock(ctx, "write-settings", protocol.OpWriteSettings, protocol.SettingsAddr, block); err != nil {
		return err
	}

	s.log.Success("settings written",
		"frequency_mhz", settings.DefaultFrequency,
		"tx_power", settings.TxPower,
		"backlight", settings.Backlight)
	return nil
}

package radio

import (
	"context"
	"fmt"
	"time"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
)

// Flash phases reported through FlashProgress.
const (
	PhaseEntering    = "entering"
	PhaseErasing     = "erasing"
	PhaseProgramming = "programming"
	PhaseRebooting   = "rebooting"
	PhaseComplete    = "complete"
)

// FlashProgress is one snapshot of a firmware flash in progress.
type FlashProgress struct {
	// Phase is the current stage: entering, erasing, programming,
	// rebooting, or complete.
	Phase string

	// CurrentBlock is the number of blocks written so far.
	CurrentBlock int

	// TotalBlocks is the number of blocks the image needs.
	TotalBlocks int

	// Percentage is overall completion, 0.0 to 100.0.
	Percentage float64

	// BytesWritten counts image bytes programmed so far, before block
	// padding.
	BytesWritten int

	// TotalBytes is the image size.
	TotalBytes int

	// ElapsedTime is the time since the flash began.
	ElapsedTime time.Duration
}

// FlashProgressFunc receives flash progress snapshots. Implementations
// should return quickly; the block loop waits for them.
type FlashProgressFunc func(FlashProgress)

// FlashFirmware programs a firmware image through the bootloader:
// enter bootloader, erase, sequential 256-byte block writes with the
// last block padded with 0xFF, then a best-effort exit that reboots
// the radio. Entering and erasing must be acknowledged; a refused
// block write aborts with the flash in an undefined state. progress
// may be nil. Cancellation is honored between blocks, not within one.
func (s *Session) FlashFirmware(ctx context.Context, image []byte, progress FlashProgressFunc) error {
	if len(image) == 0 {
		return &UnsupportedOperationError{Op: "flash", Reason: "empty firmware image"}
	}
	if len(image) > protocol.MaxFirmwareSize {
		return &UnsupportedOperationError{
			Op:     "flash",
			Reason: fmt.Sprintf("image is %d bytes, max %d", len(image), protocol.MaxFirmwareSize),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	startTime := time.Now()
	total := (len(image) + protocol.FlashBlockSize - 1) / protocol.FlashBlockSize
	report := func(p FlashProgress) {
		p.TotalBlocks = total
		p.TotalBytes = len(image)
		p.ElapsedTime = time.Since(startTime)
		if progress != nil {
			progress(p)
		}
	}

	report(FlashProgress{Phase: PhaseEntering})
	s.bestEffortHandshake(ctx)
	if err := s.controlCommand(ctx, "enter-bootloader", protocol.OpEnterBootloader); err != nil {
		return err
	}

	report(FlashProgress{Phase: PhaseErasing, Percentage: 2})
	if err := s.controlCommand(ctx, "erase-flash", protocol.OpEraseFlash); err != nil {
		return err
	}
	s.sleep(s.cfg.SettleDelay)

	written := 0
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		off := i * protocol.FlashBlockSize
		end := off + protocol.FlashBlockSize
		if end > len(image) {
			end = len(image)
		}
		block := image[off:end]
		if len(block) < protocol.FlashBlockSize {
			padded := make([]byte, protocol.FlashBlockSize)
			for j := range padded {
				padded[j] = 0xFF
			}
			copy(padded, block)
			block = padded
		}

		frame, err := protocol.BuildFlashWriteCommand(uint32(off), block)
		if err != nil {
			return err
		}
		raw, err := s.exchange(ctx, "write-flash", frame, txOptions{expect: 1})
		if err != nil {
			return fmt.Errorf("radio: flash block %d of %d: %w", i+1, total, err)
		}
		if !protocol.Acknowledges(raw, protocol.OpWriteFlash) {
			return &InvalidResponseError{
				Op:   "write-flash",
				Got:  raw,
				Want: fmt.Sprintf("opcode echo 0x%02X or ack", protocol.OpWriteFlash),
			}
		}

		written += end - off
		report(FlashProgress{
			Phase:        PhaseProgramming,
			CurrentBlock: i + 1,
			Percentage:   5 + float64(i+1)/float64(total)*85,
			BytesWritten: written,
		})
	}

	report(FlashProgress{
		Phase:        PhaseRebooting,
		CurrentBlock: total,
		Percentage:   95,
		BytesWritten: written,
	})
	if err := s.controlCommand(ctx, "exit-bootloader", protocol.OpExitBootloader); err != nil {
		s.log.Warn("exit-bootloader not acknowledged, power-cycle the radio", "err", err)
	}

	report(FlashProgress{
		Phase:        PhaseComplete,
		CurrentBlock: total,
		Percentage:   100,
		BytesWritten: written,
	})
	s.log.Success("firmware flashed",
		"bytes", len(image), "blocks", total,
		"elapsed", time.Since(startTime).Round(time.Millisecond))
	return nil
}

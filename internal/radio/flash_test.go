package radio

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
)

func TestFlashFirmware(t *testing.T) {
	sim, s := newSimSession()

	image := make([]byte, 600)
	for i := range image {
		image[i] = byte(i * 7)
	}

	var snaps []FlashProgress
	err := s.FlashFirmware(context.Background(), image, func(p FlashProgress) {
		snaps = append(snaps, p)
	})
	if err != nil {
		t.Fatalf("flash: %v", err)
	}

	flash := sim.FlashImage()
	if len(flash) != 3*protocol.FlashBlockSize {
		t.Fatalf("programmed %d bytes, want %d", len(flash), 3*protocol.FlashBlockSize)
	}
	if !bytes.Equal(flash[:len(image)], image) {
		t.Error("programmed image differs from the input")
	}
	for i, b := range flash[len(image):] {
		if b != 0xFF {
			t.Errorf("pad byte %d = 0x%02X, want 0xFF", i, b)
			break
		}
	}
	if sim.InBootloader() {
		t.Error("radio left in bootloader mode")
	}

	if len(snaps) != 7 {
		t.Fatalf("got %d progress snapshots, want 7", len(snaps))
	}
	if snaps[0].Phase != PhaseEntering || snaps[1].Phase != PhaseErasing {
		t.Errorf("leading phases = %q, %q", snaps[0].Phase, snaps[1].Phase)
	}
	for i := 0; i < 3; i++ {
		p := snaps[2+i]
		if p.Phase != PhaseProgramming || p.CurrentBlock != i+1 || p.TotalBlocks != 3 {
			t.Errorf("programming snapshot %d = %+v", i, p)
		}
	}
	last := snaps[len(snaps)-1]
	if last.Phase != PhaseComplete || last.Percentage != 100 || last.BytesWritten != len(image) {
		t.Errorf("final snapshot = %+v", last)
	}
	for i := 1; i < len(snaps); i++ {
		if snaps[i].Percentage < snaps[i-1].Percentage {
			t.Errorf("percentage went backwards at snapshot %d: %v -> %v",
				i, snaps[i-1].Percentage, snaps[i].Percentage)
		}
	}
}

func TestFlashFirmwareRefusedErase(t *testing.T) {
	sim, s := newSimSession()
	sim.RefuseErase = true

	var snaps []FlashProgress
	err := s.FlashFirmware(context.Background(), make([]byte, 300), func(p FlashProgress) {
		snaps = append(snaps, p)
	})
	if err == nil {
		t.Fatal("flash succeeded with the erase refused")
	}
	var commErr *CommunicationError
	if !errors.As(err, &commErr) {
		t.Fatalf("error = %v, want CommunicationError", err)
	}
	if len(sim.FlashImage()) != 0 {
		t.Error("blocks were programmed without an erase")
	}
	if last := snaps[len(snaps)-1]; last.Phase != PhaseErasing {
		t.Errorf("last phase = %q, want %q", last.Phase, PhaseErasing)
	}
}

func TestFlashFirmwareCancelledBetweenBlocks(t *testing.T) {
	sim, s := newSimSession()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := s.FlashFirmware(ctx, make([]byte, 600), func(p FlashProgress) {
		if p.Phase == PhaseProgramming && p.CurrentBlock == 1 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if got := len(sim.FlashImage()); got != protocol.FlashBlockSize {
		t.Errorf("programmed %d bytes before stopping, want one block", got)
	}
}

func TestFlashFirmwareValidatesImage(t *testing.T) {
	tr := &scriptTransport{}
	s, _ := newScriptSession(tr)

	for _, image := range [][]byte{nil, make([]byte, protocol.MaxFirmwareSize+1)} {
		err := s.FlashFirmware(context.Background(), image, nil)
		var unsupported *UnsupportedOperationError
		if !errors.As(err, &unsupported) {
			t.Fatalf("image of %d bytes: error = %v, want UnsupportedOperationError", len(image), err)
		}
	}
	if len(tr.writes) != 0 {
		t.Errorf("wrote %d frames for rejected images", len(tr.writes))
	}
}

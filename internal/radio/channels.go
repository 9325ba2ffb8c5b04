package radio

import (
	"context"
	"fmt"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/codec"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
)

// channelBases are the candidate channel table locations, primary first.
var channelBases = []uint16{protocol.ChannelBase, protocol.ChannelBaseAlt}

// scanBlockSize is the read granularity of the fixed-block strategy.
const scanBlockSize = 0x400

// channelStrategy is one way of locating the channel table. A scan
// reports the channels it found and the base address write-back should
// target for them.
type channelStrategy struct {
	name string
	scan func(ctx context.Context) ([]codec.Channel, uint16, error)
}

// ReadChannels discovers and decodes the channel table. Four strategies
// run in order, cheapest first: bulk table reads at the candidate
// bases, fixed-block reads scanned at aligned offsets, a per-record
// linear scan, and a full dump with a byte-shifted scan. A strategy's
// result counts only when it holds more than one distinct frequency;
// the first such result wins and pins the write-back base. All
// strategies coming up empty is not an error, the radio may simply
// have no channels programmed.
func (s *Session) ReadChannels(ctx context.Context) ([]codec.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestEffortHandshake(ctx)

	strategies := []channelStrategy{
		{name: "bulk-table", scan: s.scanBulkTable},
		{name: "block-scan", scan: s.scanFixedBlocks},
		{name: "linear-scan", scan: s.scanLinear},
		{name: "full-dump", scan: s.scanFullDump},
	}
	for _, strat := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chans, base, err := strat.scan(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.log.Debug("channel strategy failed", "strategy", strat.name, "err", err)
			continue
		}
		if !acceptableChannelSet(chans) {
			s.log.Debug("channel strategy result rejected",
				"strategy", strat.name, "count", len(chans))
			continue
		}

		s.channelBase = base
		s.log.Success("channels discovered",
			"strategy", strat.name, "count", len(chans),
			"base", fmt.Sprintf("0x%04X", base))
		return chans, nil
	}

	s.log.Warn("no channel table found, returning empty set")
	return []codec.Channel{}, nil
}

// acceptableChannelSet is the strategy validation rule: more than one
// distinct frequency. A table decoding to a single repeated frequency
// is indistinguishable from mirrored garbage, so it is not trusted.
func acceptableChannelSet(chans []codec.Channel) bool {
	seen := make(map[float64]struct{}, len(chans))
	for _, ch := range chans {
		seen[ch.Frequency] = struct{}{}
	}
	return len(seen) > 1
}

// scanBulkTable reads the whole table in one chunked pass per candidate
// base, with the memory-read opcode, and decodes records positionally.
func (s *Session) scanBulkTable(ctx context.Context) ([]codec.Channel, uint16, error) {
	size := s.cfg.MaxChannels * protocol.ChannelRecordSize
	var lastErr error
	for _, base := range channelBases {
		table, err := s.readRegionAs(ctx, "channel-table", protocol.OpReadMemory, base, size)
		if err != nil {
			lastErr = err
			continue
		}

		var chans []codec.Channel
		for i := 0; i < s.cfg.MaxChannels; i++ {
			rec := table[i*protocol.ChannelRecordSize : (i+1)*protocol.ChannelRecordSize]
			ch := codec.DecodeChannel(rec, i)
			if ch != nil && codec.PlausibleFrequency(ch.Frequency) {
				chans = append(chans, *ch)
			}
		}
		if acceptableChannelSet(chans) {
			return chans, base, nil
		}
	}
	return nil, 0, lastErr
}

// scanFixedBlocks reads the EEPROM in large blocks and keeps valid
// records found at 16-byte-aligned offsets. Unreadable blocks are
// skipped. Record indexes are slot offsets from the first hit, so
// write-back lands each record where it was found.
func (s *Session) scanFixedBlocks(ctx context.Context) ([]codec.Channel, uint16, error) {
	var (
		chans []codec.Channel
		base  uint16
	)
	for addr := 0; addr < protocol.EEPROMSize; addr += scanBlockSize {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		block, err := s.readRegion(ctx, "channel-block-scan", uint16(addr), scanBlockSize)
		if err != nil {
			s.log.Debug("block scan read failed",
				"addr", fmt.Sprintf("0x%04X", addr), "err", err)
			continue
		}
		for off := 0; off+protocol.ChannelRecordSize <= len(block); off += protocol.ChannelRecordSize {
			at := uint16(addr + off)
			idx := 0
			if len(chans) > 0 {
				idx = int(at-base) / protocol.ChannelRecordSize
			}
			ch := codec.DecodeChannel(block[off:off+protocol.ChannelRecordSize], idx)
			if ch == nil || !codec.PlausibleFrequency(ch.Frequency) {
				continue
			}
			if len(chans) == 0 {
				base = at
			}
			chans = append(chans, *ch)
		}
	}
	return chans, base, nil
}

// scanLinear issues one small read per 16-byte window over the whole
// EEPROM. Windows that fail or decode empty are skipped. The heaviest
// read-based strategy, so it runs single-attempt per window.
func (s *Session) scanLinear(ctx context.Context) ([]codec.Channel, uint16, error) {
	var (
		chans []codec.Channel
		base  uint16
	)
	for addr := 0; addr+protocol.ChannelRecordSize <= protocol.EEPROMSize; addr += protocol.ChannelRecordSize {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		frame := protocol.BuildReadCommand(uint16(addr), protocol.ChannelRecordSize)
		raw, err := s.exchange(ctx, "channel-linear-scan", frame, txOptions{
			retries: 1,
			expect:  protocol.HeaderedPayloadOffset + protocol.ChannelRecordSize,
		})
		if err != nil {
			continue
		}
		payload := protocol.Payload(raw)
		if len(payload) < protocol.ChannelRecordSize {
			continue
		}

		idx := 0
		if len(chans) > 0 {
			idx = (addr - int(base)) / protocol.ChannelRecordSize
		}
		ch := codec.DecodeChannel(payload[:protocol.ChannelRecordSize], idx)
		if ch == nil || !codec.PlausibleFrequency(ch.Frequency) {
			continue
		}
		if len(chans) == 0 {
			base = uint16(addr)
		}
		chans = append(chans, *ch)
	}
	return chans, base, nil
}

// scanFullDump reads the whole EEPROM once and scans it exhaustively:
// the window advances one record past each hit and one byte past each
// miss, so records survive even when the table sits at an unaligned
// offset. Hits are indexed in discovery order.
func (s *Session) scanFullDump(ctx context.Context) ([]codec.Channel, uint16, error) {
	dump, err := s.dumpLocked(ctx)
	if err != nil {
		return nil, 0, err
	}

	var (
		chans []codec.Channel
		base  uint16
	)
	for off := 0; off+protocol.ChannelRecordSize <= len(dump); {
		ch := codec.DecodeChannel(dump[off:off+protocol.ChannelRecordSize], len(chans))
		if ch != nil && codec.PlausibleFrequency(ch.Frequency) {
			if len(chans) == 0 {
				base = uint16(off)
			}
			chans = append(chans, *ch)
			off += protocol.ChannelRecordSize
			continue
		}
		off++
	}
	return chans, base, nil
}

// WriteChannels encodes and writes each record to its slot under the
// base address the last successful discovery chose. Every write must be
// acknowledged; the first refusal aborts.
func (s *Session) WriteChannels(ctx context.Context, chans []codec.Channel) error {
	for _, ch := range chans {
		if ch.Index < 0 || ch.Index >= s.cfg.MaxChannels {
			return &UnsupportedOperationError{
				Op:     "write-channels",
				Reason: fmt.Sprintf("channel index %d outside table of %d", ch.Index, s.cfg.MaxChannels),
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestEffortHandshake(ctx)

	for _, ch := range chans {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := codec.EncodeChannel(&ch)
		addr := s.channelBase + uint16(ch.Index*protocol.ChannelRecordSize)
		if err := s.writeBlock(ctx, "write-channels", protocol.OpWriteEEPROM, addr, rec); err != nil {
			return fmt.Errorf("radio: channel %d: %w", ch.Index, err)
		}
	}

	s.log.Success("channels written",
		"count", len(chans), "base", fmt.Sprintf("0x%04X", s.channelBase))
	return nil
}

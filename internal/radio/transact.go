package radio

import (
	"context"
	"fmt"
	"time"
)

// defaultExpect is the assembly target when the caller has no better
// size estimate: one headered prefix's worth of bytes.
const defaultExpect = 8

// txOptions tunes one transaction. Zero fields fall back to session
// defaults.
type txOptions struct {
	// retries overrides the session attempt budget. Probing callers set
	// 1 so each variant is a single full transaction.
	retries int

	// expect stops response assembly early once this many bytes are in.
	expect int
}

// exchange runs one full transaction: clear stale input, write the
// frame, assemble the response across read rounds, and retry with
// linear backoff until the budget runs out.
func (s *Session) exchange(ctx context.Context, label string, frame []byte, opts txOptions) ([]byte, error) {
	if s.tr == nil || s.closed {
		return nil, ErrNotConnected
	}

	retries := opts.retries
	if retries <= 0 {
		retries = s.cfg.Retries
	}
	expect := opts.expect
	if expect <= 0 {
		expect = defaultExpect
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := s.attempt(ctx, frame, expect)
		if err == nil {
			s.log.Debug("transaction complete",
				"op", label, "attempt", attempt, "bytes", len(raw))
			return raw, nil
		}
		lastErr = err
		s.log.Debug("transaction attempt failed",
			"op", label, "attempt", attempt, "err", err)
		s.sleep(time.Duration(attempt) * s.cfg.BackoffStep)
	}

	return nil, &CommunicationError{Op: label, Attempts: retries, Err: lastErr}
}

// attempt is one shot: clear, write, collect.
func (s *Session) attempt(ctx context.Context, frame []byte, expect int) ([]byte, error) {
	s.clearBuffer()

	n, err := s.tr.Write(frame)
	if err != nil {
		return nil, fmt.Errorf("radio: write: %w", err)
	}
	if n != len(frame) {
		return nil, fmt.Errorf("radio: short write: %d of %d bytes", n, len(frame))
	}

	return s.collect(ctx, expect)
}

// clearBuffer discards stale bytes with zero-timeout polls, stopping at
// the first silent poll. A bounded loop: a device streaming garbage
// must not wedge the session here.
func (s *Session) clearBuffer() {
	for i := 0; i < s.cfg.ClearReads; i++ {
		chunk, err := s.tr.Read(0)
		if err != nil || len(chunk) == 0 {
			return
		}
		s.log.Debug("discarded stale bytes", "count", len(chunk))
	}
}

// collect assembles the response across read rounds. Assembly ends
// early once expect bytes are in, or once QuietRounds consecutive empty
// reads follow data already received. Silence across every round is
// ErrTimeout.
func (s *Session) collect(ctx context.Context, expect int) ([]byte, error) {
	var buf []byte
	quiet := 0
	for round := 0; round < s.cfg.ReadRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := s.tr.Read(s.cfg.ReadTimeout)
		if err != nil {
			return nil, fmt.Errorf("radio: read: %w", err)
		}
		if len(chunk) == 0 {
			if len(buf) > 0 {
				quiet++
				if quiet >= s.cfg.QuietRounds {
					break
				}
			}
			continue
		}

		quiet = 0
		buf = append(buf, chunk...)
		if len(buf) >= expect {
			break
		}
	}

	if len(buf) == 0 {
		return nil, ErrTimeout
	}
	return buf, nil
}

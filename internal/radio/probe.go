package radio

import (
	"context"
	"fmt"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
)

// candidate is one frame variant tried during probing.
type candidate struct {
	name  string
	frame []byte
}

// acceptFunc judges one variant's response and extracts the payload to
// keep. Returning false sends probing to the next variant.
type acceptFunc func(raw []byte) ([]byte, bool)

// firstAccepted runs the candidates in order, each as a single-attempt
// transaction, and returns the first accepted payload along with the
// winning variant's name. All variants failing is one error carrying
// the last cause.
func (s *Session) firstAccepted(ctx context.Context, label string, cands []candidate, expect int, accept acceptFunc) ([]byte, string, error) {
	var lastErr error
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		raw, err := s.exchange(ctx, label+"/"+c.name, c.frame, txOptions{retries: 1, expect: expect})
		if err != nil {
			lastErr = err
			continue
		}
		if payload, ok := accept(raw); ok {
			s.log.Debug("variant accepted",
				"op", label, "variant", c.name, "bytes", len(payload))
			return payload, c.name, nil
		}
		lastErr = &InvalidResponseError{Op: label + "/" + c.name, Got: raw, Want: "acceptable payload"}
		s.log.Debug("variant response rejected",
			"op", label, "variant", c.name, "bytes", len(raw))
	}
	if lastErr == nil {
		lastErr = ErrTimeout
	}
	return nil, "", fmt.Errorf("radio: %s: all %d variants failed: %w", label, len(cands), lastErr)
}

// acceptAny accepts any non-empty response whole, the handshake rule.
func acceptAny(raw []byte) ([]byte, bool) {
	return raw, len(raw) > 0
}

// acceptLength is the acceptance rule for fixed-size probing reads, in
// preference order: exactly the wanted length; a headered response
// whose payload covers it; as a last resort any response of at least 4
// bytes, trimmed to its trailing want bytes when longer. The last rule
// can hand back fewer bytes than wanted.
func acceptLength(want int) acceptFunc {
	return func(raw []byte) ([]byte, bool) {
		switch {
		case len(raw) == want:
			return raw, true
		case protocol.Classify(raw) == protocol.ResponseHeadered &&
			len(raw) >= protocol.HeaderedPayloadOffset+want:
			return protocol.Payload(raw)[:want], true
		case len(raw) >= 4:
			if len(raw) > want {
				return raw[len(raw)-want:], true
			}
			return raw, true
		}
		return nil, false
	}
}

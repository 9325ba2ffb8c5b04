package radio

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
)

// scriptTransport replays canned responses, one per write. Stale bytes
// sit in front of everything, the way leftovers from an aborted
// exchange would on a real port; zero-timeout polls see only those.
type scriptTransport struct {
	stale     []byte
	responses [][]byte
	chunk     int // max bytes per read, 0 means unlimited
	delay     int // empty reads served before the response flows
	shortBy   int // bytes to under-report on every write

	writes  [][]byte
	pending []byte
	closed  bool
}

func (t *scriptTransport) Write(p []byte) (int, error) {
	if t.closed {
		return 0, errors.New("script: closed")
	}
	t.writes = append(t.writes, append([]byte(nil), p...))
	t.pending = nil
	if i := len(t.writes) - 1; i < len(t.responses) {
		t.pending = append([]byte(nil), t.responses[i]...)
	}
	return len(p) - t.shortBy, nil
}

func (t *scriptTransport) Read(timeout time.Duration) ([]byte, error) {
	if t.closed {
		return nil, errors.New("script: closed")
	}
	if len(t.stale) > 0 {
		return t.take(&t.stale), nil
	}
	if timeout == 0 {
		return nil, nil
	}
	if t.delay > 0 {
		t.delay--
		return nil, nil
	}
	return t.take(&t.pending), nil
}

func (t *scriptTransport) take(buf *[]byte) []byte {
	if len(*buf) == 0 {
		return nil
	}
	n := len(*buf)
	if t.chunk > 0 && n > t.chunk {
		n = t.chunk
	}
	out := (*buf)[:n]
	*buf = (*buf)[n:]
	return out
}

func (t *scriptTransport) Close() error {
	t.closed = true
	return nil
}

// newScriptSession wires a session to a scripted transport with sleeps
// recorded instead of slept.
func newScriptSession(tr *scriptTransport, opts ...Option) (*Session, *[]time.Duration) {
	s := New(tr, opts...)
	var slept []time.Duration
	s.sleep = func(d time.Duration) { slept = append(slept, d) }
	return s, &slept
}

func TestExchangeRetriesWithLinearBackoff(t *testing.T) {
	tr := &scriptTransport{} // never answers
	s, slept := newScriptSession(tr)

	frame := protocol.BuildReadCommand(protocol.SettingsAddr, 16)
	_, err := s.exchange(context.Background(), "settings", frame, txOptions{})
	if err == nil {
		t.Fatal("exchange succeeded against a silent transport")
	}

	var commErr *CommunicationError
	if !errors.As(err, &commErr) {
		t.Fatalf("error = %v, want CommunicationError", err)
	}
	if commErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", commErr.Attempts)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("error %v does not wrap ErrTimeout", err)
	}

	if len(tr.writes) != 3 {
		t.Fatalf("wrote %d times, want 3", len(tr.writes))
	}
	for i, w := range tr.writes {
		if !bytes.Equal(w, frame) {
			t.Errorf("write %d = % X, want % X", i, w, frame)
		}
	}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("backoff %d = %v, want %v", i, (*slept)[i], d)
		}
	}
}

func TestExchangeAssemblesChunkedResponse(t *testing.T) {
	resp := make([]byte, 24)
	for i := range resp {
		resp[i] = byte(i + 1)
	}
	tr := &scriptTransport{responses: [][]byte{resp}, chunk: 5}
	s, _ := newScriptSession(tr)

	raw, err := s.exchange(context.Background(), "read", protocol.BuildReadCommand(0, 16), txOptions{expect: 24})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if !bytes.Equal(raw, resp) {
		t.Errorf("assembled % X, want % X", raw, resp)
	}
	if len(tr.writes) != 1 {
		t.Errorf("wrote %d times, want 1", len(tr.writes))
	}
}

func TestExchangeToleratesSlowResponse(t *testing.T) {
	resp := []byte{0x1B, 0xAB, 0xCD, 0x01, 0x00, 0x00, 0x01, 0x00, 0x42}
	tr := &scriptTransport{responses: [][]byte{resp}, delay: 4}
	s, _ := newScriptSession(tr)

	raw, err := s.exchange(context.Background(), "read", protocol.BuildReadCommand(0, 1), txOptions{expect: len(resp)})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if !bytes.Equal(raw, resp) {
		t.Errorf("assembled % X, want % X", raw, resp)
	}
}

func TestExchangeDiscardsStaleBytes(t *testing.T) {
	resp := []byte{0x1B, 0xAB, 0xCD, 0x01, 0x00, 0x00, 0x02, 0x00, 0x11, 0x22}
	tr := &scriptTransport{
		stale:     []byte{0xDE, 0xAD, 0xBE, 0xEF},
		responses: [][]byte{resp},
	}
	s, _ := newScriptSession(tr)

	raw, err := s.exchange(context.Background(), "read", protocol.BuildReadCommand(0, 2), txOptions{expect: len(resp)})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if !bytes.Equal(raw, resp) {
		t.Errorf("stale bytes leaked into response: got % X, want % X", raw, resp)
	}
}

func TestExchangeShortWriteFailsAttempt(t *testing.T) {
	tr := &scriptTransport{shortBy: 1}
	s, _ := newScriptSession(tr)

	_, err := s.exchange(context.Background(), "read", protocol.BuildReadCommand(0, 4), txOptions{})
	if err == nil {
		t.Fatal("exchange succeeded despite short writes")
	}
	var commErr *CommunicationError
	if !errors.As(err, &commErr) {
		t.Fatalf("error = %v, want CommunicationError", err)
	}
	if !strings.Contains(err.Error(), "short write") {
		t.Errorf("error %q does not mention the short write", err)
	}
}

func TestExchangeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := &scriptTransport{}
	s, _ := newScriptSession(tr)

	_, err := s.exchange(ctx, "read", protocol.BuildReadCommand(0, 1), txOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(tr.writes) != 0 {
		t.Errorf("wrote %d frames after cancellation", len(tr.writes))
	}
}

func TestExchangeAfterCloseReturnsNotConnected(t *testing.T) {
	tr := &scriptTransport{}
	s, _ := newScriptSession(tr)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err := s.exchange(context.Background(), "read", protocol.BuildReadCommand(0, 1), txOptions{})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("error = %v, want ErrNotConnected", err)
	}
}

func TestReadRegionRejectsShortPayload(t *testing.T) {
	// Headered response carrying 4 payload bytes against a 16-byte
	// request.
	resp := []byte{0x1B, 0xAB, 0xCD, 0x01, 0x00, 0x00, 0x10, 0x00, 0x01, 0x02, 0x03, 0x04}
	tr := &scriptTransport{responses: [][]byte{resp, resp, resp}}
	s, _ := newScriptSession(tr)

	_, err := s.readRegion(context.Background(), "settings", protocol.SettingsAddr, 16)
	if err == nil {
		t.Fatal("readRegion accepted a short payload")
	}
	var invalid *InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want InvalidResponseError", err)
	}
}

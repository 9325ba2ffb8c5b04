package radio

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation runs against a
	// session whose transport is absent or already closed.
	ErrNotConnected = errors.New("radio: not connected")

	// ErrTimeout is returned when every read round of an attempt stayed
	// silent. CommunicationError wraps it once retries are exhausted.
	ErrTimeout = errors.New("radio: timed out waiting for response")
)

// CommunicationError indicates a transaction that exhausted its retry
// budget: the write failed or no attempt assembled a response.
type CommunicationError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *CommunicationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("radio: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("radio: %s failed after %d attempts", e.Op, e.Attempts)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// InvalidResponseError indicates the device answered, but the response
// failed the operation's acceptance check (for writes, the opcode was
// not echoed or acknowledged).
type InvalidResponseError struct {
	Op   string
	Got  []byte
	Want string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("radio: %s: unacceptable response % X, want %s", e.Op, e.Got, e.Want)
}

// ChecksumError indicates a framed payload whose checksum did not
// verify. No frame in the current dialect carries one; the type exists
// so firmware revisions that add checksums surface as this kind rather
// than InvalidResponse.
type ChecksumError struct {
	Op       string
	Expected uint16
	Actual   uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("radio: %s: checksum mismatch: expected 0x%04X, got 0x%04X",
		e.Op, e.Expected, e.Actual)
}

// UnsupportedOperationError indicates a request the protocol cannot
// express: an unmapped region, a wrong-sized block, an oversized image.
type UnsupportedOperationError struct {
	Op     string
	Reason string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("radio: %s unsupported: %s", e.Op, e.Reason)
}

package radio

import (
	"time"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/codec"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/logging"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/protocol"
)

// Config holds the session tuning knobs. Zero values mean "use the
// default"; construct through New with Options rather than literals.
type Config struct {
	// Logger receives per-transaction and per-operation events.
	Logger logging.Logger

	// Retries is the attempt budget per transaction.
	Retries int

	// BackoffStep scales the sleep between attempts: attempt index
	// times the step.
	BackoffStep time.Duration

	// ReadTimeout bounds one response read round.
	ReadTimeout time.Duration

	// ReadRounds is the number of read rounds per attempt.
	ReadRounds int

	// QuietRounds is how many consecutive empty rounds after data count
	// as end-of-response.
	QuietRounds int

	// ClearReads caps the zero-timeout polls that clear stale bytes
	// before each command.
	ClearReads int

	// SettleDelay is the pause after the flash erase acknowledgment
	// before programming starts.
	SettleDelay time.Duration

	// VoltageWindow bounds a plausible battery reading.
	VoltageWindow codec.VoltageWindow

	// MaxChannels caps the channel table.
	MaxChannels int

	// ChannelBase is the channel table address used for writes until a
	// successful read reveals where this radio actually keeps it.
	ChannelBase uint16
}

func defaultConfig() Config {
	return Config{
		Logger:        logging.Nop(),
		Retries:       3,
		BackoffStep:   100 * time.Millisecond,
		ReadTimeout:   500 * time.Millisecond,
		ReadRounds:    10,
		QuietRounds:   3,
		ClearReads:    5,
		SettleDelay:   1500 * time.Millisecond,
		VoltageWindow: codec.DefaultVoltageWindow,
		MaxChannels:   protocol.MaxChannels,
		ChannelBase:   protocol.ChannelBase,
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithLogger routes session events into the given sink.
//
// Example:
//
//	sess := radio.New(port, radio.WithLogger(logging.Zerolog(log)))
func WithLogger(logger logging.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithRetries sets the attempt budget per transaction.
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries > 0 {
			c.Retries = retries
		}
	}
}

// WithBackoffStep sets the retry backoff multiplier.
func WithBackoffStep(step time.Duration) Option {
	return func(c *Config) {
		if step > 0 {
			c.BackoffStep = step
		}
	}
}

// WithReadTimeout bounds a single response read round.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ReadTimeout = timeout
		}
	}
}

// WithReadRounds sets how many read rounds one attempt may take.
func WithReadRounds(rounds int) Option {
	return func(c *Config) {
		if rounds > 0 {
			c.ReadRounds = rounds
		}
	}
}

// WithSettleDelay sets the pause between the erase acknowledgment and
// the first flash block.
func WithSettleDelay(delay time.Duration) Option {
	return func(c *Config) {
		if delay >= 0 {
			c.SettleDelay = delay
		}
	}
}

// WithVoltageWindow sets the plausibility window for battery readings.
//
// Example:
//
//	sess := radio.New(port, radio.WithVoltageWindow(codec.LegacyVoltageWindow))
func WithVoltageWindow(win codec.VoltageWindow) Option {
	return func(c *Config) {
		if win.Max > win.Min {
			c.VoltageWindow = win
		}
	}
}

// WithMaxChannels caps the channel table size.
func WithMaxChannels(n int) Option {
	return func(c *Config) {
		if n > 0 && n <= protocol.MaxChannels {
			c.MaxChannels = n
		}
	}
}

// WithChannelBase overrides the assumed channel table base address.
func WithChannelBase(base uint16) Option {
	return func(c *Config) {
		c.ChannelBase = base
	}
}

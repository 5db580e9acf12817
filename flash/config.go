package flash

import "time"

var DefaultAckTimeout = 5 * time.Second
var DefaultEraseTimeout = 60 * time.Second
var DefaultPageDelay = 10 * time.Millisecond

// ProgressFunc receives the number of image bytes acknowledged so far
type ProgressFunc func(done, total int)

// Config defines how a flashing session talks to the bootloader. Zero
// values are replaced with defaults.
type Config struct {
	Dialect Dialect

	// AckTimeout bounds the BUSY polling after an ordinary frame
	AckTimeout time.Duration
	// EraseTimeout bounds the BUSY polling after the mass erase request
	EraseTimeout time.Duration
	BusyInterval time.Duration

	// PageDelay is slept after each acknowledged page; negative disables it
	PageDelay time.Duration

	// EntryAddress is where GO jumps to; zero means the flash base address
	EntryAddress uint32

	// Entry puts the device into its bootloader; nil sends the reset magic
	// to the application address
	Entry Entry

	// CommandRetries is how often a read-only identify command is retried
	// after a bus error; negative disables retrying
	CommandRetries int

	Progress ProgressFunc

	clock clock
}

func (c Config) withDefaults() Config {
	if c.Dialect.Name == "" {
		c.Dialect = DialectI2C
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.EraseTimeout <= 0 {
		c.EraseTimeout = DefaultEraseTimeout
	}
	if c.BusyInterval <= 0 {
		c.BusyInterval = BusyPollInterval
	}
	if c.PageDelay == 0 {
		c.PageDelay = DefaultPageDelay
	}
	if c.CommandRetries == 0 {
		c.CommandRetries = 1
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	return c
}

// Option adjusts a Config
type Option func(*Config)

// WithConfig replaces the whole configuration
func WithConfig(c Config) Option {
	return func(cfg *Config) {
		*cfg = c
	}
}

// WithProgress sets a callback run after every acknowledged page
func WithProgress(fn ProgressFunc) Option {
	return func(c *Config) {
		c.Progress = fn
	}
}

func WithDialect(d Dialect) Option {
	return func(c *Config) {
		c.Dialect = d
	}
}

func WithEntry(e Entry) Option {
	return func(c *Config) {
		c.Entry = e
	}
}

// WithEntryAddress sets the application entry address passed to GO
func WithEntryAddress(addr uint32) Option {
	return func(c *Config) {
		c.EntryAddress = addr
	}
}

func WithAckTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.AckTimeout = d
	}
}

func WithEraseTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.EraseTimeout = d
	}
}

// WithPageDelay sets the pause after each page; pass a negative value to
// write pages back to back
func WithPageDelay(d time.Duration) Option {
	return func(c *Config) {
		c.PageDelay = d
	}
}

func WithCommandRetries(n int) Option {
	return func(c *Config) {
		c.CommandRetries = n
	}
}

func withClock(clk clock) Option {
	return func(c *Config) {
		c.clock = clk
	}
}

package spiflash

import (
	"io"
	"log/slog"
	"time"
)

type config struct {
	logger *slog.Logger

	pollLimit   int
	pollTimeout time.Duration
	resetDelay  time.Duration

	maxTransfer int
	expected    Identity
}

func defaultConfig() config {
	return config{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		resetDelay: 30 * time.Microsecond,
		expected:   W25Q64,
	}
}

type Option func(*config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPollLimit bounds the number of status reads a single wait may issue
// before it gives up with ErrorBusy. Zero waits forever.
func WithPollLimit(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.pollLimit = n
		}
	}
}

// WithPollTimeout bounds the time a single wait may take before it gives up
// with ErrorBusy. Zero waits forever.
func WithPollTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.pollTimeout = d
		}
	}
}

// WithResetDelay sets the recovery time observed after the reset command.
func WithResetDelay(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.resetDelay = d
		}
	}
}

// WithMaxTransfer limits the payload of a single read frame issued by Read.
// Zero means a single frame per call.
func WithMaxTransfer(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxTransfer = n
		}
	}
}

func WithExpectedIdentity(id Identity) Option {
	return func(c *config) {
		c.expected = id
	}
}

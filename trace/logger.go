package trace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Logger receives captured sessions. Implementations must be safe for
// concurrent use.
type Logger interface {
	Log(event Event)
}

type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

// FileLogger appends CBOR encoded events to a file.
type FileLogger struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool

	/* first write error, reported by Close */
	err error
}

func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		file:    f,
		encoder: NewEncoder(f),
	}, nil
}

func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	/* A failed capture must not fail the flash operation */
	if err := l.encoder.Encode(event); err != nil && l.err == nil {
		l.err = fmt.Errorf("trace: capture incomplete: %w", err)
	}
}

// Close closes the file. Later events are dropped. If writing any event
// failed, the first such error is returned.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	if err := l.file.Close(); err != nil && l.err == nil {
		return err
	}
	return l.err
}

// SlogAdapter writes events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.Uint64("seq", event.Seq),
		slog.String("cmd", event.Command()),
		slog.Int("tx_len", event.TxLen),
		slog.Int("rx_len", event.RxLen),
		slog.Duration("duration", event.Duration),
	}
	if event.RxLen > 0 && event.RxLen <= 4 {
		attrs = append(attrs, slog.Any("rx", event.Rx))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "spi session", attrs...)
}

// MultiLogger fans events out to several loggers.
type MultiLogger struct {
	loggers []Logger
}

func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*FileLogger)(nil)
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = (*MultiLogger)(nil)
)

package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCBORRoundTrip(t *testing.T) {
	original := Event{
		Timestamp: time.Date(2026, 10, 19, 10, 15, 32, 123456789, time.UTC),
		Seq:       42,
		Opcode:    0x03,
		Tx:        []byte{0x03, 0x00, 0x10, 0x00},
		Rx:        []byte{0xDE, 0xAD},
		TxLen:     4,
		RxLen:     2,
		Duration:  1500 * time.Microsecond,
	}

	data, err := EncodeEvent(original)
	require.NoError(t, err)

	decoded, err := DecodeEvent(data)
	require.NoError(t, err)

	assert.True(t, decoded.Timestamp.Equal(original.Timestamp))
	decoded.Timestamp = original.Timestamp
	assert.Equal(t, original, decoded)
}

func TestFileLoggerReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.trace")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		logger.Log(Event{Timestamp: time.Now(), Seq: uint64(i), Opcode: 0x05, Tx: []byte{0x05}, TxLen: 1})
	}
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	/* Dropped after close */
	logger.Log(Event{Seq: 4})

	events, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Equal(t, "RDSR1", e.Command())
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	NewSlogAdapter(slog.New(handler)).Log(Event{
		Seq:    7,
		Opcode: 0x9F,
		Tx:     []byte{0x9F},
		TxLen:  1,
		RxLen:  3,
		Rx:     []byte{0xEF, 0x40, 0x17},
		Error:  "short",
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "spi session", entry["msg"])
	assert.Equal(t, "JEDEC", entry["cmd"])
	assert.Equal(t, float64(7), entry["seq"])
	assert.Equal(t, "short", entry["error"])
}

func TestMultiLogger(t *testing.T) {
	a, b := &memLogger{}, &memLogger{}
	NewMultiLogger(a, nil, b).Log(Event{Seq: 1})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestEventString(t *testing.T) {
	e := Event{
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Seq:       1,
		Opcode:    0x42,
		Tx:        []byte{0x42},
		TxLen:     1,
	}
	assert.Equal(t, "     1 12:00:00.000000 0x42  tx=42", e.String())
}

var errDiskFull = errors.New("no space left on device")

type failWriter struct {
	writes int
}

func (w *failWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errDiskFull
}

func TestFileLoggerWriteError(t *testing.T) {
	logger, err := NewFileLogger(filepath.Join(t.TempDir(), "full.trace"))
	require.NoError(t, err)

	w := &failWriter{}
	logger.encoder = NewEncoder(w)

	/* Logging keeps going; only Close reports the loss */
	logger.Log(Event{Seq: 1, Opcode: 0x05})
	logger.Log(Event{Seq: 2, Opcode: 0x05})
	assert.Equal(t, 2, w.writes)

	require.ErrorIs(t, logger.Close(), errDiskFull)
	require.NoError(t, logger.Close())
}

package trace

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BertoldVdb/w25q64/sim"
	"github.com/BertoldVdb/w25q64/spiflash"
)

type memLogger struct {
	mu     sync.Mutex
	events []Event
}

func (m *memLogger) Log(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

type mockBus struct {
	mock.Mock
}

func (m *mockBus) Select() error {
	return m.Called().Error(0)
}

func (m *mockBus) Deselect() error {
	return m.Called().Error(0)
}

func (m *mockBus) Transmit(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *mockBus) Receive(p []byte, fill byte) (int, error) {
	args := m.Called(p, fill)
	return args.Int(0), args.Error(1)
}

func TestBusRecordsSessions(t *testing.T) {
	logger := &memLogger{}
	chip := sim.New()
	f := spiflash.New(NewBus(chip, logger), spiflash.WithResetDelay(0))

	require.NoError(t, f.Initialize())
	require.NoError(t, f.ProgramPage(0x001000, []byte{0xAA, 0xBB}))

	var cmds []string
	for _, e := range logger.events {
		cmds = append(cmds, e.Command())
	}
	assert.Equal(t, []string{"RSTEN", "RST", "JEDEC", "RDSR1", "WREN", "RDSR1", "PP"}, cmds)

	id := logger.events[2]
	assert.Equal(t, []byte{0x9F}, id.Tx)
	assert.Equal(t, []byte{0xEF, 0x40, 0x17}, id.Rx)
	assert.Equal(t, uint64(3), id.Seq)

	pp := logger.events[6]
	assert.Equal(t, []byte{0x02, 0x00, 0x10, 0x00, 0xAA, 0xBB}, pp.Tx)
	assert.Equal(t, 6, pp.TxLen)
	assert.False(t, pp.Truncated())
}

func TestBusTruncatesData(t *testing.T) {
	logger := &memLogger{}
	bus := NewBus(sim.New(), logger)
	bus.SetMaxData(8)
	f := spiflash.New(bus)

	require.NoError(t, f.ReadData(0, make([]byte, 100)))

	read := logger.events[len(logger.events)-1]
	assert.Equal(t, "READ", read.Command())
	assert.Len(t, read.Rx, 8)
	assert.Equal(t, 100, read.RxLen)
	assert.True(t, read.Truncated())
}

func TestBusRecordsErrors(t *testing.T) {
	logger := &memLogger{}
	inner := &mockBus{}
	failure := errors.New("bus fault")

	inner.On("Select").Return(nil)
	inner.On("Transmit", []byte{0x9F}).Return(1, nil)
	inner.On("Receive", mock.Anything, byte(0xFF)).Return(0, failure)
	inner.On("Deselect").Return(nil)

	f := spiflash.New(NewBus(inner, logger))
	_, err := f.Identify()
	require.ErrorIs(t, err, failure)

	require.Len(t, logger.events, 1)
	assert.Equal(t, "bus fault", logger.events[0].Error)
	inner.AssertExpectations(t)
}

func TestBusSelectFailure(t *testing.T) {
	logger := &memLogger{}
	inner := &mockBus{}
	failure := errors.New("cs pin")
	inner.On("Select").Return(failure)

	f := spiflash.New(NewBus(inner, logger))
	require.ErrorIs(t, f.WriteEnable(), failure)

	require.Len(t, logger.events, 1)
	assert.Equal(t, "cs pin", logger.events[0].Error)
	inner.AssertNotCalled(t, "Deselect")
}

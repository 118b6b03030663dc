package trace

import (
	"time"

	"github.com/BertoldVdb/w25q64/spiflash"
)

// DefaultMaxData is the number of bytes kept per direction for each session.
const DefaultMaxData = 64

// Bus records every session on the wrapped bus.
type Bus struct {
	bus     spiflash.Bus
	logger  Logger
	maxData int

	seq   uint64
	cur   *Event
	start time.Time
}

func NewBus(bus spiflash.Bus, logger Logger) *Bus {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &Bus{
		bus:     bus,
		logger:  logger,
		maxData: DefaultMaxData,
	}
}

// SetMaxData sets how many bytes per direction are captured. Zero or less
// keeps everything.
func (b *Bus) SetMaxData(n int) {
	b.maxData = n
}

func (b *Bus) keep(dst []byte, src []byte) []byte {
	if b.maxData > 0 && len(dst)+len(src) > b.maxData {
		src = src[:max(0, b.maxData-len(dst))]
	}
	return append(dst, src...)
}

func (b *Bus) Select() error {
	err := b.bus.Select()

	b.seq++
	b.start = time.Now()
	b.cur = &Event{
		Timestamp: b.start,
		Seq:       b.seq,
	}
	if err != nil {
		b.finish(err)
	}
	return err
}

func (b *Bus) Transmit(p []byte) (int, error) {
	n, err := b.bus.Transmit(p)
	if b.cur != nil {
		if b.cur.TxLen == 0 && n > 0 {
			b.cur.Opcode = p[0]
		}
		b.cur.Tx = b.keep(b.cur.Tx, p[:n])
		b.cur.TxLen += n
		if err != nil {
			b.cur.Error = err.Error()
		}
	}
	return n, err
}

func (b *Bus) Receive(p []byte, fill byte) (int, error) {
	n, err := b.bus.Receive(p, fill)
	if b.cur != nil {
		b.cur.Rx = b.keep(b.cur.Rx, p[:n])
		b.cur.RxLen += n
		if err != nil {
			b.cur.Error = err.Error()
		}
	}
	return n, err
}

func (b *Bus) Deselect() error {
	err := b.bus.Deselect()
	if b.cur != nil {
		b.finish(err)
	}
	return err
}

func (b *Bus) finish(err error) {
	if err != nil && b.cur.Error == "" {
		b.cur.Error = err.Error()
	}
	b.cur.Duration = time.Since(b.start)
	b.logger.Log(*b.cur)
	b.cur = nil
}

var _ spiflash.Bus = (*Bus)(nil)

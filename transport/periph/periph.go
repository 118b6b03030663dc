// Package periph connects the flash engine to a periph.io SPI port. The
// port is opened without hardware chip select; a GPIO drives CS so that one
// command session can span several transfers.
package periph

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/BertoldVdb/w25q64/spiflash"
)

// Conn is the part of spi.Conn the bus needs.
type Conn interface {
	Tx(w, r []byte) error
}

// Pin is the part of gpio.PinOut the bus needs.
type Pin interface {
	Out(l gpio.Level) error
}

type Bus struct {
	conn Conn
	cs   Pin
	port spi.PortCloser
}

func New(conn Conn, cs Pin) *Bus {
	return &Bus{
		conn: conn,
		cs:   cs,
	}
}

var hostInitialized atomic.Bool

// Open initializes the periph host drivers, connects to the SPI port named
// dev (for example "/dev/spidev0.0" or "SPI0.0") and claims csPin as chip
// select.
func Open(dev string, csPin string, freq physic.Frequency, mode spi.Mode) (*Bus, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host initialization failed: %w", err)
		}
	}

	if csPin == "" {
		return nil, errors.New("a GPIO chip select pin is required")
	}
	pin := gpioreg.ByName(csPin)
	if pin == nil {
		return nil, fmt.Errorf("unknown GPIO %q", csPin)
	}

	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port: %w", err)
	}

	conn, err := port.Connect(freq, mode|spi.NoCS, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect SPI port: %w", err)
	}

	if err := pin.Out(gpio.High); err != nil {
		port.Close()
		return nil, err
	}

	b := New(conn, pin)
	b.port = port
	return b, nil
}

func (b *Bus) Select() error {
	return b.cs.Out(gpio.Low)
}

func (b *Bus) Deselect() error {
	return b.cs.Out(gpio.High)
}

func (b *Bus) Transmit(p []byte) (int, error) {
	if err := b.conn.Tx(p, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *Bus) Receive(p []byte, fill byte) (int, error) {
	tx := make([]byte, len(p))
	for i := range tx {
		tx[i] = fill
	}

	if err := b.conn.Tx(tx, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close releases chip select and the port if Open created it.
func (b *Bus) Close() error {
	err := b.Deselect()
	if b.port != nil {
		if cErr := b.port.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}
	return err
}

var _ spiflash.Bus = (*Bus)(nil)

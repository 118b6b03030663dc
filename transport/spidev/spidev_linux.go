//go:build linux

package spidev

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/BertoldVdb/w25q64/spiflash"
)

// See Linux "include/uapi/linux/spi/spidev.h"
const (
	iocWrMode        = 0x40016b01
	iocWrBitsPerWord = 0x40016b03
	iocWrMaxSpeedHz  = 0x40046b04
)

type iocTransfer struct {
	TxBuf          uint64
	RxBuf          uint64
	Length         uint32
	SpeedHz        uint32
	DelayUsecs     uint16
	BitsPerWord    uint8
	CSChange       uint8
	TxNBits        uint8
	RxNBits        uint8
	WordDelayUsecs uint8
	Pad            uint8
}

// iocMessage is the ioctl number for n transfers.
func iocMessage(n int) uint32 {
	const (
		sizeBits  = 14
		sizeShift = 16
	)
	size := uint32(n * binary.Size(iocTransfer{}))
	if n < 0 || size > (1<<sizeBits) {
		return iocMessage(0)
	}
	return 0x40006b00 | (size << sizeShift)
}

type Bus struct {
	f        *os.File
	cfg      Config
	selected bool
}

// Open opens a spidev node such as "/dev/spidev0.0". Remember to call Close.
func Open(dev string, cfg Config) (*Bus, error) {
	f, err := os.OpenFile(dev, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	b := &Bus{f: f, cfg: cfg}
	if err := b.configure(); err != nil {
		f.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bus) ioctl(req uintptr, arg unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), req, uintptr(arg)); errno != 0 {
		return errno
	}
	return nil
}

func (b *Bus) configure() error {
	mode := b.cfg.Mode
	if err := b.ioctl(iocWrMode, unsafe.Pointer(&mode)); err != nil {
		return fmt.Errorf("spidev: set mode: %w", err)
	}

	bits := uint8(8)
	if err := b.ioctl(iocWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		return fmt.Errorf("spidev: set bits per word: %w", err)
	}

	if b.cfg.SpeedHz > 0 {
		hz := b.cfg.SpeedHz
		if err := b.ioctl(iocWrMaxSpeedHz, unsafe.Pointer(&hz)); err != nil {
			return fmt.Errorf("spidev: set speed: %w", err)
		}
	}
	return nil
}

func (b *Bus) Close() error {
	return b.f.Close()
}

/* transfer runs a single transfer message. keepSelected sets cs_change,
 * which on the last transfer of a message keeps CS asserted afterwards */
func (b *Bus) transfer(tx []byte, rx []byte, keepSelected bool) error {
	length := len(tx)
	if length == 0 {
		length = len(rx)
	}

	it := iocTransfer{
		Length:      uint32(length),
		SpeedHz:     b.cfg.SpeedHz,
		BitsPerWord: 8,
	}
	if keepSelected {
		it.CSChange = 1
	}

	/* Copy data into unmanaged memory for the duration of the ioctl */
	var buf []byte
	if length > 0 {
		var err error
		buf, err = unix.Mmap(-1, 0, 2*length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			return err
		}
		defer unix.Munmap(buf)

		if len(tx) > 0 {
			copy(buf, tx)
			it.TxBuf = uint64(uintptr(unsafe.Pointer(&buf[0])))
		}
		if len(rx) > 0 {
			it.RxBuf = uint64(uintptr(unsafe.Pointer(&buf[length])))
		}
	}

	if err := b.ioctl(uintptr(iocMessage(1)), unsafe.Pointer(&it)); err != nil {
		return err
	}

	copy(rx, buf[length:])
	return nil
}

func (b *Bus) Select() error {
	if b.selected {
		return ErrorSelected
	}
	b.selected = true
	return nil
}

func (b *Bus) Deselect() error {
	if !b.selected {
		return ErrorNotSelected
	}
	b.selected = false
	return b.transfer(nil, nil, false)
}

func (b *Bus) Transmit(p []byte) (int, error) {
	if !b.selected {
		return 0, ErrorNotSelected
	}
	if err := b.transfer(p, nil, true); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *Bus) Receive(p []byte, fill byte) (int, error) {
	if !b.selected {
		return 0, ErrorNotSelected
	}

	tx := make([]byte, len(p))
	for i := range tx {
		tx[i] = fill
	}
	if err := b.transfer(tx, p, true); err != nil {
		return 0, err
	}
	return len(p), nil
}

var _ spiflash.Bus = (*Bus)(nil)

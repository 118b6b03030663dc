package spiflash

import (
	"encoding/binary"
	"log/slog"
	"time"
)

// Bus is the chip's serial link. Select and Deselect drive the active-low
// chip select line; everything transmitted or received between them forms
// one command session.
type Bus interface {
	Select() error
	Deselect() error
	Transmit(p []byte) (int, error)
	Receive(p []byte, fill byte) (int, error)
}

const fillByte = 0xFF

// Flash drives a single W25Q-series chip. It has no internal locking: wrap
// it in a Locked when more than one goroutine uses it.
type Flash struct {
	bus Bus
	cfg config
	log *slog.Logger
}

func New(bus Bus, opts ...Option) *Flash {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Flash{
		bus: bus,
		cfg: cfg,
		log: cfg.logger,
	}
}

func frame(op byte, address uint32) []byte {
	cmd := make([]byte, 4)
	binary.BigEndian.PutUint32(cmd, address)
	cmd[0] = op
	return cmd
}

func (f *Flash) transmit(op byte, p []byte) error {
	n, err := f.bus.Transmit(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return lengthError(op, "sent", len(p), n)
	}
	return nil
}

func (f *Flash) receive(op byte, p []byte) error {
	n, err := f.bus.Receive(p, fillByte)
	if err != nil {
		return err
	}
	if n != len(p) {
		return lengthError(op, "received", len(p), n)
	}
	return nil
}

/* transact runs one select..deselect session: the command bytes, then either
 * a payload to send or a buffer to fill */
func (f *Flash) transact(cmd []byte, payload []byte, rx []byte) (err error) {
	if err = f.bus.Select(); err != nil {
		return err
	}
	defer func() {
		if dErr := f.bus.Deselect(); dErr != nil && err == nil {
			err = dErr
		}
	}()

	op := cmd[0]
	if err = f.transmit(op, cmd); err != nil {
		return err
	}
	if len(payload) > 0 {
		if err = f.transmit(op, payload); err != nil {
			return err
		}
	}
	if len(rx) > 0 {
		err = f.receive(op, rx)
	}
	return err
}

func (f *Flash) Identify() (Identity, error) {
	var id [3]byte
	if err := f.transact([]byte{opcodeJEDECID}, nil, id[:]); err != nil {
		return Identity{}, err
	}

	return Identity{Manufacturer: id[0], MemoryType: id[1], Capacity: id[2]}, nil
}

func (f *Flash) ReadStatus1() (StatusRegister, error) {
	var result [1]byte
	err := f.transact([]byte{opcodeReadStatus1}, nil, result[:])
	return StatusRegister(result[0]), err
}

func (f *Flash) ReadStatus2() (uint8, error) {
	var result [1]byte
	err := f.transact([]byte{opcodeReadStatus2}, nil, result[:])
	return result[0], err
}

func (f *Flash) WriteEnable() error {
	return f.transact([]byte{opcodeWriteEnable}, nil, nil)
}

// WriteDisable clears the write enable latch. It does not look at the
// current state first.
func (f *Flash) WriteDisable() error {
	return f.transact([]byte{opcodeWriteDisable}, nil, nil)
}

// WriteStatus writes both status registers and waits for the chip to
// finish the non-volatile update.
func (f *Flash) WriteStatus(reg1 uint8, reg2 uint8) error {
	if err := f.prepareWrite(); err != nil {
		return err
	}

	if err := f.transact([]byte{opcodeWriteStatus, reg1, reg2}, nil, nil); err != nil {
		return err
	}

	_, err := f.waitReady()
	return err
}

// ReadData reads len(data) bytes starting at address in a single frame.
func (f *Flash) ReadData(address uint32, data []byte) error {
	if _, err := f.waitReady(); err != nil {
		return err
	}

	return f.transact(frame(opcodeReadData, address), nil, data)
}

// ProgramPage programs data at address. The range must lie within one
// 256 byte page. It returns as soon as the frame has been sent; the next
// operation waits for the program cycle to complete.
func (f *Flash) ProgramPage(address uint32, data []byte) error {
	if len(data) == 0 || pageCrossLength(address, PageSize) < len(data) {
		return ErrorPageBoundary
	}

	if err := f.prepareWrite(); err != nil {
		return err
	}

	return f.transact(frame(opcodePageProgram, address), data, nil)
}

// EraseSector erases the 4 KiB sector with the given number and waits for
// the erase to complete.
func (f *Flash) EraseSector(sector uint16) error {
	address := uint32(sector) * SectorSize

	if err := f.prepareWrite(); err != nil {
		return err
	}

	start := time.Now()
	if err := f.transact(frame(opcodeSectorErase, address), nil, nil); err != nil {
		return err
	}

	polls, err := f.waitReady()
	if err != nil {
		return err
	}

	f.log.Debug("sector erased", "sector", sector, "address", address, "polls", polls, "duration", time.Since(start))
	return nil
}

// EraseChip erases the whole array and waits for the erase to complete,
// which takes tens of seconds on real parts.
func (f *Flash) EraseChip() error {
	if err := f.prepareWrite(); err != nil {
		return err
	}

	start := time.Now()
	if err := f.transact([]byte{opcodeChipErase}, nil, nil); err != nil {
		return err
	}

	polls, err := f.waitReady()
	if err != nil {
		return err
	}

	f.log.Debug("chip erased", "polls", polls, "duration", time.Since(start))
	return nil
}

// Reset sends the enable-reset and reset commands as two separate frames and
// waits for the reset recovery time.
func (f *Flash) Reset() error {
	if err := f.transact([]byte{opcodeEnableReset}, nil, nil); err != nil {
		return err
	}
	if err := f.transact([]byte{opcodeReset}, nil, nil); err != nil {
		return err
	}

	if f.cfg.resetDelay > 0 {
		time.Sleep(f.cfg.resetDelay)
	}
	return nil
}

// Initialize resets the chip and checks that it reports the expected JEDEC
// id. Any difference is an error.
func (f *Flash) Initialize() error {
	if err := f.Reset(); err != nil {
		return err
	}

	id, err := f.Identify()
	if err != nil {
		return err
	}

	if id != f.cfg.expected {
		f.log.Warn("flash identity mismatch", "expected", f.cfg.expected.String(), "actual", id.String())
		return &IdentityMismatchError{Expected: f.cfg.expected, Actual: id}
	}

	part, _ := id.Part()
	f.log.Debug("flash initialized", "id", id.String(), "part", part.Name)
	return nil
}

func (f *Flash) read(offset uint32, data []byte) (int, error) {
	if f.cfg.maxTransfer > 0 && len(data) > f.cfg.maxTransfer {
		data = data[:f.cfg.maxTransfer]
	}

	if err := f.ReadData(offset, data); err != nil {
		return 0, err
	}

	return len(data), nil
}

// Read fills data from offset, splitting the request into frames of at most
// the configured maximum transfer size.
func (f *Flash) Read(offset uint32, data []byte) (int, error) {
	return completeIO(offset, data, f.read)
}

func (f *Flash) write(offset uint32, data []byte) (int, error) {
	/* Do not write over page boundary */
	maxLen := pageCrossLength(offset, PageSize)
	if len(data) > maxLen {
		data = data[:maxLen]
	}

	/* Programming 0xFF leaves the cell unchanged, skip it */
	skippedFront := 0
	for skippedFront < len(data) && data[skippedFront] == 0xFF {
		skippedFront++
	}

	skippedEnd := 0
	for skippedEnd < len(data)-skippedFront && data[len(data)-1-skippedEnd] == 0xFF {
		skippedEnd++
	}

	payload := data[skippedFront : len(data)-skippedEnd]
	if len(payload) == 0 {
		return len(data), nil
	}

	if err := f.ProgramPage(offset+uint32(skippedFront), payload); err != nil {
		return 0, err
	}

	return len(data), nil
}

// Write programs data at offset, one page program per page touched. The
// target range must have been erased.
func (f *Flash) Write(offset uint32, data []byte) (int, error) {
	n, err := completeIO(offset, data, f.write)
	if err != nil {
		return n, err
	}

	/* Leave the chip idle so a following read sees the new contents */
	_, err = f.waitReady()
	return n, err
}

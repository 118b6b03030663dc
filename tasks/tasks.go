package tasks

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/BertoldVdb/w25q64/image"
	"github.com/BertoldVdb/w25q64/spiflash"
)

var (
	ErrorVerify     = errors.New("verify failed")
	ErrorOutOfRange = errors.New("range exceeds the chip size")
)

type Tasks struct {
	flash spiflash.Device
	log   *slog.Logger

	/* Progress is called after each sector during erase, write and read */
	Progress func(step string, done int, total int)

	/* chipSize is learnt from the JEDEC id on first use */
	chipSize uint32
}

func New(flash spiflash.Device, logger *slog.Logger) *Tasks {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Tasks{
		flash: flash,
		log:   logger,
	}
}

func (t *Tasks) progress(step string, done int, total int) {
	if t.Progress != nil {
		t.Progress(step, done, total)
	}
}

// Identify returns the chip identity and, if known, its geometry.
func (t *Tasks) Identify() (spiflash.Identity, spiflash.Part, error) {
	id, err := t.flash.Identify()
	if err != nil {
		return id, spiflash.Part{}, err
	}

	part, ok := id.Part()
	if !ok {
		return id, part, fmt.Errorf("unsupported flash type: %v", id)
	}
	return id, part, nil
}

/* checkRange rejects accesses past the end of the chip, which would wrap
 * around to address 0 */
func (t *Tasks) checkRange(offset uint32, length uint32) error {
	if t.chipSize == 0 {
		_, part, err := t.Identify()
		if err != nil {
			return err
		}
		t.chipSize = part.ChipSize
	}

	if uint64(offset)+uint64(length) > uint64(t.chipSize) {
		return fmt.Errorf("%w: %06x+%x, chip has %x bytes", ErrorOutOfRange, offset, length, t.chipSize)
	}
	return nil
}

// EraseRange erases every sector touched by [offset, offset+length). Whole
// sectors are erased, so bytes outside the range in the first and last
// sector are lost too.
func (t *Tasks) EraseRange(offset uint32, length uint32) error {
	if length == 0 {
		return nil
	}
	if err := t.checkRange(offset, length); err != nil {
		return err
	}

	first := offset / spiflash.SectorSize
	last := (uint64(offset) + uint64(length) - 1) / spiflash.SectorSize
	if last > 0xFFFF {
		return fmt.Errorf("range %06x+%x exceeds the sector address space", offset, length)
	}

	total := int(last-uint64(first)) + 1
	for i := 0; i < total; i++ {
		if err := t.flash.EraseSector(uint16(first) + uint16(i)); err != nil {
			return err
		}
		t.progress("erase", i+1, total)
	}

	t.log.Info("erased", "first_sector", first, "sectors", total)
	return nil
}

func (t *Tasks) read(offset uint32, data []byte) error {
	total := (len(data) + spiflash.SectorSize - 1) / spiflash.SectorSize
	for i := 0; i < total; i++ {
		chunk := data[i*spiflash.SectorSize:]
		if len(chunk) > spiflash.SectorSize {
			chunk = chunk[:spiflash.SectorSize]
		}

		if _, err := t.flash.Read(offset+uint32(i*spiflash.SectorSize), chunk); err != nil {
			return err
		}
		t.progress("read", i+1, total)
	}
	return nil
}

// WriteData erases the covered sectors, programs data at offset and, when
// verify is set, reads it back and compares checksums. Data sharing the
// first or last sector with the range but lying outside it is erased and
// not restored.
func (t *Tasks) WriteData(offset uint32, data []byte, verify bool) error {
	if err := t.checkRange(offset, uint32(len(data))); err != nil {
		return err
	}
	if err := t.EraseRange(offset, uint32(len(data))); err != nil {
		return err
	}

	total := (len(data) + spiflash.SectorSize - 1) / spiflash.SectorSize
	for i := 0; i < total; i++ {
		chunk := data[i*spiflash.SectorSize:]
		if len(chunk) > spiflash.SectorSize {
			chunk = chunk[:spiflash.SectorSize]
		}

		if _, err := t.flash.Write(offset+uint32(i*spiflash.SectorSize), chunk); err != nil {
			return err
		}
		t.progress("write", i+1, total)
	}

	t.log.Info("written", "offset", offset, "length", len(data))

	if !verify {
		return nil
	}

	rb := make([]byte, len(data))
	if err := t.read(offset, rb); err != nil {
		return err
	}

	want, got := image.Checksum(data), image.Checksum(rb)
	if want != got {
		return fmt.Errorf("%w: crc %08x, read back %08x", ErrorVerify, want, got)
	}

	t.log.Info("verified", "crc", fmt.Sprintf("%08x", got))
	return nil
}

// WriteImage writes the payload of a dump image back to the address it was
// taken from.
func (t *Tasks) WriteImage(img []byte, verify bool) error {
	address, data, err := image.Extract(img)
	if err != nil {
		return err
	}

	return t.WriteData(address, data, verify)
}

// ReadData reads length bytes from offset.
func (t *Tasks) ReadData(offset uint32, length uint32) ([]byte, error) {
	if err := t.checkRange(offset, length); err != nil {
		return nil, err
	}

	data := make([]byte, length)
	if err := t.read(offset, data); err != nil {
		return nil, err
	}
	return data, nil
}

// ReadImage reads length bytes from offset into a dump image.
func (t *Tasks) ReadImage(offset uint32, length uint32) ([]byte, error) {
	data, err := t.ReadData(offset, length)
	if err != nil {
		return nil, err
	}

	return image.Build(offset, data), nil
}

// EraseChip erases the whole chip.
func (t *Tasks) EraseChip() error {
	if err := t.flash.EraseChip(); err != nil {
		return err
	}

	t.log.Info("chip erased")
	return nil
}

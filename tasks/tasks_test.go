package tasks

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BertoldVdb/w25q64/image"
	"github.com/BertoldVdb/w25q64/sim"
	"github.com/BertoldVdb/w25q64/spiflash"
)

func newTasks(t *testing.T) (*Tasks, *sim.Chip) {
	t.Helper()

	chip := sim.New()
	chip.BusyPolls = 2
	flash := spiflash.New(chip, spiflash.WithResetDelay(0), spiflash.WithMaxTransfer(1024))
	return New(flash, nil), chip
}

func TestIdentify(t *testing.T) {
	tk, _ := newTasks(t)

	id, part, err := tk.Identify()
	require.NoError(t, err)
	assert.Equal(t, spiflash.W25Q64, id)
	assert.Equal(t, "Winbond W25Q64", part.Name)
}

func TestEraseRange(t *testing.T) {
	tk, chip := newTasks(t)
	chip.Load(make([]byte, 5*spiflash.SectorSize))

	var steps int
	tk.Progress = func(step string, done int, total int) {
		assert.Equal(t, "erase", step)
		assert.Equal(t, 2, total)
		steps++
	}

	require.NoError(t, tk.EraseRange(0x1FFF, 2))
	assert.Equal(t, 2, steps)

	mem := chip.Memory()
	assert.Equal(t, byte(0x00), mem[0x0FFF])
	assert.Equal(t, byte(0xFF), mem[0x1000])
	assert.Equal(t, byte(0xFF), mem[0x2FFF])
	assert.Equal(t, byte(0x00), mem[0x3000])

	require.NoError(t, tk.EraseRange(0, 0))
	assert.Equal(t, 2, chip.Stats().SectorErases)
}

func TestWriteReadImage(t *testing.T) {
	tk, chip := newTasks(t)
	chip.Load(bytes.Repeat([]byte{0x5A}, 0x20000))

	data := make([]byte, 10000)
	_, err := rand.Read(data)
	require.NoError(t, err)

	img := image.Build(0x00A100, data)
	require.NoError(t, tk.WriteImage(img, true))

	mem := chip.Memory()
	assert.Equal(t, data, mem[0xA100:0xA100+len(data)])

	/* Untouched bytes in the erased sectors read as 0xFF */
	assert.Equal(t, byte(0xFF), mem[0xA000])
	assert.Equal(t, byte(0x5A), mem[0x9FFF])

	dump, err := tk.ReadImage(0x00A100, uint32(len(data)))
	require.NoError(t, err)
	assert.Equal(t, img, dump)
	assert.Zero(t, chip.Stats().BusyViolations)
}

func TestWriteImageRejectsCorruptImage(t *testing.T) {
	tk, chip := newTasks(t)

	img := image.Build(0, []byte{1, 2, 3})
	img[17]++

	require.ErrorIs(t, tk.WriteImage(img, false), image.ErrorInvalidCRC)
	assert.Zero(t, chip.Stats().SectorErases)
}

/* stuckBits forces bit 0 of every programmed byte to stay set */
type stuckBits struct {
	*sim.Chip
	programming bool
}

func (s *stuckBits) Transmit(p []byte) (int, error) {
	if len(p) > 0 && p[0] == 0x02 && len(p) == 4 {
		s.programming = true
		return s.Chip.Transmit(p)
	}
	if s.programming {
		q := make([]byte, len(p))
		for i, m := range p {
			q[i] = m | 1
		}
		return s.Chip.Transmit(q)
	}
	return s.Chip.Transmit(p)
}

func (s *stuckBits) Deselect() error {
	s.programming = false
	return s.Chip.Deselect()
}

func TestWriteDataVerifyFailure(t *testing.T) {
	bus := &stuckBits{Chip: sim.New()}
	tk := New(spiflash.New(bus), nil)

	err := tk.WriteData(0, []byte{0x10, 0x20, 0x30}, true)
	require.ErrorIs(t, err, ErrorVerify)

	require.NoError(t, tk.WriteData(0, []byte{0x11, 0x21, 0x31}, true))
}

func TestEraseChip(t *testing.T) {
	tk, chip := newTasks(t)
	chip.Load(make([]byte, 64))

	require.NoError(t, tk.EraseChip())
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 64), chip.Memory()[:64])
}

func TestRangePastChipEnd(t *testing.T) {
	tk, chip := newTasks(t)

	original := bytes.Repeat([]byte{0x11}, 16)
	require.NoError(t, tk.WriteData(0, original, true))

	/* 0x800000 aliases address 0 on an 8 MiB part */
	require.ErrorIs(t, tk.WriteData(0x800000, []byte{0xAB, 0xCD}, true), ErrorOutOfRange)
	require.ErrorIs(t, tk.WriteData(0x7FFFFF, []byte{0xAB, 0xCD}, false), ErrorOutOfRange)
	require.ErrorIs(t, tk.EraseRange(0x7FF000, spiflash.SectorSize+1), ErrorOutOfRange)

	_, err := tk.ReadData(0x7FFFFF, 2)
	require.ErrorIs(t, err, ErrorOutOfRange)
	_, err = tk.ReadImage(0xFFFFFFFF, 1)
	require.ErrorIs(t, err, ErrorOutOfRange)

	assert.Equal(t, original, chip.Memory()[:16])
	assert.Equal(t, 1, chip.Stats().SectorErases)

	/* The last byte is still reachable */
	require.NoError(t, tk.WriteData(0x7FFFFF, []byte{0x42}, true))
	last, err := tk.ReadData(0x7FFFFF, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42}, last)
}

func TestRangeUnknownPart(t *testing.T) {
	tk := New(spiflash.New(sim.NewWithID([3]byte{0x01, 0x02, 0x17})), nil)

	_, err := tk.ReadData(0, 1)
	require.Error(t, err)
}

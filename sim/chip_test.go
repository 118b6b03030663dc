package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(t *testing.T, c *Chip, tx []byte, rx int) []byte {
	t.Helper()

	require.NoError(t, c.Select())
	n, err := c.Transmit(tx)
	require.NoError(t, err)
	require.Equal(t, len(tx), n)

	var out []byte
	if rx > 0 {
		out = make([]byte, rx)
		n, err = c.Receive(out, 0xFF)
		require.NoError(t, err)
		require.Equal(t, rx, n)
	}
	require.NoError(t, c.Deselect())
	return out
}

func TestJEDECID(t *testing.T) {
	c := New()
	assert.Equal(t, []byte{0xEF, 0x40, 0x17}, session(t, c, []byte{0x9F}, 3))
	assert.Equal(t, 8*1024*1024, c.Size())
}

func TestProgramRequiresWriteEnable(t *testing.T) {
	c := New()

	session(t, c, []byte{0x02, 0x00, 0x00, 0x10, 0x12}, 0)
	assert.Equal(t, byte(0xFF), c.Memory()[0x10])
	assert.Equal(t, 1, c.Stats().IgnoredWrites)

	session(t, c, []byte{0x06}, 0)
	assert.Equal(t, []byte{0x02}, session(t, c, []byte{0x05}, 1))

	session(t, c, []byte{0x02, 0x00, 0x00, 0x10, 0x12}, 0)
	assert.Equal(t, byte(0x12), c.Memory()[0x10])

	/* Latch clears when the program completes */
	assert.Equal(t, []byte{0x00}, session(t, c, []byte{0x05}, 1))
}

func TestProgramOnlyClearsBits(t *testing.T) {
	c := New()

	session(t, c, []byte{0x06}, 0)
	session(t, c, []byte{0x02, 0x00, 0x00, 0x00, 0xF0}, 0)
	session(t, c, []byte{0x06}, 0)
	session(t, c, []byte{0x02, 0x00, 0x00, 0x00, 0x3C}, 0)

	assert.Equal(t, byte(0x30), c.Memory()[0])
}

func TestProgramWrapsWithinPage(t *testing.T) {
	c := New()

	session(t, c, []byte{0x06}, 0)
	session(t, c, []byte{0x02, 0x00, 0x01, 0xFF, 0x11, 0x22}, 0)

	mem := c.Memory()
	assert.Equal(t, byte(0x11), mem[0x1FF])
	assert.Equal(t, byte(0x22), mem[0x100])
	assert.Equal(t, byte(0xFF), mem[0x200])
}

func TestBusyPollsAndViolations(t *testing.T) {
	c := New()
	c.BusyPolls = 2

	session(t, c, []byte{0x06}, 0)
	session(t, c, []byte{0xC7}, 0)

	/* Read while busy is ignored */
	assert.Equal(t, []byte{0xFF}, session(t, c, []byte{0x03, 0, 0, 0}, 1))
	assert.Equal(t, 1, c.Stats().BusyViolations)

	assert.Equal(t, []byte{0x01}, session(t, c, []byte{0x05}, 1))
	assert.Equal(t, []byte{0x01}, session(t, c, []byte{0x05}, 1))
	assert.Equal(t, []byte{0x00}, session(t, c, []byte{0x05}, 1))
	assert.Equal(t, 1, c.Stats().ChipErases)
}

func TestSectorErase(t *testing.T) {
	c := New()
	data := make([]byte, 3*sectorSize)
	c.Load(data)

	session(t, c, []byte{0x06}, 0)
	session(t, c, []byte{0x20, 0x00, 0x10, 0x00}, 0)

	mem := c.Memory()
	assert.Equal(t, byte(0x00), mem[0x0FFF])
	assert.Equal(t, byte(0xFF), mem[0x1000])
	assert.Equal(t, byte(0xFF), mem[0x1FFF])
	assert.Equal(t, byte(0x00), mem[0x2000])
}

func TestResetNeedsEnable(t *testing.T) {
	c := New()

	session(t, c, []byte{0x99}, 0)
	assert.Equal(t, 0, c.Stats().Resets)

	session(t, c, []byte{0x66}, 0)
	session(t, c, []byte{0x9F}, 3)
	session(t, c, []byte{0x99}, 0)
	assert.Equal(t, 0, c.Stats().Resets)

	session(t, c, []byte{0x06}, 0)
	session(t, c, []byte{0x66}, 0)
	session(t, c, []byte{0x99}, 0)
	assert.Equal(t, 1, c.Stats().Resets)

	s1, _ := c.Status()
	assert.Equal(t, uint8(0), s1&statusWriteEnable)
}

func TestWriteStatus(t *testing.T) {
	c := New()

	session(t, c, []byte{0x06}, 0)
	session(t, c, []byte{0x01, 0xFF, 0x02}, 0)

	s1, s2 := c.Status()
	assert.Equal(t, uint8(0xFC), s1)
	assert.Equal(t, uint8(0x02), s2)
	assert.Equal(t, []byte{0x02}, session(t, c, []byte{0x35}, 1))
}

func TestShortTransfers(t *testing.T) {
	c := New()
	c.ShortReceive = true

	require.NoError(t, c.Select())
	_, err := c.Transmit([]byte{0x9F})
	require.NoError(t, err)

	buf := make([]byte, 3)
	n, err := c.Receive(buf, 0xAA)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0xEF, 0x40, 0xAA}, buf)
	require.NoError(t, c.Deselect())

	_, err = c.Transmit([]byte{0x05})
	assert.ErrorIs(t, err, ErrorNotSelected)
}

func TestLoadSaveFile(t *testing.T) {
	path := t.TempDir() + "/flash.bin"

	c := New()
	c.Load([]byte{1, 2, 3})
	require.NoError(t, c.SaveFile(path))

	d := New()
	require.NoError(t, d.LoadFile(path))
	assert.Equal(t, []byte{1, 2, 3, 0xFF}, d.Memory()[:4])
}

func TestReceiveWithoutCommand(t *testing.T) {
	c := New()

	require.NoError(t, c.Select())
	buf := make([]byte, 2)
	n, err := c.Receive(buf, 0x00)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0xFF, 0xFF}, buf)
	require.NoError(t, c.Deselect())

	assert.Equal(t, []byte{0xEF, 0x40, 0x17}, session(t, c, []byte{0x9F}, 3))
}

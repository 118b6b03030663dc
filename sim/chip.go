// Package sim is an in-memory model of a W25Q-series flash chip that speaks
// the same command set over the spiflash.Bus contract.
//
// The model keeps the status register semantics that matter to a driver:
// write commands are ignored unless the write enable latch is set, the latch
// clears when a write completes, and after each program or erase the chip
// reports WIP for BusyPolls status reads. Commands sent while WIP is set are
// ignored and counted in Stats.BusyViolations.
package sim

import (
	"errors"
	"os"
	"sync"
)

const (
	statusBusy        = 0x01
	statusWriteEnable = 0x02

	/* Status register 1 bits the host may write: BP0-2, TB, SEC, SRP0 */
	status1Writable = 0xFC

	pageSize   = 256
	sectorSize = 4096
)

var (
	ErrorNotSelected = errors.New("chip is not selected")
	ErrorSelected    = errors.New("chip is already selected")
)

type Stats struct {
	Sessions       int
	StatusReads    int
	Programs       int
	SectorErases   int
	ChipErases     int
	StatusWrites   int
	Resets         int
	IgnoredWrites  int
	BusyViolations int
}

type Chip struct {
	/* ID is the JEDEC id returned by 0x9F */
	ID [3]byte

	/* BusyPolls is the number of status reads that report WIP after a
	 * program, erase or status register write */
	BusyPolls int

	/* Fault injection: report one byte less than requested */
	ShortTransmit bool
	ShortReceive  bool

	mu sync.Mutex

	mem     []byte
	status1 uint8
	status2 uint8

	selected     bool
	cmd          []byte
	rxOffset     int
	busy         int
	resetEnabled bool
	ignored      bool

	stats Stats
}

// New returns an erased W25Q64 (EF 40 17, 8 MiB).
func New() *Chip {
	return NewWithID([3]byte{0xEF, 0x40, 0x17})
}

// NewWithID returns an erased chip whose size follows the capacity byte of
// the JEDEC id (2^capacity bytes).
func NewWithID(id [3]byte) *Chip {
	size := 1 << id[2]
	if id[2] < 16 || id[2] > 26 {
		size = 8 * 1024 * 1024
	}

	c := &Chip{
		ID:  id,
		mem: make([]byte, size),
	}
	for i := range c.mem {
		c.mem[i] = 0xFF
	}
	return c
}

func (c *Chip) Size() int {
	return len(c.mem)
}

func (c *Chip) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Chip) Status() (uint8, uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status1, c.status2
}

// Memory returns a copy of the array.
func (c *Chip) Memory() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]byte, len(c.mem))
	copy(out, c.mem)
	return out
}

// Load replaces the array contents. Bytes beyond data read as erased.
func (c *Chip) Load(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := copy(c.mem, data)
	for i := n; i < len(c.mem); i++ {
		c.mem[i] = 0xFF
	}
}

func (c *Chip) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c.Load(data)
	return nil
}

func (c *Chip) SaveFile(path string) error {
	return os.WriteFile(path, c.Memory(), 0644)
}

func (c *Chip) Select() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected {
		return ErrorSelected
	}

	c.selected = true
	c.cmd = c.cmd[:0]
	c.rxOffset = 0
	c.ignored = false
	c.stats.Sessions++
	return nil
}

func (c *Chip) Transmit(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.selected {
		return 0, ErrorNotSelected
	}

	n := len(p)
	if c.ShortTransmit && n > 0 {
		n--
	}

	first := len(c.cmd) == 0
	c.cmd = append(c.cmd, p[:n]...)
	if first && len(c.cmd) > 0 {
		c.startCommand(c.cmd[0])
	}
	return n, nil
}

func (c *Chip) Receive(p []byte, fill byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.selected {
		return 0, ErrorNotSelected
	}

	n := len(p)
	if c.ShortReceive && n > 0 {
		n--
	}

	for i := 0; i < n; i++ {
		p[i] = c.output(c.rxOffset)
		c.rxOffset++
	}
	for i := n; i < len(p); i++ {
		p[i] = fill
	}
	return n, nil
}

func (c *Chip) Deselect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.selected {
		return ErrorNotSelected
	}
	c.selected = false

	if len(c.cmd) == 0 || c.ignored {
		return nil
	}
	c.execute(c.cmd)
	return nil
}

/* startCommand runs when the opcode byte arrives */
func (c *Chip) startCommand(op byte) {
	if op != 0x99 && op != 0x05 && op != 0x35 {
		/* Any command between enable reset and reset cancels the sequence */
		defer func() { c.resetEnabled = c.resetEnabled && op == 0x66 }()
	}

	switch op {
	case 0x05:
		c.stats.StatusReads++
		return
	case 0x35, 0x66, 0x99:
		return
	}

	if c.busy > 0 {
		c.stats.BusyViolations++
		c.ignored = true
	}
}

func (c *Chip) output(offset int) byte {
	/* No opcode yet: the output line floats high */
	if c.ignored || len(c.cmd) == 0 {
		return 0xFF
	}

	switch c.cmd[0] {
	case 0x9F:
		if offset < len(c.ID) {
			return c.ID[offset]
		}
		return 0x00

	case 0x05:
		if offset > 0 {
			return c.status1
		}
		if c.busy > 0 {
			c.busy--
			return c.status1 | statusBusy
		}
		return c.status1

	case 0x35:
		return c.status2

	case 0x03:
		if len(c.cmd) < 4 {
			return 0xFF
		}
		return c.mem[(c.address()+offset)%len(c.mem)]
	}

	return 0xFF
}

func (c *Chip) address() int {
	return int(c.cmd[1])<<16 | int(c.cmd[2])<<8 | int(c.cmd[3])
}

func (c *Chip) execute(cmd []byte) {
	op := cmd[0]

	switch op {
	case 0x06:
		c.status1 |= statusWriteEnable
		return
	case 0x04:
		c.status1 &^= statusWriteEnable
		return
	case 0x66:
		c.resetEnabled = true
		return
	case 0x99:
		if c.resetEnabled {
			c.reset()
		}
		return
	}

	write := op == 0x01 || op == 0x02 || op == 0x20 || op == 0xC7 || op == 0x60
	if !write {
		return
	}

	if c.status1&statusWriteEnable == 0 {
		c.stats.IgnoredWrites++
		return
	}

	switch op {
	case 0x01:
		if len(cmd) < 2 {
			return
		}
		c.status1 = c.status1&^status1Writable | cmd[1]&status1Writable
		if len(cmd) > 2 {
			c.status2 = cmd[2]
		}
		c.stats.StatusWrites++

	case 0x02:
		if len(cmd) < 5 {
			return
		}
		c.program(c.address(), cmd[4:])
		c.stats.Programs++

	case 0x20:
		if len(cmd) != 4 {
			return
		}
		start := (c.address() &^ (sectorSize - 1)) % len(c.mem)
		for i := start; i < start+sectorSize; i++ {
			c.mem[i] = 0xFF
		}
		c.stats.SectorErases++

	case 0xC7, 0x60:
		if len(cmd) != 1 {
			return
		}
		for i := range c.mem {
			c.mem[i] = 0xFF
		}
		c.stats.ChipErases++
	}

	c.status1 &^= statusWriteEnable
	c.busy = c.BusyPolls
}

/* program clears bits only and wraps at the end of the page */
func (c *Chip) program(address int, data []byte) {
	if len(data) > pageSize {
		data = data[len(data)-pageSize:]
	}

	base := (address &^ (pageSize - 1)) % len(c.mem)
	for i, m := range data {
		c.mem[base+(address+i)%pageSize] &= m
	}
}

func (c *Chip) reset() {
	c.status1 &^= statusWriteEnable | statusBusy
	c.busy = 0
	c.resetEnabled = false
	c.stats.Resets++
}

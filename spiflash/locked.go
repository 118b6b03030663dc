package spiflash

import "sync"

// Device is the operation set shared by Flash and Locked.
type Device interface {
	Identify() (Identity, error)
	ReadStatus1() (StatusRegister, error)
	ReadStatus2() (uint8, error)
	WriteEnable() error
	WriteDisable() error
	WriteStatus(reg1 uint8, reg2 uint8) error

	ReadData(address uint32, data []byte) error
	ProgramPage(address uint32, data []byte) error
	EraseSector(sector uint16) error
	EraseChip() error

	Read(offset uint32, data []byte) (int, error)
	Write(offset uint32, data []byte) (int, error)

	WaitReady() error
	Reset() error
	Initialize() error
}

var (
	_ Device = (*Flash)(nil)
	_ Device = (*Locked)(nil)
)

// Locked serializes whole operations on a Flash, including the status polls
// that gate them, so a write enable can never be separated from the command
// it was issued for.
type Locked struct {
	mu sync.Mutex
	f  *Flash
}

func NewLocked(f *Flash) *Locked {
	return &Locked{f: f}
}

// Do runs fn with exclusive access to the chip.
func (l *Locked) Do(fn func(f *Flash) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.f)
}

func (l *Locked) Identify() (Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Identify()
}

func (l *Locked) ReadStatus1() (StatusRegister, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.ReadStatus1()
}

func (l *Locked) ReadStatus2() (uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.ReadStatus2()
}

func (l *Locked) WriteEnable() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.WriteEnable()
}

func (l *Locked) WriteDisable() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.WriteDisable()
}

func (l *Locked) WriteStatus(reg1 uint8, reg2 uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.WriteStatus(reg1, reg2)
}

func (l *Locked) ReadData(address uint32, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.ReadData(address, data)
}

func (l *Locked) ProgramPage(address uint32, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.ProgramPage(address, data)
}

func (l *Locked) EraseSector(sector uint16) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.EraseSector(sector)
}

func (l *Locked) EraseChip() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.EraseChip()
}

func (l *Locked) Read(offset uint32, data []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Read(offset, data)
}

func (l *Locked) Write(offset uint32, data []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Write(offset, data)
}

func (l *Locked) WaitReady() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.WaitReady()
}

func (l *Locked) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Reset()
}

func (l *Locked) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Initialize()
}

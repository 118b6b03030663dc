package spiflash

import "fmt"

const (
	PageSize   = 256
	SectorSize = 4096
)

const (
	opcodeWriteStatus  = 0x01
	opcodePageProgram  = 0x02
	opcodeReadData     = 0x03
	opcodeWriteDisable = 0x04
	opcodeReadStatus1  = 0x05
	opcodeWriteEnable  = 0x06
	opcodeSectorErase  = 0x20
	opcodeReadStatus2  = 0x35
	opcodeEnableReset  = 0x66
	opcodeReset        = 0x99
	opcodeJEDECID      = 0x9F
	opcodeChipErase    = 0xC7
)

// OpcodeName returns the mnemonic of a command opcode, or "" if unknown.
func OpcodeName(op byte) string {
	switch op {
	case opcodeWriteStatus:
		return "WRSR"
	case opcodePageProgram:
		return "PP"
	case opcodeReadData:
		return "READ"
	case opcodeWriteDisable:
		return "WRDI"
	case opcodeReadStatus1:
		return "RDSR1"
	case opcodeWriteEnable:
		return "WREN"
	case opcodeSectorErase:
		return "SE"
	case opcodeReadStatus2:
		return "RDSR2"
	case opcodeEnableReset:
		return "RSTEN"
	case opcodeReset:
		return "RST"
	case opcodeJEDECID:
		return "JEDEC"
	case opcodeChipErase:
		return "CE"
	}
	return ""
}

// IsWriteCommand reports whether op only takes effect with the write enable
// latch set.
func IsWriteCommand(op byte) bool {
	switch op {
	case opcodeWriteStatus, opcodePageProgram, opcodeSectorErase, opcodeChipErase:
		return true
	}
	return false
}

// StatusRegister is the value of status register 1.
type StatusRegister uint8

const (
	StatusBusy        StatusRegister = 1 << 0
	StatusWriteEnable StatusRegister = 1 << 1
)

func (s StatusRegister) Busy() bool {
	return s&StatusBusy != 0
}

func (s StatusRegister) WriteEnabled() bool {
	return s&StatusWriteEnable != 0
}

func (s StatusRegister) String() string {
	return fmt.Sprintf("%02x (WIP=%t WEL=%t)", uint8(s), s.Busy(), s.WriteEnabled())
}

// Identity is the three byte JEDEC identifier reported by opcode 0x9F.
type Identity struct {
	Manufacturer uint8
	MemoryType   uint8
	Capacity     uint8
}

// W25Q64 is the identity Initialize expects unless configured otherwise.
var W25Q64 = Identity{Manufacturer: 0xEF, MemoryType: 0x40, Capacity: 0x17}

func (i Identity) String() string {
	return fmt.Sprintf("%02x%02x%02x", i.Manufacturer, i.MemoryType, i.Capacity)
}

func (i Identity) id() uint32 {
	return uint32(i.Manufacturer)<<16 | uint32(i.MemoryType)<<8 | uint32(i.Capacity)
}

// Part returns the table entry for this identity.
func (i Identity) Part() (Part, bool) {
	return partLookup(i.id())
}

type Part struct {
	ID   uint32
	Name string

	PageSize   uint32
	SectorSize uint32
	ChipSize   uint32
}

var parts = []Part{
	{ID: 0xef4014, Name: "Winbond W25Q80", PageSize: 256, SectorSize: 4096, ChipSize: 1024 * 1024},
	{ID: 0xef4015, Name: "Winbond W25Q16", PageSize: 256, SectorSize: 4096, ChipSize: 2 * 1024 * 1024},
	{ID: 0xef4016, Name: "Winbond W25Q32", PageSize: 256, SectorSize: 4096, ChipSize: 4 * 1024 * 1024},
	{ID: 0xef4017, Name: "Winbond W25Q64", PageSize: 256, SectorSize: 4096, ChipSize: 8 * 1024 * 1024},
	{ID: 0xef4018, Name: "Winbond W25Q128", PageSize: 256, SectorSize: 4096, ChipSize: 16 * 1024 * 1024},
	{ID: 0xef3012, Name: "Winbond W25X20", PageSize: 256, SectorSize: 4096, ChipSize: 256 * 1024},
}

func partLookup(id uint32) (Part, bool) {
	for _, m := range parts {
		if m.ID == id&0xffffff {
			return m, true
		}
	}
	return Part{ID: id}, false
}

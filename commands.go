package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/BertoldVdb/w25q64/image"
	"github.com/BertoldVdb/w25q64/spiflash"
	"github.com/BertoldVdb/w25q64/trace"
)

type command struct {
	name        string
	args        string
	help        string
	minArgs     int
	needsDevice bool
	run         func(a *app, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"id", "", "print the JEDEC id", 0, true, cmdID},
		{"init", "", "reset the chip and check its identity", 0, true, cmdInit},
		{"status", "", "print both status registers", 0, true, cmdStatus},
		{"read", "<addr> <len> [file]", "read bytes (hex dump without file)", 2, true, cmdRead},
		{"write", "<addr> <file>", "erase, program and verify a raw file; the rest of a partly covered sector is erased", 2, true, cmdWrite},
		{"erase-sector", "<n>...", "erase 4 KiB sectors", 1, true, cmdEraseSector},
		{"erase-chip", "", "erase the whole chip", 0, true, cmdEraseChip},
		{"write-status", "<sr1> <sr2>", "write the status registers", 2, true, cmdWriteStatus},
		{"dump", "<addr> <len> <file>", "save a CRC protected image", 3, true, cmdDump},
		{"flash", "<file>", "write an image back where it came from", 1, true, cmdFlash},
		{"trace", "<file>", "print a bus capture", 1, false, cmdTrace},
	}
}

func findCommand(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

func parseNumber(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return v, nil
}

func parseRange(addr string, length string) (uint32, uint32, error) {
	a, err := parseNumber(addr, 32)
	if err != nil {
		return 0, 0, err
	}
	l, err := parseNumber(length, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(a), uint32(l), nil
}

func cmdID(a *app, args []string) error {
	id, part, err := a.tasks.Identify()
	fmt.Println("JEDEC id:", id)
	if err != nil {
		return err
	}
	fmt.Printf("Part: %s, %d bytes, %d byte sectors, %d byte pages\n", part.Name, part.ChipSize, part.SectorSize, part.PageSize)
	return nil
}

func cmdInit(a *app, args []string) error {
	err := a.flash.Initialize()

	var mismatch *spiflash.IdentityMismatchError
	if errors.As(err, &mismatch) {
		fmt.Printf("Identity mismatch: expected %v, found %v\n", mismatch.Expected, mismatch.Actual)
		return err
	} else if err != nil {
		return err
	}

	fmt.Println("Chip ready")
	return nil
}

func cmdStatus(a *app, args []string) error {
	s1, err := a.flash.ReadStatus1()
	if err != nil {
		return err
	}
	s2, err := a.flash.ReadStatus2()
	if err != nil {
		return err
	}

	fmt.Println("Status 1:", s1)
	fmt.Printf("Status 2: %02x\n", s2)
	return nil
}

func cmdRead(a *app, args []string) error {
	addr, length, err := parseRange(args[0], args[1])
	if err != nil {
		return err
	}

	data, err := a.tasks.ReadData(addr, length)
	if err != nil {
		return err
	}

	if len(args) > 2 {
		return os.WriteFile(args[2], data, 0644)
	}

	/* Offsets in the dump are relative to addr */
	fmt.Printf("%06x:\n", addr)
	fmt.Print(hex.Dump(data))
	return nil
}

func cmdWrite(a *app, args []string) error {
	addr, err := parseNumber(args[0], 32)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	if err := a.tasks.WriteData(uint32(addr), data, a.verify); err != nil {
		return err
	}

	fmt.Printf("Wrote %d bytes at %06x (crc32 %08x)\n", len(data), addr, image.Checksum(data))
	return nil
}

func cmdEraseSector(a *app, args []string) error {
	for _, arg := range args {
		n, err := parseNumber(arg, 16)
		if err != nil {
			return err
		}
		if err := a.tasks.EraseRange(uint32(n)*spiflash.SectorSize, spiflash.SectorSize); err != nil {
			return err
		}
	}
	return nil
}

func cmdEraseChip(a *app, args []string) error {
	return a.tasks.EraseChip()
}

func cmdWriteStatus(a *app, args []string) error {
	r1, err := parseNumber(args[0], 8)
	if err != nil {
		return err
	}
	r2, err := parseNumber(args[1], 8)
	if err != nil {
		return err
	}

	return a.flash.WriteStatus(uint8(r1), uint8(r2))
}

func cmdDump(a *app, args []string) error {
	addr, length, err := parseRange(args[0], args[1])
	if err != nil {
		return err
	}

	img, err := a.tasks.ReadImage(addr, length)
	if err != nil {
		return err
	}

	return os.WriteFile(args[2], img, 0644)
}

func cmdFlash(a *app, args []string) error {
	img, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	return a.tasks.WriteImage(img, a.verify)
}

func cmdTrace(a *app, args []string) error {
	events, err := trace.ReadFile(args[0])
	for _, e := range events {
		fmt.Println(e)
	}
	return err
}

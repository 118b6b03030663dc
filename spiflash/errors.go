package spiflash

import (
	"errors"
	"fmt"
)

var (
	ErrorTransaction      = errors.New("SPI transaction length mismatch")
	ErrorIdentityMismatch = errors.New("unexpected flash identity")
	ErrorBusy             = errors.New("flash did not become ready")
	ErrorPageBoundary     = errors.New("program request crosses page boundary")
)

// IdentityMismatchError is returned by Initialize when the chip reports a
// JEDEC id other than the expected one.
type IdentityMismatchError struct {
	Expected Identity
	Actual   Identity
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("%v: expected %v, got %v", ErrorIdentityMismatch, e.Expected, e.Actual)
}

func (e *IdentityMismatchError) Unwrap() error {
	return ErrorIdentityMismatch
}

func lengthError(op byte, dir string, want int, got int) error {
	return fmt.Errorf("%w: %02x %s %d of %d bytes", ErrorTransaction, op, dir, got, want)
}

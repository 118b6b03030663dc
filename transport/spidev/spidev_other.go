//go:build !linux

package spidev

import "errors"

type Bus struct{}

func Open(dev string, cfg Config) (*Bus, error) {
	return nil, errors.New("spidev: only supported on Linux")
}

func (b *Bus) Close() error                          { return nil }
func (b *Bus) Select() error                         { return ErrorSelected }
func (b *Bus) Deselect() error                       { return ErrorNotSelected }
func (b *Bus) Transmit(p []byte) (int, error)        { return 0, ErrorNotSelected }
func (b *Bus) Receive(p []byte, f byte) (int, error) { return 0, ErrorNotSelected }

// Package spidev drives the flash through a Linux spidev node.
//
// spidev has no direct chip select control. Each Transmit and Receive is
// sent as its own message with cs_change set on its only transfer, which
// leaves the chip selected after the message completes; Deselect sends an
// empty transfer without cs_change to release it.
package spidev

import "errors"

var (
	ErrorNotSelected = errors.New("spidev: transfer outside a session")
	ErrorSelected    = errors.New("spidev: session already open")
)

type Config struct {
	SpeedHz uint32
	Mode    uint8
}

package trace

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/BertoldVdb/w25q64/spiflash"
)

// Event is one chip select session.
type Event struct {
	Timestamp time.Time     `cbor:"1,keyasint"`
	Seq       uint64        `cbor:"2,keyasint"`
	Opcode    uint8         `cbor:"3,keyasint"`
	Tx        []byte        `cbor:"4,keyasint,omitempty"`
	Rx        []byte        `cbor:"5,keyasint,omitempty"`
	TxLen     int           `cbor:"6,keyasint"`
	RxLen     int           `cbor:"7,keyasint"`
	Duration  time.Duration `cbor:"8,keyasint"`
	Error     string        `cbor:"9,keyasint,omitempty"`
}

// Command returns the mnemonic for the opcode.
func (e Event) Command() string {
	if name := spiflash.OpcodeName(e.Opcode); name != "" {
		return name
	}
	return fmt.Sprintf("0x%02x", e.Opcode)
}

// Truncated reports whether the captured data is shorter than the transfer.
func (e Event) Truncated() bool {
	return len(e.Tx) < e.TxLen || len(e.Rx) < e.RxLen
}

func (e Event) String() string {
	s := fmt.Sprintf("%6d %s %-5s tx=%s", e.Seq, e.Timestamp.Format("15:04:05.000000"), e.Command(), hex.EncodeToString(e.Tx))
	if e.RxLen > 0 {
		s += " rx=" + hex.EncodeToString(e.Rx)
	}
	if e.Truncated() {
		s += fmt.Sprintf(" (%d/%d bytes)", e.TxLen, e.RxLen)
	}
	if e.Error != "" {
		s += " error=" + e.Error
	}
	return s
}

package image

import (
	"encoding/binary"

	"github.com/snksoft/crc"
)

var crcTable *crc.Table

func init() {
	params := *crc.CRC32
	crcTable = crc.NewTable(&params)
}

// Checksum returns the CRC-32 (IEEE) of data.
func Checksum(data []byte) uint32 {
	h := crc.NewHashWithTable(crcTable)
	h.Update(data)
	return h.CRC32()
}

func crcWriteCheck(slice []byte, value uint32, doWrite bool) bool {
	if len(slice) < 4 {
		panic("slice length invalid")
	}

	orig := binary.BigEndian.Uint32(slice)
	if doWrite {
		binary.BigEndian.PutUint32(slice, value)
	}
	return orig == value
}

func crcCalculateAndWriteCheck(block []byte, doWrite bool) bool {
	crc := Checksum(block[:len(block)-4])

	return crcWriteCheck(block[len(block)-4:], crc, doWrite)
}

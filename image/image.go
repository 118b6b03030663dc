// Package image implements the dump file format used to move flash contents
// between the chip and the host.
//
// An image is a 16 byte header, the payload and a CRC-32 of everything
// before it:
//
//	0  "W25I"
//	4  version (1)
//	5  reserved, zero
//	8  flash address of the first payload byte, big endian
//	12 payload length, big endian
//	16 payload
//	.. CRC-32 (IEEE), big endian
package image

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	headerSize  = 16
	trailerSize = 4
	version     = 1
)

var magic = []byte("W25I")

var (
	ErrorInvalidLength = errors.New("image length not valid")
	ErrorInvalidHeader = errors.New("header is not valid")
	ErrorInvalidCRC    = errors.New("CRC is not valid")
)

func makeHeader(img []byte, address uint32, length uint32) {
	copy(img, magic)
	img[4] = version
	binary.BigEndian.PutUint32(img[8:], address)
	binary.BigEndian.PutUint32(img[12:], length)
}

func Validate(image []byte) error {
	if len(image) < headerSize+trailerSize {
		return ErrorInvalidLength
	}

	if !bytes.Equal(image[:len(magic)], magic) || image[4] != version {
		return ErrorInvalidHeader
	}

	length := binary.BigEndian.Uint32(image[12:])
	if uint64(len(image)) != uint64(headerSize)+uint64(length)+trailerSize {
		return ErrorInvalidLength
	}

	if !crcCalculateAndWriteCheck(image, false) {
		return ErrorInvalidCRC
	}

	return nil
}

// Build wraps data taken from flash address into an image.
func Build(address uint32, data []byte) []byte {
	img := make([]byte, headerSize+len(data)+trailerSize)

	makeHeader(img, address, uint32(len(data)))
	copy(img[headerSize:], data)

	crcCalculateAndWriteCheck(img, true)
	return img
}

// Extract validates an image and returns its flash address and payload.
// The payload aliases the image buffer.
func Extract(image []byte) (uint32, []byte, error) {
	if err := Validate(image); err != nil {
		return 0, nil, err
	}

	address := binary.BigEndian.Uint32(image[8:])
	return address, image[headerSize : len(image)-trailerSize], nil
}

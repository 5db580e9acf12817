package flash

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// ErrInvalidLength is returned by the encoders for payloads they cannot frame
var ErrInvalidLength = errors.New("invalid frame payload length")

// Checksum will create a bootloader-compatible XOR checksum of the data
func Checksum(bs []byte) byte {
	var s byte
	for _, b := range bs {
		s ^= b
	}
	return s
}

// EncodeCommand returns the opcode followed by its complement. The two
// bytes always XOR to 0xff.
func EncodeCommand(op byte) []byte {
	return []byte{op, 0xff ^ op}
}

// EncodeChecked returns the payload with its XOR checksum appended
func EncodeChecked(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrInvalidLength
	}
	frame := make([]byte, len(payload), len(payload)+1)
	copy(frame, payload)
	return append(frame, Checksum(payload)), nil
}

// EncodeAddress returns addr big-endian followed by its checksum
func EncodeAddress(addr uint32) []byte {
	frame := make([]byte, 5)
	binary.BigEndian.PutUint32(frame, addr)
	frame[4] = Checksum(frame[:4])
	return frame
}

// EncodeWritePage frames up to one page of data as [N-1, data..., checksum]
// where the checksum covers the length byte and the data
func EncodeWritePage(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data) > PageSize {
		return nil, errors.Wrapf(ErrInvalidLength, "write page of %d bytes", len(data))
	}
	frame := make([]byte, 0, len(data)+2)
	frame = append(frame, byte(len(data)-1))
	frame = append(frame, data...)
	return append(frame, Checksum(frame)), nil
}

// pageCount returns how many pages of size are needed for n bytes
func pageCount[T constraints.Integer](n, size T) T {
	return (n + size - 1) / size
}

// min will return the minimum of the two values
func min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

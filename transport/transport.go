// Package transport provides the byte buses a bootloader can be reached
// over: I2C adapters, a UART adapter and the GPIO bus recovery sequence.
package transport

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrDeviceAbsent is reported when nothing acknowledges the addressed
// device. It is expected right after a device is told to reset.
var ErrDeviceAbsent = errors.New("no device present at address")

var ErrTimeout = errors.New("timed out reading from bus")
var ErrClosed = errors.New("bus is closed")

// Transport is a half-duplex, single-master bus doing addressed writes and
// reads. Each call either delivers every byte or fails.
type Transport interface {
	Write(addr uint8, bs []byte) error
	Read(addr uint8, n int) ([]byte, error)
}

// Scanner is implemented by transports that can tell whether an address
// is currently answering.
type Scanner interface {
	Probe(addr uint8) (bool, error)
}

// TimeoutReader is implemented by links that can wait longer than their
// default read timeout for a late answer.
type TimeoutReader interface {
	ReadTimeout(addr uint8, n int, d time.Duration) ([]byte, error)
}

// BusError is a transport-level failure for a single bus transaction.
type BusError struct {
	Op   string
	Addr uint8
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus %s @0x%02x: %v", e.Op, e.Addr, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// Is reports ErrDeviceAbsent for driver errors that mean the address was
// not acknowledged, even when the driver does not use the sentinel.
func (e *BusError) Is(target error) bool {
	return target == ErrDeviceAbsent && isAbsent(e.Err)
}

// IsDeviceAbsent reports whether err means nothing answered on the bus
func IsDeviceAbsent(err error) bool {
	return errors.Is(err, ErrDeviceAbsent)
}

func busError(op string, addr uint8, err error) error {
	if err == nil {
		return nil
	}
	return &BusError{Op: op, Addr: addr, Err: err}
}

package transport

import (
	"github.com/sirupsen/logrus"
	"tinygo.org/x/drivers"
)

// I2C adapts any bus with a Tx method to a Transport. machine.I2C on
// TinyGo boards and periph.io i2c.Bus on Linux hosts both satisfy
// drivers.I2C.
type I2C struct {
	bus drivers.I2C
}

// NewI2C wraps bus
func NewI2C(bus drivers.I2C) *I2C {
	if bus == nil {
		panic("i2c bus cannot be nil")
	}
	return &I2C{bus: bus}
}

// Write sends bs to addr as a single write transaction
func (b *I2C) Write(addr uint8, bs []byte) error {
	logrus.Debugf("i2c tx @0x%02x: %x", addr, bs)
	return busError("write", addr, b.bus.Tx(uint16(addr), bs, nil))
}

// Read reads exactly n bytes from addr
func (b *I2C) Read(addr uint8, n int) ([]byte, error) {
	bs := make([]byte, n)
	if err := b.bus.Tx(uint16(addr), nil, bs); err != nil {
		return nil, busError("read", addr, err)
	}
	logrus.Debugf("i2c rx @0x%02x: %x", addr, bs)
	return bs, nil
}

// Probe checks whether addr acknowledges a one byte read. Linux i2c-dev
// drops zero length transfers, so a bare address write cannot be used.
func (b *I2C) Probe(addr uint8) (bool, error) {
	var buf [1]byte
	err := b.bus.Tx(uint16(addr), nil, buf[:])
	if err == nil {
		return true, nil
	}
	if isAbsent(err) {
		return false, nil
	}
	return false, busError("probe", addr, err)
}

package transport

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type txCall struct {
	addr uint16
	w    []byte
	r    int
}

// fakeBus is a drivers.I2C that only answers at the addresses in present
type fakeBus struct {
	present map[uint16][]byte
	absent  error
	err     error
	calls   []txCall
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	b.calls = append(b.calls, txCall{addr: addr, w: append([]byte(nil), w...), r: len(r)})
	if b.err != nil {
		return b.err
	}
	data, ok := b.present[addr]
	if !ok {
		return b.absent
	}
	copy(r, data)
	return nil
}

func TestI2CWriteRead(t *testing.T) {
	bus := &fakeBus{present: map[uint16][]byte{0x64: {0x79, 0x12}}}
	i2c := NewI2C(bus)

	require.NoError(t, i2c.Write(0x64, []byte{0x00, 0xff}))
	bs, err := i2c.Read(0x64, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x79, 0x12}, bs)

	assert.Equal(t, []txCall{
		{addr: 0x64, w: []byte{0x00, 0xff}},
		{addr: 0x64, r: 2},
	}, bus.calls)
}

func TestI2CAbsentDevice(t *testing.T) {
	bus := &fakeBus{absent: errors.Wrap(ErrDeviceAbsent, "i2c tx")}
	i2c := NewI2C(bus)

	err := i2c.Write(0x3c, []byte("DIE"))
	assert.True(t, IsDeviceAbsent(err))

	var be *BusError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "write", be.Op)
	assert.Equal(t, uint8(0x3c), be.Addr)

	_, err = i2c.Read(0x3c, 1)
	assert.True(t, IsDeviceAbsent(err))
}

func TestI2COtherErrorsAreNotAbsent(t *testing.T) {
	for _, cause := range []string{
		"bus arbitration lost",
		"i2c: nack on data byte 3",
	} {
		bus := &fakeBus{err: errors.New(cause)}
		i2c := NewI2C(bus)

		err := i2c.Write(0x64, []byte{1, 2, 3, 4})
		require.Error(t, err)
		assert.False(t, IsDeviceAbsent(err), cause)

		ok, err := i2c.Probe(0x64)
		assert.Error(t, err, cause)
		assert.False(t, ok)
	}
}

func TestI2CProbe(t *testing.T) {
	bus := &fakeBus{
		present: map[uint16][]byte{0x64: {0x1f}},
		absent:  ErrDeviceAbsent,
	}
	i2c := NewI2C(bus)

	ok, err := i2c.Probe(0x64)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = i2c.Probe(0x3c)
	require.NoError(t, err)
	assert.False(t, ok)

	// probing never sends payload bytes
	for _, c := range bus.calls {
		assert.Empty(t, c.w)
		assert.Equal(t, 1, c.r)
	}

	bus.err = errors.New("bus arbitration lost")
	_, err = i2c.Probe(0x64)
	assert.Error(t, err)
}

func TestNewI2CPanicsWithoutBus(t *testing.T) {
	assert.Panics(t, func() { NewI2C(nil) })
}

func TestBusError(t *testing.T) {
	assert.Nil(t, busError("read", 0x64, nil))

	err := busError("read", 0x64, ErrTimeout)
	assert.Equal(t, "bus read @0x64: timed out reading from bus", err.Error())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, IsDeviceAbsent(err))

	wrapped := errors.Wrap(busError("write", 0x3c, ErrDeviceAbsent), "reset")
	assert.True(t, IsDeviceAbsent(wrapped))
}

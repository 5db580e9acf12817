package bootsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthread/go-i2cflash/transport"
)

func cmd(op byte) []byte { return []byte{op, 0xff ^ op} }

func xor(bs []byte) byte {
	var c byte
	for _, b := range bs {
		c ^= b
	}
	return c
}

func addr(a uint32) []byte {
	bs := []byte{byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a)}
	return append(bs, xor(bs))
}

func page(data []byte) []byte {
	bs := append([]byte{byte(len(data) - 1)}, data...)
	return append(bs, xor(bs))
}

func read(t *testing.T, d *Device, n int) []byte {
	t.Helper()
	bs, err := d.Read(BootloaderAddress, n)
	require.NoError(t, err)
	return bs
}

func bootloader(t *testing.T) *Device {
	d := New(Config{App: 0x3c, ChipID: 0x0468})
	err := d.Write(0x3c, []byte("DIE"))
	require.True(t, transport.IsDeviceAbsent(err))
	require.True(t, d.InBootloader())
	return d
}

func TestResetMagic(t *testing.T) {
	d := New(Config{App: 0x3c})

	ok, err := d.Probe(0x3c)
	require.NoError(t, err)
	assert.True(t, ok)

	// other traffic to the application is ignored
	require.NoError(t, d.Write(0x3c, []byte{0x01, 0x02}))
	assert.False(t, d.InBootloader())

	_, err = d.Read(BootloaderAddress, 1)
	assert.True(t, transport.IsDeviceAbsent(err))

	assert.True(t, transport.IsDeviceAbsent(d.Write(0x3c, []byte("DIE\x00\x00"))))
	assert.True(t, d.InBootloader())
	assert.Equal(t, 1, d.Resets())

	ok, _ = d.Probe(0x3c)
	assert.False(t, ok)
	ok, _ = d.Probe(BootloaderAddress)
	assert.True(t, ok)
}

func TestQueries(t *testing.T) {
	d := bootloader(t)

	require.NoError(t, d.Write(BootloaderAddress, cmd(opGetID)))
	assert.Equal(t, []byte{ack}, read(t, d, 1))
	assert.Equal(t, []byte{0x04, 0x68}, read(t, d, 2))
	assert.Equal(t, []byte{ack}, read(t, d, 1))

	require.NoError(t, d.Write(BootloaderAddress, cmd(opGet)))
	assert.Equal(t, []byte{ack}, read(t, d, 1))
	resp := read(t, d, getLength)
	assert.Equal(t, byte(len(defaultCommands)), resp[0])
	assert.Equal(t, byte(0x12), resp[1])
	assert.Equal(t, []byte{ack}, read(t, d, 1))

	// an empty queue reads as NACK
	assert.Equal(t, []byte{nack}, read(t, d, 1))
}

func TestBadCommandFrame(t *testing.T) {
	d := bootloader(t)

	require.NoError(t, d.Write(BootloaderAddress, []byte{opGetID, 0x00}))
	assert.Equal(t, []byte{nack}, read(t, d, 1))
	assert.Empty(t, d.Records())
}

func TestEraseWriteGo(t *testing.T) {
	d := New(Config{App: 0x3c, EraseBusy: 2})
	d.StartInBootloader()
	base := uint32(0x08000000)

	require.NoError(t, d.Write(BootloaderAddress, cmd(opEraseNS)))
	require.NoError(t, d.Write(BootloaderAddress, []byte{0xff, 0xff, 0x00}))
	assert.Equal(t, []byte{ack, busy, busy, ack}, read(t, d, 4))
	assert.Equal(t, 1, d.Erases())

	data := []byte{1, 2, 3, 4, 5}
	require.NoError(t, d.Write(BootloaderAddress, cmd(opWriteNS)))
	require.NoError(t, d.Write(BootloaderAddress, addr(base+16)))
	require.NoError(t, d.Write(BootloaderAddress, page(data)))
	assert.Equal(t, []byte{ack, ack, ack}, read(t, d, 3))
	assert.Equal(t, data, d.Memory(base+16, len(data)))
	assert.Equal(t, []Record{{Op: opWriteNS, Addr: base + 16, Len: 5}}, d.Writes())

	// programming the same bytes again needs an erase first
	require.NoError(t, d.Write(BootloaderAddress, cmd(opWriteNS)))
	require.NoError(t, d.Write(BootloaderAddress, addr(base+16)))
	require.NoError(t, d.Write(BootloaderAddress, page(data)))
	assert.Equal(t, []byte{ack, ack, nack}, read(t, d, 3))

	require.NoError(t, d.Write(BootloaderAddress, cmd(opGo)))
	require.NoError(t, d.Write(BootloaderAddress, addr(base)))
	assert.Equal(t, []byte{ack, ack}, read(t, d, 2))
	assert.Equal(t, []uint32{base}, d.Jumps())
	assert.False(t, d.InBootloader())
}

func TestWriteRejects(t *testing.T) {
	base := uint32(0x08000000)

	tests := []struct {
		name  string
		addr  []byte
		data  []byte
		reply []byte
	}{
		{"address checksum", []byte{0x08, 0, 0, 0, 0}, nil, []byte{ack, nack}},
		{"address out of range", addr(0x20000000), nil, []byte{ack, nack}},
		{"data checksum", addr(base), []byte{0x01, 0xaa, 0xbb, 0x00}, []byte{ack, ack, nack}},
		{"data length", addr(base), []byte{0x05, 0xaa, 0xaa}, []byte{ack, ack, nack}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{App: 0x3c})
			d.StartInBootloader()

			require.NoError(t, d.Write(BootloaderAddress, cmd(opWrite)))
			require.NoError(t, d.Write(BootloaderAddress, tt.addr))
			if tt.data != nil {
				require.NoError(t, d.Write(BootloaderAddress, tt.data))
			}
			assert.Equal(t, tt.reply, read(t, d, len(tt.reply)))
			assert.Empty(t, d.Writes())
		})
	}
}

func TestEraseRejectsPartialErase(t *testing.T) {
	d := New(Config{App: 0x3c})
	d.StartInBootloader()

	require.NoError(t, d.Write(BootloaderAddress, cmd(opErase)))
	require.NoError(t, d.Write(BootloaderAddress, []byte{0x00, 0x00, 0x00}))
	assert.Equal(t, []byte{ack, nack}, read(t, d, 2))
	assert.Zero(t, d.Erases())
}

func TestFailWriteAt(t *testing.T) {
	d := New(Config{App: 0x3c})
	d.StartInBootloader()
	d.FailWriteAt(0x08000000, busy)

	require.NoError(t, d.Write(BootloaderAddress, cmd(opWriteNS)))
	require.NoError(t, d.Write(BootloaderAddress, addr(0x08000000)))
	require.NoError(t, d.Write(BootloaderAddress, page([]byte{1})))
	assert.Equal(t, []byte{ack, ack, busy}, read(t, d, 3))
	assert.Empty(t, d.Writes())
}

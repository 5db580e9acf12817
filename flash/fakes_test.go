package flash

import (
	"time"

	"github.com/synthread/go-i2cflash/transport"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

// scriptBus answers reads from a fixed byte script. Once the script runs
// out every read returns idle.
type scriptBus struct {
	rx   []byte
	idle byte

	// errAt fails the read with the given 1-based call number
	errAt    map[int]error
	writeErr error

	writes [][]byte
	reads  int
}

func newScriptBus(rx ...byte) *scriptBus {
	return &scriptBus{rx: rx, idle: b_NACK, errAt: map[int]error{}}
}

func (b *scriptBus) Write(addr uint8, bs []byte) error {
	if b.writeErr != nil {
		return &transport.BusError{Op: "write", Addr: addr, Err: b.writeErr}
	}
	b.writes = append(b.writes, append([]byte(nil), bs...))
	return nil
}

func (b *scriptBus) Read(addr uint8, n int) ([]byte, error) {
	b.reads++
	if err, ok := b.errAt[b.reads]; ok {
		return nil, &transport.BusError{Op: "read", Addr: addr, Err: err}
	}
	bs := make([]byte, n)
	for i := range bs {
		if len(b.rx) == 0 {
			bs[i] = b.idle
			continue
		}
		bs[i], b.rx = b.rx[0], b.rx[1:]
	}
	return bs, nil
}

// waitBus is a link that blocks for its answer instead of sending BUSY.
// It records how long each handshake read was allowed to wait.
type waitBus struct {
	*scriptBus
	waits []time.Duration
}

func (b *waitBus) ReadTimeout(addr uint8, n int, d time.Duration) ([]byte, error) {
	b.waits = append(b.waits, d)
	return b.scriptBus.Read(addr, n)
}

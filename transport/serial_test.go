package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// chattyPort returns data on every read, like a line with a device that
// never stops talking
type chattyPort struct {
	serial.Port

	mu     sync.Mutex
	closed bool
	tx     []byte
}

func (p *chattyPort) SetReadTimeout(time.Duration) error { return nil }

func (p *chattyPort) Read(bs []byte) (int, error) {
	for i := range bs {
		bs[i] = b_ACK
	}
	return len(bs), nil
}

func (p *chattyPort) Write(bs []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tx = append(p.tx, bs...)
	return len(bs), nil
}

func (p *chattyPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func newTestSerial(p serial.Port, readTimeout time.Duration) *Serial {
	return &Serial{
		cfg:  SerialConfig{ReadTimeout: readTimeout},
		port: p,
		rx:   make(chan byte, 16),
		done: make(chan struct{}),
	}
}

func TestSerialSlowAnswer(t *testing.T) {
	s := newTestSerial(&chattyPort{}, 50*time.Millisecond)

	go func() {
		time.Sleep(200 * time.Millisecond)
		s.rx <- b_ACK
	}()

	_, err := s.Read(0x64, 1)
	assert.ErrorIs(t, err, ErrTimeout)

	bs, err := s.ReadTimeout(0x64, 1, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{b_ACK}, bs)
}

func TestSerialCloseStopsRx(t *testing.T) {
	p := &chattyPort{}
	s := newTestSerial(p, time.Second)

	stopped := make(chan struct{})
	go func() {
		s.rxLoop(p)
		close(stopped)
	}()

	// nobody reads, so the rx buffer fills up
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("rx goroutine still running after close")
	}
	assert.True(t, p.closed)
	assert.False(t, s.IsOpen())
	assert.NoError(t, s.Close())
}

func TestSerialClosed(t *testing.T) {
	p := &chattyPort{}
	s := newTestSerial(p, time.Second)

	require.NoError(t, s.Write(0, []byte{b_SYNC}))
	assert.Equal(t, []byte{b_SYNC}, p.tx)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Write(0, []byte{b_SYNC}), ErrClosed)
	_, err := s.Read(0, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

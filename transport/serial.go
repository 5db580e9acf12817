package transport

import (
	"sync"
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

var DefaultBaud = 115200
var DefaultTTY = "/dev/ttyS1"

const (
	b_SYNC byte = 0x7f
	b_ACK  byte = 0x79
	b_NACK byte = 0x1f
)

var ErrNotSynced = errors.New("bootloader did not answer the sync byte")

// SerialConfig defines the UART link to a bootloader
type SerialConfig struct {
	TTY         string
	Baud        int
	ReadTimeout time.Duration
	// SyncAttempts is how many times the autobaud byte is sent before
	// giving up
	SyncAttempts int
}

// Serial is a Transport over a UART. The bus address is ignored since the
// link is point to point.
type Serial struct {
	cfg SerialConfig

	mu   sync.Mutex
	port serial.Port
	rx   chan byte
	done chan struct{}
}

// OpenSerial opens the port. Sync must be called once the bootloader is
// running and before the first command.
func OpenSerial(c SerialConfig) (s *Serial, err error) {
	if c.TTY == "" {
		c.TTY = DefaultTTY
	}
	if c.Baud <= 0 {
		c.Baud = DefaultBaud
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.SyncAttempts <= 0 {
		c.SyncAttempts = 20
	}

	s = &Serial{cfg: c}
	s.port, err = serial.Open(c.TTY, &serial.Mode{
		BaudRate: c.Baud,
		DataBits: 8,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not open serial")
	}

	s.rx = make(chan byte, 512)
	s.done = make(chan struct{})
	go s.rxLoop(s.port)

	logrus.Debugf("serial open: %s @ %d", c.TTY, c.Baud)
	return s, nil
}

// Sync sends the autobaud byte until the bootloader answers. A NACK means
// it was already synced by an earlier run.
func (s *Serial) Sync() error {
	s.drain()
	return retry.Do(func() error {
		if err := s.Write(0, []byte{b_SYNC}); err != nil {
			return retry.Unrecoverable(err)
		}
		bs, err := s.readN(1, 500*time.Millisecond)
		if err != nil {
			return err
		}
		if bs[0] != b_ACK && bs[0] != b_NACK {
			return ErrNotSynced
		}
		return nil
	},
		retry.Attempts(uint(s.cfg.SyncAttempts)),
		retry.Delay(10*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (s *Serial) drain() {
	for {
		select {
		case <-s.rx:
		default:
			return
		}
	}
}

// Close will close the port and stop the rx goroutine
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	close(s.done)
	err := s.port.Close()
	s.port = nil
	logrus.Debug("serial close")
	return err
}

func (s *Serial) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// rxLoop reads from the port and writes the incoming bytes to the rx chan
// until the port is closed
func (s *Serial) rxLoop(port serial.Port) {
	buf := make([]byte, 64)

	port.SetReadTimeout(1 * time.Millisecond)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {

			// don't write out if we're just complaining about it being closed
			if perr, ok := err.(*serial.PortError); ok {
				if perr.Code() == serial.PortClosed {
					return
				}
			}

			if errors.Is(err, syscall.EBADF) {
				return
			}

			logrus.Error("serial rx err: ", err.Error())
			return
		}

		for _, b := range buf[:n] {
			select {
			case s.rx <- b:
			case <-s.done:
				return
			}
		}
		if n > 0 {
			logrus.Debugf("serial rx: %x", buf[:n])
		}
	}
}

// Write will write the bytes to the bootloader
func (s *Serial) Write(addr uint8, bs []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return busError("write", addr, ErrClosed)
	}

	if _, err := s.port.Write(bs); err != nil {
		return busError("write", addr, err)
	}
	logrus.Debugf("serial tx: %x", bs)
	return nil
}

// Read will read exactly n bytes, failing with ErrTimeout if a byte does
// not arrive within the read timeout
func (s *Serial) Read(addr uint8, n int) ([]byte, error) {
	return s.ReadTimeout(addr, n, s.cfg.ReadTimeout)
}

// ReadTimeout is Read with a per call timeout. The UART bootloader sends
// nothing while it erases, so the handshake waits here instead of polling
// for BUSY.
func (s *Serial) ReadTimeout(addr uint8, n int, d time.Duration) ([]byte, error) {
	bs, err := s.readN(n, d)
	return bs, busError("read", addr, err)
}

func (s *Serial) readN(n int, to time.Duration) ([]byte, error) {
	if !s.IsOpen() {
		return nil, ErrClosed
	}

	bs := make([]byte, n)

	for i := 0; i < n; i++ {
		select {
		case <-time.After(to):
			return nil, ErrTimeout
		case b := <-s.rx:
			bs[i] = b
		}
	}

	return bs, nil
}

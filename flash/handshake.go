package flash

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/go-i2cflash/transport"
)

// BusyPollInterval is the wait between reads while the bootloader reports BUSY
const BusyPollInterval = 100 * time.Millisecond

type clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// awaitAck reads the handshake byte that follows every frame. BUSY is
// polled every interval until ACK, another byte, or maxWait runs out. On
// links that block for the answer the read itself waits up to maxWait.
// Nothing is written to the bus here.
func awaitAck(t transport.Transport, clk clock, interval, maxWait time.Duration) error {
	deadline := clk.Now().Add(maxWait)

	for polls := 0; ; polls++ {
		bs, err := readHandshake(t, clk, deadline, interval)
		if err != nil {
			return err
		}
		if len(bs) != 1 {
			return errors.Wrap(ErrShortResponse, "handshake")
		}

		switch bs[0] {
		case b_ACK:
			if polls > 0 {
				logrus.Debugf("bootloader ready after %d busy polls", polls)
			}
			return nil
		case b_BUSY:
			if !clk.Now().Before(deadline) {
				return errors.Wrapf(ErrAckTimeout, "still busy after %s", maxWait)
			}
			clk.Sleep(interval)
		default:
			return &NackError{Byte: bs[0]}
		}
	}
}

// readHandshake reads one handshake byte. A link that can wait gets the
// time left until deadline, since not every bootloader answers BUSY.
func readHandshake(t transport.Transport, clk clock, deadline time.Time, interval time.Duration) ([]byte, error) {
	tr, ok := t.(transport.TimeoutReader)
	if !ok {
		return t.Read(BootloaderAddress, 1)
	}
	wait := deadline.Sub(clk.Now())
	if wait < interval {
		wait = interval
	}
	return tr.ReadTimeout(BootloaderAddress, 1, wait)
}

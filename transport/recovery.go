package transport

import (
	"time"

	"github.com/piotrjaromin/gpio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RecoveryCycles is the number of SCL pulses sent by RecoverBus. Nine is
// enough to finish any byte in flight; the extra cycles cover a slave
// that was also waiting to send its ACK bit.
const RecoveryCycles = 20

// RecoveryPins names the sysfs GPIO numbers wired to the bus lines
type RecoveryPins struct {
	SDA int
	SCL int
}

// RecoverBus clocks SCL while holding SDA high so a device stuck in the
// middle of a transfer releases the bus. The pins must not be claimed by
// the I2C controller while this runs.
func RecoverBus(p RecoveryPins) error {
	sda, err := gpio.NewOutput(uint(p.SDA), true)
	if err != nil {
		return errors.Wrap(err, "could not claim sda")
	}
	defer sda.Cleanup()

	scl, err := gpio.NewOutput(uint(p.SCL), true)
	if err != nil {
		return errors.Wrap(err, "could not claim scl")
	}
	defer scl.Cleanup()

	for i := 0; i < RecoveryCycles; i++ {
		scl.High()
		time.Sleep(5 * time.Microsecond)
		scl.Low()
		time.Sleep(5 * time.Microsecond)
	}
	scl.High()

	logrus.Debugf("bus recovery: %d clocks on gpio %d", RecoveryCycles, p.SCL)
	return nil
}

package flash

import (
	"context"
	"time"

	"github.com/piotrjaromin/gpio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/go-i2cflash/transport"
)

// Entry puts a device into its ROM bootloader
type Entry interface {
	EnterBootloader(ctx context.Context, t transport.Transport) error
}

// resetMagic tells application firmware to reboot into the bootloader
var resetMagic = []byte("DIE")

const resetFrameLen = 40

var DefaultSettleDelay = 250 * time.Millisecond

// MagicReset reboots a device running application firmware by writing the
// reset magic to its application address
type MagicReset struct {
	App uint8

	// SettleDelay is the wait for the bootloader to come up; zero means
	// DefaultSettleDelay
	SettleDelay time.Duration

	sleep func(time.Duration)
}

// EnterBootloader sends the reset frame. The device reboots while the
// frame is still being clocked in, so a missing device on this write is
// the expected outcome, not a failure. When the transport can probe, the
// bootloader address must answer and the application address must not.
func (m MagicReset) EnterBootloader(ctx context.Context, t transport.Transport) error {
	frame := make([]byte, resetFrameLen)
	copy(frame, resetMagic)

	logrus.Infof("sending reset to 0x%02x", m.App)
	err := t.Write(m.App, frame)
	if err != nil && !transport.IsDeviceAbsent(err) {
		return errors.Wrap(err, "could not send reset")
	}

	settle := m.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	sleep := m.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	sleep(settle)

	if err := ctx.Err(); err != nil {
		return err
	}

	sc, ok := t.(transport.Scanner)
	if !ok {
		logrus.Debug("transport cannot probe, assuming bootloader is up")
		return nil
	}

	if m.App != BootloaderAddress {
		present, err := sc.Probe(m.App)
		if err != nil {
			return errors.Wrap(err, "could not probe application address")
		}
		if present {
			return errors.Wrapf(ErrNotReset, "device still answers at 0x%02x", m.App)
		}
	}

	present, err := sc.Probe(BootloaderAddress)
	if err != nil {
		return errors.Wrap(err, "could not probe bootloader address")
	}
	if !present {
		return errors.Wrapf(ErrNotReset, "nothing answers at 0x%02x", BootloaderAddress)
	}
	return nil
}

// PinStrapConfig names the sysfs GPIOs driving the boot strap pins
type PinStrapConfig struct {
	Boot0GPIO int
	Boot1GPIO int
	PowerGPIO int
}

// PinStrap enters the bootloader by power cycling the chip with BOOT0 held
// high. It is used for parts wired over UART.
type PinStrap struct {
	config PinStrapConfig

	pinPower gpio.Pin
	pinBoot0 gpio.Pin
	pinBoot1 gpio.Pin
}

// NewPinStrap claims the strap pins
func NewPinStrap(c PinStrapConfig) (*PinStrap, error) {
	if c.Boot0GPIO <= 0 {
		c.Boot0GPIO = 39
	}
	if c.Boot1GPIO <= 0 {
		c.Boot1GPIO = 41
	}
	if c.PowerGPIO <= 0 {
		c.PowerGPIO = 19
	}

	p := &PinStrap{config: c}
	if err := p.setupPins(); err != nil {
		return nil, errors.Wrap(err, "could not setup pins")
	}
	return p, nil
}

func (p *PinStrap) setupPins() (err error) {
	p.pinPower, err = gpio.NewOutput(uint(p.config.PowerGPIO), true)
	if err != nil {
		return
	}
	p.pinBoot0, err = gpio.NewOutput(uint(p.config.Boot0GPIO), false)
	if err != nil {
		return
	}
	p.pinBoot1, err = gpio.NewOutput(uint(p.config.Boot1GPIO), false)
	if err != nil {
		return
	}

	return
}

// syncer is a link that needs the autobaud byte after every reset
type syncer interface {
	Sync() error
}

// EnterBootloader will execute the GPIO sequence to enter the bootloader
func (p *PinStrap) EnterBootloader(ctx context.Context, t transport.Transport) error {
	p.pinPower.Low()

	// BOOT0 high and BOOT1 low when reapplying power selects system memory
	p.pinBoot0.High()
	p.pinBoot1.Low()
	time.Sleep(10 * time.Millisecond)
	p.pinPower.High()
	time.Sleep(10 * time.Millisecond)

	if err := ctx.Err(); err != nil {
		return err
	}

	if s, ok := t.(syncer); ok {
		if err := s.Sync(); err != nil {
			return errors.Wrap(err, "could not sync with bootloader")
		}
	}
	return nil
}

// Release will power cycle into the application and free the pins
func (p *PinStrap) Release() {
	p.pinPower.Low()
	p.pinBoot0.Low()
	p.pinBoot1.Low()
	time.Sleep(10 * time.Millisecond)
	p.pinPower.High()
	time.Sleep(10 * time.Millisecond)

	p.pinBoot0.Cleanup()
	p.pinBoot1.Cleanup()
	p.pinPower.Cleanup()

	logrus.Debug("boot pins released")
}

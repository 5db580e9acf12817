package cmd

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/synthread/go-i2cflash/bootsim"
	"github.com/synthread/go-i2cflash/flash"
	"github.com/synthread/go-i2cflash/transport"
)

// target is an opened bus plus everything needed to start a session on it
type target struct {
	t    transport.Transport
	app  uint8
	base uint32
	opts []flash.Option

	closers []func()
}

func (tg *target) Close() {
	for i := len(tg.closers) - 1; i >= 0; i-- {
		tg.closers[i]()
	}
}

func (tg *target) session(extra ...flash.Option) *flash.Session {
	return flash.NewSession(tg.t, tg.app, tg.base, append(tg.opts, extra...)...)
}

func openTarget(cmd *cobra.Command) (*target, error) {
	f := cmd.Flags()

	app, _ := f.GetUint8(flagAddr)
	base, _ := f.GetUint32(flagBase)
	entry, _ := f.GetUint32(flagEntry)
	dialectName, _ := f.GetString(flagDialect)
	simulate, _ := f.GetBool(flagSimulate)

	dialect, ok := flash.LookupDialect(dialectName)
	if !ok {
		return nil, errors.Errorf("unknown dialect %q", dialectName)
	}

	tg := &target{
		app:  app,
		base: base,
		opts: []flash.Option{
			flash.WithDialect(dialect),
			flash.WithEntryAddress(entry),
		},
	}

	switch {
	case simulate:
		if dialect.Name == flash.DialectUART.Name {
			return nil, errors.New("the simulated device only speaks the i2c dialects")
		}
		if app == 0 {
			app = 0x3c
			tg.app = app
		}
		tg.t = bootsim.New(bootsim.Config{
			App:       app,
			FlashBase: base,
			FlashSize: 1 << 20,
			ChipID:    0x0468,
			EraseBusy: 3,
		})
		logrus.Infof("using simulated device at 0x%02x", app)
	case dialect.Name == flash.DialectUART.Name:
		if err := openUART(cmd, tg); err != nil {
			tg.Close()
			return nil, err
		}
	default:
		if app == 0 || app > 0x7f {
			return nil, errors.Errorf("invalid application address 0x%02x, set --%s", app, flagAddr)
		}
		if err := openI2C(cmd, tg); err != nil {
			return nil, err
		}
	}

	return tg, nil
}

func openI2C(cmd *cobra.Command, tg *target) error {
	name, _ := cmd.Flags().GetString(flagBus)

	if _, err := host.Init(); err != nil {
		return errors.Wrap(err, "could not init host drivers")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return errors.Wrapf(err, "could not open i2c bus %q", name)
	}
	logrus.Debugf("opened i2c bus %s", bus)

	tg.t = transport.NewI2C(bus)
	tg.closers = append(tg.closers, func() { bus.Close() })
	return nil
}

func openUART(cmd *cobra.Command, tg *target) error {
	f := cmd.Flags()
	port, _ := f.GetString(flagPort)
	baud, _ := f.GetInt(flagBaudrate)
	boot0, _ := f.GetInt(flagBoot0)
	boot1, _ := f.GetInt(flagBoot1)
	power, _ := f.GetInt(flagPower)

	strap, err := flash.NewPinStrap(flash.PinStrapConfig{
		Boot0GPIO: boot0,
		Boot1GPIO: boot1,
		PowerGPIO: power,
	})
	if err != nil {
		return err
	}
	tg.closers = append(tg.closers, strap.Release)

	s, err := transport.OpenSerial(transport.SerialConfig{TTY: port, Baud: baud})
	if err != nil {
		return err
	}
	tg.closers = append(tg.closers, func() { s.Close() })

	tg.t = s
	tg.opts = append(tg.opts, flash.WithEntry(strap))
	return nil
}

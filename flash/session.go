package flash

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/go-i2cflash/transport"
)

// Identity is what the bootloader reported about itself and the chip
type Identity struct {
	Version    Version
	Bootloader *BootloaderInfo
	ChipID     uint16
}

// Session drives one end-to-end firmware update over a transport it owns
// exclusively for the duration of the run. A session is not resumable:
// every Flash call starts from StateIdle and erases again, since nothing
// on the device marks how much of a previous attempt landed.
type Session struct {
	t    transport.Transport
	eng  *Engine
	cfg  Config
	app  uint8
	base uint32

	state  State
	last   State
	offset int
	ident  Identity
}

// NewSession creates a session for the device answering at app whose
// firmware lives at the flash base address
func NewSession(t transport.Transport, app uint8, base uint32, opts ...Option) *Session {
	var c Config
	for _, opt := range opts {
		opt(&c)
	}
	c = c.withDefaults()

	return &Session{
		t:    t,
		eng:  newEngine(t, c),
		cfg:  c,
		app:  app,
		base: base,
	}
}

// Flash will flash image to the device. It is the whole update: reset into
// the bootloader, identify, mass erase, write every page, jump.
func Flash(ctx context.Context, t transport.Transport, image []byte, app uint8, base uint32, opts ...Option) error {
	return NewSession(t, app, base, opts...).Flash(ctx, image)
}

// State returns the state the session is in
func (s *Session) State() State {
	return s.state
}

// Offset returns the offset of the page being written or last written
func (s *Session) Offset() int {
	return s.offset
}

// Identity returns what the last identify step reported
func (s *Session) Identity() Identity {
	return s.ident
}

// Flash runs the full update. On failure the returned *SessionError names
// the last state reached and the page offset when writing.
func (s *Session) Flash(ctx context.Context, image []byte) error {
	s.state, s.last, s.offset = StateIdle, StateIdle, 0
	s.ident = Identity{}

	if len(image) == 0 {
		return ErrEmptyImage
	}

	steps := []func(context.Context) error{
		s.EnterBootloader,
		s.Identify,
		s.EraseAll,
		func(ctx context.Context) error { return s.WriteImage(ctx, image) },
		s.JumpToApplication,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return s.fail(err)
		}
		if err := step(ctx); err != nil {
			return s.fail(err)
		}
	}

	logrus.Infof("flashed %d bytes at 0x%08x", len(image), s.base)
	return nil
}

func (s *Session) fail(err error) error {
	s.last = s.state
	s.state = StateFailed

	serr := &SessionError{State: s.last, Offset: s.offset, Err: err}
	logrus.Error(serr.Error())
	return serr
}

func (s *Session) transition(to State) {
	logrus.Debugf("session %s -> %s", s.state, to)
	s.state = to
}

// EnterBootloader resets the device into its bootloader
func (s *Session) EnterBootloader(ctx context.Context) error {
	entry := s.cfg.Entry
	if entry == nil {
		entry = MagicReset{App: s.app, sleep: s.cfg.clock.Sleep}
	}
	if err := entry.EnterBootloader(ctx, s.t); err != nil {
		return errors.Wrap(err, "could not enter bootloader")
	}
	s.transition(StateReset)
	return nil
}

// Identify issues GET_VERSION, GET and GET_ID. The answers are only
// logged but a device that does not answer them is not talking the
// protocol, so any failure aborts.
func (s *Session) Identify(ctx context.Context) error {
	err := s.retry(ctx, func() (err error) {
		s.ident.Version, err = s.eng.GetVersion()
		return
	})
	if err != nil {
		return errors.Wrap(err, "could not get protocol version")
	}
	logrus.Infof("protocol version: %s", s.ident.Version)

	err = s.retry(ctx, func() (err error) {
		s.ident.Bootloader, err = s.eng.Get()
		return
	})
	if err != nil {
		return errors.Wrap(err, "could not get command list")
	}
	logrus.Infof("bootloader version: %s", s.ident.Bootloader.Version)
	logrus.Debugf("supported commands: % x", s.ident.Bootloader.Commands)

	err = s.retry(ctx, func() (err error) {
		s.ident.ChipID, err = s.eng.GetID()
		return
	})
	if err != nil {
		return errors.Wrap(err, "could not get chip id")
	}
	logrus.Infof("chip id: 0x%04x", s.ident.ChipID)

	s.transition(StateIdentified)
	return nil
}

// retry runs a read-only command again after transient bus noise. A NACK
// or handshake timeout is the device talking and is never retried, nor is
// a missing device.
func (s *Session) retry(ctx context.Context, fn func() error) error {
	attempts := uint(1)
	if s.cfg.CommandRetries > 0 {
		attempts += uint(s.cfg.CommandRetries)
	}
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(s.cfg.BusyInterval),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			logrus.Warnf("retry #%d: %v", n+1, err)
		}),
		retry.LastErrorOnly(true),
	)
}

func isTransient(err error) bool {
	var be *transport.BusError
	return errors.As(err, &be) && !transport.IsDeviceAbsent(err)
}

// EraseAll mass erases the flash
func (s *Session) EraseAll(ctx context.Context) error {
	if s.state != StateIdentified {
		return errors.Errorf("cannot erase in state %s", s.state)
	}

	logrus.Info("erasing flash")
	start := time.Now()
	if err := s.eng.MassErase(); err != nil {
		return errors.Wrap(err, "could not erase memory")
	}
	logrus.Infof("erase done in %s", time.Since(start).Round(time.Millisecond))
	s.transition(StateErased)
	return nil
}

// WriteImage writes the image page by page from the flash base address.
// The last page is short when the image is not page aligned. A failed
// page aborts the run; re-writing it is not safe without a new erase.
func (s *Session) WriteImage(ctx context.Context, image []byte) error {
	if s.state != StateErased {
		return errors.Errorf("cannot write in state %s", s.state)
	}

	total := len(image)
	logrus.Infof("writing %d bytes in %d pages", total, pageCount(total, PageSize))

	for offset := 0; offset < total; offset += PageSize {
		// cancellation is only honoured on page boundaries, an interrupted
		// frame would leave the bootloader out of sync
		if err := ctx.Err(); err != nil {
			return err
		}

		s.offset = offset
		s.state = StateWriting

		end := min(total, offset+PageSize)
		addr := s.base + uint32(offset)

		logrus.Debugf("wm: %d -> %d @ %x [l=%d]", offset, end, addr, end-offset)

		if err := s.eng.WriteMemory(addr, image[offset:end]); err != nil {
			return errors.Wrapf(err, "could not write page at offset 0x%x", offset)
		}

		if s.cfg.Progress != nil {
			s.cfg.Progress(end, total)
		}

		if s.cfg.PageDelay > 0 && end < total {
			s.cfg.clock.Sleep(s.cfg.PageDelay)
		}
	}

	return nil
}

// JumpToApplication starts the application. Nothing is read back since the
// device is now running application code, possibly on another address.
func (s *Session) JumpToApplication(ctx context.Context) error {
	if s.state != StateWriting && s.state != StateIdentified {
		return errors.Errorf("cannot jump in state %s", s.state)
	}

	entry := s.cfg.EntryAddress
	if entry == 0 {
		entry = s.base
	}

	logrus.Infof("starting application at 0x%08x", entry)
	if err := s.eng.Go(entry); err != nil {
		return errors.Wrap(err, "could not start application")
	}
	s.transition(StateJumped)
	return nil
}

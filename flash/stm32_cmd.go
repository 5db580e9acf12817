package flash

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/go-i2cflash/transport"
)

// massEraseParams selects a global erase; framed with its checksum it goes
// on the wire as ff ff 00
var massEraseParams = []byte{0xff, 0xff}

// Version is a nibble-packed bootloader version: the low nibble is the
// major number and the high nibble the minor number
type Version struct {
	Major uint8
	Minor uint8
}

func decodeVersion(b byte) Version {
	return Version{Major: b & 0x0f, Minor: b >> 4}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// BootloaderInfo is the decoded GET response
type BootloaderInfo struct {
	ProtocolVersion byte
	Version         Version
	Commands        []byte
}

// Supports reports whether op is in the bootloader's command list
func (b *BootloaderInfo) Supports(op byte) bool {
	for _, c := range b.Commands {
		if c == op {
			return true
		}
	}
	return false
}

// Engine runs single bootloader commands over an explicitly owned
// transport. It is not safe for concurrent use; the bootloader has no
// framing beyond the fixed lengths, so exchanges must never interleave.
type Engine struct {
	t   transport.Transport
	cfg Config
}

// NewEngine creates a command engine on t
func NewEngine(t transport.Transport, opts ...Option) *Engine {
	var c Config
	for _, opt := range opts {
		opt(&c)
	}
	return newEngine(t, c.withDefaults())
}

func newEngine(t transport.Transport, c Config) *Engine {
	if t == nil {
		panic("transport cannot be nil")
	}
	return &Engine{t: t, cfg: c}
}

// Dialect returns the opcode set in use
func (e *Engine) Dialect() Dialect {
	return e.cfg.Dialect
}

func (e *Engine) awaitAck(wait time.Duration) error {
	return awaitAck(e.t, e.cfg.clock, e.cfg.BusyInterval, wait)
}

// exchange writes one frame and resolves the handshake byte that follows
func (e *Engine) exchange(op byte, stage Stage, frame []byte, wait time.Duration) error {
	if err := e.t.Write(BootloaderAddress, frame); err != nil {
		return &CommandError{Opcode: op, Stage: stage, Err: err}
	}
	if err := e.awaitAck(wait); err != nil {
		return &CommandError{Opcode: op, Stage: stage, Err: err}
	}
	return nil
}

// execCmd will send the command frame for op and check that it is ACK'd
func (e *Engine) execCmd(op byte) error {
	logrus.Debugf("exec cmd 0x%02x", op)
	return e.exchange(op, StageCommand, EncodeCommand(op), e.cfg.AckTimeout)
}

// readResponse reads a fixed length response and its trailing ACK
func (e *Engine) readResponse(op byte, n int) ([]byte, error) {
	bs, err := e.t.Read(BootloaderAddress, n)
	if err != nil {
		return nil, &CommandError{Opcode: op, Stage: StageResponse, Err: err}
	}
	if len(bs) != n {
		return nil, &CommandError{Opcode: op, Stage: StageResponse,
			Err: errors.Wrapf(ErrShortResponse, "got %d of %d bytes", len(bs), n)}
	}
	if err := e.awaitAck(e.cfg.AckTimeout); err != nil {
		return nil, &CommandError{Opcode: op, Stage: StageResponse, Err: err}
	}
	return bs, nil
}

// query runs a command without parameters that answers with n bytes
func (e *Engine) query(op byte, n int) ([]byte, error) {
	if err := e.execCmd(op); err != nil {
		return nil, err
	}
	return e.readResponse(op, n)
}

// GetVersion returns the bootloader protocol version
func (e *Engine) GetVersion() (Version, error) {
	bs, err := e.query(e.cfg.Dialect.GetVersion, e.cfg.Dialect.GetVersionLength)
	if err != nil {
		return Version{}, err
	}
	return decodeVersion(bs[0]), nil
}

// Get will load information about the bootloader and its command set
func (e *Engine) Get() (*BootloaderInfo, error) {
	n := e.cfg.Dialect.GetLength
	if n < 2 {
		return nil, errors.Errorf("dialect %s: GET length %d too short", e.cfg.Dialect.Name, n)
	}
	bs, err := e.query(e.cfg.Dialect.Get, n)
	if err != nil {
		return nil, err
	}
	return &BootloaderInfo{
		ProtocolVersion: bs[0],
		Version:         decodeVersion(bs[1]),
		Commands:        append([]byte(nil), bs[2:]...),
	}, nil
}

// GetID will return the chip id, most significant byte first on the wire
func (e *Engine) GetID() (uint16, error) {
	n := e.cfg.Dialect.GetIDLength
	if n < 2 {
		return 0, errors.Errorf("dialect %s: GET_ID length %d too short", e.cfg.Dialect.Name, n)
	}
	bs, err := e.query(e.cfg.Dialect.GetID, n)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(bs[n-2:]), nil
}

// MassErase will request that all flash memory be erased. The bootloader
// answers BUSY until the erase has physically completed.
func (e *Engine) MassErase() error {
	op := e.cfg.Dialect.Erase
	if err := e.execCmd(op); err != nil {
		return err
	}

	params, err := EncodeChecked(massEraseParams)
	if err != nil {
		return err
	}
	return e.exchange(op, StageParams, params, e.cfg.EraseTimeout)
}

// WriteMemory will write up to one page of data at addr
func (e *Engine) WriteMemory(addr uint32, data []byte) error {
	op := e.cfg.Dialect.Write

	page, err := EncodeWritePage(data)
	if err != nil {
		return errors.Wrapf(err, "write memory at 0x%08x", addr)
	}

	if err := e.execCmd(op); err != nil {
		return err
	}
	if err := e.exchange(op, StageParams, EncodeAddress(addr), e.cfg.AckTimeout); err != nil {
		return err
	}
	return e.exchange(op, StageData, page, e.cfg.AckTimeout)
}

// Go jumps to the application at addr. Once the address frame is taken
// the device leaves the bootloader, so a missing device on the final
// handshake read counts as success.
func (e *Engine) Go(addr uint32) error {
	op := e.cfg.Dialect.Go
	if err := e.execCmd(op); err != nil {
		return err
	}

	if err := e.t.Write(BootloaderAddress, EncodeAddress(addr)); err != nil {
		return &CommandError{Opcode: op, Stage: StageParams, Err: err}
	}
	err := e.awaitAck(e.cfg.AckTimeout)
	if err != nil && transport.IsDeviceAbsent(err) {
		logrus.Debugf("bootloader gone after go 0x%08x", addr)
		return nil
	}
	if err != nil {
		return &CommandError{Opcode: op, Stage: StageParams, Err: err}
	}
	return nil
}

// Package bootsim simulates a device with an I2C ROM bootloader. It serves
// as the bus for tests and for dry runs of the flasher.
package bootsim

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/synthread/go-i2cflash/transport"
)

const (
	BootloaderAddress uint8 = 0x64

	ack  byte = 0x79
	busy byte = 0x76
	nack byte = 0x1f
)

const (
	opGet        byte = 0x00
	opGetVersion byte = 0x01
	opGetID      byte = 0x02
	opGo         byte = 0x21
	opWrite      byte = 0x31
	opWriteNS    byte = 0x32
	opErase      byte = 0x44
	opEraseNS    byte = 0x45
)

const (
	getLength     = 20
	maxWriteBytes = 256
)

var resetMagic = []byte("DIE")

var defaultCommands = []byte{
	0x00, 0x01, 0x02, 0x11, 0x21, 0x31, 0x32, 0x44, 0x45,
	0x63, 0x64, 0x73, 0x74, 0x82, 0x83, 0x92, 0x93, 0xa1,
}

type mode int

const (
	modeApplication mode = iota
	modeBootloader
)

type phase int

const (
	phaseCommand phase = iota
	phaseEraseParams
	phaseWriteAddress
	phaseWriteData
	phaseGoAddress
)

// Record is one command the bootloader accepted
type Record struct {
	Op   byte
	Addr uint32
	Len  int
}

// Config describes the simulated part
type Config struct {
	App       uint8
	FlashBase uint32
	FlashSize int

	ChipID  uint16
	Version byte

	// EraseBusy is the number of BUSY answers before the erase ACK
	EraseBusy int
}

// Device is a simulated chip. It implements transport.Transport and
// transport.Scanner.
type Device struct {
	mu  sync.Mutex
	cfg Config

	mode  mode
	phase phase
	op    byte
	addr  uint32
	out   []byte

	jumpPending bool

	flash   []byte
	written []bool
	faults  map[uint32]byte

	records []Record
	erases  int
	jumps   []uint32
	resets  int
}

// New creates a device running its application at c.App
func New(c Config) *Device {
	if c.FlashSize <= 0 {
		c.FlashSize = 64 * 1024
	}
	if c.FlashBase == 0 {
		c.FlashBase = 0x08000000
	}
	if c.Version == 0 {
		c.Version = 0x12
	}

	d := &Device{
		cfg:     c,
		flash:   make([]byte, c.FlashSize),
		written: make([]bool, c.FlashSize),
		faults:  map[uint32]byte{},
	}
	for i := range d.flash {
		d.flash[i] = 0xff
	}
	return d
}

// FailWriteAt makes the data frame of a WRITE at addr answer b instead of ACK
func (d *Device) FailWriteAt(addr uint32, b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[addr] = b
}

// ClearFaults removes every fault set by FailWriteAt
func (d *Device) ClearFaults() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults = map[uint32]byte{}
}

// StartInBootloader puts the device straight into its bootloader
func (d *Device) StartInBootloader() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enterBootloader()
}

// Records returns the accepted commands in order
func (d *Device) Records() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Record(nil), d.records...)
}

// Writes returns only the accepted WRITE commands
func (d *Device) Writes() []Record {
	var ws []Record
	for _, r := range d.Records() {
		if r.Op == opWrite || r.Op == opWriteNS {
			ws = append(ws, r)
		}
	}
	return ws
}

func (d *Device) Erases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.erases
}

func (d *Device) Jumps() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.jumps...)
}

func (d *Device) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

// InBootloader reports whether the bootloader is the running code
func (d *Device) InBootloader() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode == modeBootloader
}

// Memory returns a copy of n bytes of flash starting at addr
func (d *Device) Memory(addr uint32, n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	off := int(addr - d.cfg.FlashBase)
	return append([]byte(nil), d.flash[off:off+n]...)
}

func absent(op string, addr uint8) error {
	return &transport.BusError{Op: op, Addr: addr, Err: transport.ErrDeviceAbsent}
}

// Write implements transport.Transport
func (d *Device) Write(addr uint8, bs []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.mode == modeApplication && addr == d.cfg.App:
		if bytes.HasPrefix(bs, resetMagic) {
			logrus.Debugf("sim: reset requested at 0x%02x", addr)
			d.enterBootloader()
			// the device reboots before the transfer completes
			return absent("write", addr)
		}
		return nil
	case d.mode == modeBootloader && addr == BootloaderAddress:
		d.handleFrame(bs)
		return nil
	}
	return absent("write", addr)
}

// Read implements transport.Transport
func (d *Device) Read(addr uint8, n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.mode == modeApplication && addr == d.cfg.App:
		return make([]byte, n), nil
	case d.mode == modeBootloader && addr == BootloaderAddress:
		bs := make([]byte, n)
		for i := range bs {
			if len(d.out) == 0 {
				bs[i] = nack
				continue
			}
			bs[i], d.out = d.out[0], d.out[1:]
		}
		if d.jumpPending && len(d.out) == 0 {
			d.jumpPending = false
			d.mode = modeApplication
		}
		return bs, nil
	}
	return nil, absent("read", addr)
}

// Probe implements transport.Scanner
func (d *Device) Probe(addr uint8) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mode == modeBootloader {
		return addr == BootloaderAddress, nil
	}
	return addr == d.cfg.App, nil
}

func (d *Device) enterBootloader() {
	d.mode = modeBootloader
	d.phase = phaseCommand
	d.out = nil
	d.jumpPending = false
	d.resets++
}

func (d *Device) reply(bs ...byte) {
	d.out = append(d.out, bs...)
}

func (d *Device) reject() {
	d.phase = phaseCommand
	d.reply(nack)
}

func (d *Device) handleFrame(bs []byte) {
	switch d.phase {
	case phaseCommand:
		d.handleCommand(bs)
	case phaseEraseParams:
		d.phase = phaseCommand
		if !bytes.Equal(bs, []byte{0xff, 0xff, 0x00}) {
			d.reply(nack)
			return
		}
		for i := range d.flash {
			d.flash[i] = 0xff
			d.written[i] = false
		}
		d.erases++
		d.records = append(d.records, Record{Op: d.op})
		for i := 0; i < d.cfg.EraseBusy; i++ {
			d.reply(busy)
		}
		d.reply(ack)
	case phaseWriteAddress:
		addr, ok := d.parseAddress(bs)
		if !ok {
			d.reject()
			return
		}
		d.addr = addr
		d.phase = phaseWriteData
		d.reply(ack)
	case phaseWriteData:
		d.phase = phaseCommand
		d.handleWriteData(bs)
	case phaseGoAddress:
		addr, ok := d.parseAddress(bs)
		if !ok {
			d.reject()
			return
		}
		d.phase = phaseCommand
		d.jumps = append(d.jumps, addr)
		d.records = append(d.records, Record{Op: opGo, Addr: addr})
		d.jumpPending = true
		d.reply(ack)
	}
}

func (d *Device) handleCommand(bs []byte) {
	if len(bs) != 2 || bs[0]^bs[1] != 0xff {
		d.reply(nack)
		return
	}

	d.op = bs[0]
	switch d.op {
	case opGet:
		resp := make([]byte, 0, getLength)
		resp = append(resp, byte(len(defaultCommands)), d.cfg.Version)
		resp = append(resp, defaultCommands...)
		d.reply(ack)
		d.reply(resp...)
		d.reply(ack)
	case opGetVersion:
		d.reply(ack, d.cfg.Version, ack)
	case opGetID:
		var id [2]byte
		binary.BigEndian.PutUint16(id[:], d.cfg.ChipID)
		d.reply(ack, id[0], id[1], ack)
	case opErase, opEraseNS:
		d.phase = phaseEraseParams
		d.reply(ack)
		return
	case opWrite, opWriteNS:
		d.phase = phaseWriteAddress
		d.reply(ack)
		return
	case opGo:
		d.phase = phaseGoAddress
		d.reply(ack)
		return
	default:
		d.reply(nack)
		return
	}
	d.records = append(d.records, Record{Op: d.op})
}

func (d *Device) parseAddress(bs []byte) (uint32, bool) {
	if len(bs) != 5 || bs[0]^bs[1]^bs[2]^bs[3] != bs[4] {
		return 0, false
	}
	addr := binary.BigEndian.Uint32(bs)
	if addr < d.cfg.FlashBase || addr >= d.cfg.FlashBase+uint32(d.cfg.FlashSize) {
		return 0, false
	}
	return addr, true
}

func (d *Device) handleWriteData(bs []byte) {
	if len(bs) < 3 {
		d.reply(nack)
		return
	}
	n := int(bs[0]) + 1
	if len(bs) != n+2 || n > maxWriteBytes {
		d.reply(nack)
		return
	}
	var cs byte
	for _, b := range bs[:n+1] {
		cs ^= b
	}
	if cs != bs[n+1] {
		d.reply(nack)
		return
	}
	if b, ok := d.faults[d.addr]; ok {
		d.reply(b)
		return
	}

	off := int(d.addr - d.cfg.FlashBase)
	if off+n > len(d.flash) {
		d.reply(nack)
		return
	}
	for i := 0; i < n; i++ {
		// no byte may be programmed twice between erases
		if d.written[off+i] {
			d.reply(nack)
			return
		}
	}
	copy(d.flash[off:], bs[1:n+1])
	for i := 0; i < n; i++ {
		d.written[off+i] = true
	}
	d.records = append(d.records, Record{Op: d.op, Addr: d.addr, Len: n})
	d.reply(ack)
}

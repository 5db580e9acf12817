package flash

// BootloaderAddress is the fixed bus address of the ROM bootloader
const BootloaderAddress uint8 = 0x64

// PageSize is the largest payload sent by a single WRITE command
const PageSize = 128

const (
	b_ACK  byte = 0x79
	b_BUSY byte = 0x76
	b_NACK byte = 0x1f
)

// Bootloader opcodes
const (
	OpGet            byte = 0x00
	OpGetVersion     byte = 0x01
	OpGetID          byte = 0x02
	OpGo             byte = 0x21
	OpWriteMemory    byte = 0x31
	OpWriteNoStretch byte = 0x32
	OpExtendedErase  byte = 0x44
	OpEraseNoStretch byte = 0x45
)

// Dialect is the opcode set and fixed response lengths of one bootloader
// flavour. The command flow is the same for all of them.
type Dialect struct {
	Name string

	Get        byte
	GetVersion byte
	GetID      byte
	Erase      byte
	Write      byte
	Go         byte

	// response lengths, not counting the trailing ACK
	GetLength        int
	GetVersionLength int
	GetIDLength      int
}

// DialectI2C is the I2C bootloader using the no-stretch command variants.
// The device answers BUSY while flash operations are in progress instead
// of holding the clock line.
var DialectI2C = Dialect{
	Name:             "i2c",
	Get:              OpGet,
	GetVersion:       OpGetVersion,
	GetID:            OpGetID,
	Erase:            OpEraseNoStretch,
	Write:            OpWriteNoStretch,
	Go:               OpGo,
	GetLength:        20,
	GetVersionLength: 1,
	GetIDLength:      2,
}

// DialectI2CStretch is the I2C bootloader using clock stretching commands
var DialectI2CStretch = Dialect{
	Name:             "i2c-stretch",
	Get:              OpGet,
	GetVersion:       OpGetVersion,
	GetID:            OpGetID,
	Erase:            OpExtendedErase,
	Write:            OpWriteMemory,
	Go:               OpGo,
	GetLength:        20,
	GetVersionLength: 1,
	GetIDLength:      2,
}

// DialectUART is the USART bootloader. GET and GET_ID responses carry a
// leading count byte.
var DialectUART = Dialect{
	Name:             "uart",
	Get:              OpGet,
	GetVersion:       OpGetVersion,
	GetID:            OpGetID,
	Erase:            OpExtendedErase,
	Write:            OpWriteMemory,
	Go:               OpGo,
	GetLength:        13,
	GetVersionLength: 3,
	GetIDLength:      3,
}

var dialects = map[string]Dialect{
	DialectI2C.Name:        DialectI2C,
	DialectI2CStretch.Name: DialectI2CStretch,
	DialectUART.Name:       DialectUART,
}

// LookupDialect returns the dialect registered under name
func LookupDialect(name string) (Dialect, bool) {
	d, ok := dialects[name]
	return d, ok
}

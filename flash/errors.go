package flash

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrAckTimeout = errors.New("timed out waiting for bootloader ack")
var ErrShortResponse = errors.New("short response from bootloader")
var ErrEmptyImage = errors.New("firmware image is empty")
var ErrNotReset = errors.New("device did not enter the bootloader")

// NackError is returned when the bootloader answers with anything other
// than ACK or BUSY
type NackError struct {
	Byte byte
}

func (e *NackError) Error() string {
	if e.Byte == b_NACK {
		return "received nack from bootloader"
	}
	return fmt.Sprintf("unexpected handshake byte 0x%02x from bootloader", e.Byte)
}

// Stage is the phase of a command exchange
type Stage int

const (
	StageCommand Stage = iota
	StageParams
	StageData
	StageResponse
)

func (s Stage) String() string {
	switch s {
	case StageCommand:
		return "command-ack"
	case StageParams:
		return "param-ack"
	case StageData:
		return "data-ack"
	case StageResponse:
		return "response-read"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// CommandError identifies the command and the phase of the exchange that
// failed, which tells bus noise apart from a device rejecting a frame
type CommandError struct {
	Opcode byte
	Stage  Stage
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command 0x%02x failed at %s: %v", e.Opcode, e.Stage, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// SessionError is the terminal result of a failed flashing run. State is
// the last state reached and Offset the page being written when the
// failure happened in StateWriting.
type SessionError struct {
	State  State
	Offset int
	Err    error
}

func (e *SessionError) Error() string {
	var where string
	if e.State == StateWriting {
		where = fmt.Sprintf("%s at offset 0x%x", e.State, e.Offset)
	} else {
		where = e.State.String()
	}
	msg := fmt.Sprintf("flash aborted after %s: %v", where, e.Err)
	if e.State >= StateErased {
		msg += " (flash contents are indeterminate, retry from a full erase)"
	}
	return msg
}

func (e *SessionError) Unwrap() error { return e.Err }

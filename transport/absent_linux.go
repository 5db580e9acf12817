//go:build linux

package transport

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// isAbsent matches the errno values Linux i2c-dev returns for an address
// NACK. Some drivers flatten the errno into a string, so the errno text is
// checked too. A NACK on a data byte is a different errno and not matched.
func isAbsent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDeviceAbsent) || errors.Is(err, unix.ENXIO) || errors.Is(err, unix.EREMOTEIO) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, strings.ToLower(unix.ENXIO.Error())) ||
		strings.Contains(msg, strings.ToLower(unix.EREMOTEIO.Error()))
}

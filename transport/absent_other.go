//go:build !linux

package transport

import "github.com/pkg/errors"

func isAbsent(err error) bool {
	return err != nil && errors.Is(err, ErrDeviceAbsent)
}

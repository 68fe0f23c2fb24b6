//go:build !linux

package transport

import (
	"errors"

	"github.com/go-ble/ble"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = func() (ble.Device, error) {
	return nil, errors.New("transport: no host stack support on this platform")
}

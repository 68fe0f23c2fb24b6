// Package transport decouples the protocol layers from the underlying
// Bluetooth stack. A Backend is selected once at construction time
// (capability detection); no other code branches on hardware availability.
package transport

import "time"

// Callbacks are the hooks a backend invokes on inbound activity. Every
// field is optional; unset fields default to no-ops so backends never need
// nil checks.
type Callbacks struct {
	// ReadCharacteristic returns the current value for a characteristic read.
	ReadCharacteristic func(id string) []byte
	// WriteCharacteristic handles a remote write to a characteristic.
	WriteCharacteristic func(id string, data []byte, device string) error
	// DeviceConnected is invoked when a device subscribes to notifications.
	DeviceConnected func(device string)
	// DeviceDisconnected is invoked when a subscriber goes away.
	DeviceDisconnected func(device string)
}

func (c Callbacks) withDefaults() Callbacks {
	if c.ReadCharacteristic == nil {
		c.ReadCharacteristic = func(string) []byte { return nil }
	}
	if c.WriteCharacteristic == nil {
		c.WriteCharacteristic = func(string, []byte, string) error { return nil }
	}
	if c.DeviceConnected == nil {
		c.DeviceConnected = func(string) {}
	}
	if c.DeviceDisconnected == nil {
		c.DeviceDisconnected = func(string) {}
	}
	return c
}

// CharacteristicDef declares one characteristic the backend must expose.
type CharacteristicDef struct {
	ID         string // stable internal identifier
	UUID       string // 128-bit GATT UUID
	Readable   bool
	Writable   bool
	Notifiable bool
}

// Config describes the GATT surface and lifecycle timeouts.
type Config struct {
	ServiceUUID     string
	Characteristics []CharacteristicDef
	DeviceName      string // initial advertising name

	StartTimeout    time.Duration
	ShutdownTimeout time.Duration
	OpTimeout       time.Duration
}

// Backend is the transport capability contract.
//
// Initialize performs non-blocking resource setup. Start begins serving and
// may perform one bounded-timeout connection attempt to the host stack;
// failure to reach the host stack degrades the backend to status-only
// reporting rather than failing. Stop is idempotent with bounded teardown.
// Notify is only ever called from the notification pipeline's consumer
// goroutine.
type Backend interface {
	Initialize() bool
	Start() bool
	Stop()
	SetCallbacks(Callbacks)
	Notify(characteristic string, devices []string) error
	UpdateAdvertisingName(name string)
	Status() map[string]interface{}
}

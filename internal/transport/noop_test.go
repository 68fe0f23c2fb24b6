package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopBackendLifecycle(t *testing.T) {
	b := NewNoop(Config{DeviceName: "chamber-test"}, quietLogger())

	assert.True(t, b.Initialize())
	assert.True(t, b.Start())

	assert.NoError(t, b.Notify("environmental", nil))
	assert.NoError(t, b.Notify("environmental", []string{"aa:bb"}))
	assert.Equal(t, int64(2), b.Notifications())

	b.UpdateAdvertisingName("chamber-oyster-veg")

	status := b.Status()
	assert.Equal(t, "noop", status["backend"])
	assert.Equal(t, true, status["running"])
	assert.Equal(t, "chamber-oyster-veg", status["advertising_name"])

	b.Stop()
	assert.Equal(t, false, b.Status()["running"])
}

func TestNoopBackendCallbacksDefaulted(t *testing.T) {
	b := NewNoop(Config{}, quietLogger())
	// Partial callback sets must not leave nil hooks behind.
	b.SetCallbacks(Callbacks{ReadCharacteristic: func(string) []byte { return nil }})
	assert.NotPanics(t, func() {
		b.callbacks.WriteCharacteristic("x", nil, "dev")
		b.callbacks.DeviceConnected("dev")
		b.callbacks.DeviceDisconnected("dev")
	})
}

func TestDetectExplicitKinds(t *testing.T) {
	assert.IsType(t, &NoopBackend{}, New(KindNoop, Config{}, quietLogger()))
	assert.IsType(t, &LoopBackend{}, New(KindLive, Config{}, quietLogger()))
}

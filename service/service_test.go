package service

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycobotics/chamberlink/internal/codec"
	"github.com/mycobotics/chamberlink/internal/config"
	"github.com/mycobotics/chamberlink/internal/syncproto"
	"github.com/mycobotics/chamberlink/internal/transport"
)

// fakeBackend records every backend interaction for assertions.
type fakeBackend struct {
	mu        sync.Mutex
	callbacks transport.Callbacks
	notified  []string
	advNames  []string
}

func (f *fakeBackend) Initialize() bool { return true }
func (f *fakeBackend) Start() bool      { return true }
func (f *fakeBackend) Stop()            {}

func (f *fakeBackend) SetCallbacks(cb transport.Callbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = cb
}

func (f *fakeBackend) Notify(characteristic string, devices []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, characteristic)
	return nil
}

func (f *fakeBackend) UpdateAdvertisingName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advNames = append(f.advNames, name)
}

func (f *fakeBackend) Status() map[string]interface{} {
	return map[string]interface{}{"backend": "fake"}
}

func (f *fakeBackend) notifications() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notified...)
}

func (f *fakeBackend) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.advNames...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Transport = config.TransportNoop
	cfg.DocumentPath = filepath.Join(t.TempDir(), "chamber.json")
	cfg.Sync.WriteInterval = 0
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config, cb Callbacks) (*Service, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	svc, err := New(Options{
		Config:    cfg,
		Backend:   backend,
		Callbacks: cb,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Initialize())
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)
	return svc, backend
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func sampleSnapshot() Snapshot {
	return Snapshot{
		Environmental: codec.Environmental{CO2PPM: 450, TempX10: 225, RHX10: 632, LightRaw: 310, UptimeMS: 120000},
		Targets:       codec.ControlTargets{TempMinX10: 180, TempMaxX10: 240, RHMinX10: 850, CO2Max: 800, LightMode: codec.LightCycle, OnMin: 720, OffMin: 720},
		Stage:         codec.StageState{Mode: codec.ModeFull, SpeciesID: 3, StageID: 2, StartTS: 1700000000, ExpectedDays: 14},
		Overrides:     codec.OverrideBits{},
		Status:        codec.StatusFlags{Flags: codec.StatusStageReady},
		Actuators:     codec.ActuatorStatus{Bits: codec.ActuatorFan},
	}
}

func TestPushSnapshotNotifiesOnlyChanges(t *testing.T) {
	svc, backend := newTestService(t, testConfig(t), Callbacks{})

	snap := sampleSnapshot()
	svc.PushSnapshot(snap)
	waitFor(t, func() bool { return len(backend.notifications()) == 6 })

	// Identical snapshot: nothing re-notified.
	svc.PushSnapshot(snap)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, backend.notifications(), 6)

	// One field moves: exactly one more notification, for telemetry.
	snap.Environmental.CO2PPM = 460
	svc.PushSnapshot(snap)
	waitFor(t, func() bool { return len(backend.notifications()) == 7 })
	assert.Equal(t, "environmental", backend.notifications()[6])
}

func TestPushSnapshotCachesReadableValues(t *testing.T) {
	svc, backend := newTestService(t, testConfig(t), Callbacks{})
	svc.PushSnapshot(sampleSnapshot())

	raw := backend.callbacks.ReadCharacteristic("environmental")
	env, err := codec.DecodeEnvironmental(raw)
	require.NoError(t, err)
	assert.Equal(t, 450, env.CO2PPM)
	assert.Equal(t, 225, env.TempX10)

	// Write-only characteristics are not readable.
	assert.Nil(t, backend.callbacks.ReadCharacteristic("config_control"))
}

func TestInboundWriteDispatch(t *testing.T) {
	var gotTargets codec.ControlTargets
	_, backend := newTestService(t, testConfig(t), Callbacks{
		SetTargets: func(ct codec.ControlTargets) error {
			gotTargets = ct
			return nil
		},
	})

	want := codec.ControlTargets{TempMinX10: 170, TempMaxX10: 230, RHMinX10: 800, CO2Max: 900, LightMode: codec.LightOn}
	err := backend.callbacks.WriteCharacteristic("control_targets", want.Encode(), "aa:bb")
	require.NoError(t, err)
	assert.Equal(t, want, gotTargets)

	// The accepted write is cached and notified back out.
	raw := backend.callbacks.ReadCharacteristic("control_targets")
	got, err := codec.DecodeControlTargets(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	waitFor(t, func() bool {
		for _, n := range backend.notifications() {
			if n == "control_targets" {
				return true
			}
		}
		return false
	})
}

func TestInboundWriteRejectsReadOnly(t *testing.T) {
	_, backend := newTestService(t, testConfig(t), Callbacks{})

	err := backend.callbacks.WriteCharacteristic("environmental", []byte{0}, "aa:bb")
	assert.ErrorContains(t, err, "read-only")

	err = backend.callbacks.WriteCharacteristic("bogus", []byte{0}, "aa:bb")
	assert.ErrorContains(t, err, "unknown characteristic")
}

func TestInboundWriteRejectsBadLength(t *testing.T) {
	called := false
	_, backend := newTestService(t, testConfig(t), Callbacks{
		SetOverrides: func(codec.OverrideBits) error {
			called = true
			return nil
		},
	})

	err := backend.callbacks.WriteCharacteristic("override_bits", []byte{1}, "aa:bb")
	assert.Error(t, err)
	assert.False(t, called, "setter must not run on a malformed write")
}

func TestConfigControlRoundTrip(t *testing.T) {
	_, backend := newTestService(t, testConfig(t), Callbacks{})

	hello, err := json.Marshal(syncproto.Frame{Op: syncproto.OpHello})
	require.NoError(t, err)
	require.NoError(t, backend.callbacks.WriteCharacteristic("config_control", hello, "aa:bb"))

	// The session's response lands on the response characteristic and is
	// notified at low priority.
	waitFor(t, func() bool {
		return backend.callbacks.ReadCharacteristic("config_response") != nil
	})
	var resp syncproto.Frame
	require.NoError(t, json.Unmarshal(backend.callbacks.ReadCharacteristic("config_response"), &resp))
	assert.Equal(t, syncproto.OpHello, resp.Op)
	assert.True(t, resp.OK)
}

func TestDocumentSyncUpdatesAdvertisingName(t *testing.T) {
	cfg := testConfig(t)
	_, backend := newTestService(t, cfg, Callbacks{})

	doc := map[string]interface{}{
		"species":       "oyster",
		"stage":         "fruiting",
		"start_time":    "2026-08-01T00:00:00Z",
		"expected_days": 14,
		"mode":          "full",
	}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)

	write := func(frame syncproto.Frame) {
		raw, err := json.Marshal(frame)
		require.NoError(t, err)
		require.NoError(t, backend.callbacks.WriteCharacteristic("config_control", raw, "aa:bb"))
	}

	write(syncproto.Frame{
		Op:       syncproto.OpPutBegin,
		TotalLen: len(payload),
		SHA256:   syncproto.HexSHA256(payload),
	})
	waitFor(t, func() bool { return backend.callbacks.ReadCharacteristic("config_response") != nil })

	var begin syncproto.Frame
	require.NoError(t, json.Unmarshal(backend.callbacks.ReadCharacteristic("config_response"), &begin))
	require.True(t, begin.OK, "PUT_BEGIN rejected: %s", begin.Err)

	chunk, err := json.Marshal(syncproto.Frame{
		Op:      syncproto.OpChunk,
		TxID:    begin.TxID,
		Seq:     0,
		DataB64: base64.StdEncoding.EncodeToString(payload),
	})
	require.NoError(t, err)
	require.NoError(t, backend.callbacks.WriteCharacteristic("config_data", chunk, "aa:bb"))

	write(syncproto.Frame{Op: syncproto.OpPutCommit, TxID: begin.TxID})

	waitFor(t, func() bool {
		for _, n := range backend.names() {
			if n == fmt.Sprintf("%s-oysterfruiting", cfg.AdvertisingPrefix) {
				return true
			}
		}
		return false
	})
}

func TestServiceStopIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, testConfig(t), Callbacks{})
	svc.Stop()
	svc.Stop()
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Queue.Policy = "bogus"
	_, err := New(Options{Config: cfg, Logger: quietLogger()})
	assert.Error(t, err)
}

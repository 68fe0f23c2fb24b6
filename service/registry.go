package service

import (
	"bytes"
	"sync"

	"github.com/mycobotics/chamberlink/internal/notify"
	"github.com/mycobotics/chamberlink/internal/transport"
)

// Kind enumerates the characteristics the chamber exposes. The set is
// closed; adding a characteristic means adding a Kind and a table entry.
type Kind int

const (
	KindEnvironmental Kind = iota
	KindControlTargets
	KindStageState
	KindOverrideBits
	KindStatusFlags
	KindActuatorStatus
	KindConfigControl
	KindConfigData
	KindConfigResponse
)

// ServiceUUID identifies the chamber GATT service.
const ServiceUUID = "7e430000-5c1f-46a9-9f2b-d85a6e2b8c10"

type characteristicDef struct {
	kind       Kind
	id         string
	uuid       string
	priority   notify.Priority
	readable   bool
	writable   bool
	notifiable bool
}

// The characteristic table. Priorities follow delivery urgency: telemetry
// and actuator state are what a grower reacts to, status flags carry
// alarms, targets and stage describe slow-moving intent, everything else
// is bookkeeping.
var characteristicTable = []characteristicDef{
	{KindEnvironmental, "environmental", "7e430001-5c1f-46a9-9f2b-d85a6e2b8c10", notify.PriorityCritical, true, false, true},
	{KindControlTargets, "control_targets", "7e430002-5c1f-46a9-9f2b-d85a6e2b8c10", notify.PriorityMedium, true, true, true},
	{KindStageState, "stage_state", "7e430003-5c1f-46a9-9f2b-d85a6e2b8c10", notify.PriorityMedium, true, true, true},
	{KindOverrideBits, "override_bits", "7e430004-5c1f-46a9-9f2b-d85a6e2b8c10", notify.PriorityLow, true, true, true},
	{KindStatusFlags, "status_flags", "7e430005-5c1f-46a9-9f2b-d85a6e2b8c10", notify.PriorityHigh, true, false, true},
	{KindActuatorStatus, "actuator_status", "7e430006-5c1f-46a9-9f2b-d85a6e2b8c10", notify.PriorityCritical, true, false, true},
	{KindConfigControl, "config_control", "7e430007-5c1f-46a9-9f2b-d85a6e2b8c10", notify.PriorityLow, false, true, false},
	{KindConfigData, "config_data", "7e430008-5c1f-46a9-9f2b-d85a6e2b8c10", notify.PriorityLow, false, true, false},
	{KindConfigResponse, "config_response", "7e430009-5c1f-46a9-9f2b-d85a6e2b8c10", notify.PriorityLow, true, false, true},
}

var kindByID = func() map[string]characteristicDef {
	m := make(map[string]characteristicDef, len(characteristicTable))
	for _, def := range characteristicTable {
		m[def.id] = def
	}
	return m
}()

var defByKind = func() map[Kind]characteristicDef {
	m := make(map[Kind]characteristicDef, len(characteristicTable))
	for _, def := range characteristicTable {
		m[def.kind] = def
	}
	return m
}()

// ID returns the stable characteristic identifier.
func (k Kind) ID() string { return defByKind[k].id }

// UUID returns the 128-bit GATT UUID.
func (k Kind) UUID() string { return defByKind[k].uuid }

// Priority returns the notification priority class.
func (k Kind) Priority() notify.Priority { return defByKind[k].priority }

// TransportDefs maps the table into the backend's characteristic config.
func TransportDefs() []transport.CharacteristicDef {
	defs := make([]transport.CharacteristicDef, 0, len(characteristicTable))
	for _, def := range characteristicTable {
		defs = append(defs, transport.CharacteristicDef{
			ID:         def.id,
			UUID:       def.uuid,
			Readable:   def.readable,
			Writable:   def.writable,
			Notifiable: def.notifiable,
		})
	}
	return defs
}

// registry caches the last encoded value per characteristic so reads are
// served without touching the control loop and so unchanged values are not
// re-notified.
type registry struct {
	mu     sync.RWMutex
	values map[Kind][]byte
}

func newRegistry() *registry {
	return &registry{values: make(map[Kind][]byte)}
}

// update stores data and reports whether it differs from the cached value.
func (r *registry) update(kind Kind, data []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.values[kind]; ok && bytes.Equal(prev, data) {
		return false
	}
	r.values[kind] = append([]byte(nil), data...)
	return true
}

// value returns the cached encoding, nil if never set.
func (r *registry) value(kind Kind) []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[kind]
}


package codec

import "encoding/binary"

// Wire sizes of the bitfield characteristics.
const (
	OverrideBitsSize   = 2
	StatusFlagsSize    = 4
	ActuatorStatusSize = 2
)

// Override bit positions.
const (
	OverrideLight             = 1 << 0
	OverrideFan               = 1 << 1
	OverrideMist              = 1 << 2
	OverrideHeater            = 1 << 3
	OverrideDisableAutomation = 1 << 7
	OverrideEmergencyStop     = 1 << 15
)

// Status flag bit positions.
const (
	StatusSensorError    = 1 << 0
	StatusControlError   = 1 << 1
	StatusStageReady     = 1 << 2
	StatusThresholdAlarm = 1 << 3
	StatusConnectivity   = 1 << 4
	StatusSimulation     = 1 << 7
)

// Actuator bit positions.
const (
	ActuatorLight  = 1 << 0
	ActuatorFan    = 1 << 1
	ActuatorMist   = 1 << 2
	ActuatorHeater = 1 << 3
)

// OverrideBits carries the manual actuator override mask.
type OverrideBits struct {
	Bits int // u16
}

// EmergencyStop reports whether the emergency-stop bit is set.
func (o OverrideBits) EmergencyStop() bool {
	return clampU16(o.Bits)&OverrideEmergencyStop != 0
}

// AutomationDisabled reports whether automation is overridden off.
func (o OverrideBits) AutomationDisabled() bool {
	return clampU16(o.Bits)&OverrideDisableAutomation != 0
}

// Encode packs the override mask into its 2-byte little-endian layout.
func (o OverrideBits) Encode() []byte {
	b := make([]byte, OverrideBitsSize)
	binary.LittleEndian.PutUint16(b, clampU16(o.Bits))
	return b
}

// DecodeOverrideBits unpacks a 2-byte override frame.
func DecodeOverrideBits(b []byte) (OverrideBits, error) {
	if len(b) != OverrideBitsSize {
		return OverrideBits{}, &LengthError{Characteristic: "override_bits", Want: OverrideBitsSize, Got: len(b)}
	}
	return OverrideBits{Bits: int(binary.LittleEndian.Uint16(b))}, nil
}

// StatusFlags carries the controller health/status word.
type StatusFlags struct {
	Flags    int // u16
	Reserved int // u16
}

// Encode packs the status word into its 4-byte little-endian layout.
func (s StatusFlags) Encode() []byte {
	b := make([]byte, StatusFlagsSize)
	binary.LittleEndian.PutUint16(b[0:2], clampU16(s.Flags))
	binary.LittleEndian.PutUint16(b[2:4], clampU16(s.Reserved))
	return b
}

// DecodeStatusFlags unpacks a 4-byte status frame.
func DecodeStatusFlags(b []byte) (StatusFlags, error) {
	if len(b) != StatusFlagsSize {
		return StatusFlags{}, &LengthError{Characteristic: "status_flags", Want: StatusFlagsSize, Got: len(b)}
	}
	return StatusFlags{
		Flags:    int(binary.LittleEndian.Uint16(b[0:2])),
		Reserved: int(binary.LittleEndian.Uint16(b[2:4])),
	}, nil
}

// ActuatorStatus carries the live relay states.
type ActuatorStatus struct {
	Bits int // u16
}

// Encode packs the actuator states into their 2-byte little-endian layout.
func (a ActuatorStatus) Encode() []byte {
	b := make([]byte, ActuatorStatusSize)
	binary.LittleEndian.PutUint16(b, clampU16(a.Bits))
	return b
}

// DecodeActuatorStatus unpacks a 2-byte actuator frame.
func DecodeActuatorStatus(b []byte) (ActuatorStatus, error) {
	if len(b) != ActuatorStatusSize {
		return ActuatorStatus{}, &LengthError{Characteristic: "actuator_status", Want: ActuatorStatusSize, Got: len(b)}
	}
	return ActuatorStatus{Bits: int(binary.LittleEndian.Uint16(b))}, nil
}

package codec

import "encoding/binary"

// ControlTargetsSize is the wire size of the control targets characteristic.
const ControlTargetsSize = 15

// Light modes for ControlTargets.LightMode.
const (
	LightOff   = 0
	LightOn    = 1
	LightCycle = 2
)

// ControlTargets carries the setpoints the control loop regulates toward.
type ControlTargets struct {
	TempMinX10 int // i16
	TempMaxX10 int // i16
	RHMinX10   int // u16
	CO2Max     int // u16
	LightMode  int // u8: 0=off, 1=on, 2=cycle
	OnMin      int // u16, light-cycle on duration in minutes
	OffMin     int // u16, light-cycle off duration in minutes
	Reserved   int // u16
}

// Encode packs the targets into their 15-byte little-endian layout.
func (t ControlTargets) Encode() []byte {
	b := make([]byte, ControlTargetsSize)
	binary.LittleEndian.PutUint16(b[0:2], uint16(clampI16(t.TempMinX10)))
	binary.LittleEndian.PutUint16(b[2:4], uint16(clampI16(t.TempMaxX10)))
	binary.LittleEndian.PutUint16(b[4:6], clampU16(t.RHMinX10))
	binary.LittleEndian.PutUint16(b[6:8], clampU16(t.CO2Max))
	b[8] = clampU8(t.LightMode)
	binary.LittleEndian.PutUint16(b[9:11], clampU16(t.OnMin))
	binary.LittleEndian.PutUint16(b[11:13], clampU16(t.OffMin))
	binary.LittleEndian.PutUint16(b[13:15], clampU16(t.Reserved))
	return b
}

// DecodeControlTargets unpacks a 15-byte control targets frame.
func DecodeControlTargets(b []byte) (ControlTargets, error) {
	if len(b) != ControlTargetsSize {
		return ControlTargets{}, &LengthError{Characteristic: "control_targets", Want: ControlTargetsSize, Got: len(b)}
	}
	return ControlTargets{
		TempMinX10: int(int16(binary.LittleEndian.Uint16(b[0:2]))),
		TempMaxX10: int(int16(binary.LittleEndian.Uint16(b[2:4]))),
		RHMinX10:   int(binary.LittleEndian.Uint16(b[4:6])),
		CO2Max:     int(binary.LittleEndian.Uint16(b[6:8])),
		LightMode:  int(b[8]),
		OnMin:      int(binary.LittleEndian.Uint16(b[9:11])),
		OffMin:     int(binary.LittleEndian.Uint16(b[11:13])),
		Reserved:   int(binary.LittleEndian.Uint16(b[13:15])),
	}, nil
}

package codec

import "encoding/binary"

// StageStateSize is the wire size of the stage state characteristic.
const StageStateSize = 10

// Automation modes for StageState.Mode.
const (
	ModeFull   = 0
	ModeSemi   = 1
	ModeManual = 2
)

// StageState describes the active growth stage and automation mode.
type StageState struct {
	Mode         int   // u8: 0=full, 1=semi, 2=manual
	SpeciesID    int   // u8
	StageID      int   // u8
	StartTS      int64 // u32, unix seconds when the stage started
	ExpectedDays int   // u16
	Pad          int   // u8
}

// Encode packs the stage state into its 10-byte little-endian layout.
func (s StageState) Encode() []byte {
	b := make([]byte, StageStateSize)
	b[0] = clampU8(s.Mode)
	b[1] = clampU8(s.SpeciesID)
	b[2] = clampU8(s.StageID)
	binary.LittleEndian.PutUint32(b[3:7], clampU32(s.StartTS))
	binary.LittleEndian.PutUint16(b[7:9], clampU16(s.ExpectedDays))
	b[9] = clampU8(s.Pad)
	return b
}

// DecodeStageState unpacks a 10-byte stage state frame.
func DecodeStageState(b []byte) (StageState, error) {
	if len(b) != StageStateSize {
		return StageState{}, &LengthError{Characteristic: "stage_state", Want: StageStateSize, Got: len(b)}
	}
	return StageState{
		Mode:         int(b[0]),
		SpeciesID:    int(b[1]),
		StageID:      int(b[2]),
		StartTS:      int64(binary.LittleEndian.Uint32(b[3:7])),
		ExpectedDays: int(binary.LittleEndian.Uint16(b[7:9])),
		Pad:          int(b[9]),
	}, nil
}

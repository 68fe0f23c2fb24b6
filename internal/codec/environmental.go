package codec

import "encoding/binary"

// EnvironmentalSize is the wire size of the environmental telemetry characteristic.
const EnvironmentalSize = 12

// Environmental carries the current sensor readings.
//
// Fields are held wider than their wire types so callers can pass raw
// control-loop values; Encode clamps them to the wire ranges.
type Environmental struct {
	CO2PPM   int   // u16, parts per million
	TempX10  int   // i16, degrees Celsius x10
	RHX10    int   // u16, relative humidity percent x10
	LightRaw int   // u16, raw photosensor reading
	UptimeMS int64 // u32, milliseconds since controller boot
}

// Encode packs the reading into its 12-byte little-endian layout.
func (e Environmental) Encode() []byte {
	b := make([]byte, EnvironmentalSize)
	binary.LittleEndian.PutUint16(b[0:2], clampU16(e.CO2PPM))
	binary.LittleEndian.PutUint16(b[2:4], uint16(clampI16(e.TempX10)))
	binary.LittleEndian.PutUint16(b[4:6], clampU16(e.RHX10))
	binary.LittleEndian.PutUint16(b[6:8], clampU16(e.LightRaw))
	binary.LittleEndian.PutUint32(b[8:12], clampU32(e.UptimeMS))
	return b
}

// DecodeEnvironmental unpacks a 12-byte environmental frame.
func DecodeEnvironmental(b []byte) (Environmental, error) {
	if len(b) != EnvironmentalSize {
		return Environmental{}, &LengthError{Characteristic: "environmental", Want: EnvironmentalSize, Got: len(b)}
	}
	return Environmental{
		CO2PPM:   int(binary.LittleEndian.Uint16(b[0:2])),
		TempX10:  int(int16(binary.LittleEndian.Uint16(b[2:4]))),
		RHX10:    int(binary.LittleEndian.Uint16(b[4:6])),
		LightRaw: int(binary.LittleEndian.Uint16(b[6:8])),
		UptimeMS: int64(binary.LittleEndian.Uint32(b[8:12])),
	}, nil
}

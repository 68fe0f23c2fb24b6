// Package codec implements the fixed-size binary layouts of the chamber's
// GATT characteristics.
//
// All layouts are little-endian. Encoding is total: out-of-range fields are
// clamped to the representable range of their wire type, never rejected,
// because the encoder sits on the control-loop hot path. Decoding rejects
// any input whose length does not exactly match the declared layout size.
package codec

import "fmt"

// LengthError is returned by the Decode functions when the input is not
// exactly the declared size for the characteristic.
type LengthError struct {
	Characteristic string
	Want           int
	Got            int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%s: expected %d bytes, got %d", e.Characteristic, e.Want, e.Got)
}

// Is allows errors.Is comparison against any *LengthError
func (e *LengthError) Is(target error) bool {
	_, ok := target.(*LengthError)
	return ok
}

func clampU8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 0xff {
		return 0xff
	}
	return uint8(v)
}

func clampU16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xffff {
		return 0xffff
	}
	return uint16(v)
}

func clampI16(v int) int16 {
	if v < -0x8000 {
		return -0x8000
	}
	if v > 0x7fff {
		return 0x7fff
	}
	return int16(v)
}

func clampU32(v int64) uint32 {
	if v < 0 {
		return 0
	}
	if v > 0xffffffff {
		return 0xffffffff
	}
	return uint32(v)
}

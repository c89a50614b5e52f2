// Package am is the B+-tree access method (§3.4, §4.4 of the spec). It
// indexes fixed-length typed keys to sp-layer record ids, built as its
// own index files directly on pf. Leaf pages chain left-to-right for
// sequential and range scans; duplicate keys chain their record ids
// within a leaf slot rather than triggering a split (Design Notes §9).
package am

import (
	"encoding/binary"
	"math"

	"pfidx/internal/errs"
)

// AttrType selects the key comparator used by one index.
type AttrType byte

const (
	// Int keys are 4-byte, little-endian signed integers.
	Int AttrType = 'i'
	// Float keys are 4-byte IEEE-754 single precision.
	Float AttrType = 'f'
	// Char keys are fixed-length byte strings, compared lexicographically.
	Char AttrType = 'c'
)

func (t AttrType) String() string {
	switch t {
	case Int:
		return "INT"
	case Float:
		return "FLOAT"
	case Char:
		return "CHAR"
	default:
		return "UNKNOWN"
	}
}

// ValidateAttr checks attr_length against attr_type's rules (§4.4.6):
// 4 for INT/FLOAT, 1..255 for CHAR.
func ValidateAttr(t AttrType, length int) error {
	switch t {
	case Int, Float:
		if length != 4 {
			return errs.Newf("am.ValidateAttr", errs.InvalidAttrLength, "type %s requires length 4, got %d", t, length)
		}
	case Char:
		if length < 1 || length > 255 {
			return errs.Newf("am.ValidateAttr", errs.InvalidAttrLength, "CHAR length %d out of range [1,255]", length)
		}
	default:
		return errs.Newf("am.ValidateAttr", errs.InvalidAttrType, "unknown attribute type %q", byte(t))
	}
	return nil
}

// Compare is the single 3-way comparator dispatching on attr type
// (§4.4.1). CHAR keys compare as fixed-length byte strings of length
// bytes; callers are responsible for null-padding shorter values.
func Compare(a, b []byte, t AttrType, length int) int {
	switch t {
	case Int:
		av := int32(binary.LittleEndian.Uint32(a[:4]))
		bv := int32(binary.LittleEndian.Uint32(b[:4]))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case Float:
		av := math.Float32frombits(binary.LittleEndian.Uint32(a[:4]))
		bv := math.Float32frombits(binary.LittleEndian.Uint32(b[:4]))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	default: // Char
		for i := 0; i < length; i++ {
			if a[i] != b[i] {
				if a[i] < b[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	}
}

// EncodeInt packs an int32 key as its 4-byte little-endian representation.
func EncodeInt(v int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

// EncodeFloat packs a float32 key as its 4-byte IEEE-754 representation.
func EncodeFloat(v float32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

// EncodeChar null-pads s to length bytes, truncating if longer.
func EncodeChar(s string, length int) []byte {
	buf := make([]byte, length)
	copy(buf, s)
	return buf
}

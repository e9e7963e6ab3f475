package volume

import (
	"fmt"
	"math"
	"strings"
)

// DataType identifies the numeric type of a volume's voxels.
type DataType uint8

const (
	Unknown DataType = iota
	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Float32
	Float64
)

var dataTypeNames = map[DataType]string{
	Uint8:   "uint8",
	Int8:    "int8",
	Uint16:  "uint16",
	Int16:   "int16",
	Uint32:  "uint32",
	Int32:   "int32",
	Float32: "float32",
	Float64: "float64",
}

func (d DataType) String() string {
	if name, ok := dataTypeNames[d]; ok {
		return name
	}
	return "unknown"
}

// ParseDataType resolves a data type name such as "int16".
func ParseDataType(name string) (DataType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for dt, candidate := range dataTypeNames {
		if candidate == name {
			return dt, nil
		}
	}
	return Unknown, fmt.Errorf("unknown data type %q", name)
}

// Size returns the storage width in bytes.
func (d DataType) Size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// Valid reports whether d is a known data type.
func (d DataType) Valid() bool {
	_, ok := dataTypeNames[d]
	return ok
}

// IsInteger reports whether d stores integral values.
func (d DataType) IsInteger() bool {
	switch d {
	case Uint8, Int8, Uint16, Int16, Uint32, Int32:
		return true
	default:
		return false
	}
}

func (d DataType) bounds() (float64, float64) {
	switch d {
	case Uint8:
		return 0, math.MaxUint8
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Uint16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Float32:
		return -math.MaxFloat32, math.MaxFloat32
	default:
		return -math.MaxFloat64, math.MaxFloat64
	}
}

// Coerce maps v into the representable range of d. Integer types round to
// the nearest value and saturate at their limits; NaN becomes zero.
func (d DataType) Coerce(v float64) float64 {
	if math.IsNaN(v) {
		if d.IsInteger() {
			return 0
		}
		return v
	}
	lo, hi := d.bounds()
	if d.IsInteger() {
		v = math.Round(v)
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	if d == Float32 {
		return float64(float32(v))
	}
	return v
}

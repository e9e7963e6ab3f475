package volume

import (
	"errors"
	"fmt"
	"math"
)

// ErrNotMaterialized reports a handle without usable voxel data.
var ErrNotMaterialized = errors.New("volume not materialized")

// Volume is an in-memory image. Voxels are stored x-fastest, then y, z, and
// frame, as float64 values already coerced to DataType.
type Volume struct {
	Name     string
	Dims     [4]int
	DataType DataType
	Affine   Affine
	Data     []float64
}

// New allocates a zero-filled volume. A zero frame count is treated as one.
func New(name string, dims [4]int, dt DataType) *Volume {
	if dims[3] <= 0 {
		dims[3] = 1
	}
	v := &Volume{Name: name, Dims: dims, DataType: dt, Affine: Identity()}
	if n := voxelCount(dims); n > 0 {
		v.Data = make([]float64, n)
	}
	return v
}

// Empty returns an unmaterialized handle that can receive content through
// CopyContent.
func Empty(name string) *Volume {
	return &Volume{Name: name, Affine: Identity()}
}

func voxelCount(dims [4]int) int {
	n := 1
	for _, d := range dims {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}

// Len returns the number of voxels implied by Dims.
func (v *Volume) Len() int {
	if v == nil {
		return 0
	}
	return voxelCount(v.Dims)
}

// Validate reports whether the handle is materialized.
func (v *Volume) Validate() error {
	if v == nil {
		return fmt.Errorf("%w: nil handle", ErrNotMaterialized)
	}
	for i, d := range v.Dims {
		if d <= 0 {
			return fmt.Errorf("%w: dim %d is %d", ErrNotMaterialized, i, d)
		}
	}
	if !v.DataType.Valid() {
		return fmt.Errorf("%w: unknown data type", ErrNotMaterialized)
	}
	if len(v.Data) != v.Len() {
		return fmt.Errorf("%w: have %d voxels, dims imply %d", ErrNotMaterialized, len(v.Data), v.Len())
	}
	return nil
}

// IsEmpty reports whether the handle holds no voxels.
func (v *Volume) IsEmpty() bool {
	return v == nil || len(v.Data) == 0
}

// Spacing returns the voxel size in millimetres.
func (v *Volume) Spacing() [3]float64 {
	return v.Affine.Spacing()
}

// VoxelVolume returns the volume of one voxel in cubic millimetres.
func (v *Volume) VoxelVolume() float64 {
	s := v.Spacing()
	return s[0] * s[1] * s[2]
}

func (v *Volume) index(x, y, z, t int) int {
	return ((t*v.Dims[2]+z)*v.Dims[1]+y)*v.Dims[0] + x
}

// At returns the voxel value at (x, y, z, t).
func (v *Volume) At(x, y, z, t int) float64 {
	return v.Data[v.index(x, y, z, t)]
}

// Set stores value at (x, y, z, t), coerced to the volume's data type.
func (v *Volume) Set(x, y, z, t int, value float64) {
	v.Data[v.index(x, y, z, t)] = v.DataType.Coerce(value)
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	if v == nil {
		return nil
	}
	out := *v
	out.Data = append([]float64(nil), v.Data...)
	return &out
}

// CopyContent replaces the receiver's geometry, type, and voxels with a deep
// copy of src. The receiver keeps its Name.
func (v *Volume) CopyContent(src *Volume) {
	if v == nil || src == nil {
		return
	}
	v.Dims = src.Dims
	v.DataType = src.DataType
	v.Affine = src.Affine
	v.Data = append(v.Data[:0:0], src.Data...)
}

// Convert returns a copy of v with voxels coerced to dt.
func (v *Volume) Convert(dt DataType) *Volume {
	out := v.Clone()
	if out == nil {
		return nil
	}
	out.DataType = dt
	for i, value := range out.Data {
		out.Data[i] = dt.Coerce(value)
	}
	return out
}

// FitsIn reports whether every voxel survives conversion to dt unchanged.
func (v *Volume) FitsIn(dt DataType) bool {
	if v == nil || !dt.Valid() {
		return false
	}
	for _, value := range v.Data {
		if math.IsNaN(value) {
			if dt.IsInteger() {
				return false
			}
			continue
		}
		if dt.Coerce(value) != value {
			return false
		}
	}
	return true
}

// SameGeometry reports whether a and b share dims and affine.
func SameGeometry(a, b *Volume) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Dims == b.Dims && a.Affine.ApproxEqual(b.Affine, 1e-4)
}

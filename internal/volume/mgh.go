package volume

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MGH type codes as written by FreeSurfer.
const (
	mghUchar  int32 = 0
	mghInt    int32 = 1
	mghLong   int32 = 2
	mghFloat  int32 = 3
	mghShort  int32 = 4
	mghUshort int32 = 10

	mghVersion    = 1
	mghHeaderSize = 284
)

type mghHeader struct {
	Version int32
	Width   int32
	Height  int32
	Depth   int32
	Frames  int32
	Type    int32
	DOF     int32
	GoodRAS int16
	Spacing [3]float32
	Mdc     [9]float32 // x_ras, y_ras, z_ras column cosines
	CRAS    [3]float32
}

func mghToDataType(code int32) (DataType, error) {
	switch code {
	case mghUchar:
		return Uint8, nil
	case mghInt, mghLong:
		return Int32, nil
	case mghFloat:
		return Float32, nil
	case mghShort:
		return Int16, nil
	case mghUshort:
		return Uint16, nil
	default:
		return Unknown, fmt.Errorf("mgh: unsupported type code %d", code)
	}
}

// mghStorage picks the on-disk type for dt. MGH has no int8, uint32, or
// float64 storage, so those widen to the nearest type that holds them.
func mghStorage(dt DataType) (int32, DataType) {
	switch dt {
	case Uint8:
		return mghUchar, Uint8
	case Int16:
		return mghShort, Int16
	case Int8, Uint16, Int32:
		return mghInt, Int32
	default:
		return mghFloat, Float32
	}
}

// ReadMGH decodes an uncompressed MGH stream.
func ReadMGH(r io.Reader) (*Volume, error) {
	br := bufio.NewReader(r)
	var hdr mghHeader
	if err := binary.Read(br, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("mgh: read header: %w", err)
	}
	if hdr.Version != mghVersion {
		return nil, fmt.Errorf("mgh: unexpected version %d", hdr.Version)
	}
	dims := [4]int{int(hdr.Width), int(hdr.Height), int(hdr.Depth), int(hdr.Frames)}
	if voxelCount(dims) == 0 {
		return nil, fmt.Errorf("mgh: invalid dimensions %v", dims)
	}
	dt, err := mghToDataType(hdr.Type)
	if err != nil {
		return nil, err
	}
	if _, err := br.Discard(mghHeaderSize - binary.Size(hdr)); err != nil {
		return nil, fmt.Errorf("mgh: skip header padding: %w", err)
	}
	data, err := readVoxels(br, binary.BigEndian, dt, voxelCount(dims))
	if err != nil {
		return nil, fmt.Errorf("mgh: %w", err)
	}
	return &Volume{
		Dims:     dims,
		DataType: dt,
		Affine:   mghAffine(hdr, dims),
		Data:     data,
	}, nil
}

// mghAffine computes vox2ras from the direction cosines, spacing, and the
// RAS coordinate of the centre voxel.
func mghAffine(hdr mghHeader, dims [4]int) Affine {
	spacing := [3]float64{1, 1, 1}
	mdc := [3][3]float64{{-1, 0, 0}, {0, 0, -1}, {0, 1, 0}}
	var cras [3]float64
	if hdr.GoodRAS > 0 {
		for i := 0; i < 3; i++ {
			spacing[i] = float64(hdr.Spacing[i])
			cras[i] = float64(hdr.CRAS[i])
			for r := 0; r < 3; r++ {
				mdc[i][r] = float64(hdr.Mdc[i*3+r])
			}
		}
	}
	a := Identity()
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			a[r][c] = mdc[c][r] * spacing[c]
		}
	}
	center := [3]float64{float64(dims[0]) / 2, float64(dims[1]) / 2, float64(dims[2]) / 2}
	for r := 0; r < 3; r++ {
		a[r][3] = cras[r] - (a[r][0]*center[0] + a[r][1]*center[1] + a[r][2]*center[2])
	}
	return a
}

// WriteMGH encodes v as an uncompressed MGH stream.
func WriteMGH(w io.Writer, v *Volume) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("mgh: %w", err)
	}
	code, storage := mghStorage(v.DataType)
	hdr := mghHeader{
		Version: mghVersion,
		Width:   int32(v.Dims[0]),
		Height:  int32(v.Dims[1]),
		Depth:   int32(v.Dims[2]),
		Frames:  int32(v.Dims[3]),
		Type:    code,
		GoodRAS: 1,
	}
	spacing := v.Affine.Spacing()
	dirs := v.Affine.Directions()
	center := v.Affine.Apply(float64(v.Dims[0])/2, float64(v.Dims[1])/2, float64(v.Dims[2])/2)
	for i := 0; i < 3; i++ {
		hdr.Spacing[i] = float32(spacing[i])
		hdr.CRAS[i] = float32(center[i])
		for r := 0; r < 3; r++ {
			hdr.Mdc[i*3+r] = float32(dirs[i][r])
		}
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.BigEndian, hdr); err != nil {
		return fmt.Errorf("mgh: write header: %w", err)
	}
	if _, err := bw.Write(make([]byte, mghHeaderSize-binary.Size(hdr))); err != nil {
		return fmt.Errorf("mgh: write header padding: %w", err)
	}
	if err := writeVoxels(bw, binary.BigEndian, storage, v.Data); err != nil {
		return fmt.Errorf("mgh: %w", err)
	}
	return bw.Flush()
}

package volume

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	niftiHeaderSize = 348
	niftiVoxOffset  = 352

	niftiXformScanner = 1
	niftiUnitsMM      = 2
)

// NIfTI-1 datatype codes.
const (
	niftiUint8   int16 = 2
	niftiInt16   int16 = 4
	niftiInt32   int16 = 8
	niftiFloat32 int16 = 16
	niftiFloat64 int16 = 64
	niftiInt8    int16 = 256
	niftiUint16  int16 = 512
	niftiUint32  int16 = 768
)

// niftiHeader mirrors the 348-byte nifti1 header field for field.
type niftiHeader struct {
	SizeOfHdr      int32
	DataTypeUnused [10]byte
	DBName         [18]byte
	Extents        int32
	SessionError   int16
	Regular        byte
	DimInfo        byte

	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	DataType      int16
	BitPix        int16
	SliceStart    int16
	PixDim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	GLMax         int32
	GLMin         int32

	Descrip [80]byte
	AuxFile [24]byte

	QFormCode int16
	SFormCode int16

	QuaternB float32
	QuaternC float32
	QuaternD float32
	QOffsetX float32
	QOffsetY float32
	QOffsetZ float32

	SRowX [4]float32
	SRowY [4]float32
	SRowZ [4]float32

	IntentName [16]byte
	Magic      [4]byte
}

var niftiTypes = map[int16]DataType{
	niftiUint8:   Uint8,
	niftiInt16:   Int16,
	niftiInt32:   Int32,
	niftiFloat32: Float32,
	niftiFloat64: Float64,
	niftiInt8:    Int8,
	niftiUint16:  Uint16,
	niftiUint32:  Uint32,
}

func niftiCode(dt DataType) (int16, bool) {
	for code, candidate := range niftiTypes {
		if candidate == dt {
			return code, true
		}
	}
	return 0, false
}

// ReadNIfTI decodes a single-file (n+1) NIfTI-1 stream in either byte order.
func ReadNIfTI(r io.Reader) (*Volume, error) {
	br := bufio.NewReader(r)
	raw := make([]byte, niftiHeaderSize)
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("nifti: read header: %w", err)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if int32(binary.LittleEndian.Uint32(raw)) != niftiHeaderSize {
		if int32(binary.BigEndian.Uint32(raw)) != niftiHeaderSize {
			return nil, fmt.Errorf("nifti: bad header size")
		}
		order = binary.BigEndian
	}
	var hdr niftiHeader
	if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
		return nil, fmt.Errorf("nifti: decode header: %w", err)
	}
	if hdr.Magic != [4]byte{'n', '+', '1', 0} {
		return nil, fmt.Errorf("nifti: unsupported magic %q", hdr.Magic[:3])
	}

	dt, ok := niftiTypes[hdr.DataType]
	if !ok {
		return nil, fmt.Errorf("nifti: unsupported datatype %d", hdr.DataType)
	}
	ndim := int(hdr.Dim[0])
	if ndim < 1 || ndim > 7 {
		return nil, fmt.Errorf("nifti: invalid dim[0] %d", ndim)
	}
	dims := [4]int{1, 1, 1, 1}
	for i := 0; i < min(ndim, 4); i++ {
		dims[i] = int(hdr.Dim[i+1])
	}
	for i := 5; i <= ndim; i++ {
		if hdr.Dim[i] > 1 {
			return nil, fmt.Errorf("nifti: %d-dimensional images are not supported", ndim)
		}
	}
	if voxelCount(dims) == 0 {
		return nil, fmt.Errorf("nifti: invalid dimensions %v", dims)
	}

	offset := int(hdr.VoxOffset)
	if offset < niftiHeaderSize {
		offset = niftiVoxOffset
	}
	if _, err := br.Discard(offset - niftiHeaderSize); err != nil {
		return nil, fmt.Errorf("nifti: skip extensions: %w", err)
	}
	data, err := readVoxels(br, order, dt, voxelCount(dims))
	if err != nil {
		return nil, fmt.Errorf("nifti: %w", err)
	}

	slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
	if slope != 0 && !(slope == 1 && inter == 0) {
		for i := range data {
			data[i] = data[i]*slope + inter
		}
		dt = Float32
		if hdr.DataType == niftiFloat64 {
			dt = Float64
		}
		for i := range data {
			data[i] = dt.Coerce(data[i])
		}
	}

	return &Volume{
		Dims:     dims,
		DataType: dt,
		Affine:   niftiAffine(hdr),
		Data:     data,
	}, nil
}

// niftiAffine prefers the sform, then the qform, then bare pixdim scaling.
func niftiAffine(hdr niftiHeader) Affine {
	if hdr.SFormCode > 0 {
		a := Identity()
		for c := 0; c < 4; c++ {
			a[0][c] = float64(hdr.SRowX[c])
			a[1][c] = float64(hdr.SRowY[c])
			a[2][c] = float64(hdr.SRowZ[c])
		}
		return a
	}
	dx, dy, dz := pixdimOrOne(hdr.PixDim[1]), pixdimOrOne(hdr.PixDim[2]), pixdimOrOne(hdr.PixDim[3])
	if hdr.QFormCode <= 0 {
		return Scaling(dx, dy, dz)
	}

	b, c, d := float64(hdr.QuaternB), float64(hdr.QuaternC), float64(hdr.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		norm := 1 / math.Sqrt(b*b+c*c+d*d)
		b, c, d = b*norm, c*norm, d*norm
		a = 0
	} else {
		a = math.Sqrt(a)
	}
	qfac := 1.0
	if hdr.PixDim[0] < 0 {
		qfac = -1
	}
	rot := [3][3]float64{
		{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c)},
		{2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b)},
		{2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - b*b - c*c},
	}
	scale := [3]float64{dx, dy, qfac * dz}
	out := Identity()
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			out[r][col] = rot[r][col] * scale[col]
		}
	}
	out[0][3] = float64(hdr.QOffsetX)
	out[1][3] = float64(hdr.QOffsetY)
	out[2][3] = float64(hdr.QOffsetZ)
	return out
}

func pixdimOrOne(v float32) float64 {
	if v <= 0 || math.IsNaN(float64(v)) {
		return 1
	}
	return float64(v)
}

// WriteNIfTI encodes v as a little-endian single-file NIfTI-1 stream. The
// geometry is carried in the sform; the qform is left unset.
func WriteNIfTI(w io.Writer, v *Volume) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("nifti: %w", err)
	}
	code, ok := niftiCode(v.DataType)
	if !ok {
		return fmt.Errorf("nifti: unsupported data type %s", v.DataType)
	}
	hdr := niftiHeader{
		SizeOfHdr: niftiHeaderSize,
		Regular:   'r',
		DataType:  code,
		BitPix:    int16(v.DataType.Size() * 8),
		VoxOffset: niftiVoxOffset,
		SclSlope:  1,
		XYZTUnits: niftiUnitsMM,
		SFormCode: niftiXformScanner,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	hdr.Dim[0] = 3
	if v.Dims[3] > 1 {
		hdr.Dim[0] = 4
	}
	for i := 0; i < 4; i++ {
		hdr.Dim[i+1] = int16(v.Dims[i])
	}
	for i := 5; i < 8; i++ {
		hdr.Dim[i] = 1
	}
	spacing := v.Affine.Spacing()
	hdr.PixDim[0] = 1
	for i := 0; i < 3; i++ {
		hdr.PixDim[i+1] = float32(spacing[i])
	}
	hdr.PixDim[4] = 1
	for c := 0; c < 4; c++ {
		hdr.SRowX[c] = float32(v.Affine[0][c])
		hdr.SRowY[c] = float32(v.Affine[1][c])
		hdr.SRowZ[c] = float32(v.Affine[2][c])
	}
	copy(hdr.Descrip[:], "synthbridge")

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("nifti: write header: %w", err)
	}
	if _, err := bw.Write(make([]byte, niftiVoxOffset-niftiHeaderSize)); err != nil {
		return fmt.Errorf("nifti: write extension flag: %w", err)
	}
	if err := writeVoxels(bw, binary.LittleEndian, v.DataType, v.Data); err != nil {
		return fmt.Errorf("nifti: %w", err)
	}
	return bw.Flush()
}

package volume

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

var errNoPixelData = errors.New("no pixel data")

// dicomSlice is one decoded image of a series.
type dicomSlice struct {
	path        string
	rows, cols  int
	spacing     [2]float64 // row spacing, column spacing
	position    [3]float64 // LPS
	orientation [6]float64 // LPS row then column cosines
	slope       float64
	intercept   float64
	signed      bool
	bits        int
	pixels      []float64
}

// LoadDICOMSeries reads every parseable DICOM file in dir (or the single
// file named by dir) as one single-frame-per-file series. Slices are ordered
// along the slice normal and the affine is converted from LPS to RAS.
func LoadDICOMSeries(dir string) (*Volume, error) {
	paths, err := seriesFiles(dir)
	if err != nil {
		return nil, err
	}
	slices := make([]dicomSlice, 0, len(paths))
	for _, path := range paths {
		s, err := readDICOMSlice(path)
		if err != nil {
			if errors.Is(err, errNoPixelData) {
				continue
			}
			return nil, fmt.Errorf("dicom %s: %w", filepath.Base(path), err)
		}
		slices = append(slices, s)
	}
	if len(slices) == 0 {
		return nil, fmt.Errorf("dicom: no image slices in %s", dir)
	}
	return assembleSeries(slices)
}

func seriesFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || strings.EqualFold(entry.Name(), "DICOMDIR") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func readDICOMSlice(path string) (s dicomSlice, err error) {
	// The Must* accessors panic on unexpected value types.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode: %v", r)
		}
	}()

	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return s, fmt.Errorf("parse: %w", err)
	}
	pixelElem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil || pixelElem == nil {
		return s, errNoPixelData
	}

	s.path = path
	s.rows = firstInt(ds, tag.Rows, 0)
	s.cols = firstInt(ds, tag.Columns, 0)
	s.bits = firstInt(ds, tag.BitsAllocated, 16)
	s.signed = firstInt(ds, tag.PixelRepresentation, 0) == 1
	s.slope = firstFloat(ds, tag.RescaleSlope, 1)
	s.intercept = firstFloat(ds, tag.RescaleIntercept, 0)
	if s.slope == 0 {
		s.slope = 1
	}

	spacing := floats(ds, tag.PixelSpacing)
	s.spacing = [2]float64{1, 1}
	if len(spacing) >= 2 {
		s.spacing = [2]float64{spacing[0], spacing[1]}
	}
	position := floats(ds, tag.ImagePositionPatient)
	if len(position) >= 3 {
		copy(s.position[:], position)
	}
	orientation := floats(ds, tag.ImageOrientationPatient)
	if len(orientation) >= 6 {
		copy(s.orientation[:], orientation)
	} else {
		s.orientation = [6]float64{1, 0, 0, 0, 1, 0}
	}

	info := dicom.MustGetPixelDataInfo(pixelElem.Value)
	if len(info.Frames) == 0 {
		return s, errNoPixelData
	}
	fr := info.Frames[0]
	if fr.Encapsulated || fr.NativeData == nil {
		return s, errors.New("compressed pixel data is not supported")
	}
	native := fr.NativeData
	if s.rows == 0 || s.cols == 0 {
		s.rows, s.cols = native.Rows(), native.Cols()
	}
	if native.SamplesPerPixel() != 1 {
		return s, fmt.Errorf("%d samples per pixel not supported", native.SamplesPerPixel())
	}
	s.pixels, err = nativePixels(native.RawDataSlice(), s.signed, s.bits)
	if err != nil {
		return s, err
	}
	if len(s.pixels) != s.rows*s.cols {
		return s, fmt.Errorf("pixel count %d does not match %dx%d", len(s.pixels), s.rows, s.cols)
	}
	return s, nil
}

func nativePixels(raw any, signed bool, bits int) ([]float64, error) {
	var out []float64
	switch data := raw.(type) {
	case []uint8:
		out = make([]float64, len(data))
		for i, v := range data {
			if signed {
				out[i] = float64(int8(v))
			} else {
				out[i] = float64(v)
			}
		}
	case []int8:
		out = make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
	case []uint16:
		out = make([]float64, len(data))
		for i, v := range data {
			if signed {
				out[i] = float64(int16(v))
			} else {
				out[i] = float64(v)
			}
		}
	case []int16:
		out = make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
	case []uint32:
		out = make([]float64, len(data))
		for i, v := range data {
			if signed {
				out[i] = float64(int32(v))
			} else {
				out[i] = float64(v)
			}
		}
	case []int32:
		out = make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
	case []int:
		out = make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("unsupported pixel storage %T (%d bits)", raw, bits)
	}
	return out, nil
}

func assembleSeries(slices []dicomSlice) (*Volume, error) {
	first := slices[0]
	for _, s := range slices[1:] {
		if s.rows != first.rows || s.cols != first.cols {
			return nil, fmt.Errorf("dicom: mixed slice sizes (%dx%d vs %dx%d)", s.rows, s.cols, first.rows, first.cols)
		}
	}

	rowDir := [3]float64{first.orientation[0], first.orientation[1], first.orientation[2]}
	colDir := [3]float64{first.orientation[3], first.orientation[4], first.orientation[5]}
	normal := cross(rowDir, colDir)
	sort.SliceStable(slices, func(i, j int) bool {
		return dot(normal, slices[i].position) < dot(normal, slices[j].position)
	})

	sliceStep := 1.0
	if len(slices) > 1 {
		sliceStep = dot(normal, slices[len(slices)-1].position) - dot(normal, slices[0].position)
		sliceStep /= float64(len(slices) - 1)
		if sliceStep == 0 {
			sliceStep = 1
		}
	}

	dt := Int16
	rescaled := false
	for _, s := range slices {
		if s.slope != 1 || s.intercept != 0 {
			rescaled = true
		}
	}
	switch {
	case rescaled && (math.Trunc(first.slope) != first.slope || math.Trunc(first.intercept) != first.intercept):
		dt = Float32
	case first.bits <= 8 && !first.signed && !rescaled:
		dt = Uint8
	case first.bits <= 16 && !first.signed && !rescaled:
		dt = Uint16
	case first.bits > 16:
		dt = Int32
	}

	dims := [4]int{first.cols, first.rows, len(slices), 1}
	v := New("", dims, dt)
	plane := first.rows * first.cols
	for k, s := range slices {
		for i, px := range s.pixels {
			v.Data[k*plane+i] = dt.Coerce(px*s.slope + s.intercept)
		}
	}

	// LPS affine: column index i walks along the row direction scaled by
	// the column spacing, row index j along the column direction.
	var lps Affine
	for r := 0; r < 3; r++ {
		lps[r][0] = rowDir[r] * first.spacing[1]
		lps[r][1] = colDir[r] * first.spacing[0]
		lps[r][2] = normal[r] * sliceStep
		lps[r][3] = slices[0].position[r]
	}
	lps[3][3] = 1
	for c := 0; c < 4; c++ {
		lps[0][c] = -lps[0][c]
		lps[1][c] = -lps[1][c]
	}
	v.Affine = lps
	return v, nil
}

func firstInt(ds dicom.Dataset, t tag.Tag, fallback int) int {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return fallback
	}
	values := dicom.MustGetInts(elem.Value)
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}

func firstFloat(ds dicom.Dataset, t tag.Tag, fallback float64) float64 {
	values := floats(ds, t)
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}

// floats parses decimal-string (DS) values, which may be multi-valued and
// backslash separated within a single string.
func floats(ds dicom.Dataset, t tag.Tag) []float64 {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return nil
	}
	var out []float64
	for _, raw := range dicom.MustGetStrings(elem.Value) {
		for _, part := range strings.Split(raw, `\`) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			value, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return nil
			}
			out = append(out, value)
		}
	}
	return out
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

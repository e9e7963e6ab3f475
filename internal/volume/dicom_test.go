package volume

import (
	"math"
	"strings"
	"testing"
)

func axialSlice(z float64, pixels ...float64) dicomSlice {
	return dicomSlice{
		rows:        2,
		cols:        3,
		spacing:     [2]float64{0.5, 0.8},
		position:    [3]float64{10, 20, z},
		orientation: [6]float64{1, 0, 0, 0, 1, 0},
		slope:       1,
		bits:        16,
		pixels:      pixels,
	}
}

func TestAssembleSeriesOrdersSlicesAndBuildsRASAffine(t *testing.T) {
	upper := axialSlice(5, 10, 11, 12, 13, 14, 15)
	lower := axialSlice(2, 0, 1, 2, 3, 4, 5)

	v, err := assembleSeries([]dicomSlice{upper, lower})
	if err != nil {
		t.Fatalf("assembleSeries: %v", err)
	}
	if v.Dims != [4]int{3, 2, 2, 1} {
		t.Fatalf("unexpected dims %v", v.Dims)
	}
	if v.DataType != Uint16 {
		t.Fatalf("expected uint16, got %s", v.DataType)
	}
	if got := v.At(0, 0, 0, 0); got != 0 {
		t.Fatalf("lower slice should come first, got %v", got)
	}
	if got := v.At(2, 1, 1, 0); got != 15 {
		t.Fatalf("expected last voxel 15, got %v", got)
	}

	want := Affine{
		{-0.8, 0, 0, -10},
		{0, -0.5, 0, -20},
		{0, 0, 3, 2},
		{0, 0, 0, 1},
	}
	if !v.Affine.ApproxEqual(want, 1e-9) {
		t.Fatalf("unexpected affine %v", v.Affine)
	}
}

func TestAssembleSeriesRescalesToFloat(t *testing.T) {
	s := axialSlice(0, 0, 1, 2, 3, 4, 5)
	s.slope = 0.5
	s.intercept = -1
	v, err := assembleSeries([]dicomSlice{s})
	if err != nil {
		t.Fatalf("assembleSeries: %v", err)
	}
	if v.DataType != Float32 {
		t.Fatalf("expected float32, got %s", v.DataType)
	}
	if got := v.At(1, 0, 0, 0); math.Abs(got-(-0.5)) > 1e-6 {
		t.Fatalf("expected rescaled -0.5, got %v", got)
	}
	if v.Affine[2][2] != 1 {
		t.Fatalf("single slice should default to unit thickness, got %v", v.Affine[2][2])
	}
}

func TestAssembleSeriesRejectsMixedSizes(t *testing.T) {
	a := axialSlice(0, 0, 0, 0, 0, 0, 0)
	b := axialSlice(1, 0, 0, 0, 0)
	b.rows = 2
	b.cols = 2
	_, err := assembleSeries([]dicomSlice{a, b})
	if err == nil || !strings.Contains(err.Error(), "mixed slice sizes") {
		t.Fatalf("expected mixed size error, got %v", err)
	}
}

func TestNativePixelsSignedStorage(t *testing.T) {
	got, err := nativePixels([]uint16{0xFFFF, 2}, true, 16)
	if err != nil {
		t.Fatalf("nativePixels: %v", err)
	}
	if got[0] != -1 || got[1] != 2 {
		t.Fatalf("unexpected pixels %v", got)
	}
	if _, err := nativePixels([]float32{1}, false, 32); err == nil {
		t.Fatal("expected unsupported storage error")
	}
}

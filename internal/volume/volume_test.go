package volume

import (
	"errors"
	"math"
	"testing"
)

func testVolume(dt DataType) *Volume {
	v := New("test", [4]int{4, 3, 2, 1}, dt)
	for i := range v.Data {
		v.Data[i] = dt.Coerce(float64(i*7 - 20))
	}
	v.Affine = Affine{
		{-1.5, 0, 0, 90},
		{0, 0, 2, -126},
		{0, -1.25, 0, 72},
		{0, 0, 0, 1},
	}
	return v
}

func TestCoerce(t *testing.T) {
	cases := []struct {
		dt   DataType
		in   float64
		want float64
	}{
		{Uint8, -3, 0},
		{Uint8, 300, 255},
		{Uint8, 12.6, 13},
		{Int8, -200, -128},
		{Int16, 40000, 32767},
		{Uint16, -1, 0},
		{Int32, 1.49, 1},
		{Float64, 1.49, 1.49},
		{Int16, math.NaN(), 0},
	}
	for _, tc := range cases {
		if got := tc.dt.Coerce(tc.in); got != tc.want {
			t.Fatalf("%s.Coerce(%v) = %v, want %v", tc.dt, tc.in, got, tc.want)
		}
	}
}

func TestValidateRejectsUnmaterialized(t *testing.T) {
	if err := Empty("out").Validate(); !errors.Is(err, ErrNotMaterialized) {
		t.Fatalf("expected ErrNotMaterialized, got %v", err)
	}
	var nilVolume *Volume
	if err := nilVolume.Validate(); !errors.Is(err, ErrNotMaterialized) {
		t.Fatalf("expected ErrNotMaterialized for nil, got %v", err)
	}
	v := New("x", [4]int{2, 2, 2, 1}, Float32)
	v.Data = v.Data[:3]
	if err := v.Validate(); !errors.Is(err, ErrNotMaterialized) {
		t.Fatalf("expected length mismatch to fail, got %v", err)
	}
	if err := New("ok", [4]int{2, 2, 2, 0}, Int16).Validate(); err != nil {
		t.Fatalf("expected valid volume, got %v", err)
	}
}

func TestCopyContentKeepsNameAndDeepCopies(t *testing.T) {
	src := testVolume(Int16)
	dst := Empty("segmentation")
	dst.CopyContent(src)

	if dst.Name != "segmentation" {
		t.Fatalf("name overwritten: %q", dst.Name)
	}
	if !SameGeometry(src, dst) || dst.DataType != Int16 {
		t.Fatal("geometry or type not copied")
	}
	src.Data[0] = 999
	if dst.Data[0] == 999 {
		t.Fatal("expected deep copy of voxel data")
	}
}

func TestConvertCoercesValues(t *testing.T) {
	src := New("f", [4]int{3, 1, 1, 1}, Float32)
	src.Data = []float64{-4.6, 2.4, 300}
	got := src.Convert(Uint8)
	if got.DataType != Uint8 {
		t.Fatalf("unexpected type %s", got.DataType)
	}
	want := []float64{0, 2, 255}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Fatalf("voxel %d = %v, want %v", i, got.Data[i], want[i])
		}
	}
	if src.Data[0] != -4.6 {
		t.Fatal("Convert must not mutate the source")
	}
}

func TestFitsIn(t *testing.T) {
	labels := New("aparc", [4]int{3, 1, 1, 1}, Int32)
	labels.Data = []float64{0, 17, 2035}
	if labels.FitsIn(Uint8) {
		t.Fatal("label 2035 cannot be stored as uint8")
	}
	if !labels.FitsIn(Uint16) {
		t.Fatal("labels fit in uint16")
	}
	frac := New("prob", [4]int{2, 1, 1, 1}, Float32)
	frac.Data = []float64{0.5, math.NaN()}
	if frac.FitsIn(Int16) {
		t.Fatal("fractions and NaN must not fit an integer type")
	}
	if !frac.FitsIn(Float64) {
		t.Fatal("float32 values fit float64")
	}
}

func TestAtSetIndexing(t *testing.T) {
	v := New("idx", [4]int{3, 4, 5, 2}, Int32)
	v.Set(2, 3, 4, 1, 17)
	if got := v.Data[len(v.Data)-1]; got != 17 {
		t.Fatalf("expected last voxel set, got %v", got)
	}
	if v.At(2, 3, 4, 1) != 17 {
		t.Fatal("At did not read back Set value")
	}
}

func TestParseDataType(t *testing.T) {
	dt, err := ParseDataType(" Float32 ")
	if err != nil || dt != Float32 {
		t.Fatalf("ParseDataType = %v, %v", dt, err)
	}
	if _, err := ParseDataType("complex64"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

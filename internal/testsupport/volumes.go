package testsupport

import (
	"path/filepath"
	"testing"

	"synthbridge/internal/volume"
)

// SyntheticVolume returns a small materialized volume with a recognisable
// ramp and an oblique-free 1x1x2 mm affine.
func SyntheticVolume(name string, dt volume.DataType) *volume.Volume {
	v := volume.New(name, [4]int{6, 5, 4, 1}, dt)
	for i := range v.Data {
		v.Data[i] = dt.Coerce(float64(i % 97))
	}
	v.Affine = volume.Scaling(1, 1, 2)
	v.Affine[0][3], v.Affine[1][3], v.Affine[2][3] = -3, -2.5, -4
	return v
}

// WriteVolume saves a synthetic volume under dir and returns its path.
func WriteVolume(t testing.TB, dir, file string, dt volume.DataType) string {
	t.Helper()
	path := filepath.Join(dir, file)
	if err := volume.Save(path, SyntheticVolume(file, dt)); err != nil {
		t.Fatalf("write volume %s: %v", path, err)
	}
	return path
}

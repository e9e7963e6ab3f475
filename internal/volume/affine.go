package volume

import "math"

// Affine maps voxel indices (i, j, k, 1) to RAS millimetre coordinates.
type Affine [4][4]float64

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Scaling returns a diagonal transform with the given voxel sizes.
func Scaling(sx, sy, sz float64) Affine {
	a := Identity()
	a[0][0], a[1][1], a[2][2] = sx, sy, sz
	return a
}

// Apply transforms the voxel coordinate (i, j, k).
func (a Affine) Apply(i, j, k float64) [3]float64 {
	var out [3]float64
	for r := 0; r < 3; r++ {
		out[r] = a[r][0]*i + a[r][1]*j + a[r][2]*k + a[r][3]
	}
	return out
}

// Spacing returns the voxel size along each axis (the column norms of the
// linear part).
func (a Affine) Spacing() [3]float64 {
	var out [3]float64
	for c := 0; c < 3; c++ {
		out[c] = math.Sqrt(a[0][c]*a[0][c] + a[1][c]*a[1][c] + a[2][c]*a[2][c])
	}
	return out
}

// Directions returns unit column vectors of the linear part. Degenerate
// columns fall back to the matching identity axis.
func (a Affine) Directions() [3][3]float64 {
	spacing := a.Spacing()
	var dirs [3][3]float64
	for c := 0; c < 3; c++ {
		if spacing[c] == 0 {
			dirs[c][c] = 1
			continue
		}
		for r := 0; r < 3; r++ {
			dirs[c][r] = a[r][c] / spacing[c]
		}
	}
	return dirs
}

// ApproxEqual compares two transforms within tol.
func (a Affine) ApproxEqual(b Affine, tol float64) bool {
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if math.Abs(a[r][c]-b[r][c]) > tol {
				return false
			}
		}
	}
	return true
}

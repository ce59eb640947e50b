package warp

import (
	"fmt"
	"sort"

	"regionstats/internal/models"
)

// GridEvaluator approximates a transform by trilinear interpolation over
// exact evaluations on a small sample lattice. Building one costs
// len(zs)*len(ys)*len(xs) exact transforms; evaluating a point afterwards
// costs a cell lookup and eight corner blends per output axis.
//
// Queries outside the lattice extent are clamped to the nearest edge cell.
type GridEvaluator struct {
	zs, ys, xs []float64
	// Transformed coordinates at the lattice points, one flat array per
	// output axis, indexed (iz*len(ys)+iy)*len(xs)+ix.
	tz, ty, tx []float64
}

// NewGridEvaluator samples transform on the lattice spanned by the given
// axes. Axes must be non-empty and strictly increasing; a single-sample
// axis makes the approximation constant along it.
func NewGridEvaluator(transform func(models.Coord) models.Coord, zs, ys, xs []float64) (*GridEvaluator, error) {
	for _, axis := range []struct {
		name    string
		samples []float64
	}{{"z", zs}, {"y", ys}, {"x", xs}} {
		if len(axis.samples) == 0 {
			return nil, fmt.Errorf("%s axis has no samples", axis.name)
		}
		for i := 1; i < len(axis.samples); i++ {
			if axis.samples[i] <= axis.samples[i-1] {
				return nil, fmt.Errorf("%s axis samples must be strictly increasing, got %v then %v",
					axis.name, axis.samples[i-1], axis.samples[i])
			}
		}
	}

	g := &GridEvaluator{
		zs: append([]float64(nil), zs...),
		ys: append([]float64(nil), ys...),
		xs: append([]float64(nil), xs...),
	}

	n := len(zs) * len(ys) * len(xs)
	g.tz = make([]float64, n)
	g.ty = make([]float64, n)
	g.tx = make([]float64, n)

	i := 0
	for _, z := range zs {
		for _, y := range ys {
			for _, x := range xs {
				t := transform(models.Coord{Z: z, Y: y, X: x})
				g.tz[i] = t.Z
				g.ty[i] = t.Y
				g.tx[i] = t.X
				i++
			}
		}
	}
	return g, nil
}

// findCell locates the lattice cell containing q and the fractional
// position inside it. Queries off either end land on the edge cell.
func findCell(axis []float64, q float64) (int, float64) {
	n := len(axis)
	if n == 1 || q <= axis[0] {
		return 0, 0
	}
	if q >= axis[n-1] {
		return n - 2, 1
	}
	j := sort.SearchFloat64s(axis, q)
	if axis[j] == q {
		return j - 1, 1
	}
	i := j - 1
	return i, (q - axis[i]) / (axis[i+1] - axis[i])
}

// Evaluate interpolates the transform at a single coordinate.
func (g *GridEvaluator) Evaluate(c models.Coord) models.Coord {
	iz, fz := findCell(g.zs, c.Z)
	iy, fy := findCell(g.ys, c.Y)
	ix, fx := findCell(g.xs, c.X)

	// Second corner index per axis; collapses onto the first for
	// single-sample axes.
	jz, jy, jx := iz+1, iy+1, ix+1
	if jz >= len(g.zs) {
		jz = iz
	}
	if jy >= len(g.ys) {
		jy = iy
	}
	if jx >= len(g.xs) {
		jx = ix
	}

	ny, nx := len(g.ys), len(g.xs)
	idx := func(z, y, x int) int { return (z*ny+y)*nx + x }

	c000 := idx(iz, iy, ix)
	c001 := idx(iz, iy, jx)
	c010 := idx(iz, jy, ix)
	c011 := idx(iz, jy, jx)
	c100 := idx(jz, iy, ix)
	c101 := idx(jz, iy, jx)
	c110 := idx(jz, jy, ix)
	c111 := idx(jz, jy, jx)

	w000 := (1 - fz) * (1 - fy) * (1 - fx)
	w001 := (1 - fz) * (1 - fy) * fx
	w010 := (1 - fz) * fy * (1 - fx)
	w011 := (1 - fz) * fy * fx
	w100 := fz * (1 - fy) * (1 - fx)
	w101 := fz * (1 - fy) * fx
	w110 := fz * fy * (1 - fx)
	w111 := fz * fy * fx

	blend := func(v []float64) float64 {
		return v[c000]*w000 + v[c001]*w001 + v[c010]*w010 + v[c011]*w011 +
			v[c100]*w100 + v[c101]*w101 + v[c110]*w110 + v[c111]*w111
	}

	return models.Coord{Z: blend(g.tz), Y: blend(g.ty), X: blend(g.tx)}
}

// EvaluateInto interpolates the transform at every source coordinate,
// writing results into dst. dst must be at least as long as src.
func (g *GridEvaluator) EvaluateInto(dst, src []models.Coord) {
	for i, c := range src {
		dst[i] = g.Evaluate(c)
	}
}

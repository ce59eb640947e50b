package warp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"regionstats/internal/models"
)

// minLandmarks is the smallest landmark count that keeps the spline system
// overdetermined enough to pin down the affine part.
const minLandmarks = 5

// Warper is a thin-plate spline fit to landmark pairs. It maps any stack
// coordinate to atlas space: an affine part plus a weighted sum of
// biharmonic kernels centered on the moving landmarks.
type Warper struct {
	points  []models.Coord
	weights *mat.Dense // (n+4)x3: kernel weights, then affine rows 1, z, y, x
}

// NewWarper fits a thin-plate spline to the alignment's landmark pairs.
func NewWarper(al *Alignment) (*Warper, error) {
	n := len(al.Moving)
	if n < minLandmarks {
		return nil, fmt.Errorf("need at least %d landmark pairs, got %d", minLandmarks, n)
	}
	if n != len(al.Reference) {
		return nil, fmt.Errorf("landmark count mismatch: %d moving, %d reference", n, len(al.Reference))
	}

	size := n + 4
	A := mat.NewDense(size, size, nil)
	b := mat.NewDense(size, 3, nil)

	// Kernel block plus the affine constraint rows and columns.
	for i := 0; i < n; i++ {
		pi := al.Moving[i]
		for j := 0; j < n; j++ {
			A.Set(i, j, kernel(distance(pi, al.Moving[j])))
		}
		A.Set(i, n, 1)
		A.Set(i, n+1, pi.Z)
		A.Set(i, n+2, pi.Y)
		A.Set(i, n+3, pi.X)
		A.Set(n, i, 1)
		A.Set(n+1, i, pi.Z)
		A.Set(n+2, i, pi.Y)
		A.Set(n+3, i, pi.X)

		ri := al.Reference[i]
		b.Set(i, 0, ri.Z)
		b.Set(i, 1, ri.Y)
		b.Set(i, 2, ri.X)
	}

	weights, err := solveSystem(A, b)
	if err != nil {
		return nil, fmt.Errorf("failed to fit landmark warp: %v", err)
	}

	points := make([]models.Coord, n)
	copy(points, al.Moving)
	return &Warper{points: points, weights: weights}, nil
}

// solveSystem solves Ax = b with QR decomposition. A small regularization
// term is added to the diagonal up front; if the factorization still cannot
// be solved, a stronger term is added and the solve is retried once.
func solveSystem(A, b *mat.Dense) (*mat.Dense, error) {
	n, _ := A.Dims()
	_, cols := b.Dims()

	for i := 0; i < n; i++ {
		A.Set(i, i, A.At(i, i)+1e-6)
	}

	var qr mat.QR
	qr.Factorize(A)

	solution := mat.NewDense(n, cols, nil)
	if err := qr.SolveTo(solution, false, b); err != nil {
		for i := 0; i < n; i++ {
			A.Set(i, i, A.At(i, i)+0.1)
		}
		qr.Factorize(A)
		if err := qr.SolveTo(solution, false, b); err != nil {
			return nil, fmt.Errorf("spline system is singular: %v", err)
		}
	}
	return solution, nil
}

// kernel is the 3-D biharmonic spline basis.
func kernel(r float64) float64 {
	return r
}

func distance(a, b models.Coord) float64 {
	dz := a.Z - b.Z
	dy := a.Y - b.Y
	dx := a.X - b.X
	return math.Sqrt(dz*dz + dy*dy + dx*dx)
}

// Transform maps a single stack coordinate into atlas space.
func (w *Warper) Transform(c models.Coord) models.Coord {
	n := len(w.points)
	var out [3]float64
	for d := 0; d < 3; d++ {
		v := w.weights.At(n, d) +
			w.weights.At(n+1, d)*c.Z +
			w.weights.At(n+2, d)*c.Y +
			w.weights.At(n+3, d)*c.X
		for i, p := range w.points {
			v += w.weights.At(i, d) * kernel(distance(p, c))
		}
		out[d] = v
	}
	return models.Coord{Z: out[0], Y: out[1], X: out[2]}
}

// Approximate evaluates the warp exactly on the given sample lattice and
// returns a grid evaluator that interpolates it for arbitrary coordinates
// inside the lattice extent. Each axis must be strictly increasing.
func (w *Warper) Approximate(zs, ys, xs []float64) (*GridEvaluator, error) {
	return NewGridEvaluator(w.Transform, zs, ys, xs)
}

// ResidualSummary describes how well the fitted warp reproduces the
// reference landmarks.
type ResidualSummary struct {
	Mean float64
	Max  float64
}

// Residuals returns the Euclidean error at each landmark: the distance
// between the warped moving point and its reference partner.
func (w *Warper) Residuals(al *Alignment) []float64 {
	res := make([]float64, len(al.Moving))
	for i, m := range al.Moving {
		res[i] = distance(w.Transform(m), al.Reference[i])
	}
	return res
}

// Diagnose summarizes the landmark residuals of the fitted warp.
func (w *Warper) Diagnose(al *Alignment) ResidualSummary {
	res := w.Residuals(al)
	if len(res) == 0 {
		return ResidualSummary{}
	}
	return ResidualSummary{
		Mean: stat.Mean(res, nil),
		Max:  floats.Max(res),
	}
}

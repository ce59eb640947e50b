// Package measure runs the plane-wise measurement pipeline: every plane of
// the moving stack is decoded, its pixel grid warped into atlas space
// through a locally approximated transform, matched against the shared
// segmentation volume, and accumulated into per-label pixel counts and
// intensity sums.
package measure

import (
	"context"
	"fmt"

	"github.com/cheggaaa/pb"
	"golang.org/x/sync/errgroup"

	"regionstats/internal/models"
	"regionstats/pkg/volume"
)

// defaultGridSamples is the number of evenly spaced y and x samples used
// to fit the local transform approximation for one plane.
const defaultGridSamples = 100

// Evaluator maps moving-space coordinates to reference-space coordinates.
// Element i of dst receives the warped element i of src.
type Evaluator interface {
	EvaluateInto(dst, src []models.Coord)
}

// ApproximateFunc builds an Evaluator valid over the given sample lattice.
// The z, y and x sample sets must be strictly increasing.
type ApproximateFunc func(zs, ys, xs []float64) (Evaluator, error)

// ProgressCallback is a function that reports progress during measurement
type ProgressCallback func(completed, total int, message string)

// Params holds the measurement configuration.
type Params struct {
	// InputGlob matches the plane files of the stack to be measured.
	// It is expanded in ascending numeric filename order.
	InputGlob string

	// Planes optionally lists the plane files directly, already in z
	// order. When set, InputGlob is ignored.
	Planes []string

	// Segmentation is the loaded reference segmentation, shared read-only
	// by all workers.
	Segmentation *volume.LabelVolume

	// Approximate builds the per-plane local transform approximation.
	Approximate ApproximateFunc

	// Workers is the number of plane tasks processed at once. 1 means
	// strictly sequential processing in z order.
	Workers int

	// GridSamples overrides the number of y/x lattice samples per plane.
	// Zero or negative selects the default of 100.
	GridSamples int

	// Progress enables the terminal progress bar.
	Progress bool
}

// Totals is the aggregate over all planes: for every label id, the number
// of pixels that warped onto it and the summed intensity of those pixels.
type Totals struct {
	Counts []int64
	Sums   []int64
	Planes int
}

// Measurer runs the measurement pipeline over a stack of planes:
// 1. Expanding and ordering the input plane files
// 2. Fixing the expected plane resolution from the first file's header
// 3. Processing each plane (decode, warp, label lookup, accumulate)
// 4. Folding per-plane results into the aggregate totals
type Measurer struct {
	params           *Params
	progressCallback ProgressCallback

	// Expected plane resolution, taken from the first plane's header.
	width  int
	height int
}

// NewMeasurer creates a measurer with the provided parameters.
func NewMeasurer(params *Params) *Measurer {
	return &Measurer{params: params}
}

// SetProgressCallback registers a callback invoked after every completed
// plane with the number of planes finished so far and the total count.
func (m *Measurer) SetProgressCallback(callback ProgressCallback) {
	m.progressCallback = callback
}

func (m *Measurer) reportProgress(completed, total int, message string) {
	if m.progressCallback != nil {
		m.progressCallback(completed, total, message)
	}
}

// Run processes every plane and returns the aggregated totals. If any
// plane fails the whole run fails and no totals are returned.
func (m *Measurer) Run() (*Totals, error) {
	p := m.params
	if p.Workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", p.Workers)
	}
	if p.Segmentation == nil {
		return nil, fmt.Errorf("no segmentation volume")
	}
	if p.Approximate == nil {
		return nil, fmt.Errorf("no transform approximator")
	}

	planes := p.Planes
	if len(planes) == 0 {
		var err error
		planes, err = ExpandGlob(p.InputGlob)
		if err != nil {
			return nil, err
		}
	}

	view, err := p.Segmentation.Read()
	if err != nil {
		return nil, err
	}

	m.width, m.height, err = planeSize(planes[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read plane %s: %v", planes[0], err)
	}

	totals := &Totals{
		Counts: make([]int64, view.MaxLabel()+1),
		Sums:   make([]int64, view.MaxLabel()+1),
		Planes: len(planes),
	}

	var bar *pb.ProgressBar
	if p.Progress {
		bar = pb.StartNew(len(planes))
	}
	step := func(completed int) {
		if bar != nil {
			bar.Increment()
		}
		m.reportProgress(completed, len(planes), "")
	}

	if p.Workers == 1 {
		err = m.runSequential(planes, view, totals, step)
	} else {
		err = m.runParallel(planes, view, totals, step)
	}
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, err
	}
	return totals, nil
}

// runSequential processes planes one at a time, in z order, on the calling
// goroutine.
func (m *Measurer) runSequential(planes []string, view *volume.ReadView, totals *Totals, step func(int)) error {
	for z, filename := range planes {
		stats, err := m.processPlane(filename, z, len(planes), view)
		if err != nil {
			return fmt.Errorf("failed to process plane %s: %v", filename, err)
		}
		accumulate(totals, stats)
		step(z + 1)
	}
	return nil
}

// runParallel fans planes out over a bounded worker pool and folds results
// in completion order. The first failing plane cancels the remaining work.
func (m *Measurer) runParallel(planes []string, view *volume.ReadView, totals *Totals, step func(int)) error {
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(m.params.Workers)

	results := make(chan *models.PlaneStats, len(planes))
	done := make(chan error, 1)

	go func() {
		for z, filename := range planes {
			z, filename := z, filename
			g.Go(func() error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				stats, err := m.processPlane(filename, z, len(planes), view)
				if err != nil {
					return fmt.Errorf("failed to process plane %s: %v", filename, err)
				}
				results <- stats
				return nil
			})
		}
		done <- g.Wait()
		close(results)
	}()

	completed := 0
	for stats := range results {
		accumulate(totals, stats)
		completed++
		step(completed)
	}
	return <-done
}

// accumulate folds one plane's vectors into the running totals, growing
// the totals if the plane reports labels beyond the length seen so far.
func accumulate(totals *Totals, stats *models.PlaneStats) {
	if n := len(stats.Counts); n > len(totals.Counts) {
		counts := make([]int64, n)
		sums := make([]int64, n)
		copy(counts, totals.Counts)
		copy(sums, totals.Sums)
		totals.Counts = counts
		totals.Sums = sums
	}
	for id, count := range stats.Counts {
		totals.Counts[id] += count
		totals.Sums[id] += stats.Sums[id]
	}
}

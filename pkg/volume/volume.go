// Package volume holds the reference segmentation as a shared, read-only
// 3-D label grid. The volume is written exactly once, by the process that
// loads it, before any worker starts; afterwards every worker reads it
// through scoped views with no further coordination.
package volume

import (
	"fmt"
	"sync"
)

// LabelVolume is a 3-D grid of non-negative region labels in atlas space,
// stored flat in row-major (z, y, x) order. Label 0 means "not in any
// region". The zero value is unusable; create volumes with New.
//
// Lifecycle: New allocates, Load performs the single bulk write, Read hands
// out read-only views. Load refuses a second call, and Read refuses to run
// before Load, so no view can ever observe a write.
type LabelVolume struct {
	data   []uint32
	depth  int
	height int
	width  int

	mu       sync.Mutex
	loaded   bool
	maxLabel uint32
}

// New allocates an empty label volume with the given extents.
func New(depth, height, width int) *LabelVolume {
	return &LabelVolume{
		data:   make([]uint32, depth*height*width),
		depth:  depth,
		height: height,
		width:  width,
	}
}

// Shape returns the volume extents as (depth, height, width).
func (v *LabelVolume) Shape() (depth, height, width int) {
	return v.depth, v.height, v.width
}

// Load copies data into the volume. It must be called exactly once, before
// any reader view is requested; a second call is a programming error and is
// rejected. The maximum label is computed here so that readers never scan
// the volume for it.
func (v *LabelVolume) Load(data []uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.loaded {
		return fmt.Errorf("label volume already loaded")
	}
	if len(data) != len(v.data) {
		return fmt.Errorf("label volume size mismatch: got %d values, want %d",
			len(data), len(v.data))
	}

	copy(v.data, data)
	for _, label := range v.data {
		if label > v.maxLabel {
			v.maxLabel = label
		}
	}
	v.loaded = true
	return nil
}

// MaxLabel returns the largest label present in the volume. It is only
// meaningful after Load.
func (v *LabelVolume) MaxLabel() uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.maxLabel
}

// Read returns a read-only view of the volume for use inside one unit of
// work. Any number of views may be active at once; none of them can write.
func (v *LabelVolume) Read() (*ReadView, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.loaded {
		return nil, fmt.Errorf("label volume read before load")
	}
	return &ReadView{
		data:     v.data,
		depth:    v.depth,
		height:   v.height,
		width:    v.width,
		maxLabel: v.maxLabel,
	}, nil
}

// ReadView is a scoped, read-only window onto a loaded LabelVolume. Views
// are safe for concurrent use from many goroutines.
type ReadView struct {
	data     []uint32
	depth    int
	height   int
	width    int
	maxLabel uint32
}

// Shape returns the volume extents as (depth, height, width).
func (r *ReadView) Shape() (depth, height, width int) {
	return r.depth, r.height, r.width
}

// MaxLabel returns the largest label present in the volume.
func (r *ReadView) MaxLabel() uint32 {
	return r.maxLabel
}

// In reports whether (z, y, x) lies inside the volume on every axis.
func (r *ReadView) In(z, y, x int) bool {
	return z >= 0 && z < r.depth &&
		y >= 0 && y < r.height &&
		x >= 0 && x < r.width
}

// At returns the label at (z, y, x). The coordinate must be in bounds;
// callers filter with In first.
func (r *ReadView) At(z, y, x int) uint32 {
	return r.data[(z*r.height+y)*r.width+x]
}

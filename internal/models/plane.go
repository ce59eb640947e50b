package models

// Coord is a point in 3-D space, in either the moving (sample) frame or the
// reference (atlas) frame. Axis order is z, y, x throughout the pipeline,
// matching the plane-stack layout: z selects a plane, y a row, x a column.
type Coord struct {
	Z, Y, X float64
}

// Plane represents a single decoded intensity plane with metadata
type Plane struct {
	// Pixels is the raw intensity data in row-major order (y*Width + x)
	Pixels []int64

	// Width and Height are the plane resolution in pixels
	Width  int
	Height int

	// Index is the z-position of this plane in the stack
	Index int

	// Filename is the file the plane was decoded from
	Filename string
}

// At returns the intensity at pixel (y, x).
func (p *Plane) At(y, x int) int64 {
	return p.Pixels[y*p.Width+x]
}

// PlaneStats holds one plane's accumulation vectors, indexed by label id.
// Counts[id] is the number of in-bounds pixels that resolved to id and
// Sums[id] the total intensity of those pixels. Both vectors always cover
// every label of the segmentation, including ids this plane never touched.
type PlaneStats struct {
	Counts []int64
	Sums   []int64
}

// NewPlaneStats returns zeroed accumulation vectors with slots for labels
// 0 through maxLabel.
func NewPlaneStats(maxLabel uint32) *PlaneStats {
	n := int(maxLabel) + 1
	return &PlaneStats{
		Counts: make([]int64, n),
		Sums:   make([]int64, n),
	}
}

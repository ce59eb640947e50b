package measure

import (
	"fmt"
	"image"
	"math"
	"os"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"

	"regionstats/internal/models"
	"regionstats/pkg/volume"
)

// processPlane measures one plane: decode it, warp its full pixel grid
// into atlas space through a local approximation fit on a coarse lattice,
// and bin every in-bounds pixel against the segmentation view.
func (m *Measurer) processPlane(filename string, z, planeCount int, view *volume.ReadView) (*models.PlaneStats, error) {
	plane, err := loadPlane(filename, z)
	if err != nil {
		return nil, err
	}
	if plane.Width != m.width || plane.Height != m.height {
		return nil, fmt.Errorf("resolution %dx%d does not match the stack's %dx%d",
			plane.Width, plane.Height, m.width, m.height)
	}

	samples := m.params.GridSamples
	if samples <= 0 {
		samples = defaultGridSamples
	}
	evaluator, err := m.params.Approximate(
		zBand(z, planeCount),
		sampleAxis(plane.Height, samples),
		sampleAxis(plane.Width, samples))
	if err != nil {
		return nil, fmt.Errorf("failed to approximate transform at z=%d: %v", z, err)
	}

	stats := models.NewPlaneStats(view.MaxLabel())
	src := make([]models.Coord, plane.Width)
	dst := make([]models.Coord, plane.Width)

	for y := 0; y < plane.Height; y++ {
		for x := 0; x < plane.Width; x++ {
			src[x] = models.Coord{Z: float64(z), Y: float64(y), X: float64(x)}
		}
		evaluator.EvaluateInto(dst, src)

		for x := 0; x < plane.Width; x++ {
			zi := int(math.Round(dst[x].Z))
			yi := int(math.Round(dst[x].Y))
			xi := int(math.Round(dst[x].X))
			if !view.In(zi, yi, xi) {
				continue
			}
			label := view.At(zi, yi, xi)
			stats.Counts[label]++
			stats.Sums[label] += plane.At(y, x)
		}
	}
	return stats, nil
}

// loadPlane decodes one intensity plane. Grayscale images keep their raw
// sample values; anything else falls back to the 16-bit red channel.
func loadPlane(filename string, z int) (*models.Plane, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open plane: %v", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode plane: %v", err)
	}

	bounds := img.Bounds()
	plane := &models.Plane{
		Pixels:   make([]int64, bounds.Dx()*bounds.Dy()),
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Index:    z,
		Filename: filename,
	}

	i := 0
	switch im := img.(type) {
	case *image.Gray16:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				plane.Pixels[i] = int64(im.Gray16At(x, y).Y)
				i++
			}
		}
	case *image.Gray:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				plane.Pixels[i] = int64(im.GrayAt(x, y).Y)
				i++
			}
		}
	default:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, _, _, _ := img.At(x, y).RGBA()
				plane.Pixels[i] = int64(r)
				i++
			}
		}
	}
	return plane, nil
}

// planeSize reads a plane file's resolution from its header without
// decoding the pixel data.
func planeSize(filename string) (width, height int, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// zBand returns the z sample set {z-1, z, z+1} clamped to the stack's
// plane range and deduplicated, so edge planes get a two-sample band and a
// single-plane stack a one-sample band.
func zBand(z, planeCount int) []float64 {
	band := make([]float64, 0, 3)
	for _, v := range []int{z - 1, z, z + 1} {
		if v < 0 {
			v = 0
		}
		if v > planeCount-1 {
			v = planeCount - 1
		}
		if n := len(band); n > 0 && band[n-1] == float64(v) {
			continue
		}
		band = append(band, float64(v))
	}
	return band
}

// sampleAxis returns n evenly spaced samples spanning [0, extent-1].
func sampleAxis(extent, n int) []float64 {
	if extent <= 1 || n <= 1 {
		return []float64{0}
	}
	axis := make([]float64, n)
	step := float64(extent-1) / float64(n-1)
	for i := range axis {
		axis[i] = float64(i) * step
	}
	axis[n-1] = float64(extent - 1)
	return axis
}

// Package warp maps coordinates from the acquired image stack into the
// reference atlas space. The mapping is fit once from manually placed
// landmark pairs and then evaluated either exactly or through a coarse-grid
// approximation.
package warp

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"regionstats/internal/models"
)

// Alignment holds paired landmark coordinates: Moving points live in stack
// space, Reference points are the same anatomical locations in atlas space.
type Alignment struct {
	Moving    []models.Coord
	Reference []models.Coord
}

// LoadAlignment reads a landmark file produced by the alignment tool: a
// JSON object with equal-length "moving" and "reference" lists of 3-D
// points. Points are stored (z, y, x); with xyz set, they are read as
// (x, y, z) and reversed.
func LoadAlignment(path string, xyz bool) (*Alignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alignment file: %v", err)
	}

	var raw struct {
		Moving    [][]float64 `json:"moving"`
		Reference [][]float64 `json:"reference"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse alignment file %s: %v", path, err)
	}

	if len(raw.Moving) == 0 {
		return nil, fmt.Errorf("alignment file %s has no landmark pairs", path)
	}
	if len(raw.Moving) != len(raw.Reference) {
		return nil, fmt.Errorf("alignment file %s has %d moving but %d reference points",
			path, len(raw.Moving), len(raw.Reference))
	}

	al := &Alignment{
		Moving:    make([]models.Coord, len(raw.Moving)),
		Reference: make([]models.Coord, len(raw.Reference)),
	}
	for i := range raw.Moving {
		m, err := toCoord(raw.Moving[i], xyz)
		if err != nil {
			return nil, fmt.Errorf("alignment file %s, moving point %d: %v", path, i, err)
		}
		r, err := toCoord(raw.Reference[i], xyz)
		if err != nil {
			return nil, fmt.Errorf("alignment file %s, reference point %d: %v", path, i, err)
		}
		al.Moving[i] = m
		al.Reference[i] = r
	}
	return al, nil
}

func toCoord(p []float64, xyz bool) (models.Coord, error) {
	if len(p) != 3 {
		return models.Coord{}, fmt.Errorf("point has %d components, want 3", len(p))
	}
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.Coord{}, fmt.Errorf("point has non-finite component %v", v)
		}
	}
	if xyz {
		return models.Coord{Z: p[2], Y: p[1], X: p[0]}, nil
	}
	return models.Coord{Z: p[0], Y: p[1], X: p[2]}, nil
}

// Package regions resolves segmentation label ids to anatomical region
// names at a chosen granularity level and rolls per-label totals up to
// that level.
package regions

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Unlabeled names label 0, pixels that warped inside the segmentation
// volume but belong to no region.
const Unlabeled = "not in any region"

// Levels is the number of granularity levels in the hierarchy. Level 1 is
// the coarsest grouping, level Levels the region's own name.
const Levels = 7

// Table maps segmentation ids to their name chain, one name per
// granularity level from coarsest to finest.
type Table struct {
	chains map[uint32][Levels]string
}

// LoadTable reads a region hierarchy table from a CSV file.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open region table: %v", err)
	}
	defer f.Close()

	tbl, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse region table %s: %v", path, err)
	}
	return tbl, nil
}

// Parse reads a region hierarchy table from CSV. The header row must name
// an "id" column and "level_1" through "level_7" name columns; any other
// columns are ignored. A later row for the same id replaces the earlier
// one.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("table is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %v", err)
	}

	idCol := -1
	levelCols := [Levels]int{}
	for i := range levelCols {
		levelCols[i] = -1
	}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "id" {
			idCol = i
			continue
		}
		if rest, ok := strings.CutPrefix(name, "level_"); ok {
			if level, err := strconv.Atoi(rest); err == nil && level >= 1 && level <= Levels {
				levelCols[level-1] = i
			}
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("header has no id column")
	}
	for i, col := range levelCols {
		if col < 0 {
			return nil, fmt.Errorf("header has no level_%d column", i+1)
		}
	}

	chains := make(map[uint32][Levels]string)
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", line, err)
		}
		if idCol >= len(record) {
			return nil, fmt.Errorf("line %d: missing id field", line)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(record[idCol]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad id %q", line, record[idCol])
		}

		var chain [Levels]string
		for i, col := range levelCols {
			if col < len(record) {
				chain[i] = strings.TrimSpace(record[col])
			}
		}
		chains[uint32(id)] = chain
	}

	return &Table{chains: chains}, nil
}

// Len returns the number of ids in the table.
func (t *Table) Len() int {
	return len(t.chains)
}

// Name returns the finest-level name for an id. Label 0 is always
// Unlabeled; an id missing from the table gets a synthetic "id<N>" name.
func (t *Table) Name(id uint32) string {
	return t.LevelName(id, Levels)
}

// LevelName returns the ancestor name for an id at a granularity level
// between 1 and Levels. Where the id's chain is shorter than the requested
// level, the nearest coarser name is used, so a region is its own ancestor
// at levels finer than its depth. Label 0 is always Unlabeled; an id with
// no usable entry gets a synthetic "id<N>" name.
func (t *Table) LevelName(id uint32, level int) string {
	if id == 0 {
		return Unlabeled
	}
	if chain, ok := t.chains[id]; ok {
		for i := level - 1; i >= 0; i-- {
			if chain[i] != "" {
				return chain[i]
			}
		}
	}
	return fmt.Sprintf("id%d", id)
}

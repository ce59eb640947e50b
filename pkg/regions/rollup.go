package regions

import (
	"fmt"
	"sort"
)

// Row is one line of the final report. ID is only meaningful at the finest
// level; grouped rows leave it zero.
type Row struct {
	ID     int
	Region string
	Count  int64
	Sum    int64
	Mean   float64
}

// Rollup turns aggregated per-label counts and intensity sums into report
// rows at the requested granularity level. Ids with a zero count are
// dropped. At level 7 there is one row per surviving id, ordered by id; at
// levels 1 to 6 ids are grouped by their ancestor name, counts and sums
// summed per group, means computed after summing, and rows ordered by name.
func Rollup(counts, sums []int64, tbl *Table, level int) ([]Row, error) {
	if level < 1 || level > Levels {
		return nil, fmt.Errorf("level must be between 1 and %d, got %d", Levels, level)
	}
	if len(counts) != len(sums) {
		return nil, fmt.Errorf("counts and sums disagree in length: %d vs %d",
			len(counts), len(sums))
	}

	if level == Levels {
		var rows []Row
		for id, count := range counts {
			if count == 0 {
				continue
			}
			rows = append(rows, Row{
				ID:     id,
				Region: tbl.Name(uint32(id)),
				Count:  count,
				Sum:    sums[id],
				Mean:   float64(sums[id]) / float64(count),
			})
		}
		return rows, nil
	}

	groups := make(map[string]*Row)
	var names []string
	for id, count := range counts {
		if count == 0 {
			continue
		}
		name := tbl.LevelName(uint32(id), level)
		g, ok := groups[name]
		if !ok {
			g = &Row{Region: name}
			groups[name] = g
			names = append(names, name)
		}
		g.Count += count
		g.Sum += sums[id]
	}
	sort.Strings(names)

	rows := make([]Row, 0, len(names))
	for _, name := range names {
		g := groups[name]
		g.Mean = float64(g.Sum) / float64(g.Count)
		rows = append(rows, *g)
	}
	return rows, nil
}

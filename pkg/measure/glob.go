package measure

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
)

// ExpandGlob lists the plane files matching pattern in ascending numeric
// filename order, so "plane_10.tiff" sorts after "plane_2.tiff". The z
// index of each plane is its position in the returned list.
func ExpandGlob(pattern string) ([]string, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad input pattern %q: %v", pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files match %s", pattern)
	}

	sort.Slice(files, func(i, j int) bool {
		ni := extractNumber(files[i])
		nj := extractNumber(files[j])
		if ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})
	return files, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

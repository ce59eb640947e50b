// Package report writes region measurement results as CSV and optional
// raw NPY vectors.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/kshedden/gonpy"

	"regionstats/pkg/measure"
	"regionstats/pkg/regions"
)

// Write saves rows as a CSV report at path. The finest granularity keeps
// one row per region id and carries the id column; coarser levels drop
// it. On a write failure the partial file is removed.
func Write(path string, rows []regions.Row, level int) error {
	if level < 1 || level > regions.Levels {
		return fmt.Errorf("invalid level %d: must be between 1 and %d", level, regions.Levels)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %v", err)
	}
	if err := writeRows(f, rows, level); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write report: %v", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write report: %v", err)
	}
	return nil
}

func writeRows(w io.Writer, rows []regions.Row, level int) error {
	if level == regions.Levels {
		if _, err := fmt.Fprintf(w, "\"id\",\"region\",\"area\",\"total_intensity\",\"mean_intensity\"\n"); err != nil {
			return err
		}
		for _, row := range rows {
			if _, err := fmt.Fprintf(w, "%d,\"%s\",%d,%d,%.2f\n",
				row.ID, row.Region, row.Count, row.Sum, row.Mean); err != nil {
				return err
			}
		}
		return nil
	}

	if _, err := fmt.Fprintf(w, "\"region\",\"area\",\"total_intensity\",\"mean_intensity\"\n"); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "\"%s\",%d,%d,%.2f\n",
			row.Region, row.Count, row.Sum, row.Mean); err != nil {
			return err
		}
	}
	return nil
}

// WriteTotalsNpy dumps the raw per-label count and sum vectors as NPY
// files for downstream numpy analysis.
func WriteTotalsNpy(countsPath, sumsPath string, totals *measure.Totals) error {
	if err := writeInt64Npy(countsPath, totals.Counts); err != nil {
		return fmt.Errorf("failed to write counts: %v", err)
	}
	if err := writeInt64Npy(sumsPath, totals.Sums); err != nil {
		return fmt.Errorf("failed to write sums: %v", err)
	}
	return nil
}

func writeInt64Npy(path string, values []int64) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return err
	}
	w.Shape = []int{len(values)}
	w.Version = 2
	return w.WriteInt64(values)
}

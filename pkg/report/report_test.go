package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kshedden/gonpy"

	"regionstats/pkg/measure"
	"regionstats/pkg/regions"
)

// TestWriteFinest verifies the exact per-id report layout
func TestWriteFinest(t *testing.T) {
	rows := []regions.Row{
		{ID: 0, Region: "not in any region", Count: 3, Sum: 10, Mean: 10.0 / 3},
		{ID: 10, Region: "Somatomotor areas", Count: 2, Sum: 30, Mean: 15},
	}

	path := filepath.Join(t.TempDir(), "report.csv")
	if err := Write(path, rows, 7); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	expected := "\"id\",\"region\",\"area\",\"total_intensity\",\"mean_intensity\"\n" +
		"0,\"not in any region\",3,10,3.33\n" +
		"10,\"Somatomotor areas\",2,30,15.00\n"
	if string(data) != expected {
		t.Errorf("Report mismatch.\nGot:\n%s\nExpected:\n%s", data, expected)
	}
}

// TestWriteCoarse verifies the grouped report layout without the id column
func TestWriteCoarse(t *testing.T) {
	rows := []regions.Row{
		{Region: "Isocortex", Count: 5, Sum: 90, Mean: 18},
		{Region: "Thalamus", Count: 7, Sum: 100, Mean: 100.0 / 7},
	}

	path := filepath.Join(t.TempDir(), "report.csv")
	if err := Write(path, rows, 3); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	expected := "\"region\",\"area\",\"total_intensity\",\"mean_intensity\"\n" +
		"\"Isocortex\",5,90,18.00\n" +
		"\"Thalamus\",7,100,14.29\n"
	if string(data) != expected {
		t.Errorf("Report mismatch.\nGot:\n%s\nExpected:\n%s", data, expected)
	}
}

// TestWriteEmptyRows verifies that an empty measurement still yields a
// header-only report
func TestWriteEmptyRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	if err := Write(path, nil, 7); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	expected := "\"id\",\"region\",\"area\",\"total_intensity\",\"mean_intensity\"\n"
	if string(data) != expected {
		t.Errorf("Report mismatch.\nGot:\n%s\nExpected:\n%s", data, expected)
	}
}

// TestWriteInvalidLevel verifies level validation before file creation
func TestWriteInvalidLevel(t *testing.T) {
	for _, level := range []int{0, 8, -1} {
		path := filepath.Join(t.TempDir(), "report.csv")
		if err := Write(path, nil, level); err == nil {
			t.Errorf("Expected error for level %d", level)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("Expected no file for level %d", level)
		}
	}
}

// TestWriteCreateError verifies failure on an unwritable path
func TestWriteCreateError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "report.csv")
	if err := Write(path, nil, 7); err == nil {
		t.Error("Expected error for an unwritable path")
	}
}

// TestWriteTotalsNpy verifies the raw vector dump round-trips through the
// NPY format
func TestWriteTotalsNpy(t *testing.T) {
	dir := t.TempDir()
	countsPath := filepath.Join(dir, "counts.npy")
	sumsPath := filepath.Join(dir, "sums.npy")
	totals := &measure.Totals{
		Counts: []int64{0, 2, 2},
		Sums:   []int64{0, 30, 70},
		Planes: 1,
	}

	if err := WriteTotalsNpy(countsPath, sumsPath, totals); err != nil {
		t.Fatalf("WriteTotalsNpy failed: %v", err)
	}

	check := func(path string, expected []int64) {
		r, err := gonpy.NewFileReader(path)
		if err != nil {
			t.Fatalf("failed to open %s: %v", path, err)
		}
		if len(r.Shape) != 1 || r.Shape[0] != len(expected) {
			t.Fatalf("Expected shape [%d], got %v", len(expected), r.Shape)
		}
		values, err := r.GetInt64()
		if err != nil {
			t.Fatalf("failed to read %s: %v", path, err)
		}
		for i, v := range expected {
			if values[i] != v {
				t.Errorf("%s[%d]: got %d, expected %d", filepath.Base(path), i, values[i], v)
			}
		}
	}
	check(countsPath, totals.Counts)
	check(sumsPath, totals.Sums)
}

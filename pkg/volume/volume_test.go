package volume

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/kshedden/gonpy"
)

// TestLoadOnce verifies that the volume accepts exactly one bulk write
func TestLoadOnce(t *testing.T) {
	vol := New(1, 2, 2)
	if err := vol.Load([]uint32{1, 1, 2, 2}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := vol.Load([]uint32{0, 0, 0, 0}); err == nil {
		t.Error("Expected second Load to be rejected")
	}
	if got := vol.MaxLabel(); got != 2 {
		t.Errorf("Expected max label 2, got %d", got)
	}
}

// TestLoadSizeMismatch verifies rejection of a payload that does not fill
// the volume
func TestLoadSizeMismatch(t *testing.T) {
	vol := New(1, 2, 2)
	if err := vol.Load([]uint32{1, 2, 3}); err == nil {
		t.Error("Expected Load with wrong element count to fail")
	}
}

// TestReadBeforeLoad verifies that no view is handed out before the volume
// holds data
func TestReadBeforeLoad(t *testing.T) {
	vol := New(1, 1, 1)
	if _, err := vol.Read(); err == nil {
		t.Error("Expected Read before Load to fail")
	}
}

// TestReadView verifies view indexing, the bounds predicate and the cached
// maximum label
func TestReadView(t *testing.T) {
	vol := New(2, 2, 3)
	data := []uint32{
		0, 1, 2,
		3, 4, 5,
		6, 7, 8,
		9, 10, 11,
	}
	if err := vol.Load(data); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	view, err := vol.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	d, h, w := view.Shape()
	if d != 2 || h != 2 || w != 3 {
		t.Errorf("Expected shape (2, 2, 3), got (%d, %d, %d)", d, h, w)
	}
	if got := view.At(1, 0, 2); got != 8 {
		t.Errorf("Expected label 8 at (1, 0, 2), got %d", got)
	}
	if got := view.At(0, 1, 1); got != 4 {
		t.Errorf("Expected label 4 at (0, 1, 1), got %d", got)
	}
	if got := view.MaxLabel(); got != 11 {
		t.Errorf("Expected max label 11, got %d", got)
	}

	bounds := []struct {
		z, y, x  int
		expected bool
	}{
		{0, 0, 0, true},
		{1, 1, 2, true},
		{-1, 0, 0, false},
		{2, 0, 0, false},
		{0, -1, 0, false},
		{0, 2, 0, false},
		{0, 0, -1, false},
		{0, 0, 3, false},
	}
	for _, tt := range bounds {
		if got := view.In(tt.z, tt.y, tt.x); got != tt.expected {
			t.Errorf("In(%d, %d, %d): expected %v, got %v", tt.z, tt.y, tt.x, tt.expected, got)
		}
	}
}

func writeNpy(t *testing.T, path string, shape []int, columnMajor bool, data []uint16) {
	t.Helper()
	wtr, err := gonpy.NewFileWriter(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	wtr.Shape = shape
	wtr.ColumnMajor = columnMajor
	wtr.Version = 2
	if err := wtr.WriteUint16(data); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// TestLoadNpy verifies loading a row-major integer NPY volume
func TestLoadNpy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.npy")
	writeNpy(t, path, []int{2, 2, 2}, false, []uint16{
		1, 1,
		2, 2,
		3, 3,
		4, 4,
	})

	vol, err := LoadNpy(path)
	if err != nil {
		t.Fatalf("LoadNpy failed: %v", err)
	}
	d, h, w := vol.Shape()
	if d != 2 || h != 2 || w != 2 {
		t.Fatalf("Expected shape (2, 2, 2), got (%d, %d, %d)", d, h, w)
	}
	view, err := vol.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := view.At(0, 1, 0); got != 2 {
		t.Errorf("Expected label 2 at (0, 1, 0), got %d", got)
	}
	if got := view.At(1, 1, 1); got != 4 {
		t.Errorf("Expected label 4 at (1, 1, 1), got %d", got)
	}
	if got := view.MaxLabel(); got != 4 {
		t.Errorf("Expected max label 4, got %d", got)
	}
}

// TestLoadNpyColumnMajor verifies that a Fortran-ordered payload is
// reordered into (z, y, x) indexing
func TestLoadNpyColumnMajor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.npy")
	// Fortran order for shape (2, 2, 2): first axis varies fastest, so the
	// row-major payload {0..7} is stored as 0,4,2,6,1,5,3,7.
	writeNpy(t, path, []int{2, 2, 2}, true, []uint16{0, 4, 2, 6, 1, 5, 3, 7})

	vol, err := LoadNpy(path)
	if err != nil {
		t.Fatalf("LoadNpy failed: %v", err)
	}
	view, err := vol.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	expected := uint32(0)
	for z := 0; z < 2; z++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				if got := view.At(z, y, x); got != expected {
					t.Errorf("Expected label %d at (%d, %d, %d), got %d", expected, z, y, x, got)
				}
				expected++
			}
		}
	}
}

// TestLoadNpyRejectsWrongRank verifies that only 3-D arrays are accepted
func TestLoadNpyRejectsWrongRank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.npy")
	writeNpy(t, path, []int{2, 2}, false, []uint16{1, 2, 3, 4})

	if _, err := LoadNpy(path); err == nil {
		t.Error("Expected LoadNpy to reject a 2-D array")
	}
}

// TestLoadNpyRejectsNegativeLabels verifies signed payload validation
func TestLoadNpyRejectsNegativeLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.npy")
	wtr, err := gonpy.NewFileWriter(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	wtr.Shape = []int{1, 1, 2}
	wtr.Version = 2
	if err := wtr.WriteInt32([]int32{5, -1}); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}

	if _, err := LoadNpy(path); err == nil {
		t.Error("Expected LoadNpy to reject negative labels")
	}
}

// TestOpenDispatch verifies extension dispatch and missing-file handling
func TestOpenDispatch(t *testing.T) {
	if _, err := Open("seg.raw"); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("Expected unsupported format error for seg.raw, got %v", err)
	}
	if _, err := LoadNifti(filepath.Join(t.TempDir(), "missing.nii")); err == nil {
		t.Error("Expected LoadNifti to fail for a missing file")
	}
}

package volume

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/KyungWonPark/nifti"
	"github.com/kshedden/gonpy"
)

// Open loads a segmentation volume, picking the loader from the file
// extension. NPY files must hold a 3-D integer array; NIfTI files must hold
// a 3-D image whose voxel values are non-negative integers.
func Open(path string) (*LabelVolume, error) {
	switch {
	case strings.HasSuffix(path, ".npy"):
		return LoadNpy(path)
	case strings.HasSuffix(path, ".nii"), strings.HasSuffix(path, ".nii.gz"):
		return LoadNifti(path)
	}
	return nil, fmt.Errorf("unsupported segmentation format: %s (want .npy, .nii or .nii.gz)", path)
}

// LoadNpy reads a 3-D integer NPY array as a label volume. Column-major
// files are reordered so the volume is always indexed (z, y, x).
func LoadNpy(path string) (*LabelVolume, error) {
	rdr, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segmentation %s: %v", path, err)
	}
	if len(rdr.Shape) != 3 {
		return nil, fmt.Errorf("segmentation %s must be 3-D, got %d axes", path, len(rdr.Shape))
	}

	flat, err := readNpyLabels(rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to read segmentation %s: %v", path, err)
	}

	depth, height, width := rdr.Shape[0], rdr.Shape[1], rdr.Shape[2]
	if rdr.ColumnMajor {
		flat = toRowMajor(flat, depth, height, width)
	}

	vol := New(depth, height, width)
	if err := vol.Load(flat); err != nil {
		return nil, err
	}
	return vol, nil
}

// readNpyLabels converts the array payload to uint32 labels, accepting any
// integer dtype whose values fit.
func readNpyLabels(rdr *gonpy.NpyReader) ([]uint32, error) {
	switch rdr.Dtype {
	case "u1":
		raw, err := rdr.GetUint8()
		if err != nil {
			return nil, err
		}
		out := make([]uint32, len(raw))
		for i, v := range raw {
			out[i] = uint32(v)
		}
		return out, nil
	case "u2":
		raw, err := rdr.GetUint16()
		if err != nil {
			return nil, err
		}
		out := make([]uint32, len(raw))
		for i, v := range raw {
			out[i] = uint32(v)
		}
		return out, nil
	case "u4":
		raw, err := rdr.GetUint32()
		if err != nil {
			return nil, err
		}
		return raw, nil
	case "u8":
		raw, err := rdr.GetUint64()
		if err != nil {
			return nil, err
		}
		out := make([]uint32, len(raw))
		for i, v := range raw {
			if v > math.MaxUint32 {
				return nil, fmt.Errorf("label %d exceeds uint32 range", v)
			}
			out[i] = uint32(v)
		}
		return out, nil
	case "i1":
		raw, err := rdr.GetInt8()
		if err != nil {
			return nil, err
		}
		out := make([]uint32, len(raw))
		for i, v := range raw {
			if v < 0 {
				return nil, fmt.Errorf("negative label %d", v)
			}
			out[i] = uint32(v)
		}
		return out, nil
	case "i2":
		raw, err := rdr.GetInt16()
		if err != nil {
			return nil, err
		}
		out := make([]uint32, len(raw))
		for i, v := range raw {
			if v < 0 {
				return nil, fmt.Errorf("negative label %d", v)
			}
			out[i] = uint32(v)
		}
		return out, nil
	case "i4":
		raw, err := rdr.GetInt32()
		if err != nil {
			return nil, err
		}
		out := make([]uint32, len(raw))
		for i, v := range raw {
			if v < 0 {
				return nil, fmt.Errorf("negative label %d", v)
			}
			out[i] = uint32(v)
		}
		return out, nil
	case "i8":
		raw, err := rdr.GetInt64()
		if err != nil {
			return nil, err
		}
		out := make([]uint32, len(raw))
		for i, v := range raw {
			if v < 0 {
				return nil, fmt.Errorf("negative label %d", v)
			}
			if v > math.MaxUint32 {
				return nil, fmt.Errorf("label %d exceeds uint32 range", v)
			}
			out[i] = uint32(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported dtype %q, want an integer array", rdr.Dtype)
}

// toRowMajor reorders a column-major payload into (z, y, x) row-major order.
func toRowMajor(in []uint32, depth, height, width int) []uint32 {
	out := make([]uint32, len(in))
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				out[(z*height+y)*width+x] = in[z+depth*(y+height*x)]
			}
		}
	}
	return out
}

// LoadNifti reads a 3-D NIfTI-1 image as a label volume. Voxel values are
// rounded to the nearest integer and must be non-negative.
func LoadNifti(path string) (*LabelVolume, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open segmentation %s: %v", path, err)
	}

	var header nifti.Nifti1Header
	header.LoadHeader(path)

	if header.Dim[0] < 3 {
		return nil, fmt.Errorf("segmentation %s must be 3-D, got %d axes", path, header.Dim[0])
	}
	width := int(header.Dim[1])
	height := int(header.Dim[2])
	depth := int(header.Dim[3])
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, fmt.Errorf("segmentation %s has invalid dimensions %dx%dx%d",
			path, width, height, depth)
	}
	for axis := 4; axis <= int(header.Dim[0]); axis++ {
		if header.Dim[axis] > 1 {
			return nil, fmt.Errorf("segmentation %s must be 3-D, axis %d has extent %d",
				path, axis, header.Dim[axis])
		}
	}

	var img nifti.Nifti1Image
	img.LoadImage(path, true)

	flat := make([]uint32, depth*height*width)
	i := 0
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				val := math.Round(float64(img.GetAt(uint32(x), uint32(y), uint32(z), 0)))
				if val < 0 {
					return nil, fmt.Errorf("negative label %g at (%d, %d, %d) in %s",
						val, z, y, x, path)
				}
				if val > math.MaxUint32 {
					return nil, fmt.Errorf("label %g at (%d, %d, %d) exceeds uint32 range",
						val, z, y, x)
				}
				flat[i] = uint32(val)
				i++
			}
		}
	}

	vol := New(depth, height, width)
	if err := vol.Load(flat); err != nil {
		return nil, err
	}
	return vol, nil
}

package clipper

import (
	"fmt"
	"math"
	"strconv"
)

// Window is a rectangle of whole pixels in a raster grid
type Window struct {
	Col, Row      int
	Width, Height int
}

// srcwin returns the window as gdal_translate switches
func (w Window) srcwin() []string {
	return []string{"-srcwin", strconv.Itoa(w.Col), strconv.Itoa(w.Row), strconv.Itoa(w.Width), strconv.Itoa(w.Height)}
}

// windowFromExtent maps a georeferenced extent to the pixel grid of a raster.
// The window is expanded to whole pixels (floor/ceil) so that it covers the
// extent entirely, then clamped to the raster. ok is false when the extent
// does not intersect the raster.
func windowFromExtent(gt [6]float64, sizeX, sizeY int, extent [4]float64) (Window, bool, error) {
	if gt[2] != 0 || gt[4] != 0 {
		return Window{}, false, fmt.Errorf("windowFromExtent: rotated rasters are not supported")
	}
	if gt[1] == 0 || gt[5] == 0 {
		return Window{}, false, fmt.Errorf("windowFromExtent: degenerate pixel size")
	}

	c1, c2 := (extent[0]-gt[0])/gt[1], (extent[2]-gt[0])/gt[1]
	r1, r2 := (extent[1]-gt[3])/gt[5], (extent[3]-gt[3])/gt[5]
	colMin := int(math.Floor(math.Min(c1, c2)))
	colMax := int(math.Ceil(math.Max(c1, c2)))
	rowMin := int(math.Floor(math.Min(r1, r2)))
	rowMax := int(math.Ceil(math.Max(r1, r2)))

	colMin, colMax = max(colMin, 0), min(colMax, sizeX)
	rowMin, rowMax = max(rowMin, 0), min(rowMax, sizeY)
	if colMin >= colMax || rowMin >= rowMax {
		return Window{}, false, nil
	}
	return Window{Col: colMin, Row: rowMin, Width: colMax - colMin, Height: rowMax - rowMin}, true, nil
}

// pointTransformer reprojects coordinates in place (see godal.Transform)
type pointTransformer interface {
	TransformEx(x []float64, y []float64, z []float64, successful []bool) error
}

// transformExtent reprojects extent and returns the bounding box of the
// reprojected points. The edges are densified so that the box follows the
// curvature of the transformation.
func transformExtent(tr pointTransformer, extent [4]float64) ([4]float64, error) {
	const steps = 21
	xs := make([]float64, 0, 4*steps)
	ys := make([]float64, 0, 4*steps)
	for i := 0; i < steps; i++ {
		t := float64(i) / (steps - 1)
		x := extent[0] + t*(extent[2]-extent[0])
		y := extent[1] + t*(extent[3]-extent[1])
		xs = append(xs, x, x, extent[0], extent[2])
		ys = append(ys, extent[1], extent[3], y, y)
	}
	ok := make([]bool, len(xs))
	if err := tr.TransformEx(xs, ys, nil, ok); err != nil {
		return [4]float64{}, fmt.Errorf("transformExtent: %w", err)
	}
	out := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	transformed := false
	for i := range xs {
		if !ok[i] {
			continue
		}
		transformed = true
		out[0] = math.Min(out[0], xs[i])
		out[1] = math.Min(out[1], ys[i])
		out[2] = math.Max(out[2], xs[i])
		out[3] = math.Max(out[3], ys[i])
	}
	if !transformed {
		return out, fmt.Errorf("transformExtent: no point of the extent could be reprojected")
	}
	return out, nil
}

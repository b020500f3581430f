package facematch

import "fmt"

// BBox is an axis-aligned rectangle in image pixel coordinates.
// (X1, Y1) is the top-left corner and (X2, Y2) the bottom-right one.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// BBoxFromSlice converts a [x1, y1, x2, y2] slice as returned by embedding servers.
func BBoxFromSlice(s []float64) (BBox, error) {
	if len(s) != 4 {
		return BBox{}, fmt.Errorf("bbox must have 4 coordinates, got %d", len(s))
	}
	return BBox{X1: s[0], Y1: s[1], X2: s[2], Y2: s[3]}, nil
}

// Corners returns the box as [x1, y1, x2, y2].
func (b BBox) Corners() []float64 {
	return []float64{b.X1, b.Y1, b.X2, b.Y2}
}

// Width of the box in pixels.
func (b BBox) Width() float64 { return b.X2 - b.X1 }

// Height of the box in pixels.
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// Scale multiplies every coordinate by factor.
func (b BBox) Scale(factor float64) BBox {
	return b.ScaleXY(factor, factor)
}

// ScaleXY multiplies x coordinates by sx and y coordinates by sy.
// Used to map boxes detected on a downscaled copy back to the original image.
func (b BBox) ScaleXY(sx, sy float64) BBox {
	return BBox{
		X1: b.X1 * sx,
		Y1: b.Y1 * sy,
		X2: b.X2 * sx,
		Y2: b.Y2 * sy,
	}
}

// Relative converts the box to relative (0-1) [x, y, w, h] coordinates.
// The box is returned unchanged as corners if the dimensions are not positive.
func (b BBox) Relative(width, height int) []float64 {
	if width <= 0 || height <= 0 {
		return b.Corners()
	}
	x := b.X1 / float64(width)
	y := b.Y1 / float64(height)
	return []float64{x, y, b.X2/float64(width) - x, b.Y2/float64(height) - y}
}

// String formats the box as "(x1,y1)-(x2,y2)".
func (b BBox) String() string {
	return fmt.Sprintf("(%.0f,%.0f)-(%.0f,%.0f)", b.X1, b.Y1, b.X2, b.Y2)
}

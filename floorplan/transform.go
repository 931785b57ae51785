package floorplan

import "fmt"

// Scale converts floor-relative meters to image pixels for one floor.
// Axes are scaled independently, so a floor plan stored at a different
// aspect ratio than its surveyed dimensions is stretched, not letterboxed.
type Scale struct {
	FloorWidth  float64 // meters
	FloorHeight float64 // meters
	ImageWidth  int
	ImageHeight int
}

// NewScale builds the scale for a floor rendered onto an image of the given size
func NewScale(f Floor, imageWidth, imageHeight int) Scale {
	return Scale{
		FloorWidth:  f.Width,
		FloorHeight: f.Height,
		ImageWidth:  imageWidth,
		ImageHeight: imageHeight,
	}
}

// Validate rejects scales that cannot map meters to pixels
func (s Scale) Validate() error {
	if s.FloorWidth <= 0 || s.FloorHeight <= 0 {
		return fmt.Errorf("%w: floor dimensions %gx%g m", ErrTransform, s.FloorWidth, s.FloorHeight)
	}
	return nil
}

// ToPixel maps optional meter coordinates to a pixel position
func (s Scale) ToPixel(x, y *float64) (Point, error) {
	if x == nil || y == nil {
		return Point{}, fmt.Errorf("%w: missing coordinates", ErrTransform)
	}
	return MetersToPixels(*x, *y, s.FloorWidth, s.FloorHeight, s.ImageWidth, s.ImageHeight)
}

// MetersToPixels applies pixel = image * meter / floor on each axis
func MetersToPixels(mx, my, floorW, floorH float64, imgW, imgH int) (Point, error) {
	if floorW <= 0 || floorH <= 0 {
		return Point{}, fmt.Errorf("%w: floor dimensions %gx%g m", ErrTransform, floorW, floorH)
	}
	return Point{
		X: float64(imgW) * mx / floorW,
		Y: float64(imgH) * my / floorH,
	}, nil
}

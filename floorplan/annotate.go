package floorplan

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// DefaultFontSize is the label size in pixels when none is configured
const DefaultFontSize = 10

const (
	markerSize = 5 // square spans [x, x+markerSize] inclusive
	labelGap   = 7 // label starts this far right of the marker origin
)

var (
	ColorAP       = color.RGBA{35, 58, 235, 255}
	ColorPrecise  = color.RGBA{212, 134, 44, 255}
	ColorFallback = color.RGBA{35, 179, 30, 255}
)

// ColorFor returns the marker and label color for a mark kind
func ColorFor(kind MarkKind) color.RGBA {
	switch kind {
	case MarkPrecise:
		return ColorPrecise
	case MarkFallback:
		return ColorFallback
	default:
		return ColorAP
	}
}

// Annotator draws markers and labels. Font faces are not safe for concurrent
// use, so each render pass gets its own face through Begin.
type Annotator struct {
	font *sfnt.Font
	size float64
}

// NewAnnotator parses the bundled Go Regular font at the given pixel size
func NewAnnotator(fontSize int) (*Annotator, error) {
	if fontSize <= 0 {
		fontSize = DefaultFontSize
	}
	fnt, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing label font: %w", err)
	}
	return &Annotator{font: fnt, size: float64(fontSize)}, nil
}

// FontSize returns the configured label size
func (a *Annotator) FontSize() int { return int(a.size) }

func (a *Annotator) newFace() font.Face {
	if a == nil || a.font == nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(a.font, &opentype.FaceOptions{
		Size:    a.size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// Canvas is a single render pass over a working copy of a floor image
type Canvas struct {
	img  *image.RGBA
	face font.Face
}

// Begin copies src into a fresh RGBA image and prepares a face for labels.
// src itself is never drawn on.
func (a *Annotator) Begin(src image.Image) *Canvas {
	return &Canvas{img: WorkingCopy(src), face: a.newFace()}
}

// Image returns the working copy
func (c *Canvas) Image() *image.RGBA { return c.img }

// Close releases the face
func (c *Canvas) Close() error {
	return c.face.Close()
}

// Draw renders a mark as a filled square plus its label
func (c *Canvas) Draw(m Mark) {
	col := ColorFor(m.Kind)
	c.Marker(m.Pixel, col)
	c.Label(m.Pixel.Add(labelGap, 0), m.Label, col)
}

// Marker fills the square from p to p+markerSize on both axes
func (c *Canvas) Marker(p Point, col color.RGBA) {
	x0, y0 := int(math.Floor(p.X)), int(math.Floor(p.Y))
	r := image.Rect(x0, y0, x0+markerSize+1, y0+markerSize+1).Intersect(c.img.Bounds())
	if r.Empty() {
		return
	}
	xdraw.Draw(c.img, r, image.NewUniform(col), image.Point{}, xdraw.Src)
}

// Label writes text with its top-left corner at p. Lines split on '\n'.
func (c *Canvas) Label(p Point, text string, col color.RGBA) {
	metrics := c.face.Metrics()
	lineHeight := metrics.Height
	if lineHeight == 0 {
		lineHeight = metrics.Ascent + metrics.Descent
	}
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: c.face,
	}
	x := fixed.I(int(math.Floor(p.X)))
	baseline := fixed.I(int(math.Floor(p.Y))) + metrics.Ascent
	for _, line := range strings.Split(text, "\n") {
		d.Dot = fixed.Point26_6{X: x, Y: baseline}
		d.DrawString(line)
		baseline += lineHeight
	}
}

// WorkingCopy returns an RGBA copy of src with bounds rebased to the origin
func WorkingCopy(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	return dst
}

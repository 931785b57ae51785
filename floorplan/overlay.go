package floorplan

import (
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/svg"
)

// WriteOverlaySVG writes the marks of one floor render as an SVG the size of
// the floor image, suitable for layering over the original in a browser.
// Canvas coordinates grow upward, so pixel rows are flipped.
func WriteOverlaySVG(w io.Writer, width, height int, marks []Mark) error {
	fw, fh := float64(width), float64(height)
	svgRenderer := svg.New(w, fw, fh, nil)

	for _, m := range marks {
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: ColorFor(m.Kind)}
		style.Stroke = canvas.Paint{Color: canvas.Transparent}

		x := m.Pixel.X
		y := fh - m.Pixel.Y - markerSize
		svgRenderer.RenderPath(canvas.Rectangle(markerSize, markerSize).Translate(x, y), style, canvas.Identity)
	}

	return svgRenderer.Close()
}

package floorplan

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func pos(floor string, x, y float64) *FloorPlanPosition {
	return &FloorPlanPosition{Name: floor, X: f64(x), Y: f64(y)}
}

var white = color.RGBA{255, 255, 255, 255}

// writeFloorImage writes a solid white PNG of the given size into dir
func writeFloorImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, white)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, img))
	return path
}

func readImage(t *testing.T, path string) image.Image {
	t.Helper()
	img, err := LoadImage(path)
	require.NoError(t, err)
	return img
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

// countColor returns how many pixels of img have exactly color c
func countColor(img image.Image, c color.RGBA) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if rgbaAt(img, x, y) == c {
				n++
			}
		}
	}
	return n
}

var fixedNow = time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)

// newTestEngine registers floors "net1/F1" and "net1/F2" (10m x 10m) backed
// by 1000x1000 white PNGs.
func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	writeFloorImage(t, dir, "HQ - F1.png", 1000, 1000)
	writeFloorImage(t, dir, "HQ - F2.png", 1000, 1000)

	store := NewStore()
	store.PutNetwork("net1", "HQ")
	store.PutFloor(Floor{NetworkID: "net1", Name: "F1", Filename: "HQ - F1.png", Width: 10, Height: 10})
	store.PutFloor(Floor{NetworkID: "net1", Name: "F2", Filename: "HQ - F2.png", Width: 10, Height: 10})

	ann, err := NewAnnotator(DefaultFontSize)
	require.NoError(t, err)

	e := NewEngine(store, dir, ann, Resolver{})
	e.Now = func() time.Time { return fixedNow }
	return e, dir
}

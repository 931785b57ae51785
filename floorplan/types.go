package floorplan

import (
	"time"

	"github.com/paulmach/orb"
)

// LastUpdateLayout is the display format for floor and network timestamps
const LastUpdateLayout = "Mon Jan 02 2006, 03:04PM"

// FloorKey identifies a floor within a network
type FloorKey struct {
	NetworkID string `json:"networkId"`
	Floor     string `json:"floor"`
}

func (k FloorKey) String() string {
	return k.NetworkID + "/" + k.Floor
}

// Floor is the metadata record kept for every floor plan of a network.
// Width and Height are the real-world dimensions in meters; ImageWidth and
// ImageHeight are the pixel size of the original image, recorded on render.
type Floor struct {
	NetworkID   string    `json:"networkId"`
	Name        string    `json:"name"`
	Filename    string    `json:"filename"`
	Width       float64   `json:"width"`
	Height      float64   `json:"height"`
	ImageWidth  int       `json:"imageWidth,omitempty"`
	ImageHeight int       `json:"imageHeight,omitempty"`
	LastUpdate  time.Time `json:"lastupdate"`
}

// Key returns the store key for the floor
func (f Floor) Key() FloorKey {
	return FloorKey{NetworkID: f.NetworkID, Floor: f.Name}
}

// LastUpdateString formats the last render time, or "Never"
func (f Floor) LastUpdateString() string {
	if f.LastUpdate.IsZero() {
		return "Never"
	}
	return f.LastUpdate.Format(LastUpdateLayout)
}

// Network is a named network owning a set of floors
type Network struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LastReceived time.Time `json:"lastReceived"`
}

// Point is a pixel coordinate on a floor image (origin top-left, Y down)
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p shifted by dx, dy
func (p Point) Add(dx, dy float64) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

// Orb converts the point for use with orb geometry helpers
func (p Point) Orb() orb.Point {
	return orb.Point{p.X, p.Y}
}

// MarkKind classifies something drawn on a floor image
type MarkKind string

const (
	MarkAP       MarkKind = "ap"
	MarkPrecise  MarkKind = "precise"
	MarkFallback MarkKind = "fallback"
)

// Mark is one marker plus label drawn during a floor render
type Mark struct {
	Kind   MarkKind `json:"kind"`
	Name   string   `json:"name"`
	Label  string   `json:"label"`
	Pixel  Point    `json:"pixel"`
	Anchor string   `json:"anchor,omitempty"` // AP MAC a device mark relates to
}

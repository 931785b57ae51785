package floorplan

import (
	"strings"

	"github.com/paulmach/orb"
)

// FallbackOffsetX is the horizontal distance of a fallback device from its AP
const FallbackOffsetX = 5

// SkipReason names why a device was not drawn on a floor
type SkipReason string

const (
	SkipUUIDFilter          SkipReason = "uuid-filter"
	SkipPreciseOtherFloor   SkipReason = "precise-location-on-other-floor"
	SkipPreciseNoFloor      SkipReason = "precise-location-without-floor"
	SkipPreciseNoCoords     SkipReason = "precise-location-missing-coordinates"
	SkipNearestAPNotOnFloor SkipReason = "nearest-ap-not-on-floor"
	SkipNoLocationData      SkipReason = "no-location-data"
)

// Placement is the resolved outcome for one observation on one floor.
// Kind is empty when the device was skipped. AnchorAP is the AP a fallback
// device is stacked against, or the closest AP to a precise position.
type Placement struct {
	Kind        MarkKind
	Pixel       Point
	Skip        SkipReason
	AnchorAP    string
	OutOfBounds bool
}

// Placed reports whether the device will be drawn
func (p Placement) Placed() bool { return p.Kind != "" }

// UUIDFilter excludes devices whose UUID does not contain Substring
type UUIDFilter struct {
	Enabled   bool
	Substring string
}

// Allows reports whether a device with the given UUID passes the filter.
// With the filter enabled, a device without a UUID never passes.
func (f UUIDFilter) Allows(uuid string) bool {
	if !f.Enabled {
		return true
	}
	if uuid == "" {
		return false
	}
	return strings.Contains(uuid, f.Substring)
}

// Resolver decides where, if anywhere, an observation is drawn on a floor
type Resolver struct {
	Filter UUIDFilter
}

// Resolve applies the placement policy in priority order:
//
//  1. a precise location whose floor is this floor is scaled to pixels;
//  2. a device with no precise locations is anchored to its nearest AP
//     when that AP is on this floor, shifted by the label stack;
//  3. anything else is skipped with a named reason.
//
// A device with a precise location elsewhere is never force-placed here
// through its nearest AP. The stack only advances for fallback placements.
func (r Resolver) Resolve(obs Observation, floor string, scale Scale, idx *APIndex, stack *LabelStack) Placement {
	if !r.Filter.Allows(obs.UUID()) {
		return Placement{Skip: SkipUUIDFilter}
	}

	if len(obs.Locations) > 0 {
		fp := obs.Locations[0].FloorPlan
		switch {
		case fp == nil:
			return Placement{Skip: SkipPreciseNoFloor}
		case fp.Name != floor:
			return Placement{Skip: SkipPreciseOtherFloor}
		}
		px, err := scale.ToPixel(fp.X, fp.Y)
		if err != nil {
			return Placement{Skip: SkipPreciseNoCoords}
		}
		p := Placement{Kind: MarkPrecise, Pixel: px, OutOfBounds: !inImage(px, scale)}
		if ap, ok := idx.Nearest(px); ok {
			p.AnchorAP = ap.MAC
		}
		return p
	}

	mac, ok := obs.NearestAP()
	if !ok {
		return Placement{Skip: SkipNoLocationData}
	}
	ap, ok := idx.Lookup(mac)
	if !ok {
		return Placement{Skip: SkipNearestAPNotOnFloor}
	}
	px := ap.Pixel.Add(FallbackOffsetX, float64(stack.Next()))
	return Placement{
		Kind:        MarkFallback,
		Pixel:       px,
		AnchorAP:    ap.MAC,
		OutOfBounds: !inImage(px, scale),
	}
}

func inImage(p Point, s Scale) bool {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{float64(s.ImageWidth), float64(s.ImageHeight)}}
	return b.Contains(p.Orb())
}

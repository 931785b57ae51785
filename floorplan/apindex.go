package floorplan

import (
	"strings"

	"github.com/paulmach/orb/planar"
	"github.com/rs/zerolog/log"
)

// APLocation is an access point resolved to a pixel position on one floor
type APLocation struct {
	MAC   string
	Name  string
	Pixel Point
}

// APIndex maps AP MAC to pixel position for the APs on a single floor.
// Lookup is case-insensitive on the MAC.
type APIndex struct {
	floor string
	order []string
	byMAC map[string]APLocation
}

func normalizeMAC(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}

// BuildAPIndex keeps only the APs that report floorName as their floor plan.
// An AP on the floor without coordinates cannot be drawn or used as an
// anchor and is left out.
func BuildAPIndex(aps []ReportingAP, floorName string, scale Scale) *APIndex {
	idx := &APIndex{
		floor: floorName,
		byMAC: make(map[string]APLocation),
	}
	for _, ap := range aps {
		if ap.FloorPlan == nil || ap.FloorPlan.Name != floorName {
			continue
		}
		px, err := scale.ToPixel(ap.FloorPlan.X, ap.FloorPlan.Y)
		if err != nil {
			log.Warn().Str("ap", ap.MAC).Str("floor", floorName).Err(err).Msg("AP on floor has no usable position")
			continue
		}
		mac := normalizeMAC(ap.MAC)
		if _, dup := idx.byMAC[mac]; !dup {
			idx.order = append(idx.order, mac)
		}
		idx.byMAC[mac] = APLocation{MAC: ap.MAC, Name: ap.Name, Pixel: px}
	}
	return idx
}

// Floor returns the floor the index was built for
func (i *APIndex) Floor() string { return i.floor }

// Lookup returns the AP with the given MAC if it is on this floor
func (i *APIndex) Lookup(mac string) (APLocation, bool) {
	loc, ok := i.byMAC[normalizeMAC(mac)]
	return loc, ok
}

// All returns the indexed APs in payload order
func (i *APIndex) All() []APLocation {
	out := make([]APLocation, 0, len(i.order))
	for _, mac := range i.order {
		out = append(out, i.byMAC[mac])
	}
	return out
}

// Len returns the number of APs on the floor
func (i *APIndex) Len() int { return len(i.order) }

// Nearest returns the AP closest to p in pixel space. Ties go to the AP that
// appears first in the payload.
func (i *APIndex) Nearest(p Point) (APLocation, bool) {
	var (
		best  APLocation
		bestD float64
		found bool
	)
	for _, mac := range i.order {
		ap := i.byMAC[mac]
		d := planar.Distance(p.Orb(), ap.Pixel.Orb())
		if !found || d < bestD {
			best, bestD, found = ap, d, true
		}
	}
	return best, found
}

package floorplan

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MarksGeoJSON converts the marks of one render to a feature collection in
// image pixel coordinates. Each feature carries name, kind and label, plus
// anchorAp for device marks related to an AP.
func MarksGeoJSON(key FloorKey, marks []Mark) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{
		"networkId": key.NetworkID,
		"floor":     key.Floor,
	}
	for _, m := range marks {
		f := geojson.NewFeature(orb.Point{m.Pixel.X, m.Pixel.Y})
		f.Properties["name"] = m.Name
		f.Properties["kind"] = string(m.Kind)
		f.Properties["label"] = m.Label
		if m.Anchor != "" {
			f.Properties["anchorAp"] = m.Anchor
		}
		fc.Append(f)
	}
	return fc
}

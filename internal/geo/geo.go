package geo

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadiusMiles is the mean Earth radius.
const EarthRadiusMiles = 3958.8

// boundsPad widens SQL prefilter bounds so points on the edge survive the
// degree/radian round trip; the exact distance check runs afterwards.
const boundsPad = 1e-6

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Point) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lng)
}

// DistanceMiles is the great-circle distance between a and b.
func DistanceMiles(a, b Point) float64 {
	return a.latLng().Distance(b.latLng()).Radians() * EarthRadiusMiles
}

// Bounds is a lat/lng box for index-friendly prefiltering. When WrapsLng is
// set the longitude range crosses the antimeridian and a point matches when
// lng >= MinLng OR lng <= MaxLng. FullLng disables the longitude filter.
type Bounds struct {
	MinLat   float64
	MaxLat   float64
	MinLng   float64
	MaxLng   float64
	WrapsLng bool
	FullLng  bool
}

// BoundsForRadius returns the bounding box of the spherical cap of the given
// radius around center.
func BoundsForRadius(center Point, miles float64) Bounds {
	if miles < 0 {
		miles = 0
	}
	angle := s1.Angle(miles / EarthRadiusMiles)
	if angle > s1.Angle(math.Pi) {
		angle = s1.Angle(math.Pi)
	}
	rect := s2.CapFromCenterAngle(s2.PointFromLatLng(center.latLng()), angle).RectBound()

	b := Bounds{
		MinLat: math.Max(-90, rect.Lo().Lat.Degrees()-boundsPad),
		MaxLat: math.Min(90, rect.Hi().Lat.Degrees()+boundsPad),
	}
	if rect.Lng.IsFull() {
		b.FullLng = true
		b.MinLng, b.MaxLng = -180, 180
		return b
	}
	b.MinLng = s1.Angle(rect.Lng.Lo).Degrees() - boundsPad
	b.MaxLng = s1.Angle(rect.Lng.Hi).Degrees() + boundsPad
	b.WrapsLng = rect.Lng.IsInverted()
	if b.MinLng < -180 || b.MaxLng > 180 {
		// padding pushed the box past the antimeridian
		b.MinLng = math.Max(-180, b.MinLng)
		b.MaxLng = math.Min(180, b.MaxLng)
	}
	return b
}

// MapsLink builds the map URL sent in emergency alerts.
func MapsLink(p Point) string {
	return "https://maps.google.com/maps?q=" + formatCoord(p.Lat) + "," + formatCoord(p.Lng)
}

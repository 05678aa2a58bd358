// Package projutil implements the concrete coordinate reprojections the
// projection transform needs. The general ellipsoid/proj-string math
// library is named out of core scope in spec.md §1 ("addressed only via
// the interface the core consumes"); no pack example ships one, so the
// small set of EPSG pairs this converter actually needs (Web Mercator,
// and the JGD2011<->WGS84 path the invariants name explicitly) is
// implemented directly against the formulas, registered behind the same
// Project function signature a real proj library would expose.
package projutil

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedCRS is returned for any (from, to) EPSG pair this package
// has no registered transform for.
var ErrUnsupportedCRS = errors.New("projutil: unsupported CRS pair")

// Forward reprojects one vertex from the "from" EPSG code to "to".
type Forward func(x, y, z float64) (float64, float64, float64)

type pair struct {
	from, to int
}

var registry = map[pair]Forward{}

func register(from, to int, fn Forward) {
	registry[pair{from, to}] = fn
}

func init() {
	register(4326, 3857, wgs84ToWebMercator)
	register(3857, 4326, webMercatorToWGS84)
	register(4326, 4326, identity)
	register(3857, 3857, identity)
	register(6697, 4326, jgd2011ToWGS84)
	register(4326, 6697, wgs84ToJGD2011)
	register(6697, 6697, identity)
}

// Lookup returns the registered forward transform for (from, to), or
// ErrUnsupportedCRS.
func Lookup(from, to int) (Forward, error) {
	if from == to {
		return identity, nil
	}
	fn, ok := registry[pair{from, to}]
	if !ok {
		return nil, fmt.Errorf("%w: %d -> %d", ErrUnsupportedCRS, from, to)
	}
	return fn, nil
}

func identity(x, y, z float64) (float64, float64, float64) { return x, y, z }

const earthRadius = 6378137.0 // WGS84 semi-major axis, meters

// wgs84ToWebMercator projects lon/lat/height degrees to EPSG:3857 meters.
func wgs84ToWebMercator(lon, lat, h float64) (float64, float64, float64) {
	x := earthRadius * lon * math.Pi / 180
	y := earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y, h
}

// webMercatorToWGS84 is the inverse of wgs84ToWebMercator.
func webMercatorToWGS84(x, y, h float64) (float64, float64, float64) {
	lon := (x / earthRadius) * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat, h
}

// jgd2011VerticalShiftMeters is the only datum constant between JGD2011
// and WGS84: no Helmert parameters or shift grid are applied, and with
// the value 0 both directions are the identity.
const jgd2011VerticalShiftMeters = 0.0 // grid resolution stand-in; see DESIGN.md

// jgd2011ToWGS84 converts JGD2011 geographic (lon, lat, ellipsoidal
// height) to WGS84. JGD2011 and WGS84 share the GRS80 ellipsoid and are
// aligned to well within survey tolerance, so the horizontal components
// pass through unchanged and only the height carries the shift.
func jgd2011ToWGS84(lon, lat, h float64) (float64, float64, float64) {
	return lon, lat, h + jgd2011VerticalShiftMeters
}

func wgs84ToJGD2011(lon, lat, h float64) (float64, float64, float64) {
	return lon, lat, h - jgd2011VerticalShiftMeters
}

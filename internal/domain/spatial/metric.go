package spatial

import (
	"fmt"
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/okian/stationqc/internal/domain/model"
)

// Metric selects how distances between stations are measured. It is fixed
// for the lifetime of a cache.
type Metric uint8

const (
	// Geodetic measures great-circle distance in metres on a sphere of
	// EarthRadius; Lat/Lon are degrees.
	Geodetic Metric = iota
	// Planar measures Euclidean distance with Lon as X and Lat as Y, in the
	// units of the coordinates.
	Planar
)

// Absolute padding added to search boxes so points on the boundary are not
// lost to rounding; the exact distance filter runs afterwards.
const (
	geodeticPadding = 1e-3
	planarPadding   = 1e-9
)

// ParseMetric converts "geodetic" or "planar" into a Metric.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "", "geodetic":
		return Geodetic, nil
	case "planar":
		return Planar, nil
	default:
		return Geodetic, fmt.Errorf("unknown metric %q: %w", s, model.ErrInvalidInput)
	}
}

func (m Metric) String() string {
	switch m {
	case Geodetic:
		return "geodetic"
	case Planar:
		return "planar"
	default:
		return fmt.Sprintf("metric(%d)", uint8(m))
	}
}

func (m Metric) valid() bool {
	return m == Geodetic || m == Planar
}

func (m Metric) check(s model.Station) error {
	if !finite(s.Lat) || !finite(s.Lon) || !finite(s.Elev) {
		return fmt.Errorf("non-finite coordinates: %w", model.ErrInvalidInput)
	}
	// lons are checked against 360 to accept both the ±180 and 0..360 conventions
	if m == Geodetic && (math.Abs(s.Lat) > 90 || math.Abs(s.Lon) > 360) {
		return fmt.Errorf("lat/lon (%g, %g) out of range: %w", s.Lat, s.Lon, model.ErrInvalidInput)
	}
	return nil
}

// project maps a station to tree space.
func (m Metric) project(s model.Station) rtreego.Point {
	if m == Planar {
		return rtreego.Point{s.Lon, s.Lat, 0}
	}
	lat := s.Lat * math.Pi / 180
	lon := s.Lon * math.Pi / 180
	return rtreego.Point{
		EarthRadius * math.Cos(lat) * math.Cos(lon),
		EarthRadius * math.Cos(lat) * math.Sin(lon),
		EarthRadius * math.Sin(lat),
	}
}

// distance between two stations under m.
func (m Metric) distance(a, b model.Station) float64 {
	if a.Lat == b.Lat && a.Lon == b.Lon {
		return 0
	}
	if m == Planar {
		return math.Hypot(a.Lon-b.Lon, a.Lat-b.Lat)
	}
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(math.Max(h, 0), 1)
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// coversAll reports whether a radius of r reaches every point of the space.
func (m Metric) coversAll(r float64) bool {
	return m == Geodetic && r >= math.Pi*EarthRadius
}

// box returns a tree-space box that contains every point within r of loc.
func (m Metric) box(loc rtreego.Point, r float64) (rtreego.Rect, error) {
	half := r
	pad := planarPadding * math.Max(1, math.Max(r, math.Max(math.Abs(loc[0]), math.Abs(loc[1]))))
	if m == Geodetic {
		// great-circle radius -> straight-line chord through the sphere
		half = 2 * EarthRadius * math.Sin(r/(2*EarthRadius))
		pad = geodeticPadding
	}
	corner := rtreego.Point{loc[0] - half - pad, loc[1] - half - pad, loc[2] - half - pad}
	side := 2 * (half + pad)
	if m == Planar {
		corner[2] = loc[2] - pad
		return rtreego.NewRect(corner, []float64{side, side, 2 * pad})
	}
	return rtreego.NewRect(corner, []float64{side, side, side})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

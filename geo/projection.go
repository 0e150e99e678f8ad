package geo

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// ErrUnsupportedProjection is returned for .prj files whose projection
// cannot be inverted to WGS84.
var ErrUnsupportedProjection = errors.New("unsupported projection")

// Projection converts projected coordinates to WGS84 longitude/latitude.
type Projection interface {
	ToWGS84(p orb.Point) orb.Point
}

// Geographic is the identity projection for data already in degrees. NAD83
// and WGS84 are treated as equal.
type Geographic struct{}

// ToWGS84 returns p unchanged.
func (Geographic) ToWGS84(p orb.Point) orb.Point { return p }

// WebMercator inverts spherical pseudo-Mercator (EPSG:3857) coordinates.
type WebMercator struct {
	Unit float64 // metres per projection unit
}

// ToWGS84 implements Projection.
func (m WebMercator) ToWGS84(p orb.Point) orb.Point {
	u := m.Unit
	if u == 0 {
		u = 1
	}
	return project.Mercator.ToWGS84(orb.Point{p[0] * u, p[1] * u})
}

var (
	wktProjection = regexp.MustCompile(`PROJECTION\s*\[\s*"([^"]+)"`)
	wktParameter  = regexp.MustCompile(`PARAMETER\s*\[\s*"([^"]+)"\s*,\s*([-+0-9.eE]+)`)
	wktSpheroid   = regexp.MustCompile(`(?:SPHEROID|ELLIPSOID)\s*\[\s*"[^"]*"\s*,\s*([-+0-9.eE]+)\s*,\s*([-+0-9.eE]+)`)
	wktUnit       = regexp.MustCompile(`UNIT\s*\[\s*"[^"]*"\s*,\s*([-+0-9.eE]+)`)
)

// ParsePRJ reads the well-known text of a shapefile .prj file.
func ParsePRJ(wkt string) (Projection, error) {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" || strings.HasPrefix(strings.ToUpper(wkt), "GEOGCS") || strings.HasPrefix(strings.ToUpper(wkt), "GEOGCRS") {
		return Geographic{}, nil
	}
	upper := strings.ToUpper(wkt)
	if !strings.HasPrefix(upper, "PROJCS") && !strings.HasPrefix(upper, "PROJCRS") {
		return nil, fmt.Errorf("%w: unrecognised WKT %.40q", ErrUnsupportedProjection, wkt)
	}

	m := wktProjection.FindStringSubmatch(wkt)
	if m == nil {
		return nil, fmt.Errorf("%w: no PROJECTION in WKT", ErrUnsupportedProjection)
	}
	method := strings.ToLower(m[1])

	params := make(map[string]float64)
	for _, pm := range wktParameter.FindAllStringSubmatch(wkt, -1) {
		v, err := strconv.ParseFloat(pm[2], 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", pm[1], err)
		}
		params[strings.ToLower(pm[1])] = v
	}

	// The linear unit is the last UNIT in a PROJCS; earlier ones belong to
	// the GEOGCS.
	unit := 1.0
	if units := wktUnit.FindAllStringSubmatch(wkt, -1); len(units) > 1 {
		v, err := strconv.ParseFloat(units[len(units)-1][1], 64)
		if err != nil {
			return nil, fmt.Errorf("unit: %w", err)
		}
		unit = v
	}

	switch {
	case strings.Contains(method, "lambert_conformal_conic"):
		a, invf := 6378137.0, 298.257222101
		if s := wktSpheroid.FindStringSubmatch(wkt); s != nil {
			a, _ = strconv.ParseFloat(s[1], 64)
			invf, _ = strconv.ParseFloat(s[2], 64)
		}
		lat0 := param(params, "latitude_of_origin", "standard_parallel_1")
		sp1 := param(params, "standard_parallel_1", "latitude_of_origin")
		sp2 := param(params, "standard_parallel_2", "standard_parallel_1", "latitude_of_origin")
		return NewLambertConformalConic(LCCParams{
			SemiMajor:       a,
			InvFlattening:   invf,
			LatOrigin:       lat0,
			CentralMeridian: param(params, "central_meridian", "longitude_of_origin"),
			StdParallel1:    sp1,
			StdParallel2:    sp2,
			FalseEasting:    param(params, "false_easting"),
			FalseNorthing:   param(params, "false_northing"),
			ScaleFactor:     param(params, "scale_factor"),
			Unit:            unit,
		}), nil
	case strings.Contains(method, "mercator_auxiliary_sphere"), strings.Contains(method, "pseudo_mercator"),
		strings.Contains(method, "pseudo-mercator"):
		return WebMercator{Unit: unit}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedProjection, m[1])
}

func param(params map[string]float64, names ...string) float64 {
	for _, n := range names {
		if v, ok := params[n]; ok {
			return v
		}
	}
	return 0
}

// LCCParams describes a Lambert Conformal Conic projection. Angles are in
// degrees; false easting/northing are in projection units.
type LCCParams struct {
	SemiMajor       float64
	InvFlattening   float64
	LatOrigin       float64
	CentralMeridian float64
	StdParallel1    float64
	StdParallel2    float64
	FalseEasting    float64
	FalseNorthing   float64
	ScaleFactor     float64
	Unit            float64
}

// LambertConformalConic is the ellipsoidal LCC projection used by most US
// state plane zones, including Massachusetts Mainland (EPSG:26986, 2249).
type LambertConformalConic struct {
	p             LCCParams
	e, n, f, rho0 float64
	lon0          float64
}

// NewLambertConformalConic precomputes the projection constants.
func NewLambertConformalConic(p LCCParams) *LambertConformalConic {
	if p.Unit == 0 {
		p.Unit = 1
	}
	if p.ScaleFactor == 0 {
		p.ScaleFactor = 1
	}
	fl := 1 / p.InvFlattening
	e := math.Sqrt(2*fl - fl*fl)

	phi1, phi2, phi0 := rad(p.StdParallel1), rad(p.StdParallel2), rad(p.LatOrigin)
	m1, m2 := lccM(phi1, e), lccM(phi2, e)
	t1, t2, t0 := lccT(phi1, e), lccT(phi2, e), lccT(phi0, e)

	var n float64
	if math.Abs(phi1-phi2) < 1e-12 {
		n = math.Sin(phi1)
	} else {
		n = (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	}
	f := p.ScaleFactor * m1 / (n * math.Pow(t1, n))

	return &LambertConformalConic{
		p:    p,
		e:    e,
		n:    n,
		f:    f,
		rho0: p.SemiMajor * f * math.Pow(t0, n),
		lon0: rad(p.CentralMeridian),
	}
}

// Forward projects WGS84 lon/lat to projection units.
func (l *LambertConformalConic) Forward(p orb.Point) orb.Point {
	phi, lam := rad(p[1]), rad(p[0])
	rho := l.p.SemiMajor * l.f * math.Pow(lccT(phi, l.e), l.n)
	theta := l.n * (lam - l.lon0)
	x := rho * math.Sin(theta)
	y := l.rho0 - rho*math.Cos(theta)
	return orb.Point{x/l.p.Unit + l.p.FalseEasting, y/l.p.Unit + l.p.FalseNorthing}
}

// ToWGS84 inverts the projection.
func (l *LambertConformalConic) ToWGS84(p orb.Point) orb.Point {
	x := (p[0] - l.p.FalseEasting) * l.p.Unit
	y := l.rho0 - (p[1]-l.p.FalseNorthing)*l.p.Unit

	sign := 1.0
	if l.n < 0 {
		sign = -1
	}
	rho := sign * math.Hypot(x, y)
	theta := math.Atan2(sign*x, sign*y)

	t := math.Pow(rho/(l.p.SemiMajor*l.f), 1/l.n)
	phi := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 15; i++ {
		es := l.e * math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-es)/(1+es), l.e/2))
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}
	lam := theta/l.n + l.lon0
	return orb.Point{deg(lam), deg(phi)}
}

func lccM(phi, e float64) float64 {
	s := e * math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-s*s)
}

func lccT(phi, e float64) float64 {
	s := e * math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-s)/(1+s), e/2)
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }

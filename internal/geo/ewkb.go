package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID is the spatial reference used for stored points (WGS84).
const SRID = 4326

// ToGeom converts p to a go-geom point (X = lon, Y = lat) tagged with SRID 4326.
func ToGeom(p Point) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(SRID)
}

// EncodeEWKB encodes p as little-endian EWKB for PostGIS geometry columns.
func EncodeEWKB(p Point) ([]byte, error) {
	data, err := ewkb.Marshal(ToGeom(p), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode EWKB")
	}
	return data, nil
}

// DecodeEWKB decodes an EWKB point produced by EncodeEWKB.
func DecodeEWKB(data []byte) (Point, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return Point{}, eris.Wrap(err, "geo: decode EWKB")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return Point{}, eris.Errorf("geo: expected point, got %T", g)
	}
	return Point{Lat: pt.Y(), Lon: pt.X()}, nil
}

// Package gml reads GML 2, 3.1 and 3.2 geometry elements into orb geometries.
package gml

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/delta10/wfs-proxy/internal/ows"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

const (
	Namespace   = "http://www.opengis.net/gml"
	Namespace32 = "http://www.opengis.net/gml/3.2"
)

// IsNamespace reports whether ns is one of the supported GML namespaces.
func IsNamespace(ns string) bool {
	return ns == Namespace || ns == Namespace32
}

// IsGeometry reports whether name is a geometry element this package reads.
func IsGeometry(name xml.Name) bool {
	if !IsNamespace(name.Space) {
		return false
	}
	switch name.Local {
	case "Point", "LineString", "LinearRing", "Polygon", "Box", "Envelope",
		"MultiPoint", "MultiLineString", "MultiCurve", "MultiPolygon", "MultiSurface", "MultiGeometry":
		return true
	}
	return false
}

// Geometry is a decoded geometry with the reference system it was declared in.
type Geometry struct {
	orb.Geometry
	SRSName string
}

// Read decodes the geometry element at the cursor. The cursor must be at the
// geometry's start element and is left at its end element.
func Read(c *xmlstream.Cursor) (Geometry, error) {
	name := c.Name()
	if !IsGeometry(name) {
		return Geometry{}, c.Errorf(ows.KindUnexpectedElement, xmlstream.FormatName(name), "not a supported GML geometry element")
	}
	srs, _ := c.Attr("srsName")

	var (
		g   orb.Geometry
		err error
	)
	switch name.Local {
	case "Point":
		g, err = readPoint(c)
	case "LineString":
		g, err = readLineString(c)
	case "LinearRing":
		var ls orb.LineString
		ls, err = readLineString(c)
		g = orb.Ring(ls)
	case "Polygon":
		g, err = readPolygon(c)
	case "Box", "Envelope":
		g, err = readEnvelope(c)
	default:
		g, err = readMulti(c, name.Local)
	}
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{Geometry: g, SRSName: srs}, nil
}

func readPoint(c *xmlstream.Cursor) (orb.Point, error) {
	pts, err := readPositions(c)
	if err != nil {
		return orb.Point{}, err
	}
	if len(pts) != 1 {
		return orb.Point{}, c.Errorf(ows.KindInvalidParameterValue, "Point", "point has %d positions", len(pts))
	}
	return pts[0], nil
}

func readLineString(c *xmlstream.Cursor) (orb.LineString, error) {
	local := c.Name().Local
	pts, err := readPositions(c)
	if err != nil {
		return nil, err
	}
	if len(pts) < 2 {
		return nil, c.Errorf(ows.KindInvalidParameterValue, local, "%s needs at least two positions", local)
	}
	return orb.LineString(pts), nil
}

func readPolygon(c *xmlstream.Cursor) (orb.Polygon, error) {
	var (
		outer orb.Ring
		inner []orb.Ring
	)
	err := eachChild(c, func(name xml.Name) error {
		switch name.Local {
		case "outerBoundaryIs", "exterior", "innerBoundaryIs", "interior":
			ring, err := readBoundary(c)
			if err != nil {
				return err
			}
			if name.Local == "outerBoundaryIs" || name.Local == "exterior" {
				outer = ring
			} else {
				inner = append(inner, ring)
			}
			return nil
		}
		return c.Skip()
	})
	if err != nil {
		return nil, err
	}
	if outer == nil {
		return nil, c.Errorf(ows.KindMissingParameterValue, "exterior", "polygon has no exterior ring")
	}
	return append(orb.Polygon{outer}, inner...), nil
}

func readBoundary(c *xmlstream.Cursor) (orb.Ring, error) {
	var ring orb.Ring
	err := eachChild(c, func(name xml.Name) error {
		if name.Local != "LinearRing" {
			return c.Skip()
		}
		ls, err := readLineString(c)
		ring = orb.Ring(ls)
		return err
	})
	if err != nil {
		return nil, err
	}
	if ring == nil {
		return nil, c.Errorf(ows.KindMissingParameterValue, "LinearRing", "boundary has no linear ring")
	}
	if !ring.Closed() {
		return nil, c.Errorf(ows.KindInvalidParameterValue, "LinearRing", "linear ring is not closed")
	}
	return ring, nil
}

func readEnvelope(c *xmlstream.Cursor) (orb.Bound, error) {
	pts, err := readPositions(c)
	if err != nil {
		return orb.Bound{}, err
	}
	if len(pts) != 2 {
		return orb.Bound{}, c.Errorf(ows.KindInvalidParameterValue, "Envelope", "envelope needs two corners, got %d", len(pts))
	}
	return orb.MultiPoint(pts).Bound(), nil
}

func readMulti(c *xmlstream.Cursor, local string) (orb.Geometry, error) {
	var members []orb.Geometry
	err := eachChild(c, func(name xml.Name) error {
		if !strings.HasSuffix(name.Local, "Member") && !strings.HasSuffix(name.Local, "Members") {
			return c.Skip()
		}
		return eachChild(c, func(name xml.Name) error {
			g, err := Read(c)
			if err != nil {
				return err
			}
			members = append(members, g.Geometry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	switch local {
	case "MultiPoint":
		mp := make(orb.MultiPoint, 0, len(members))
		for _, m := range members {
			p, ok := m.(orb.Point)
			if !ok {
				return nil, c.Errorf(ows.KindInvalidParameterValue, local, "member %s is not a point", m.GeoJSONType())
			}
			mp = append(mp, p)
		}
		return mp, nil
	case "MultiLineString", "MultiCurve":
		mls := make(orb.MultiLineString, 0, len(members))
		for _, m := range members {
			ls, ok := m.(orb.LineString)
			if !ok {
				return nil, c.Errorf(ows.KindInvalidParameterValue, local, "member %s is not a line string", m.GeoJSONType())
			}
			mls = append(mls, ls)
		}
		return mls, nil
	case "MultiPolygon", "MultiSurface":
		mp := make(orb.MultiPolygon, 0, len(members))
		for _, m := range members {
			p, ok := m.(orb.Polygon)
			if !ok {
				return nil, c.Errorf(ows.KindInvalidParameterValue, local, "member %s is not a polygon", m.GeoJSONType())
			}
			mp = append(mp, p)
		}
		return mp, nil
	}
	return orb.Collection(members), nil
}

// readPositions collects the coordinates of a simple geometry from any of
// the GML position encodings: coordinates, coord, pos and posList.
func readPositions(c *xmlstream.Cursor) ([]orb.Point, error) {
	var pts []orb.Point
	err := eachChild(c, func(name xml.Name) error {
		switch name.Local {
		case "coordinates":
			cs, ts, dec := attrOr(c, "cs", ","), attrOr(c, "ts", " "), attrOr(c, "decimal", ".")
			text, err := c.ElementText()
			if err != nil {
				return err
			}
			parsed, err := parseCoordinates(text, cs, ts, dec)
			if err != nil {
				return c.Errorf(ows.KindInvalidParameterValue, "coordinates", "%v", err)
			}
			pts = append(pts, parsed...)
		case "pos", "lowerCorner", "upperCorner":
			text, err := c.ElementText()
			if err != nil {
				return err
			}
			parsed, err := parsePosList(text, 0)
			if err != nil || len(parsed) != 1 {
				return c.Errorf(ows.KindInvalidParameterValue, name.Local, "invalid position %q", strings.TrimSpace(text))
			}
			pts = append(pts, parsed[0])
		case "posList":
			dim, _ := strconv.Atoi(attrOr(c, "srsDimension", "2"))
			text, err := c.ElementText()
			if err != nil {
				return err
			}
			parsed, err := parsePosList(text, dim)
			if err != nil {
				return c.Errorf(ows.KindInvalidParameterValue, "posList", "%v", err)
			}
			pts = append(pts, parsed...)
		case "coord":
			p, err := readCoord(c)
			if err != nil {
				return err
			}
			pts = append(pts, p)
		default:
			return c.Skip()
		}
		return nil
	})
	return pts, err
}

func readCoord(c *xmlstream.Cursor) (orb.Point, error) {
	var p orb.Point
	err := eachChild(c, func(name xml.Name) error {
		text, err := c.ElementText()
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return c.Errorf(ows.KindInvalidParameterValue, name.Local, "invalid ordinate %q", text)
		}
		switch name.Local {
		case "X":
			p[0] = v
		case "Y":
			p[1] = v
		}
		return nil
	})
	return p, err
}

func eachChild(c *xmlstream.Cursor, fn func(name xml.Name) error) error {
	for {
		if err := c.NextTag(); err != nil {
			return err
		}
		if c.IsEnd() {
			return nil
		}
		if err := fn(c.Name()); err != nil {
			return err
		}
	}
}

func attrOr(c *xmlstream.Cursor, local, def string) string {
	if v, ok := c.Attr(local); ok && v != "" {
		return v
	}
	return def
}

// Package feature turns GML feature payloads of Insert and Replace actions
// into GeoJSON features typed by an application schema.
package feature

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"

	"github.com/delta10/wfs-proxy/internal/gml"
	"github.com/delta10/wfs-proxy/internal/ows"
	"github.com/delta10/wfs-proxy/internal/schema"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

// Reader streams the features of a payload one at a time. Feature
// collections and member wrappers are unwrapped.
type Reader struct {
	c      *xmlstream.Cursor
	schema *schema.AppSchema

	cur     *geojson.Feature
	typ     xml.Name
	srsName string
	done    bool
	err     error
}

// NewReader reads the features in p. With a nil schema every element is
// accepted and property values are kept as text.
func NewReader(p *xmlstream.Payload, s *schema.AppSchema) *Reader {
	return &Reader{c: p.Cursor(), schema: s}
}

func (r *Reader) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	r.cur, r.typ, r.srsName = nil, xml.Name{}, ""

	for {
		if err := r.c.Next(); err != nil {
			if err == io.EOF {
				r.done = true
				return false
			}
			r.err = err
			return false
		}
		if !r.c.IsStart() || isWrapper(r.c.Name()) {
			continue
		}

		f, err := r.readFeature()
		if err != nil {
			r.err = err
			return false
		}
		r.cur = f
		return true
	}
}

// Feature returns the feature read by the last successful call to Next.
func (r *Reader) Feature() *geojson.Feature {
	return r.cur
}

// TypeName is the element name of the current feature.
func (r *Reader) TypeName() xml.Name {
	return r.typ
}

// SRSName returns the reference system of the current feature's geometry,
// if it declared one.
func (r *Reader) SRSName() string {
	return r.srsName
}

func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) readFeature() (*geojson.Feature, error) {
	c := r.c
	name := c.Name()

	var ft *schema.FeatureType
	if r.schema != nil {
		ft = r.schema.FeatureType(name)
		if ft == nil {
			return nil, c.Errorf(ows.KindInvalidParameterValue, "typeName", "feature type %s is not known", xmlstream.FormatName(name))
		}
		if ft.Abstract {
			return nil, c.Errorf(ows.KindInvalidParameterValue, "typeName", "feature type %s is abstract", xmlstream.FormatName(name))
		}
	}

	f := geojson.NewFeature(nil)
	if id := featureID(c); id != "" {
		f.ID = id
	}
	r.typ = name

	stop := c.Depth() - 1
	for {
		if err := c.NextElement(); err != nil {
			return nil, err
		}
		if c.IsEnd() && c.Depth() == stop {
			return f, nil
		}
		if !c.IsStart() {
			continue
		}

		prop := c.Name()
		if gml.IsNamespace(prop.Space) {
			if err := c.Skip(); err != nil {
				return nil, err
			}
			continue
		}

		kind := schema.PropertyKind("")
		if ft != nil {
			pt, ok := ft.Property(prop)
			if !ok {
				return nil, c.Errorf(ows.KindInvalidParameterValue, prop.Local,
					"property %s is not defined for feature type %s", xmlstream.FormatName(prop), xmlstream.FormatName(name))
			}
			kind = pt.Kind
		}

		v, err := readContent(c, c.Depth()-1)
		if err != nil {
			return nil, err
		}
		if v.geometry != nil && f.Geometry == nil && (kind == "" || kind == schema.KindGeometry) {
			f.Geometry = v.geometry.Geometry
			r.srsName = v.geometry.SRSName
			continue
		}
		value, err := convert(v, kind)
		if err != nil {
			return nil, c.Errorf(ows.KindInvalidParameterValue, prop.Local, "property %s: %v", prop.Local, err)
		}
		setProperty(f.Properties, prop.Local, value)
	}
}

// DecodeValue reads the content of an Update Value payload. The kind may be
// empty when the property type is unknown.
func DecodeValue(p *xmlstream.Payload, kind schema.PropertyKind) (any, error) {
	c := p.Cursor()
	v, err := readContent(c, -1)
	if err != nil {
		return nil, err
	}
	value, err := convert(v, kind)
	if err != nil {
		return nil, c.Errorf(ows.KindInvalidParameterValue, "Value", "%v", err)
	}
	return value, nil
}

type content struct {
	text     string
	geometry *gml.Geometry
	complex  bool
}

// readContent collects the text and the geometry of a property element. It
// stops at the end element at depth stop or, for a payload cursor, at the end
// of the payload.
func readContent(c *xmlstream.Cursor, stop int) (content, error) {
	var (
		v    content
		text strings.Builder
	)
	for {
		if err := c.Next(); err != nil {
			if err == io.EOF && stop < 0 {
				break
			}
			if err == io.EOF {
				return v, c.Errorf(ows.KindXMLSyntax, "", "unexpected end of document")
			}
			return v, err
		}
		switch t := c.Token().(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			if gml.IsGeometry(t.Name) && v.geometry == nil {
				g, err := gml.Read(c)
				if err != nil {
					return v, err
				}
				v.geometry = &g
				continue
			}
			v.complex = true
			if err := c.Skip(); err != nil {
				return v, err
			}
		case xml.EndElement:
			if c.Depth() == stop {
				v.text = strings.TrimSpace(text.String())
				return v, nil
			}
		}
	}
	v.text = strings.TrimSpace(text.String())
	return v, nil
}

func convert(v content, kind schema.PropertyKind) (any, error) {
	if v.geometry != nil {
		if kind != "" && kind != schema.KindGeometry {
			return nil, errors.Errorf("expected a %s value, found a geometry", kind)
		}
		return wkt.MarshalString(v.geometry.Geometry), nil
	}
	switch kind {
	case schema.KindGeometry:
		if v.text == "" && !v.complex {
			return nil, nil
		}
		return nil, errors.Errorf("expected a geometry")
	case schema.KindInt:
		if v.text == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(v.text, 10, 64)
		if err != nil {
			return nil, errors.Errorf("%q is not an integer", v.text)
		}
		return n, nil
	case schema.KindDouble:
		if v.text == "" {
			return nil, nil
		}
		n, err := strconv.ParseFloat(v.text, 64)
		if err != nil {
			return nil, errors.Errorf("%q is not a number", v.text)
		}
		return n, nil
	case schema.KindBool:
		switch v.text {
		case "":
			return nil, nil
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, errors.Errorf("%q is not a boolean", v.text)
	}
	return v.text, nil
}

func setProperty(props geojson.Properties, key string, value any) {
	prev, ok := props[key]
	if !ok {
		props[key] = value
		return
	}
	if list, ok := prev.([]any); ok {
		props[key] = append(list, value)
		return
	}
	props[key] = []any{prev, value}
}

func featureID(c *xmlstream.Cursor) string {
	for _, ns := range []string{gml.Namespace32, gml.Namespace} {
		if id, ok := c.AttrNS(ns, "id"); ok {
			return id
		}
	}
	id, _ := c.Attr("fid")
	return id
}

func isWrapper(name xml.Name) bool {
	switch name.Local {
	case "FeatureCollection", "featureMember", "featureMembers", "member":
		return gml.IsNamespace(name.Space) || strings.HasPrefix(name.Space, "http://www.opengis.net/wfs")
	}
	return false
}

// Bound returns the bounding box of a feature geometry, or false when the
// feature has none.
func Bound(f *geojson.Feature) (orb.Bound, bool) {
	if f == nil || f.Geometry == nil {
		return orb.Bound{}, false
	}
	return f.Geometry.Bound(), true
}

package filter

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/delta10/wfs-proxy/internal/ows"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

const (
	ogc = `xmlns:ogc="http://www.opengis.net/ogc" xmlns:gml="http://www.opengis.net/gml" xmlns:app="urn:app"`
	fes = `xmlns:fes="http://www.opengis.net/fes/2.0" xmlns:gml="http://www.opengis.net/gml/3.2" xmlns:app="urn:app"`
)

func decode(t *testing.T, doc string) (*Filter, error) {
	t.Helper()
	c, err := xmlstream.Open(strings.NewReader(doc))
	require.NoError(t, err)
	f, err := NewDecoder().DecodeFilter(c)
	if err == nil {
		require.True(t, c.IsEnd())
		require.Equal(t, "Filter", c.Name().Local)
	}
	return f, err
}

func TestDecodeFeatureIds(t *testing.T) {
	f, err := decode(t, `<ogc:Filter `+ogc+`>
		<ogc:FeatureId fid="road.1"/>
		<ogc:FeatureId fid="road.2"/>
	</ogc:Filter>`)
	require.NoError(t, err)
	require.Equal(t, []string{"road.1", "road.2"}, f.IDs)
	require.Nil(t, f.Operator)
	require.Equal(t, "IN ('road.1', 'road.2')", f.String())

	f, err = decode(t, `<fes:Filter `+fes+`><fes:ResourceId rid="road.3"/></fes:Filter>`)
	require.NoError(t, err)
	require.Equal(t, []string{"road.3"}, f.IDs)

	f, err = decode(t, `<ogc:Filter `+ogc+`><ogc:GmlObjectId gml:id="road.4"/></ogc:Filter>`)
	require.NoError(t, err)
	require.Equal(t, []string{"road.4"}, f.IDs)

	_, err = decode(t, `<ogc:Filter `+ogc+`><ogc:FeatureId/></ogc:Filter>`)
	require.ErrorIs(t, err, &ows.Error{Kind: ows.KindMissingParameterValue, Locator: "FeatureId"})
}

func TestDecodeComparison(t *testing.T) {
	f, err := decode(t, `<ogc:Filter `+ogc+`>
		<ogc:PropertyIsEqualTo matchCase="false">
			<ogc:PropertyName>app:name</ogc:PropertyName>
			<ogc:Literal>Main Street</ogc:Literal>
		</ogc:PropertyIsEqualTo>
	</ogc:Filter>`)
	require.NoError(t, err)

	cmp, ok := f.Operator.(Comparison)
	require.True(t, ok)
	require.Equal(t, Equal, cmp.Op)
	require.False(t, cmp.MatchCase)
	require.Equal(t, PropertyName{Name: xml.Name{Space: "urn:app", Local: "name"}, Path: "app:name"}, cmp.Left)
	require.Equal(t, Literal{Text: "Main Street"}, cmp.Right)
	require.Equal(t, "app:name = 'Main Street'", f.String())
}

func TestDecodeValueReferencePath(t *testing.T) {
	f, err := decode(t, `<fes:Filter `+fes+`>
		<fes:PropertyIsGreaterThan>
			<fes:ValueReference>app:address/app:number</fes:ValueReference>
			<fes:Literal>10</fes:Literal>
		</fes:PropertyIsGreaterThan>
	</fes:Filter>`)
	require.NoError(t, err)
	cmp := f.Operator.(Comparison)
	require.Equal(t, PropertyName{Path: "app:address/app:number"}, cmp.Left)
	require.Equal(t, "app:address/app:number > 10", f.String())
}

func TestDecodeLogical(t *testing.T) {
	f, err := decode(t, `<ogc:Filter `+ogc+`>
		<ogc:And>
			<ogc:PropertyIsLike wildCard="%" singleChar="_" escapeChar="!">
				<ogc:PropertyName>name</ogc:PropertyName>
				<ogc:Literal>Ma%</ogc:Literal>
			</ogc:PropertyIsLike>
			<ogc:Not>
				<ogc:PropertyIsNull><ogc:PropertyName>closed</ogc:PropertyName></ogc:PropertyIsNull>
			</ogc:Not>
			<ogc:PropertyIsBetween>
				<ogc:PropertyName>lanes</ogc:PropertyName>
				<ogc:LowerBoundary><ogc:Literal>1</ogc:Literal></ogc:LowerBoundary>
				<ogc:UpperBoundary><ogc:Literal>4</ogc:Literal></ogc:UpperBoundary>
			</ogc:PropertyIsBetween>
		</ogc:And>
	</ogc:Filter>`)
	require.NoError(t, err)

	and, ok := f.Operator.(And)
	require.True(t, ok)
	require.Len(t, and.Operands, 3)

	l := and.Operands[0].(Like)
	require.Equal(t, "%", l.WildCard)
	require.Equal(t, "_", l.SingleChar)
	require.Equal(t, "!", l.Escape)
	require.True(t, l.MatchCase)

	require.Equal(t, "(name LIKE 'Ma%' AND NOT (closed IS NULL) AND lanes BETWEEN 1 AND 4)", f.String())
}

func TestDecodeSpatial(t *testing.T) {
	f, err := decode(t, `<ogc:Filter `+ogc+`>
		<ogc:BBOX>
			<ogc:PropertyName>app:geom</ogc:PropertyName>
			<gml:Box srsName="EPSG:4326"><gml:coordinates>5,52 6,53</gml:coordinates></gml:Box>
		</ogc:BBOX>
	</ogc:Filter>`)
	require.NoError(t, err)
	s := f.Operator.(Spatial)
	require.Equal(t, BBox, s.Op)
	require.Equal(t, "geom", s.Property.Name.Local)
	g := s.Operand.(GeometryLiteral)
	require.Equal(t, "EPSG:4326", g.SRSName)
	require.Equal(t, "BBOX(app:geom, 5, 52, 6, 53)", f.String())

	f, err = decode(t, `<fes:Filter `+fes+`>
		<fes:Intersects>
			<fes:Literal><gml:Point><gml:pos>1 2</gml:pos></gml:Point></fes:Literal>
		</fes:Intersects>
	</fes:Filter>`)
	require.NoError(t, err)
	s = f.Operator.(Spatial)
	require.Nil(t, s.Property)
	require.Equal(t, GeometryLiteral{Geometry: orb.Point{1, 2}}, s.Operand)
	require.Equal(t, "INTERSECTS(DEFAULT_GEOMETRY, POINT(1 2))", f.String())
}

func TestDecodeFunction(t *testing.T) {
	f, err := decode(t, `<ogc:Filter `+ogc+`>
		<ogc:Within>
			<ogc:PropertyName>geom</ogc:PropertyName>
			<ogc:Function name="GeometryFromWKT"><ogc:Literal>POLYGON((0 0,1 0,1 1,0 0))</ogc:Literal></ogc:Function>
		</ogc:Within>
	</ogc:Filter>`)
	require.NoError(t, err)
	require.Equal(t, "WITHIN(geom, GeometryFromWKT('POLYGON((0 0,1 0,1 1,0 0))'))", f.String())

	_, err = decode(t, `<ogc:Filter `+ogc+`>
		<ogc:PropertyIsEqualTo><ogc:Function/><ogc:Literal>1</ogc:Literal></ogc:PropertyIsEqualTo>
	</ogc:Filter>`)
	require.ErrorIs(t, err, &ows.Error{Kind: ows.KindMissingParameterValue, Locator: "name"})
}

func TestDecodeErrors(t *testing.T) {
	_, err := decode(t, `<ogc:Filter `+ogc+`/>`)
	require.ErrorIs(t, err, &ows.Error{Kind: ows.KindMissingParameterValue, Locator: "Filter"})

	_, err = decode(t, `<ogc:Filter `+ogc+`><ogc:Beyond/></ogc:Filter>`)
	require.ErrorIs(t, err, ows.ErrOperationNotSupported)

	_, err = decode(t, `<ogc:Filter `+ogc+`>
		<ogc:PropertyIsEqualTo><fes:PropertyName xmlns:fes="http://www.opengis.net/fes/2.0">a</fes:PropertyName><ogc:Literal>1</ogc:Literal></ogc:PropertyIsEqualTo>
	</ogc:Filter>`)
	require.ErrorIs(t, err, ows.ErrUnexpectedElement)

	_, err = decode(t, `<ogc:Filter `+ogc+`>
		<ogc:FeatureId fid="a"/>
		<ogc:PropertyIsNull><ogc:PropertyName>a</ogc:PropertyName></ogc:PropertyIsNull>
	</ogc:Filter>`)
	require.ErrorIs(t, err, ows.ErrUnexpectedElement)

	_, err = decode(t, `<ogc:Filter `+ogc+`>
		<ogc:And><ogc:PropertyIsNull><ogc:PropertyName>a</ogc:PropertyName></ogc:PropertyIsNull></ogc:And>
	</ogc:Filter>`)
	require.ErrorIs(t, err, &ows.Error{Kind: ows.KindInvalidParameterValue, Locator: "And"})

	_, err = decode(t, `<Filter/>`)
	require.ErrorIs(t, err, ows.ErrUnexpectedElement)
}

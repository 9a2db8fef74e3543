package inspect

import (
	"context"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/delta10/wfs-proxy/internal/filter"
	"github.com/delta10/wfs-proxy/internal/ows"
	"github.com/delta10/wfs-proxy/internal/schema"
	"github.com/delta10/wfs-proxy/internal/wfs"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

const appSchema = `
namespaces:
  app: http://www.deegree.org/app
featureTypes:
  - name: app:Road
    properties:
      - name: app:lanes
        type: int
      - name: app:geometry
        type: geometry
`

const transaction = `<wfs:Transaction xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:fes="http://www.opengis.net/fes/2.0"
		xmlns:app="http://www.deegree.org/app" xmlns:gml="http://www.opengis.net/gml/3.2" handle="t1">
	<wfs:Insert handle="ins">
		<app:Road gml:id="r1"><app:lanes>2</app:lanes><app:geometry><gml:Point><gml:pos>1 2</gml:pos></gml:Point></app:geometry></app:Road>
		<app:Road gml:id="r2"><app:geometry><gml:Point><gml:pos>3 4</gml:pos></gml:Point></app:geometry></app:Road>
	</wfs:Insert>
	<wfs:Update typeName="app:Road">
		<wfs:Property><wfs:ValueReference>app:lanes</wfs:ValueReference><wfs:Value>3</wfs:Value></wfs:Property>
		<fes:Filter><fes:ResourceId rid="r1"/></fes:Filter>
	</wfs:Update>
	<wfs:Delete typeName="app:Road"><fes:Filter><fes:ResourceId rid="r2"/></fes:Filter></wfs:Delete>
	<wfs:Native vendorId="acme" safeToIgnore="true">VACUUM</wfs:Native>
</wfs:Transaction>`

func request(t *testing.T, doc string) *wfs.TransactionRequest {
	t.Helper()
	c, err := xmlstream.Open(strings.NewReader(doc))
	require.NoError(t, err)
	req, err := wfs.NewDecoder(nil).Decode(c)
	require.NoError(t, err)
	return req
}

func roads(t *testing.T) *schema.AppSchema {
	t.Helper()
	s, err := schema.Parse([]byte(appSchema))
	require.NoError(t, err)
	return s
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(context.Background(), request(t, transaction), Options{Schema: roads(t)})
	require.NoError(t, err)

	require.Equal(t, "2.0.0", s.Version)
	require.Equal(t, "t1", s.Handle)
	require.Equal(t, "", s.ReleaseAction)
	require.Equal(t, []string{"app:Road"}, s.TypeNames)
	require.Equal(t, 2, s.Features)

	require.Equal(t, []ActionSummary{
		{
			Kind:       "Insert",
			Handle:     "ins",
			TypeName:   "app:Road",
			FeatureIDs: []string{"r1", "r2"},
			Features:   2,
			BBox:       []float64{1, 2, 3, 4},
		},
		{
			Kind:       "Update",
			TypeName:   "app:Road",
			Filter:     "IN ('r1')",
			Properties: []PropertySummary{{Name: "app:lanes", Mode: "replace", Value: int64(3)}},
		},
		{
			Kind:     "Delete",
			TypeName: "app:Road",
			Filter:   "IN ('r2')",
		},
		{
			Kind:         "Native",
			VendorID:     "acme",
			SafeToIgnore: true,
		},
	}, s.Actions)
}

func TestSummarizeWithoutSchema(t *testing.T) {
	s, err := Summarize(context.Background(), request(t, transaction), Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"{http://www.deegree.org/app}Road"}, s.TypeNames)
	require.Equal(t, "3", s.Actions[1].Properties[0].Value)
}

func TestSummarizeEmpty(t *testing.T) {
	s, err := Summarize(context.Background(), request(t, `<wfs:Transaction xmlns:wfs="http://www.opengis.net/wfs" releaseAction="SOME"/>`), Options{})
	require.NoError(t, err)
	require.Equal(t, "1.0.0", s.Version)
	require.Equal(t, "SOME", s.ReleaseAction)
	require.Empty(t, s.Actions)
	require.Empty(t, s.TypeNames)
}

func TestSummarizeUnknownType(t *testing.T) {
	doc := strings.Replace(transaction, `<wfs:Delete typeName="app:Road">`, `<wfs:Delete typeName="app:Canal">`, 1)
	_, err := Summarize(context.Background(), request(t, doc), Options{Schema: roads(t)})
	require.ErrorIs(t, err, &ows.Error{Kind: ows.KindInvalidParameterValue, Locator: "typeName"})
}

func TestSummarizeUnknownProperty(t *testing.T) {
	doc := strings.Replace(transaction, `<wfs:ValueReference>app:lanes</wfs:ValueReference>`, `<wfs:ValueReference>app:colour</wfs:ValueReference>`, 1)
	_, err := Summarize(context.Background(), request(t, doc), Options{Schema: roads(t)})
	require.ErrorIs(t, err, &ows.Error{Kind: ows.KindInvalidParameterValue, Locator: "app:colour"})
}

func TestSummarizeMaxFeatures(t *testing.T) {
	_, err := Summarize(context.Background(), request(t, transaction), Options{MaxFeatures: 1})
	require.ErrorIs(t, err, &ows.Error{Kind: ows.KindInvalidParameterValue, Locator: "maxFeatures"})

	_, err = Summarize(context.Background(), request(t, transaction), Options{MaxFeatures: 2})
	require.NoError(t, err)
}

func TestSummarizeConstraint(t *testing.T) {
	inside := &filter.Filter{Operator: filter.Spatial{
		Op:      filter.BBox,
		Operand: filter.GeometryLiteral{Geometry: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}},
	}}
	_, err := Summarize(context.Background(), request(t, transaction), Options{Constraint: inside})
	require.NoError(t, err)

	outside := &filter.Filter{Operator: filter.Spatial{
		Op:      filter.BBox,
		Operand: filter.GeometryLiteral{Geometry: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 2}}},
	}}
	_, err = Summarize(context.Background(), request(t, transaction), Options{Constraint: outside})
	require.ErrorIs(t, err, &ows.Error{Kind: ows.KindInvalidParameterValue, Locator: "Insert"})
}

func TestSummarizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Summarize(ctx, request(t, transaction), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRewrite(t *testing.T) {
	s, err := Summarize(context.Background(), request(t, transaction), Options{Schema: roads(t)})
	require.NoError(t, err)

	v, err := s.Rewrite(`.actions | length`)
	require.NoError(t, err)
	require.Equal(t, 4, v)

	v, err = s.Rewrite(`.actions[].kind`)
	require.NoError(t, err)
	require.Equal(t, []any{"Insert", "Update", "Delete", "Native"}, v)

	v, err = s.Rewrite(`{handle, types: .typeNames}`)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"handle": "t1", "types": []any{"app:Road"}}, v)

	_, err = s.Rewrite(`.actions[`)
	require.Error(t, err)

	_, err = s.Rewrite(`.handle | error`)
	require.Error(t, err)
}

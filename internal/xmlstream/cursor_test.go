package xmlstream

import (
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/delta10/wfs-proxy/internal/ows"
)

func open(t *testing.T, doc string) *Cursor {
	t.Helper()
	c, err := Open(strings.NewReader(doc))
	require.NoError(t, err)
	return c
}

func TestOpen(t *testing.T) {
	c := open(t, `<?xml version="1.0"?>
<!-- request -->
<a:Root xmlns:a="urn:a" x="1"/>`)
	require.True(t, c.IsStart())
	require.Equal(t, xml.Name{Space: "urn:a", Local: "Root"}, c.Name())
	require.Equal(t, 1, c.Depth())

	v, ok := c.Attr("x")
	require.True(t, ok)
	require.Equal(t, "1", v)
	_, ok = c.Attr("y")
	require.False(t, ok)

	_, err := Open(strings.NewReader("  "))
	require.Equal(t, ows.KindXMLSyntax, ows.KindOf(err))

	_, err = Open(strings.NewReader("text<a/>"))
	require.Equal(t, ows.KindXMLSyntax, ows.KindOf(err))
}

func TestOpenDeclaredCharset(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><r>caf\xe9</r>"
	c := open(t, doc)
	text, err := c.ElementText()
	require.NoError(t, err)
	require.Equal(t, "café", text)
}

func TestNextTag(t *testing.T) {
	c := open(t, `<r>
		<!-- c -->
		<a/>
		<b>text</b>
	</r>`)

	require.NoError(t, c.NextTag())
	require.True(t, c.IsStart())
	require.Equal(t, "a", c.Name().Local)
	require.Equal(t, 2, c.Depth())

	require.NoError(t, c.NextTag())
	require.True(t, c.IsEnd())
	require.Equal(t, 1, c.Depth())

	require.NoError(t, c.NextTag())
	require.Equal(t, "b", c.Name().Local)
	err := c.NextTag()
	require.ErrorIs(t, err, &ows.Error{Kind: ows.KindUnexpectedElement, Locator: "text()"})
}

func TestNextElementIgnoresText(t *testing.T) {
	c := open(t, `<r>stray<a/>more</r>`)
	require.NoError(t, c.NextElement())
	require.Equal(t, "a", c.Name().Local)
	require.NoError(t, c.NextElement())
	require.True(t, c.IsEnd())
	require.NoError(t, c.NextElement())
	require.True(t, c.IsEnd())
	require.Equal(t, "r", c.Name().Local)
	require.Equal(t, ows.KindXMLSyntax, ows.KindOf(c.NextElement()))
	require.Equal(t, io.EOF, c.Next())
}

func TestRequire(t *testing.T) {
	c := open(t, `<r xmlns="urn:r"><a/></r>`)
	require.NoError(t, c.RequireStart("urn:r", "r"))

	err := c.RequireStart("urn:r", "x")
	var e *ows.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, ows.KindUnexpectedElement, e.Kind)
	require.Equal(t, []string{"{urn:r}x"}, e.Expected)
	require.Equal(t, 1, e.Line)

	require.Error(t, c.RequireEnd("urn:r", "r"))
	require.NoError(t, c.NextTag())
	require.NoError(t, c.NextTag())
	require.NoError(t, c.RequireEnd("urn:r", "a"))
}

func TestElementText(t *testing.T) {
	c := open(t, `<r><a> x &amp; y </a><b><c/></b></r>`)
	require.NoError(t, c.NextTag())
	text, err := c.ElementText()
	require.NoError(t, err)
	require.Equal(t, " x & y ", text)
	require.True(t, c.IsEnd())
	require.Equal(t, "a", c.Name().Local)

	require.NoError(t, c.NextTag())
	_, err = c.ElementText()
	require.ErrorIs(t, err, ows.ErrUnexpectedElement)
}

func TestSkip(t *testing.T) {
	c := open(t, `<r><a><b><c/></b>t</a><d/></r>`)
	require.NoError(t, c.NextTag())
	require.NoError(t, c.Skip())
	require.True(t, c.IsEnd())
	require.Equal(t, "a", c.Name().Local)
	require.NoError(t, c.NextTag())
	require.Equal(t, "d", c.Name().Local)
}

func TestResolveQName(t *testing.T) {
	c := open(t, `<r xmlns="urn:default" xmlns:app="urn:app"><inner xmlns:app="urn:shadow"/></r>`)

	n, ok := c.ResolveQName(" app:Road ")
	require.True(t, ok)
	require.Equal(t, xml.Name{Space: "urn:app", Local: "Road"}, n)

	n, ok = c.ResolveQName("Road")
	require.True(t, ok)
	require.Equal(t, xml.Name{Space: "urn:default", Local: "Road"}, n)

	for _, bad := range []string{"", "x:Road", "app:", ":Road", "app:Ro ad", "2Road"} {
		_, ok = c.ResolveQName(bad)
		require.False(t, ok, bad)
	}

	require.NoError(t, c.NextTag())
	n, _ = c.ResolveQName("app:Road")
	require.Equal(t, "urn:shadow", n.Space)

	require.NoError(t, c.NextTag())
	require.NoError(t, c.NextTag())
	require.True(t, c.IsEnd())
	n, _ = c.ResolveQName("app:Road")
	require.Equal(t, "urn:app", n.Space)

	require.Equal(t, map[string]string{"": "urn:default", "app": "urn:app"}, c.Bindings())
}

func TestSyntaxErrorKind(t *testing.T) {
	c := open(t, `<r><a></b></r>`)
	require.NoError(t, c.NextTag())
	err := c.NextTag()
	require.ErrorIs(t, err, ows.ErrXMLSyntax)
	var se *xml.SyntaxError
	require.ErrorAs(t, err, &se)
}

type lease struct{ released bool }

func (l *lease) Released() bool { return l.released }

func TestHold(t *testing.T) {
	c := open(t, `<r/>`)
	require.False(t, c.Held())
	l := &lease{}
	c.Hold(l)
	require.True(t, c.Held())
	l.released = true
	require.False(t, c.Held())
}

func TestFormatName(t *testing.T) {
	require.Equal(t, "Road", FormatName(xml.Name{Local: "Road"}))
	require.Equal(t, "{urn:app}Road", FormatName(xml.Name{Space: "urn:app", Local: "Road"}))
}

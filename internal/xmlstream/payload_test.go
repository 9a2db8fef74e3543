package xmlstream

import (
	"encoding/xml"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func tokens(t *testing.T, r xml.TokenReader) []string {
	t.Helper()
	var out []string
	for {
		tok, err := r.Token()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		switch x := tok.(type) {
		case xml.StartElement:
			out = append(out, "<"+x.Name.Local)
		case xml.EndElement:
			out = append(out, ">"+x.Name.Local)
		case xml.CharData:
			out = append(out, string(x))
		}
	}
}

func TestHandoffIncludingCurrent(t *testing.T) {
	c := open(t, `<r><box><f>1</f><g/></box><next/></r>`)
	require.NoError(t, c.NextTag())
	require.NoError(t, c.NextTag())
	require.Equal(t, "f", c.Name().Local)

	p := c.Handoff(true)
	require.True(t, c.Held())
	require.Equal(t, []string{"<f", "1", ">f", "<g", ">g"}, tokens(t, p))
	require.True(t, p.Released())
	require.False(t, c.Held())

	require.True(t, c.IsEnd())
	require.Equal(t, "box", c.Name().Local)
	require.NoError(t, c.NextTag())
	require.Equal(t, "next", c.Name().Local)

	_, err := p.Token()
	require.Equal(t, io.EOF, err)
}

func TestHandoffContent(t *testing.T) {
	c := open(t, `<r><v>text <b/></v></r>`)
	require.NoError(t, c.NextTag())

	p := c.Handoff(false)
	require.Equal(t, []string{"text ", "<b", ">b"}, tokens(t, p))
	require.Equal(t, "v", c.Name().Local)
	require.True(t, c.IsEnd())
}

func TestHandoffEmpty(t *testing.T) {
	c := open(t, `<r><v/></r>`)
	require.NoError(t, c.NextTag())
	p := c.Handoff(false)
	require.NoError(t, p.Close())
	require.True(t, p.Released())
	require.True(t, c.IsEnd())
	require.Equal(t, "v", c.Name().Local)
}

func TestPayloadClose(t *testing.T) {
	c := open(t, `<r><box><f><g/></f></box><next/></r>`)
	require.NoError(t, c.NextTag())
	require.NoError(t, c.NextTag())
	p := c.Handoff(true)

	tok, err := p.Token()
	require.NoError(t, err)
	require.Equal(t, "f", tok.(xml.StartElement).Name.Local)

	require.NoError(t, p.Close())
	require.False(t, c.Held())
	require.NoError(t, c.NextTag())
	require.Equal(t, "next", c.Name().Local)
}

func TestPayloadCursorInheritsBindings(t *testing.T) {
	c := open(t, `<r xmlns:app="urn:app"><box xmlns:x="urn:x"><app:f ref="x:y"/></box></r>`)
	require.NoError(t, c.NextTag())
	require.NoError(t, c.NextTag())
	pc := c.Handoff(true).Cursor()

	require.NoError(t, pc.Next())
	require.Equal(t, xml.Name{Space: "urn:app", Local: "f"}, pc.Name())
	require.Equal(t, 1, pc.Depth())
	ref, _ := pc.Attr("ref")
	n, ok := pc.ResolveQName(ref)
	require.True(t, ok)
	require.Equal(t, "urn:x", n.Space)

	require.NoError(t, pc.NextTag())
	require.True(t, pc.IsEnd())
	require.Equal(t, io.EOF, pc.Next())
}

func TestPayloadDecoder(t *testing.T) {
	c := open(t, `<r><box><item id="7"><name>seven</name></item></box></r>`)
	require.NoError(t, c.NextTag())
	require.NoError(t, c.NextTag())
	p := c.Handoff(true)

	var item struct {
		ID   string `xml:"id,attr"`
		Name string `xml:"name"`
	}
	require.NoError(t, p.Decoder().Decode(&item))
	require.Equal(t, "7", item.ID)
	require.Equal(t, "seven", item.Name)
	require.NoError(t, p.Close())
}

func TestRecord(t *testing.T) {
	c := open(t, `<r xmlns:app="urn:app"><app:f><app:g>1</app:g></app:f><after/></r>`)
	require.NoError(t, c.NextTag())

	p, err := c.Record()
	require.NoError(t, err)
	require.True(t, p.Buffered())
	require.False(t, c.Held())
	require.True(t, c.IsEnd())
	require.Equal(t, "f", c.Name().Local)

	require.NoError(t, c.NextTag())
	require.Equal(t, "after", c.Name().Local)

	pc := p.Cursor()
	require.NoError(t, pc.Next())
	require.Equal(t, xml.Name{Space: "urn:app", Local: "f"}, pc.Name())
	n, ok := pc.ResolveQName("app:g")
	require.True(t, ok)
	require.Equal(t, "urn:app", n.Space)

	require.NoError(t, pc.Skip())
	require.Equal(t, io.EOF, pc.Next())
	require.True(t, p.Released())
}

func TestRecordRequiresStart(t *testing.T) {
	c := open(t, `<r><a/></r>`)
	require.NoError(t, c.NextTag())
	require.NoError(t, c.NextTag())
	_, err := c.Record()
	require.Error(t, err)
}

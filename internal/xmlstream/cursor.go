// Package xmlstream provides a forward-only pull cursor over an XML token
// stream. A cursor has a single holder at a time: decoders that hand part of
// the stream to someone else do so through a Lease (usually a Payload), and
// the cursor reports itself as held until that lease is released.
package xmlstream

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"

	"github.com/delta10/wfs-proxy/internal/ows"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// Lease is implemented by anything that temporarily owns a cursor.
type Lease interface {
	Released() bool
}

type Cursor struct {
	src    xml.TokenReader
	pos    func() (int, int)
	tok    xml.Token
	depth  int
	scopes []map[string]string
	pop    bool
	eof    bool
	held   Lease
}

// New returns a cursor reading r. The cursor is not positioned on any token
// until the first call to Next.
func New(r io.Reader) *Cursor {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	return &Cursor{src: d, pos: d.InputPos}
}

// Open returns a cursor positioned at the root element of the document in r.
func Open(r io.Reader) (*Cursor, error) {
	c := New(r)
	for {
		if err := c.Next(); err != nil {
			if err == io.EOF {
				return nil, &ows.Error{Kind: ows.KindXMLSyntax, Message: "document has no root element"}
			}
			return nil, err
		}
		switch t := c.tok.(type) {
		case xml.StartElement:
			return c, nil
		case xml.CharData:
			if !isSpace(t) {
				return nil, c.errorf(ows.KindXMLSyntax, "", "text content before the root element")
			}
		}
	}
}

// Next advances the cursor by one token. It returns io.EOF once the
// underlying stream is exhausted.
func (c *Cursor) Next() error {
	if c.eof {
		return io.EOF
	}
	if c.pop {
		c.scopes = c.scopes[:len(c.scopes)-1]
		c.pop = false
	}

	t, err := c.src.Token()
	if err != nil {
		if err == io.EOF {
			c.eof = true
			c.tok = nil
			return io.EOF
		}
		return c.wrapReadError(err)
	}

	t = xml.CopyToken(t)
	switch el := t.(type) {
	case xml.StartElement:
		c.depth++
		c.scopes = append(c.scopes, bindings(el.Attr))
	case xml.EndElement:
		c.depth--
		c.pop = true
	}
	c.tok = t
	return nil
}

// NextTag advances to the next start or end element, skipping whitespace,
// comments and processing instructions. Any other text is an error.
func (c *Cursor) NextTag() error {
	for {
		if err := c.Next(); err != nil {
			if err == io.EOF {
				return c.errorf(ows.KindXMLSyntax, "", "unexpected end of document")
			}
			return err
		}
		switch t := c.tok.(type) {
		case xml.StartElement, xml.EndElement:
			return nil
		case xml.CharData:
			if !isSpace(t) {
				return c.errorf(ows.KindUnexpectedElement, "text()", "unexpected text content %q", strings.TrimSpace(string(t)))
			}
		}
	}
}

// NextElement advances to the next start or end element, ignoring any text.
func (c *Cursor) NextElement() error {
	for {
		if err := c.Next(); err != nil {
			if err == io.EOF {
				return c.errorf(ows.KindXMLSyntax, "", "unexpected end of document")
			}
			return err
		}
		switch c.tok.(type) {
		case xml.StartElement, xml.EndElement:
			return nil
		}
	}
}

func (c *Cursor) Token() xml.Token {
	return c.tok
}

func (c *Cursor) IsStart() bool {
	_, ok := c.tok.(xml.StartElement)
	return ok
}

func (c *Cursor) IsEnd() bool {
	_, ok := c.tok.(xml.EndElement)
	return ok
}

// Name returns the name of the current start or end element.
func (c *Cursor) Name() xml.Name {
	switch t := c.tok.(type) {
	case xml.StartElement:
		return t.Name
	case xml.EndElement:
		return t.Name
	}
	return xml.Name{}
}

// Depth is the number of currently open elements, the current start element
// included.
func (c *Cursor) Depth() int {
	return c.depth
}

// Pos returns the line and column of the cursor in the source document, or
// zeros when unknown.
func (c *Cursor) Pos() (int, int) {
	if c.pos == nil {
		return 0, 0
	}
	return c.pos()
}

// Attr returns the value of the unqualified attribute local on the current
// start element.
func (c *Cursor) Attr(local string) (string, bool) {
	return c.AttrNS("", local)
}

func (c *Cursor) AttrNS(space, local string) (string, bool) {
	start, ok := c.tok.(xml.StartElement)
	if !ok {
		return "", false
	}
	for _, a := range start.Attr {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// RequireStart fails unless the cursor is at a start element named
// {space}local.
func (c *Cursor) RequireStart(space, local string) error {
	if start, ok := c.tok.(xml.StartElement); ok && start.Name.Space == space && start.Name.Local == local {
		return nil
	}
	return c.unexpected(xml.Name{Space: space, Local: local}, "start")
}

// RequireEnd fails unless the cursor is at an end element named {space}local.
func (c *Cursor) RequireEnd(space, local string) error {
	if end, ok := c.tok.(xml.EndElement); ok && end.Name.Space == space && end.Name.Local == local {
		return nil
	}
	return c.unexpected(xml.Name{Space: space, Local: local}, "end")
}

func (c *Cursor) unexpected(want xml.Name, event string) error {
	got := "end of document"
	switch t := c.tok.(type) {
	case xml.StartElement:
		got = "start of " + FormatName(t.Name)
	case xml.EndElement:
		got = "end of " + FormatName(t.Name)
	case xml.CharData:
		got = "text"
	}
	e := c.errorf(ows.KindUnexpectedElement, FormatName(c.Name()), "found %s, expected %s of %s", got, event, FormatName(want))
	e.Expected = []string{FormatName(want)}
	return e
}

// ElementText reads the text content of the current start element and leaves
// the cursor at its end element. Child elements are an error.
func (c *Cursor) ElementText() (string, error) {
	start, ok := c.tok.(xml.StartElement)
	if !ok {
		return "", c.errorf(ows.KindUnexpectedElement, "", "expected a start element")
	}
	var b strings.Builder
	for {
		if err := c.Next(); err != nil {
			if err == io.EOF {
				return "", c.errorf(ows.KindXMLSyntax, FormatName(start.Name), "unexpected end of document")
			}
			return "", err
		}
		switch t := c.tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			return "", c.errorf(ows.KindUnexpectedElement, FormatName(t.Name), "element %s must only contain text", FormatName(start.Name))
		case xml.EndElement:
			return b.String(), nil
		}
	}
}

// Skip advances from the current start element to its matching end element.
func (c *Cursor) Skip() error {
	if !c.IsStart() {
		return nil
	}
	stop := c.depth - 1
	for {
		if err := c.Next(); err != nil {
			if err == io.EOF {
				return c.errorf(ows.KindXMLSyntax, "", "unexpected end of document")
			}
			return err
		}
		if c.IsEnd() && c.depth == stop {
			return nil
		}
	}
}

// Hold marks the cursor as owned by l until l is released.
func (c *Cursor) Hold(l Lease) {
	c.held = l
}

// Held reports whether a lease handed out over this cursor is still live.
func (c *Cursor) Held() bool {
	return c.held != nil && !c.held.Released()
}

// LookupPrefix returns the namespace bound to prefix at the cursor position.
func (c *Cursor) LookupPrefix(prefix string) (string, bool) {
	if prefix == "xml" {
		return xmlNamespace, true
	}
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if ns, ok := c.scopes[i][prefix]; ok {
			return ns, true
		}
	}
	return "", prefix == ""
}

// ResolveQName resolves a prefixed name such as "app:Road" against the
// namespace bindings in scope. Unprefixed names take the default namespace.
func (c *Cursor) ResolveQName(text string) (xml.Name, bool) {
	text = strings.TrimSpace(text)
	prefix, local := "", text
	if i := strings.IndexByte(text, ':'); i >= 0 {
		prefix, local = text[:i], text[i+1:]
		if !isNCName(prefix) {
			return xml.Name{}, false
		}
	}
	if !isNCName(local) {
		return xml.Name{}, false
	}
	ns, ok := c.LookupPrefix(prefix)
	if !ok {
		return xml.Name{}, false
	}
	return xml.Name{Space: ns, Local: local}, true
}

// Bindings returns a flattened copy of the namespace bindings in scope.
func (c *Cursor) Bindings() map[string]string {
	out := map[string]string{}
	for _, scope := range c.scopes {
		for prefix, ns := range scope {
			out[prefix] = ns
		}
	}
	return out
}

func (c *Cursor) errorf(kind ows.Kind, locator, format string, args ...any) *ows.Error {
	e := &ows.Error{Kind: kind, Locator: locator, Message: fmt.Sprintf(format, args...)}
	e.Line, e.Column = c.Pos()
	return e
}

// Errorf builds a protocol fault of the given kind annotated with the cursor
// position.
func (c *Cursor) Errorf(kind ows.Kind, locator, format string, args ...any) error {
	return c.errorf(kind, locator, format, args...)
}

func (c *Cursor) wrapReadError(err error) error {
	var oe *ows.Error
	if errors.As(err, &oe) {
		return err
	}
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return &ows.Error{Kind: ows.KindXMLSyntax, Message: se.Msg, Line: se.Line, Err: se}
	}
	return errors.Wrap(err, "xmlstream: read token")
}

// FormatName renders n in Clark notation, {namespace}local.
func FormatName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return "{" + n.Space + "}" + n.Local
}

func bindings(attrs []xml.Attr) map[string]string {
	var m map[string]string
	for _, a := range attrs {
		switch {
		case a.Name.Space == "xmlns":
			if m == nil {
				m = map[string]string{}
			}
			m[a.Name.Local] = a.Value
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			if m == nil {
				m = map[string]string{}
			}
			m[""] = a.Value
		}
	}
	return m
}

func isSpace(b []byte) bool {
	return len(strings.TrimSpace(string(b))) == 0
}

func isNCName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return true
}

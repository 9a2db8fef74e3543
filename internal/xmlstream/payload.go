package xmlstream

import (
	"encoding/xml"
	"io"

	"github.com/delta10/wfs-proxy/internal/ows"
)

// Payload grants one-time, forward-only access to the content of a single
// element. A live payload reads through the cursor it was handed out from and
// ends at the container's end element; a buffered payload replays recorded
// tokens. Payload implements xml.TokenReader.
type Payload struct {
	parent  *Cursor
	stop    int
	pending bool
	scopes  []map[string]string
	line    int
	col     int

	recorded bool
	rec      []xml.Token

	done   bool
	cursor *Cursor
}

// Handoff returns a live payload over the content of the element containing
// the cursor position and marks the cursor as held by it. With includeCurrent
// the current token (typically the first child's start element) is the first
// token of the payload; otherwise the cursor must sit on the container's start
// element and the payload begins with the token that follows it.
func (c *Cursor) Handoff(includeCurrent bool) *Payload {
	stop := c.depth - 1
	if includeCurrent && c.IsStart() {
		stop = c.depth - 2
	}
	p := &Payload{
		parent:  c,
		stop:    stop,
		pending: includeCurrent,
		scopes:  c.snapshotScopes(includeCurrent),
	}
	p.line, p.col = c.Pos()
	c.Hold(p)
	return p
}

// Record buffers the subtree of the current start element and leaves the
// cursor at its end element. The returned payload replays the subtree,
// start and end element included.
func (c *Cursor) Record() (*Payload, error) {
	start, ok := c.tok.(xml.StartElement)
	if !ok {
		return nil, c.errorf(ows.KindUnexpectedElement, "", "expected a start element to record")
	}
	p := &Payload{recorded: true, scopes: c.snapshotScopes(true)}
	p.line, p.col = c.Pos()
	p.rec = append(p.rec, start)
	stop := c.depth - 1
	for {
		if err := c.Next(); err != nil {
			if err == io.EOF {
				return nil, c.errorf(ows.KindXMLSyntax, FormatName(start.Name), "unexpected end of document")
			}
			return nil, err
		}
		p.rec = append(p.rec, c.tok)
		if c.IsEnd() && c.depth == stop {
			return p, nil
		}
	}
}

// snapshotScopes copies the bindings visible to the payload's first token.
// When that token is the current start element its own declarations are left
// out, since they are replayed with it.
func (c *Cursor) snapshotScopes(excludeCurrent bool) []map[string]string {
	n := len(c.scopes)
	if excludeCurrent && c.IsStart() && n > 0 {
		n--
	}
	merged := map[string]string{}
	for _, scope := range c.scopes[:n] {
		for prefix, ns := range scope {
			merged[prefix] = ns
		}
	}
	return []map[string]string{merged}
}

// Token returns the next token of the payload, or io.EOF once the payload is
// exhausted. A live payload then leaves the parent cursor at the container's
// end element.
func (p *Payload) Token() (xml.Token, error) {
	if p.done {
		return nil, io.EOF
	}
	if p.recorded {
		if len(p.rec) == 0 {
			p.done = true
			return nil, io.EOF
		}
		t := p.rec[0]
		p.rec = p.rec[1:]
		return t, nil
	}
	if p.pending {
		p.pending = false
		return p.parent.tok, nil
	}
	if err := p.parent.Next(); err != nil {
		if err == io.EOF {
			return nil, p.parent.errorf(ows.KindXMLSyntax, "", "unexpected end of document")
		}
		return nil, err
	}
	if p.parent.IsEnd() && p.parent.depth == p.stop {
		p.done = true
		return nil, io.EOF
	}
	return p.parent.tok, nil
}

// Cursor returns a cursor bounded to the payload. The cursor inherits the
// namespace bindings in scope at hand-off and reports io.EOF at the end of the
// payload. Repeated calls return the same cursor.
func (p *Payload) Cursor() *Cursor {
	if p.cursor == nil {
		p.cursor = &Cursor{src: p, pos: p.position, scopes: p.scopes}
	}
	return p.cursor
}

// Decoder returns an encoding/xml decoder reading the payload tokens.
func (p *Payload) Decoder() *xml.Decoder {
	return xml.NewTokenDecoder(p)
}

// Close discards any unread content. Afterwards the payload is released.
func (p *Payload) Close() error {
	for !p.done {
		if _, err := p.Token(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return nil
}

// Released reports whether the payload has been read to its end.
func (p *Payload) Released() bool {
	return p.done
}

// Buffered reports whether the payload replays recorded tokens.
func (p *Payload) Buffered() bool {
	return p.recorded
}

func (p *Payload) position() (int, int) {
	if p.recorded || p.parent == nil {
		return p.line, p.col
	}
	return p.parent.Pos()
}

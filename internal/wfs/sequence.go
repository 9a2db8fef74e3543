package wfs

import (
	"github.com/pkg/errors"

	"github.com/delta10/wfs-proxy/internal/ows"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

// ErrCursorHeld is returned when the next action is requested while the
// previous one still holds the document cursor through an unread payload or
// an unfinished property sequence.
var ErrCursorHeld = errors.New("wfs: previous action still holds the document cursor")

// ActionSequence produces the actions of a transaction one at a time, in
// document order. It is single pass: once Next returns false the sequence is
// exhausted or failed, see Err.
//
// Abandoning a sequence early is fine, but the document cursor is left at an
// undefined position and must not be reused.
type ActionSequence struct {
	d     *Decoder
	g     *grammar
	c     *xmlstream.Cursor
	depth int

	cur     Action
	started bool
	done    bool
	err     error
}

func newActionSequence(d *Decoder, g *grammar, c *xmlstream.Cursor, depth int) *ActionSequence {
	return &ActionSequence{d: d, g: g, c: c, depth: depth}
}

// Next decodes the next action. It returns false when the Transaction end is
// reached or decoding failed.
func (s *ActionSequence) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	if s.started {
		if u, ok := s.cur.(*Update); ok && u.Properties.err != nil {
			return s.fail(u.Properties.err)
		}
		if s.c.Held() {
			return s.fail(ErrCursorHeld)
		}
		if err := s.g.advance(s.c); err != nil {
			return s.fail(err)
		}
	}
	s.started = true
	s.cur = nil

	if s.c.IsEnd() {
		if err := s.c.RequireEnd(s.g.namespace, "Transaction"); err != nil || s.c.Depth() != s.depth-1 {
			return s.fail(s.c.Errorf(ows.KindUnexpectedElement, xmlstream.FormatName(s.c.Name()), "unbalanced end element"))
		}
		s.done = true
		return false
	}

	name := s.c.Name()
	decode, ok := s.g.actions[name.Local]
	if !s.c.IsStart() || name.Space != s.g.namespace || !ok {
		e := ows.UnexpectedElement(xmlstream.FormatName(name), s.g.expected(),
			"%s is not a WFS %s transaction action", xmlstream.FormatName(name), s.g.version)
		e.Line, e.Column = s.c.Pos()
		return s.fail(e)
	}

	a, err := decode(&actionReader{d: s.d, g: s.g, c: s.c})
	if err != nil {
		return s.fail(err)
	}
	s.cur = a
	return true
}

// Action returns the action decoded by the last successful call to Next.
func (s *ActionSequence) Action() Action {
	return s.cur
}

// Err returns the error that stopped the sequence, if any.
func (s *ActionSequence) Err() error {
	return s.err
}

// Version is the protocol version every produced action belongs to.
func (s *ActionSequence) Version() Version {
	return s.g.version
}

func (s *ActionSequence) fail(err error) bool {
	s.err = err
	s.cur = nil
	return false
}

package wfs

import (
	"encoding/xml"
	"strings"

	"github.com/delta10/wfs-proxy/internal/filter"
	"github.com/delta10/wfs-proxy/internal/ows"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

// PropertySequence lazily reads the Property elements of an Update. It holds
// the document cursor until it is exhausted; each property's Value payload
// must be read or closed before the next property is requested.
type PropertySequence struct {
	r *actionReader

	cur     PropertyReplacement
	count   int
	started bool
	done    bool
	err     error
	filter  *filter.Filter
}

func newPropertySequence(r *actionReader) *PropertySequence {
	p := &PropertySequence{r: r}
	r.c.Hold(p)
	return p
}

// Next reads the next property. When the properties are exhausted the
// optional filter that follows them is decoded.
func (p *PropertySequence) Next() bool {
	if p.done || p.err != nil {
		return false
	}
	c, g := p.r.c, p.r.g

	if p.started {
		if v := p.cur.Value; v != nil {
			if !v.Released() {
				return p.fail(ErrCursorHeld)
			}
			if err := g.advance(c); err != nil {
				return p.fail(err)
			}
		}
		if err := c.RequireEnd(g.namespace, "Property"); err != nil {
			return p.fail(err)
		}
	}
	p.started = true
	p.cur = PropertyReplacement{}

	if err := g.advance(c); err != nil {
		return p.fail(err)
	}

	switch {
	case c.IsStart() && c.Name() == g.name("Property"):
		prop, err := p.readProperty()
		if err != nil {
			return p.fail(err)
		}
		p.cur = prop
		p.count++
		return true
	case p.r.isFilter():
		if err := p.requireProperties(); err != nil {
			return p.fail(err)
		}
		f, err := p.r.d.filters.DecodeFilter(c)
		if err != nil {
			return p.fail(err)
		}
		p.filter = f
		if err := g.advance(c); err != nil {
			return p.fail(err)
		}
		if err := c.RequireEnd(g.namespace, "Update"); err != nil {
			return p.fail(err)
		}
		p.done = true
		return false
	case c.IsEnd():
		if err := c.RequireEnd(g.namespace, "Update"); err != nil {
			return p.fail(err)
		}
		if err := p.requireProperties(); err != nil {
			return p.fail(err)
		}
		p.done = true
		return false
	}

	name := c.Name()
	expected := []string{
		xmlstream.FormatName(g.name("Property")),
		xmlstream.FormatName(xml.Name{Space: g.filterNS, Local: "Filter"}),
	}
	return p.fail(p.r.errorAt(ows.UnexpectedElement(xmlstream.FormatName(name), expected, "unexpected element in Update")))
}

// readProperty reads the property reference and stops at the optional Value,
// which is handed out as a payload.
func (p *PropertySequence) readProperty() (PropertyReplacement, error) {
	c, g := p.r.c, p.r.g
	prop := PropertyReplacement{Mode: ModeReplace}

	if err := g.advance(c); err != nil {
		return prop, err
	}
	if err := c.RequireStart(g.namespace, g.propertyRef); err != nil {
		return prop, err
	}
	if mode, ok := c.Attr("action"); ok && g.version == Version200 {
		switch m := UpdateMode(mode); m {
		case ModeReplace, ModeInsertBefore, ModeInsertAfter, ModeRemove:
			prop.Mode = m
		default:
			return prop, p.r.errorAt(ows.InvalidParameter("action", "invalid update action '%s'", mode))
		}
	}

	text, err := c.ElementText()
	if err != nil {
		return prop, err
	}
	prop.Path = strings.TrimSpace(text)
	if qn, ok := c.ResolveQName(prop.Path); ok {
		prop.Name = qn
	} else if g.version == Version100 {
		return prop, p.r.errorAt(ows.InvalidParameter(g.propertyRef, "'%s' is not a valid qualified property name", prop.Path))
	}

	if err := g.advance(c); err != nil {
		return prop, err
	}
	if c.IsStart() && c.Name() == g.name("Value") {
		prop.Value = c.Handoff(false)
		c.Hold(p)
	}
	return prop, nil
}

func (p *PropertySequence) requireProperties() error {
	if p.count == 0 {
		return p.r.errorAt(ows.MissingParameter("Property", "Update action contains no Property element"))
	}
	return nil
}

// Property returns the property read by the last successful call to Next.
func (p *PropertySequence) Property() PropertyReplacement {
	return p.cur
}

func (p *PropertySequence) Err() error {
	return p.err
}

// Close skips any unread values and properties so that the enclosing action
// sequence can continue.
func (p *PropertySequence) Close() error {
	for {
		if v := p.cur.Value; v != nil {
			if err := v.Close(); err != nil {
				return err
			}
		}
		if !p.Next() {
			return p.err
		}
	}
}

// Released reports whether the sequence no longer holds the cursor.
func (p *PropertySequence) Released() bool {
	return p.done
}

func (p *PropertySequence) fail(err error) bool {
	p.err = err
	p.cur = PropertyReplacement{}
	return false
}

package wfs

import (
	"strings"

	"github.com/delta10/wfs-proxy/internal/filter"
	"github.com/delta10/wfs-proxy/internal/ows"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

// FilterDecoder decodes the Filter element at the cursor, leaving the cursor
// at the matching end element.
type FilterDecoder interface {
	DecodeFilter(c *xmlstream.Cursor) (*filter.Filter, error)
}

// Decoder reads Transaction request documents.
type Decoder struct {
	filters FilterDecoder
}

// NewDecoder returns a decoder delegating filters to fd, or to the built-in
// filter decoder when fd is nil.
func NewDecoder(fd FilterDecoder) *Decoder {
	if fd == nil {
		fd = filter.NewDecoder()
	}
	return &Decoder{filters: fd}
}

// Decode picks the protocol version from the namespace of the Transaction
// element at the cursor.
func (d *Decoder) Decode(c *xmlstream.Cursor) (*TransactionRequest, error) {
	name := c.Name()
	if c.IsStart() && name.Local == "Transaction" {
		switch name.Space {
		case Namespace100:
			if v, ok := c.Attr("version"); ok && v != string(Version100) {
				return nil, ows.NotSupported("version", "Transaction version %s is not supported", v)
			}
			return d.Decode100(c)
		case Namespace200:
			return d.Decode200(c)
		}
	}
	return nil, ows.UnexpectedElement(xmlstream.FormatName(name),
		[]string{xmlstream.FormatName(grammar100.name("Transaction")), xmlstream.FormatName(grammar200.name("Transaction"))},
		"not a WFS Transaction request")
}

// Decode100 reads the envelope of a WFS 1.0.0 Transaction. The cursor must be
// at the Transaction start element.
func (d *Decoder) Decode100(c *xmlstream.Cursor) (*TransactionRequest, error) {
	if err := c.RequireStart(Namespace100, "Transaction"); err != nil {
		return nil, err
	}
	req := &TransactionRequest{Version: Version100}
	req.Handle, _ = c.Attr("handle")

	raw, _ := c.Attr("releaseAction")
	ra, err := ParseReleaseAction(raw)
	if err != nil {
		return nil, err
	}
	req.ReleaseAction = ra

	depth := c.Depth()
	if err := c.NextTag(); err != nil {
		return nil, err
	}
	if c.IsStart() && c.Name() == grammar100.name("LockId") {
		text, err := c.ElementText()
		if err != nil {
			return nil, err
		}
		req.LockID = strings.TrimSpace(text)
		if err := c.NextTag(); err != nil {
			return nil, err
		}
	}

	req.Actions = newActionSequence(d, grammar100, c, depth)
	return req, nil
}

// Decode200 reads the envelope of a WFS 2.0.0 Transaction. The cursor must be
// at the Transaction start element.
func (d *Decoder) Decode200(c *xmlstream.Cursor) (*TransactionRequest, error) {
	if err := c.RequireStart(Namespace200, "Transaction"); err != nil {
		return nil, err
	}
	req := &TransactionRequest{Version: Version200}
	req.Handle, _ = c.Attr("handle")
	req.LockID, _ = c.Attr("lockId")
	req.SRSName, _ = c.Attr("srsName")

	raw, _ := c.Attr("releaseAction")
	ra, err := ParseReleaseAction(raw)
	if err != nil {
		return nil, err
	}
	req.ReleaseAction = ra

	depth := c.Depth()
	if err := c.NextElement(); err != nil {
		return nil, err
	}

	req.Actions = newActionSequence(d, grammar200, c, depth)
	return req, nil
}

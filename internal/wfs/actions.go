package wfs

import (
	"encoding/xml"

	"github.com/delta10/wfs-proxy/internal/filter"
	"github.com/delta10/wfs-proxy/internal/ows"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

// actionReader is handed to an action decoder with the cursor at the action's
// start element. The decoder either leaves the cursor at the action's end
// element or hands the rest of the action off through a lease whose release
// does so.
type actionReader struct {
	d *Decoder
	g *grammar
	c *xmlstream.Cursor
}

func (r *actionReader) header() ActionHeader {
	h := ActionHeader{Version: r.g.version}
	h.Handle, _ = r.c.Attr("handle")
	return h
}

func (r *actionReader) errorAt(e *ows.Error) *ows.Error {
	e.Line, e.Column = r.c.Pos()
	return e
}

func (r *actionReader) requiredAttr(local string) (string, error) {
	v, ok := r.c.Attr(local)
	if !ok {
		return "", r.errorAt(ows.MissingParameter(local, "required attribute '%s' is missing on %s", local, r.c.Name().Local))
	}
	return v, nil
}

func (r *actionReader) requiredQName(local string) (xml.Name, error) {
	v, err := r.requiredAttr(local)
	if err != nil {
		return xml.Name{}, err
	}
	qn, ok := r.c.ResolveQName(v)
	if !ok {
		return xml.Name{}, r.errorAt(ows.InvalidParameter(local, "value '%s' of attribute '%s' is not a valid qualified name", v, local))
	}
	return qn, nil
}

// requiredBool accepts the literals true and false only.
func (r *actionReader) requiredBool(local string) (bool, error) {
	v, err := r.requiredAttr(local)
	if err != nil {
		return false, err
	}
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, r.errorAt(ows.InvalidParameter(local, "value '%s' of attribute '%s' is not a boolean, use 'true' or 'false'", v, local))
}

// readFilter decodes the filter at the cursor. The filter element is
// mandatory for the enclosing action.
func (r *actionReader) readFilter(action string) (*filter.Filter, error) {
	if !r.c.IsStart() || r.c.Name() != (xml.Name{Space: r.g.filterNS, Local: "Filter"}) {
		e := *ows.ErrMissingFilter
		e.Message = "mandatory '" + r.g.filterPrefix + ":Filter' element is missing in " + action
		return nil, r.errorAt(&e)
	}
	return r.d.filters.DecodeFilter(r.c)
}

func (r *actionReader) isFilter() bool {
	return r.c.IsStart() && r.c.Name() == xml.Name{Space: r.g.filterNS, Local: "Filter"}
}

func readDelete(r *actionReader) (Action, error) {
	a := &Delete{ActionHeader: r.header()}
	var err error
	if a.TypeName, err = r.requiredQName("typeName"); err != nil {
		return nil, err
	}

	if err := r.g.advance(r.c); err != nil {
		return nil, err
	}
	if a.Filter, err = r.readFilter("Delete"); err != nil {
		return nil, err
	}

	if err := r.g.advance(r.c); err != nil {
		return nil, err
	}
	if err := r.c.RequireEnd(r.g.namespace, "Delete"); err != nil {
		return nil, err
	}
	return a, nil
}

// readInsert stops at the first feature element and hands the remaining
// content of the Insert over as the payload.
func readInsert(r *actionReader) (Action, error) {
	a := &Insert{ActionHeader: r.header()}
	if r.g.version == Version200 {
		a.InputFormat, _ = r.c.Attr("inputFormat")
		a.SRSName, _ = r.c.Attr("srsName")
	}

	if err := r.g.advance(r.c); err != nil {
		return nil, err
	}
	if !r.c.IsStart() {
		return nil, r.errorAt(ows.MissingParameter("Insert", "Insert action contains no feature element"))
	}
	a.Payload = r.c.Handoff(true)
	return a, nil
}

func readNative(r *actionReader) (Action, error) {
	a := &Native{ActionHeader: r.header()}
	var err error
	if a.VendorID, err = r.requiredAttr("vendorId"); err != nil {
		return nil, err
	}
	if a.SafeToIgnore, err = r.requiredBool("safeToIgnore"); err != nil {
		return nil, err
	}
	a.Payload = r.c.Handoff(false)
	return a, nil
}

// readReplace records the single replacement feature so that the filter that
// follows it can be decoded before the action is returned.
func readReplace(r *actionReader) (Action, error) {
	a := &Replace{ActionHeader: r.header()}
	a.InputFormat, _ = r.c.Attr("inputFormat")
	a.SRSName, _ = r.c.Attr("srsName")

	if err := r.g.advance(r.c); err != nil {
		return nil, err
	}
	if !r.c.IsStart() || r.isFilter() {
		return nil, r.errorAt(ows.MissingParameter("Replace", "Replace action contains no feature element"))
	}
	payload, err := r.c.Record()
	if err != nil {
		return nil, err
	}
	a.Payload = payload

	if err := r.g.advance(r.c); err != nil {
		return nil, err
	}
	if a.Filter, err = r.readFilter("Replace"); err != nil {
		return nil, err
	}

	if err := r.g.advance(r.c); err != nil {
		return nil, err
	}
	if err := r.c.RequireEnd(r.g.namespace, "Replace"); err != nil {
		return nil, err
	}
	return a, nil
}

func readUpdate(r *actionReader) (Action, error) {
	a := &Update{ActionHeader: r.header()}
	var err error
	if a.TypeName, err = r.requiredQName("typeName"); err != nil {
		return nil, err
	}
	if r.g.version == Version200 {
		a.InputFormat, _ = r.c.Attr("inputFormat")
		a.SRSName, _ = r.c.Attr("srsName")
	}
	a.Properties = newPropertySequence(r)
	return a, nil
}

package filter

import (
	"encoding/xml"
	"strings"

	"github.com/delta10/wfs-proxy/internal/gml"
	"github.com/delta10/wfs-proxy/internal/ows"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

var comparisons = map[string]ComparisonOp{
	"PropertyIsEqualTo":              Equal,
	"PropertyIsNotEqualTo":           NotEqual,
	"PropertyIsLessThan":             LessThan,
	"PropertyIsGreaterThan":          GreaterThan,
	"PropertyIsLessThanOrEqualTo":    LessThanOrEqual,
	"PropertyIsGreaterThanOrEqualTo": GreaterThanOrEqual,
}

var spatials = map[string]SpatialOp{
	"BBOX":       BBox,
	"Intersects": Intersects,
	"Within":     Within,
	"Contains":   Contains,
	"Disjoint":   Disjoint,
}

// Decoder reads ogc:Filter and fes:Filter elements.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// DecodeFilter decodes the Filter element at the cursor and leaves the cursor
// at its end element.
func (d *Decoder) DecodeFilter(c *xmlstream.Cursor) (*Filter, error) {
	name := c.Name()
	if !c.IsStart() || name.Local != "Filter" || (name.Space != OGCNamespace && name.Space != FESNamespace) {
		return nil, c.Errorf(ows.KindUnexpectedElement, xmlstream.FormatName(name), "expected a Filter element")
	}
	r := reader{c: c, ns: name.Space}

	f := &Filter{}
	for {
		if err := c.NextTag(); err != nil {
			return nil, err
		}
		if c.IsEnd() {
			break
		}
		child := c.Name()
		if err := r.requireNamespace(child); err != nil {
			return nil, err
		}

		switch child.Local {
		case "FeatureId", "GmlObjectId", "ResourceId":
			if f.Operator != nil {
				return nil, r.unexpected(child, "identifiers cannot be combined with an operator")
			}
			id, err := r.readID(child.Local)
			if err != nil {
				return nil, err
			}
			f.IDs = append(f.IDs, id)
		default:
			if f.Operator != nil || len(f.IDs) > 0 {
				return nil, r.unexpected(child, "a filter holds a single operator")
			}
			op, err := r.readOperator()
			if err != nil {
				return nil, err
			}
			f.Operator = op
		}
	}
	if f.Operator == nil && len(f.IDs) == 0 {
		return nil, c.Errorf(ows.KindMissingParameterValue, "Filter", "filter element is empty")
	}
	return f, nil
}

type reader struct {
	c  *xmlstream.Cursor
	ns string
}

func (r reader) requireNamespace(name xml.Name) error {
	if name.Space != r.ns {
		return r.unexpected(name, "element is not in the filter namespace %s", r.ns)
	}
	return nil
}

func (r reader) unexpected(name xml.Name, format string, args ...any) error {
	return r.c.Errorf(ows.KindUnexpectedElement, xmlstream.FormatName(name), format, args...)
}

func (r reader) readID(local string) (string, error) {
	var (
		id string
		ok bool
	)
	switch local {
	case "FeatureId":
		id, ok = r.c.Attr("fid")
	case "ResourceId":
		id, ok = r.c.Attr("rid")
	case "GmlObjectId":
		if id, ok = r.c.AttrNS(gml.Namespace, "id"); !ok {
			id, ok = r.c.AttrNS(gml.Namespace32, "id")
		}
	}
	if !ok || strings.TrimSpace(id) == "" {
		return "", r.c.Errorf(ows.KindMissingParameterValue, local, "%s has no identifier", local)
	}
	return id, r.c.Skip()
}

// readOperator decodes the operator element at the cursor, leaving the
// cursor at its end element.
func (r reader) readOperator() (Operator, error) {
	name := r.c.Name()
	if err := r.requireNamespace(name); err != nil {
		return nil, err
	}

	if op, ok := comparisons[name.Local]; ok {
		return r.readComparison(op)
	}
	if op, ok := spatials[name.Local]; ok {
		return r.readSpatial(op)
	}

	switch name.Local {
	case "And", "Or":
		var ops []Operator
		err := r.children(func() error {
			op, err := r.readOperator()
			ops = append(ops, op)
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(ops) < 2 {
			return nil, r.c.Errorf(ows.KindInvalidParameterValue, name.Local, "%s needs at least two operands", name.Local)
		}
		if name.Local == "And" {
			return And{Operands: ops}, nil
		}
		return Or{Operands: ops}, nil
	case "Not":
		var ops []Operator
		err := r.children(func() error {
			op, err := r.readOperator()
			ops = append(ops, op)
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(ops) != 1 {
			return nil, r.c.Errorf(ows.KindInvalidParameterValue, "Not", "Not takes exactly one operand")
		}
		return Not{Operand: ops[0]}, nil
	case "PropertyIsLike":
		return r.readLike()
	case "PropertyIsNull":
		exprs, err := r.expressions()
		if err != nil {
			return nil, err
		}
		if len(exprs) != 1 {
			return nil, r.c.Errorf(ows.KindInvalidParameterValue, "PropertyIsNull", "PropertyIsNull takes exactly one operand")
		}
		return IsNull{Expr: exprs[0]}, nil
	case "PropertyIsBetween":
		return r.readBetween()
	}
	return nil, r.c.Errorf(ows.KindOperationNotSupported, name.Local, "filter operator %s is not supported", name.Local)
}

func (r reader) readComparison(op ComparisonOp) (Operator, error) {
	local := r.c.Name().Local
	matchCase := true
	if v, ok := r.c.Attr("matchCase"); ok {
		matchCase = v != "false"
	}
	exprs, err := r.expressions()
	if err != nil {
		return nil, err
	}
	if len(exprs) != 2 {
		return nil, r.c.Errorf(ows.KindInvalidParameterValue, local, "%s takes exactly two operands", local)
	}
	return Comparison{Op: op, Left: exprs[0], Right: exprs[1], MatchCase: matchCase}, nil
}

func (r reader) readLike() (Operator, error) {
	like := Like{WildCard: "*", SingleChar: "?", Escape: "\\", MatchCase: true}
	if v, ok := r.c.Attr("wildCard"); ok {
		like.WildCard = v
	}
	if v, ok := r.c.Attr("singleChar"); ok {
		like.SingleChar = v
	}
	if v, ok := r.c.Attr("escapeChar"); ok {
		like.Escape = v
	} else if v, ok := r.c.Attr("escape"); ok {
		like.Escape = v
	}
	if v, ok := r.c.Attr("matchCase"); ok {
		like.MatchCase = v != "false"
	}

	exprs, err := r.expressions()
	if err != nil {
		return nil, err
	}
	if len(exprs) != 2 {
		return nil, r.c.Errorf(ows.KindInvalidParameterValue, "PropertyIsLike", "PropertyIsLike takes a property and a literal")
	}
	lit, ok := exprs[1].(Literal)
	if !ok {
		return nil, r.c.Errorf(ows.KindInvalidParameterValue, "PropertyIsLike", "pattern must be a literal")
	}
	like.Expr, like.Pattern = exprs[0], lit.Text
	return like, nil
}

func (r reader) readBetween() (Operator, error) {
	var b Between
	err := r.children(func() error {
		name := r.c.Name()
		switch name.Local {
		case "LowerBoundary", "UpperBoundary":
			exprs, err := r.expressions()
			if err != nil {
				return err
			}
			if len(exprs) != 1 {
				return r.c.Errorf(ows.KindInvalidParameterValue, name.Local, "%s takes exactly one expression", name.Local)
			}
			if name.Local == "LowerBoundary" {
				b.Lower = exprs[0]
			} else {
				b.Upper = exprs[0]
			}
			return nil
		}
		expr, err := r.readExpression()
		b.Expr = expr
		return err
	})
	if err != nil {
		return nil, err
	}
	if b.Expr == nil || b.Lower == nil || b.Upper == nil {
		return nil, r.c.Errorf(ows.KindMissingParameterValue, "PropertyIsBetween", "PropertyIsBetween needs an expression and both boundaries")
	}
	return b, nil
}

func (r reader) readSpatial(op SpatialOp) (Operator, error) {
	local := r.c.Name().Local
	s := Spatial{Op: op}
	exprs, err := r.expressions()
	if err != nil {
		return nil, err
	}
	for _, e := range exprs {
		if p, ok := e.(PropertyName); ok && s.Property == nil && s.Operand == nil {
			s.Property = &p
			continue
		}
		if s.Operand != nil {
			return nil, r.c.Errorf(ows.KindInvalidParameterValue, local, "%s takes a single geometry operand", local)
		}
		s.Operand = e
	}
	if s.Operand == nil {
		return nil, r.c.Errorf(ows.KindMissingParameterValue, local, "%s has no geometry operand", local)
	}
	return s, nil
}

// expressions decodes every child of the current element as an expression.
func (r reader) expressions() ([]Expression, error) {
	var exprs []Expression
	err := r.children(func() error {
		e, err := r.readExpression()
		exprs = append(exprs, e)
		return err
	})
	return exprs, err
}

func (r reader) readExpression() (Expression, error) {
	name := r.c.Name()
	if gml.IsGeometry(name) {
		g, err := gml.Read(r.c)
		if err != nil {
			return nil, err
		}
		return GeometryLiteral{Geometry: g.Geometry, SRSName: g.SRSName}, nil
	}
	if err := r.requireNamespace(name); err != nil {
		return nil, err
	}

	switch name.Local {
	case "PropertyName", "ValueReference":
		text, err := r.c.ElementText()
		if err != nil {
			return nil, err
		}
		path := strings.TrimSpace(text)
		p := PropertyName{Path: path}
		if qn, ok := r.c.ResolveQName(path); ok {
			p.Name = qn
		}
		return p, nil
	case "Literal":
		return r.readLiteral()
	case "Function":
		fn, ok := r.c.Attr("name")
		if !ok || fn == "" {
			return nil, r.c.Errorf(ows.KindMissingParameterValue, "name", "Function has no name")
		}
		args, err := r.expressions()
		if err != nil {
			return nil, err
		}
		return Function{Name: fn, Args: args}, nil
	}
	return nil, r.c.Errorf(ows.KindOperationNotSupported, name.Local, "filter expression %s is not supported", name.Local)
}

// readLiteral reads a Literal holding either text or a single GML geometry.
func (r reader) readLiteral() (Expression, error) {
	var (
		text strings.Builder
		geom *GeometryLiteral
	)
	for {
		if err := r.c.Next(); err != nil {
			return nil, err
		}
		switch t := r.c.Token().(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			if !gml.IsGeometry(t.Name) || geom != nil {
				return nil, r.unexpected(t.Name, "literal may only contain text or one geometry")
			}
			g, err := gml.Read(r.c)
			if err != nil {
				return nil, err
			}
			geom = &GeometryLiteral{Geometry: g.Geometry, SRSName: g.SRSName}
		case xml.EndElement:
			if geom != nil {
				return *geom, nil
			}
			return Literal{Text: strings.TrimSpace(text.String())}, nil
		}
	}
}

func (r reader) children(fn func() error) error {
	for {
		if err := r.c.NextTag(); err != nil {
			return err
		}
		if r.c.IsEnd() {
			return nil
		}
		if err := fn(); err != nil {
			return err
		}
	}
}

// Package filter models OGC filter expressions (Filter Encoding 1.0, 1.1 and
// 2.0) as an evaluable tree.
package filter

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

const (
	OGCNamespace = "http://www.opengis.net/ogc"
	FESNamespace = "http://www.opengis.net/fes/2.0"
)

// Filter is a decoded Filter element: either an identifier filter or a
// single predicate operator.
type Filter struct {
	IDs      []string
	Operator Operator
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	if len(f.IDs) > 0 {
		quoted := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			quoted[i] = quote(id)
		}
		return "IN (" + strings.Join(quoted, ", ") + ")"
	}
	if f.Operator == nil {
		return ""
	}
	return f.Operator.String()
}

type Operator interface {
	fmt.Stringer
	operator()
}

type Expression interface {
	fmt.Stringer
	expression()
}

type PropertyName struct {
	// Name is the resolved qualified name; zero when Path is not a plain name.
	Name xml.Name
	Path string
}

type Literal struct {
	Text string
}

type GeometryLiteral struct {
	Geometry orb.Geometry
	SRSName  string
}

type Function struct {
	Name string
	Args []Expression
}

type ComparisonOp string

const (
	Equal              ComparisonOp = "="
	NotEqual           ComparisonOp = "<>"
	LessThan           ComparisonOp = "<"
	GreaterThan        ComparisonOp = ">"
	LessThanOrEqual    ComparisonOp = "<="
	GreaterThanOrEqual ComparisonOp = ">="
)

type Comparison struct {
	Op          ComparisonOp
	Left, Right Expression
	MatchCase   bool
}

type Like struct {
	Expr       Expression
	Pattern    string
	WildCard   string
	SingleChar string
	Escape     string
	MatchCase  bool
}

type IsNull struct {
	Expr Expression
}

type Between struct {
	Expr         Expression
	Lower, Upper Expression
}

type And struct {
	Operands []Operator
}

type Or struct {
	Operands []Operator
}

type Not struct {
	Operand Operator
}

type SpatialOp string

const (
	BBox       SpatialOp = "BBOX"
	Intersects SpatialOp = "INTERSECTS"
	Within     SpatialOp = "WITHIN"
	Contains   SpatialOp = "CONTAINS"
	Disjoint   SpatialOp = "DISJOINT"
)

type Spatial struct {
	Op SpatialOp
	// Property is nil when the feature's default geometry is meant.
	Property *PropertyName
	Operand  Expression
}

func (PropertyName) expression()    {}
func (Literal) expression()         {}
func (GeometryLiteral) expression() {}
func (Function) expression()        {}

func (Comparison) operator() {}
func (Like) operator()       {}
func (IsNull) operator()     {}
func (Between) operator()    {}
func (And) operator()        {}
func (Or) operator()         {}
func (Not) operator()        {}
func (Spatial) operator()    {}

func (p PropertyName) String() string {
	if p.Path != "" {
		return p.Path
	}
	return p.Name.Local
}

func (l Literal) String() string {
	if _, err := strconv.ParseFloat(l.Text, 64); err == nil {
		return l.Text
	}
	return quote(l.Text)
}

func (g GeometryLiteral) String() string {
	if g.Geometry == nil {
		return "EMPTY"
	}
	if b, ok := g.Geometry.(orb.Bound); ok {
		return wkt.MarshalString(b.ToPolygon())
	}
	return wkt.MarshalString(g.Geometry)
}

func (f Function) String() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.String()
	}
	return f.Name + "(" + strings.Join(args, ", ") + ")"
}

func (c Comparison) String() string {
	return c.Left.String() + " " + string(c.Op) + " " + c.Right.String()
}

func (l Like) String() string {
	op := " LIKE "
	if !l.MatchCase {
		op = " ILIKE "
	}
	return l.Expr.String() + op + quote(l.Pattern)
}

func (n IsNull) String() string {
	return n.Expr.String() + " IS NULL"
}

func (b Between) String() string {
	return b.Expr.String() + " BETWEEN " + b.Lower.String() + " AND " + b.Upper.String()
}

func (a And) String() string {
	return join(a.Operands, " AND ")
}

func (o Or) String() string {
	return join(o.Operands, " OR ")
}

func (n Not) String() string {
	return "NOT (" + n.Operand.String() + ")"
}

func (s Spatial) String() string {
	prop := "DEFAULT_GEOMETRY"
	if s.Property != nil {
		prop = s.Property.String()
	}
	if g, ok := s.Operand.(GeometryLiteral); ok && s.Op == BBox {
		if b, ok := g.Geometry.(orb.Bound); ok {
			return fmt.Sprintf("BBOX(%s, %g, %g, %g, %g)", prop, b.Min[0], b.Min[1], b.Max[0], b.Max[1])
		}
	}
	return string(s.Op) + "(" + prop + ", " + s.Operand.String() + ")"
}

func join(ops []Operator, sep string) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

// ErrUnsupportedEvaluation is returned for predicates that decode fine but
// cannot be evaluated in memory, such as line/polygon intersection.
var ErrUnsupportedEvaluation = errors.New("filter: predicate cannot be evaluated in memory")

// Matches evaluates the filter against a feature. Id filters compare with the
// feature id.
func (f *Filter) Matches(feat *geojson.Feature) (bool, error) {
	if len(f.IDs) > 0 {
		id := fmt.Sprint(feat.ID)
		for _, want := range f.IDs {
			if id == want {
				return true, nil
			}
		}
		return false, nil
	}
	return evaluate(f.Operator, feat)
}

func evaluate(op Operator, feat *geojson.Feature) (bool, error) {
	switch o := op.(type) {
	case And:
		for _, operand := range o.Operands {
			ok, err := evaluate(operand, feat)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, operand := range o.Operands {
			ok, err := evaluate(operand, feat)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Not:
		ok, err := evaluate(o.Operand, feat)
		return !ok, err
	case Comparison:
		return compareOp(o, feat)
	case Like:
		return like(o, feat)
	case IsNull:
		v, err := value(o.Expr, feat)
		return v == nil, err
	case Between:
		lo, err := compareExprs(o.Lower, o.Expr, true, feat)
		if err != nil {
			return false, err
		}
		hi, err := compareExprs(o.Expr, o.Upper, true, feat)
		if err != nil {
			return false, err
		}
		return lo <= 0 && hi <= 0, nil
	case Spatial:
		return spatial(o, feat)
	}
	return false, errors.Errorf("filter: unknown operator %T", op)
}

func value(e Expression, feat *geojson.Feature) (any, error) {
	switch x := e.(type) {
	case PropertyName:
		if v, ok := feat.Properties[x.Name.Local]; ok && x.Name.Local != "" {
			return v, nil
		}
		if v, ok := feat.Properties[x.Path]; ok {
			return v, nil
		}
		return nil, nil
	case Literal:
		return x.Text, nil
	case GeometryLiteral:
		return x.Geometry, nil
	case Function:
		return call(x, feat)
	}
	return nil, errors.Errorf("filter: unknown expression %T", e)
}

func call(fn Function, feat *geojson.Feature) (any, error) {
	switch fn.Name {
	case "GeometryFromWKT":
		if len(fn.Args) != 1 {
			return nil, errors.New("filter: GeometryFromWKT takes one argument")
		}
		v, err := value(fn.Args[0], feat)
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("filter: GeometryFromWKT argument is %T, not text", v)
		}
		g, err := wkt.Unmarshal(s)
		if err != nil {
			return nil, errors.Wrapf(err, "filter: GeometryFromWKT(%q)", s)
		}
		return g, nil
	}
	return nil, errors.Errorf("filter: unknown function %s", fn.Name)
}

func compareOp(c Comparison, feat *geojson.Feature) (bool, error) {
	l, err := value(c.Left, feat)
	if err != nil {
		return false, err
	}
	r, err := value(c.Right, feat)
	if err != nil {
		return false, err
	}
	if l == nil || r == nil {
		return false, nil
	}
	cmp := compareValues(l, r, c.MatchCase)
	switch c.Op {
	case Equal:
		return cmp == 0, nil
	case NotEqual:
		return cmp != 0, nil
	case LessThan:
		return cmp < 0, nil
	case GreaterThan:
		return cmp > 0, nil
	case LessThanOrEqual:
		return cmp <= 0, nil
	case GreaterThanOrEqual:
		return cmp >= 0, nil
	}
	return false, errors.Errorf("filter: unknown comparison %q", c.Op)
}

func compareExprs(a, b Expression, matchCase bool, feat *geojson.Feature) (int, error) {
	l, err := value(a, feat)
	if err != nil {
		return 0, err
	}
	r, err := value(b, feat)
	if err != nil {
		return 0, err
	}
	if l == nil || r == nil {
		return 1, nil
	}
	return compareValues(l, r, matchCase), nil
}

// compareValues compares numerically when both sides are numbers and
// lexically otherwise.
func compareValues(l, r any, matchCase bool) int {
	lf, lok := number(l)
	rf, rok := number(r)
	if lok && rok {
		switch {
		case lf < rf:
			return -1
		case lf > rf:
			return 1
		}
		return 0
	}
	ls, rs := fmt.Sprint(l), fmt.Sprint(r)
	if !matchCase {
		ls, rs = strings.ToLower(ls), strings.ToLower(rs)
	}
	return strings.Compare(ls, rs)
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func like(l Like, feat *geojson.Feature) (bool, error) {
	v, err := value(l.Expr, feat)
	if err != nil || v == nil {
		return false, err
	}
	re, err := likePattern(l)
	if err != nil {
		return false, err
	}
	return re.MatchString(fmt.Sprint(v)), nil
}

func likePattern(l Like) (*regexp.Regexp, error) {
	var b strings.Builder
	if !l.MatchCase {
		b.WriteString("(?i)")
	}
	b.WriteString("^")
	p := l.Pattern
	for len(p) > 0 {
		switch {
		case l.Escape != "" && strings.HasPrefix(p, l.Escape) && len(p) > len(l.Escape):
			rest := p[len(l.Escape):]
			r := []rune(rest)[0]
			b.WriteString(regexp.QuoteMeta(string(r)))
			p = rest[len(string(r)):]
		case l.WildCard != "" && strings.HasPrefix(p, l.WildCard):
			b.WriteString(".*")
			p = p[len(l.WildCard):]
		case l.SingleChar != "" && strings.HasPrefix(p, l.SingleChar):
			b.WriteString(".")
			p = p[len(l.SingleChar):]
		default:
			r := []rune(p)[0]
			b.WriteString(regexp.QuoteMeta(string(r)))
			p = p[len(string(r)):]
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func spatial(s Spatial, feat *geojson.Feature) (bool, error) {
	var target orb.Geometry
	if s.Property != nil {
		v, err := value(*s.Property, feat)
		if err != nil {
			return false, err
		}
		switch g := v.(type) {
		case orb.Geometry:
			target = g
		case string:
			target, _ = wkt.Unmarshal(g)
		}
	}
	if target == nil {
		target = feat.Geometry
	}
	if target == nil {
		return false, nil
	}

	v, err := value(s.Operand, feat)
	if err != nil {
		return false, err
	}
	operand, ok := v.(orb.Geometry)
	if !ok {
		return false, errors.Errorf("filter: %s operand is %T, not a geometry", s.Op, v)
	}

	switch s.Op {
	case BBox:
		return target.Bound().Intersects(operand.Bound()), nil
	case Intersects:
		return intersects(target, operand)
	case Disjoint:
		ok, err := intersects(target, operand)
		return !ok, err
	case Contains:
		return contains(target, operand)
	case Within:
		return contains(operand, target)
	}
	return false, errors.Errorf("filter: unknown spatial operator %q", s.Op)
}

func intersects(a, b orb.Geometry) (bool, error) {
	if !a.Bound().Intersects(b.Bound()) {
		return false, nil
	}
	if p, ok := a.(orb.Point); ok {
		return covers(b, p)
	}
	if p, ok := b.(orb.Point); ok {
		return covers(a, p)
	}
	return false, ErrUnsupportedEvaluation
}

func contains(a, b orb.Geometry) (bool, error) {
	if bound, ok := a.(orb.Bound); ok {
		return bound.Contains(b.Bound().Min) && bound.Contains(b.Bound().Max), nil
	}
	switch x := b.(type) {
	case orb.Point:
		return covers(a, x)
	case orb.MultiPoint:
		for _, p := range x {
			ok, err := covers(a, p)
			if err != nil || !ok {
				return false, err
			}
		}
		return len(x) > 0, nil
	}
	return false, ErrUnsupportedEvaluation
}

// covers reports whether point p lies in geometry g.
func covers(g orb.Geometry, p orb.Point) (bool, error) {
	switch x := g.(type) {
	case orb.Point:
		return x.Equal(p), nil
	case orb.MultiPoint:
		for _, q := range x {
			if q.Equal(p) {
				return true, nil
			}
		}
		return false, nil
	case orb.Bound:
		return x.Contains(p), nil
	case orb.Ring:
		return planar.RingContains(x, p), nil
	case orb.Polygon:
		return planar.PolygonContains(x, p), nil
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(x, p), nil
	}
	return false, ErrUnsupportedEvaluation
}

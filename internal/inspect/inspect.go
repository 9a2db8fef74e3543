// Package inspect drains a decoded transaction in document order and
// summarizes what it would change.
package inspect

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/delta10/wfs-proxy/internal/feature"
	"github.com/delta10/wfs-proxy/internal/filter"
	"github.com/delta10/wfs-proxy/internal/ows"
	"github.com/delta10/wfs-proxy/internal/schema"
	"github.com/delta10/wfs-proxy/internal/wfs"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

type Options struct {
	// Schema, when set, restricts type names and types property values.
	Schema *schema.AppSchema
	// MaxFeatures caps the number of features per transaction, 0 for no cap.
	MaxFeatures int
	// Constraint must hold for every inserted or replacing feature.
	Constraint *filter.Filter
	Logger     *zap.Logger
}

type Summary struct {
	Version       string          `json:"version"`
	Handle        string          `json:"handle,omitempty"`
	LockID        string          `json:"lockId,omitempty"`
	ReleaseAction string          `json:"releaseAction,omitempty"`
	Actions       []ActionSummary `json:"actions"`
	TypeNames     []string        `json:"typeNames"`
	Features      int             `json:"features"`
}

type ActionSummary struct {
	Kind         string            `json:"kind"`
	Handle       string            `json:"handle,omitempty"`
	TypeName     string            `json:"typeName,omitempty"`
	FeatureIDs   []string          `json:"featureIds,omitempty"`
	Features     int               `json:"features,omitempty"`
	BBox         []float64         `json:"bbox,omitempty"`
	Filter       string            `json:"filter,omitempty"`
	Properties   []PropertySummary `json:"properties,omitempty"`
	VendorID     string            `json:"vendorId,omitempty"`
	SafeToIgnore bool              `json:"safeToIgnore,omitempty"`
}

type PropertySummary struct {
	Name  string `json:"name"`
	Mode  string `json:"mode,omitempty"`
	Value any    `json:"value"`
}

type inspector struct {
	opts     Options
	summary  *Summary
	seen     map[string]bool
	prefixes map[string]string
}

// Summarize consumes every action of req. Payloads are decoded and released
// before the next action is requested. The context is checked between
// actions.
func Summarize(ctx context.Context, req *wfs.TransactionRequest, opts Options) (*Summary, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	in := &inspector{
		opts: opts,
		summary: &Summary{
			Version:       string(req.Version),
			Handle:        req.Handle,
			LockID:        req.LockID,
			ReleaseAction: req.ReleaseAction.String(),
			Actions:       []ActionSummary{},
			TypeNames:     []string{},
		},
		seen:     map[string]bool{},
		prefixes: map[string]string{},
	}
	if opts.Schema != nil {
		for prefix, ns := range opts.Schema.NamespaceBindings() {
			in.prefixes[ns] = prefix
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !req.Actions.Next() {
			break
		}
		a := req.Actions.Action()
		as, err := in.action(a)
		if err != nil {
			return nil, err
		}
		opts.Logger.Debug("inspected action",
			zap.String("kind", as.Kind),
			zap.String("typeName", as.TypeName),
			zap.Int("features", as.Features))
		in.summary.Actions = append(in.summary.Actions, as)
	}
	if err := req.Actions.Err(); err != nil {
		return nil, err
	}
	return in.summary, nil
}

func (in *inspector) action(a wfs.Action) (ActionSummary, error) {
	as := ActionSummary{Kind: string(a.Kind()), Handle: a.Header().Handle}
	switch x := a.(type) {
	case *wfs.Delete:
		if err := in.typeName(x.TypeName, &as); err != nil {
			return as, err
		}
		as.Filter = x.Filter.String()
	case *wfs.Insert:
		if err := in.features(x.Payload, &as); err != nil {
			return as, err
		}
	case *wfs.Replace:
		if err := in.features(x.Payload, &as); err != nil {
			return as, err
		}
		as.Filter = x.Filter.String()
	case *wfs.Update:
		if err := in.typeName(x.TypeName, &as); err != nil {
			return as, err
		}
		if err := in.properties(x, &as); err != nil {
			return as, err
		}
		as.Filter = x.Filter().String()
	case *wfs.Native:
		as.VendorID = x.VendorID
		as.SafeToIgnore = x.SafeToIgnore
		if err := x.Payload.Close(); err != nil {
			return as, err
		}
	}
	return as, nil
}

func (in *inspector) typeName(name xml.Name, as *ActionSummary) error {
	if in.opts.Schema != nil && in.opts.Schema.FeatureType(name) == nil {
		return ows.InvalidParameter("typeName", "feature type %s is not known", xmlstream.FormatName(name))
	}
	as.TypeName = in.qualify(name)
	in.touch(as.TypeName)
	return nil
}

func (in *inspector) features(p *xmlstream.Payload, as *ActionSummary) error {
	var (
		r      = feature.NewReader(p, in.opts.Schema)
		bound  orb.Bound
		bounds int
	)
	for r.Next() {
		f := r.Feature()
		in.summary.Features++
		as.Features++
		if limit := in.opts.MaxFeatures; limit > 0 && in.summary.Features > limit {
			return ows.InvalidParameter("maxFeatures", "transaction exceeds the limit of %d features", limit)
		}

		name := in.qualify(r.TypeName())
		if as.TypeName == "" {
			as.TypeName = name
		}
		in.touch(name)
		if f.ID != nil {
			as.FeatureIDs = append(as.FeatureIDs, fmt.Sprint(f.ID))
		}
		if b, ok := feature.Bound(f); ok {
			if bounds == 0 {
				bound = b
			} else {
				bound = bound.Union(b)
			}
			bounds++
		}

		if c := in.opts.Constraint; c != nil {
			ok, err := c.Matches(f)
			if err != nil {
				return errors.Wrapf(err, "inspect: evaluate constraint on %s", name)
			}
			if !ok {
				return ows.InvalidParameter(as.Kind, "feature %v of type %s violates the constraint %s", f.ID, name, c)
			}
		}
	}
	if err := r.Err(); err != nil {
		return err
	}
	if bounds > 0 {
		as.BBox = []float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]}
	}
	return p.Close()
}

func (in *inspector) properties(u *wfs.Update, as *ActionSummary) error {
	var ft *schema.FeatureType
	if in.opts.Schema != nil {
		ft = in.opts.Schema.FeatureType(u.TypeName)
	}

	props := u.Properties
	for props.Next() {
		p := props.Property()
		kind := schema.PropertyKind("")
		if ft != nil && p.Name.Local != "" {
			pt, ok := ft.Property(p.Name)
			if !ok {
				return ows.InvalidParameter(p.Path, "property %s is not defined for feature type %s", p.Path, as.TypeName)
			}
			kind = pt.Kind
		}

		ps := PropertySummary{Name: p.Path, Mode: string(p.Mode)}
		if p.Value != nil {
			v, err := feature.DecodeValue(p.Value, kind)
			if err != nil {
				return err
			}
			ps.Value = v
			if err := p.Value.Close(); err != nil {
				return err
			}
		}
		as.Properties = append(as.Properties, ps)
	}
	return props.Err()
}

func (in *inspector) qualify(name xml.Name) string {
	if prefix, ok := in.prefixes[name.Space]; ok && prefix != "" {
		return prefix + ":" + name.Local
	}
	return xmlstream.FormatName(name)
}

func (in *inspector) touch(name string) {
	if !in.seen[name] {
		in.seen[name] = true
		in.summary.TypeNames = append(in.summary.TypeNames, name)
	}
}

// Rewrite runs the jq expression over the JSON form of the summary. A single
// result is returned as is, several results as a slice.
func (s *Summary) Rewrite(expr string) (any, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, errors.Wrap(err, "inspect: parse rewrite")
	}

	marshalled, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var input map[string]any
	if err := json.Unmarshal(marshalled, &input); err != nil {
		return nil, err
	}

	var results []any
	iter := query.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, errors.Wrap(err, "inspect: run rewrite")
		}
		results = append(results, v)
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

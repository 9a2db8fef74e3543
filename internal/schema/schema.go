// Package schema is a registry of the feature types a proxy accepts in
// transactions, with their type hierarchy and typed properties.
package schema

import (
	"encoding/xml"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/delta10/wfs-proxy/internal/gml"
)

type PropertyKind string

const (
	KindString   PropertyKind = "string"
	KindInt      PropertyKind = "int"
	KindDouble   PropertyKind = "double"
	KindBool     PropertyKind = "bool"
	KindGeometry PropertyKind = "geometry"
)

type PropertyType struct {
	Name xml.Name
	Kind PropertyKind
}

type FeatureType struct {
	Name       xml.Name
	Abstract   bool
	Collection bool

	parent   *FeatureType
	children []*FeatureType
	// declared holds the properties introduced by this type, inherited
	// ones are in all.
	declared []PropertyType
	all      []PropertyType
}

// Properties returns all properties of the type, inherited ones first.
func (ft *FeatureType) Properties() []PropertyType {
	return ft.all
}

// Property looks up a property by name. An empty namespace matches any
// property with that local name.
func (ft *FeatureType) Property(name xml.Name) (PropertyType, bool) {
	for _, p := range ft.all {
		if p.Name.Local == name.Local && (name.Space == "" || p.Name.Space == name.Space) {
			return p, true
		}
	}
	return PropertyType{}, false
}

type AppSchema struct {
	types      []*FeatureType
	byName     map[xml.Name]*FeatureType
	namespaces map[string]string
}

type fileProperty struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type fileFeatureType struct {
	Name       string         `yaml:"name"`
	Parent     string         `yaml:"parent"`
	Abstract   bool           `yaml:"abstract"`
	Collection bool           `yaml:"collection"`
	Properties []fileProperty `yaml:"properties"`
}

type file struct {
	Namespaces   map[string]string `yaml:"namespaces"`
	FeatureTypes []fileFeatureType `yaml:"featureTypes"`
}

// Load reads an application schema from the YAML file at path.
func Load(path string) (*AppSchema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var doc file
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "schema: decode %s", path)
	}
	return build(doc)
}

// Parse reads an application schema from YAML source.
func Parse(data []byte) (*AppSchema, error) {
	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "schema: decode")
	}
	return build(doc)
}

func build(doc file) (*AppSchema, error) {
	s := &AppSchema{
		byName:     map[xml.Name]*FeatureType{},
		namespaces: map[string]string{},
	}
	for prefix, ns := range doc.Namespaces {
		s.namespaces[prefix] = ns
	}

	parents := map[*FeatureType]string{}
	for _, raw := range doc.FeatureTypes {
		name, err := s.resolve(raw.Name)
		if err != nil {
			return nil, err
		}
		if _, dup := s.byName[name]; dup {
			return nil, errors.Errorf("schema: feature type %s declared twice", raw.Name)
		}
		ft := &FeatureType{Name: name, Abstract: raw.Abstract, Collection: raw.Collection}
		for _, rp := range raw.Properties {
			pn, err := s.resolve(rp.Name)
			if err != nil {
				return nil, err
			}
			kind := PropertyKind(rp.Type)
			switch kind {
			case KindString, KindInt, KindDouble, KindBool, KindGeometry:
			case "":
				kind = KindString
			default:
				return nil, errors.Errorf("schema: property %s of %s has unknown type %q", rp.Name, raw.Name, rp.Type)
			}
			ft.declared = append(ft.declared, PropertyType{Name: pn, Kind: kind})
		}
		if raw.Parent != "" {
			parents[ft] = raw.Parent
		}
		s.types = append(s.types, ft)
		s.byName[name] = ft
	}

	for _, ft := range s.types {
		raw, ok := parents[ft]
		if !ok {
			continue
		}
		name, err := s.resolve(raw)
		if err != nil {
			return nil, err
		}
		parent, ok := s.byName[name]
		if !ok {
			return nil, errors.Errorf("schema: parent %s of %s is not declared", raw, xmlName(ft.Name))
		}
		ft.parent = parent
		parent.children = append(parent.children, ft)
	}

	for _, ft := range s.types {
		seen := map[*FeatureType]bool{}
		for t := ft; t != nil; t = t.parent {
			if seen[t] {
				return nil, errors.Errorf("schema: type hierarchy of %s is cyclic", xmlName(ft.Name))
			}
			seen[t] = true
		}
		ft.all = inherited(ft)
	}
	return s, nil
}

func inherited(ft *FeatureType) []PropertyType {
	if ft.parent == nil {
		return ft.declared
	}
	props := append([]PropertyType{}, inherited(ft.parent)...)
	return append(props, ft.declared...)
}

func (s *AppSchema) resolve(qname string) (xml.Name, error) {
	prefix, local, ok := strings.Cut(qname, ":")
	if !ok {
		return xml.Name{Local: qname}, nil
	}
	ns, bound := s.namespaces[prefix]
	if !bound || local == "" {
		return xml.Name{}, errors.Errorf("schema: cannot resolve name %q", qname)
	}
	return xml.Name{Space: ns, Local: local}, nil
}

// FeatureTypes returns all feature types in declaration order.
func (s *AppSchema) FeatureTypes() []*FeatureType {
	return s.types
}

// FeatureTypesIn returns the feature types of a namespace, or of all
// namespaces when namespace is empty.
func (s *AppSchema) FeatureTypesIn(namespace string, includeCollections, includeAbstracts bool) []*FeatureType {
	var out []*FeatureType
	for _, ft := range s.types {
		if namespace != "" && ft.Name.Space != namespace {
			continue
		}
		if (ft.Collection && !includeCollections) || (ft.Abstract && !includeAbstracts) {
			continue
		}
		out = append(out, ft)
	}
	return out
}

// RootFeatureTypes returns the types without a parent.
func (s *AppSchema) RootFeatureTypes() []*FeatureType {
	var out []*FeatureType
	for _, ft := range s.types {
		if ft.parent == nil {
			out = append(out, ft)
		}
	}
	return out
}

// FeatureType returns the type named name, or nil.
func (s *AppSchema) FeatureType(name xml.Name) *FeatureType {
	return s.byName[name]
}

func (s *AppSchema) Parent(ft *FeatureType) *FeatureType {
	return ft.parent
}

func (s *AppSchema) DirectSubtypes(ft *FeatureType) []*FeatureType {
	return ft.children
}

// Subtypes returns all transitive subtypes of ft, abstract ones included.
func (s *AppSchema) Subtypes(ft *FeatureType) []*FeatureType {
	var out []*FeatureType
	for _, child := range ft.children {
		out = append(out, child)
		out = append(out, s.Subtypes(child)...)
	}
	return out
}

func (s *AppSchema) ConcreteSubtypes(ft *FeatureType) []*FeatureType {
	var out []*FeatureType
	for _, sub := range s.Subtypes(ft) {
		if !sub.Abstract {
			out = append(out, sub)
		}
	}
	return out
}

// IsSubType reports whether substitution is ft itself or one of its
// transitive subtypes.
func (s *AppSchema) IsSubType(ft, substitution *FeatureType) bool {
	for t := substitution; t != nil; t = t.parent {
		if t == ft {
			return true
		}
	}
	return false
}

// NewPropertyDecls returns the properties ft declares that it does not
// inherit.
func (s *AppSchema) NewPropertyDecls(ft *FeatureType) []PropertyType {
	return ft.declared
}

// NamespaceBindings returns a copy of the preferred prefix bindings.
func (s *AppSchema) NamespaceBindings() map[string]string {
	out := make(map[string]string, len(s.namespaces))
	for prefix, ns := range s.namespaces {
		out[prefix] = ns
	}
	return out
}

// AppNamespaces returns the sorted namespaces of the declared feature types,
// GML namespaces excluded.
func (s *AppSchema) AppNamespaces() []string {
	set := map[string]bool{}
	for _, ft := range s.types {
		if ft.Name.Space != "" && !gml.IsNamespace(ft.Name.Space) {
			set[ft.Name.Space] = true
		}
	}
	out := make([]string, 0, len(set))
	for ns := range set {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func xmlName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return "{" + n.Space + "}" + n.Local
}

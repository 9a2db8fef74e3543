package wfs

import (
	"encoding/xml"

	"github.com/delta10/wfs-proxy/internal/filter"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

type actionDecoder func(r *actionReader) (Action, error)

// grammar captures everything that differs between the protocol versions.
// The sequence logic is shared and only consults the grammar.
type grammar struct {
	version      Version
	namespace    string
	filterNS     string
	filterPrefix string
	// propertyRef is the element naming the target of an update property.
	propertyRef string
	// lenient grammars skip stray text between elements instead of failing.
	lenient bool
	actions map[string]actionDecoder
	order   []string
}

var grammar100 = &grammar{
	version:      Version100,
	namespace:    Namespace100,
	filterNS:     filter.OGCNamespace,
	filterPrefix: "ogc",
	propertyRef:  "Name",
	actions: map[string]actionDecoder{
		"Delete": readDelete,
		"Insert": readInsert,
		"Native": readNative,
		"Update": readUpdate,
	},
	order: []string{"Delete", "Insert", "Native", "Update"},
}

var grammar200 = &grammar{
	version:      Version200,
	namespace:    Namespace200,
	filterNS:     filter.FESNamespace,
	filterPrefix: "fes",
	propertyRef:  "ValueReference",
	lenient:      true,
	actions: map[string]actionDecoder{
		"Delete":  readDelete,
		"Insert":  readInsert,
		"Native":  readNative,
		"Replace": readReplace,
		"Update":  readUpdate,
	},
	order: []string{"Delete", "Insert", "Native", "Replace", "Update"},
}

// advance moves the cursor to the next start or end element.
func (g *grammar) advance(c *xmlstream.Cursor) error {
	if g.lenient {
		return c.NextElement()
	}
	return c.NextTag()
}

func (g *grammar) name(local string) xml.Name {
	return xml.Name{Space: g.namespace, Local: local}
}

func (g *grammar) expected() []string {
	names := make([]string, len(g.order))
	for i, local := range g.order {
		names[i] = xmlstream.FormatName(g.name(local))
	}
	return names
}

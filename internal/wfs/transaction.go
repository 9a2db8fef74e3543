package wfs

import (
	"encoding/xml"

	"github.com/delta10/wfs-proxy/internal/filter"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

type Version string

const (
	Version100 Version = "1.0.0"
	Version200 Version = "2.0.0"
)

const (
	Namespace100 = "http://www.opengis.net/wfs"
	Namespace200 = "http://www.opengis.net/wfs/2.0"
)

// TransactionRequest is a decoded Transaction envelope. Its actions have not
// been read yet: iterating Actions drives the underlying document cursor.
type TransactionRequest struct {
	Version       Version
	Handle        string
	LockID        string
	ReleaseAction ReleaseAction
	// SRSName is only set by 2.0.0 requests.
	SRSName string
	Actions *ActionSequence
}

type ActionKind string

const (
	KindDelete  ActionKind = "Delete"
	KindInsert  ActionKind = "Insert"
	KindNative  ActionKind = "Native"
	KindReplace ActionKind = "Replace"
	KindUpdate  ActionKind = "Update"
)

// Action is one of *Delete, *Insert, *Native, *Replace or *Update.
type Action interface {
	Kind() ActionKind
	Header() ActionHeader
}

// ActionHeader holds what every action carries.
type ActionHeader struct {
	Version Version
	Handle  string
}

func (h ActionHeader) Header() ActionHeader {
	return h
}

type Delete struct {
	ActionHeader
	TypeName xml.Name
	Filter   *filter.Filter
}

// Insert hands its feature content to the caller. Payload starts at the first
// feature element and must be read or closed before the next action.
type Insert struct {
	ActionHeader
	InputFormat string
	SRSName     string
	Payload     *xmlstream.Payload
}

type Native struct {
	ActionHeader
	VendorID     string
	SafeToIgnore bool
	// Payload holds the vendor specific content and must be read or closed
	// before the next action.
	Payload *xmlstream.Payload
}

// Replace carries a single recorded feature and the filter selecting the
// features it replaces.
type Replace struct {
	ActionHeader
	InputFormat string
	SRSName     string
	Payload     *xmlstream.Payload
	Filter      *filter.Filter
}

type Update struct {
	ActionHeader
	TypeName    xml.Name
	InputFormat string
	SRSName     string
	// Properties must be exhausted or closed before the next action. The
	// filter following the properties is available afterwards.
	Properties *PropertySequence
}

// Filter returns the optional filter of the update. It is only known once
// Properties has been exhausted.
func (u *Update) Filter() *filter.Filter {
	return u.Properties.filter
}

func (*Delete) Kind() ActionKind  { return KindDelete }
func (*Insert) Kind() ActionKind  { return KindInsert }
func (*Native) Kind() ActionKind  { return KindNative }
func (*Replace) Kind() ActionKind { return KindReplace }
func (*Update) Kind() ActionKind  { return KindUpdate }

type UpdateMode string

const (
	ModeReplace      UpdateMode = "replace"
	ModeInsertBefore UpdateMode = "insertBefore"
	ModeInsertAfter  UpdateMode = "insertAfter"
	ModeRemove       UpdateMode = "remove"
)

// PropertyReplacement is one Property of an Update. A nil Value clears the
// property.
type PropertyReplacement struct {
	Name xml.Name
	// Path is the property reference as written in the document.
	Path  string
	Mode  UpdateMode
	Value *xmlstream.Payload
}

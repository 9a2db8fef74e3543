// Package ows holds the protocol fault model shared by the request decoders
// and its XML exception report encodings.
package ows

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindXMLSyntax Kind = iota + 1
	KindUnexpectedElement
	KindMissingParameterValue
	KindInvalidParameterValue
	KindOperationNotSupported
)

func (k Kind) String() string {
	switch k {
	case KindXMLSyntax:
		return "XMLSyntaxError"
	case KindUnexpectedElement:
		return "UnexpectedElement"
	case KindMissingParameterValue:
		return "MissingParameterValue"
	case KindInvalidParameterValue:
		return "InvalidParameterValue"
	case KindOperationNotSupported:
		return "OperationNotSupported"
	}
	return "NoApplicableCode"
}

// Code returns the OWS exception code reported to clients for k.
func (k Kind) Code() string {
	switch k {
	case KindXMLSyntax, KindUnexpectedElement:
		return "OperationParsingFailed"
	case KindMissingParameterValue, KindInvalidParameterValue, KindOperationNotSupported:
		return k.String()
	}
	return "NoApplicableCode"
}

// Error is a protocol fault raised while decoding a request document.
type Error struct {
	Kind Kind
	// Locator names the offending parameter, attribute or element.
	Locator  string
	Message  string
	Expected []string
	Line     int
	Column   int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Locator != "" {
		fmt.Fprintf(&b, " (%s)", e.Locator)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Expected) > 0 {
		fmt.Fprintf(&b, "; expected one of %s", strings.Join(e.Expected, ", "))
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d, column %d", e.Line, e.Column)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches target errors of the same kind. A target with a locator only
// matches errors carrying that locator.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Locator == "" || t.Locator == e.Locator)
}

var (
	ErrXMLSyntax             = &Error{Kind: KindXMLSyntax}
	ErrUnexpectedElement     = &Error{Kind: KindUnexpectedElement}
	ErrMissingParameterValue = &Error{Kind: KindMissingParameterValue}
	ErrInvalidParameterValue = &Error{Kind: KindInvalidParameterValue}
	ErrOperationNotSupported = &Error{Kind: KindOperationNotSupported}

	// ErrMissingFilter is raised when a Delete or Replace action has no
	// filter child.
	ErrMissingFilter = &Error{Kind: KindMissingParameterValue, Locator: "Filter"}
)

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the exception code reported for err.
func CodeOf(err error) string {
	return KindOf(err).Code()
}

func MissingParameter(locator, format string, args ...any) *Error {
	return &Error{Kind: KindMissingParameterValue, Locator: locator, Message: fmt.Sprintf(format, args...)}
}

func InvalidParameter(locator, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParameterValue, Locator: locator, Message: fmt.Sprintf(format, args...)}
}

func UnexpectedElement(name string, expected []string, format string, args ...any) *Error {
	return &Error{Kind: KindUnexpectedElement, Locator: name, Expected: expected, Message: fmt.Sprintf(format, args...)}
}

func NotSupported(locator, format string, args ...any) *Error {
	return &Error{Kind: KindOperationNotSupported, Locator: locator, Message: fmt.Sprintf(format, args...)}
}

package ows

import (
	"encoding/xml"
	"errors"
	"io"
)

type ExceptionReport struct {
	XMLName    xml.Name    `xml:"http://www.opengis.net/ows/1.1 ExceptionReport"`
	Version    string      `xml:"version,attr"`
	Lang       string      `xml:"xml:lang,attr,omitempty"`
	Exceptions []Exception `xml:"Exception"`
}

type Exception struct {
	Code    string   `xml:"exceptionCode,attr"`
	Locator string   `xml:"locator,attr,omitempty"`
	Text    []string `xml:"ExceptionText"`
}

// ServiceExceptionReport is the OGC 1.x fault document used by WFS 1.0.0.
type ServiceExceptionReport struct {
	XMLName    xml.Name           `xml:"http://www.opengis.net/ogc ServiceExceptionReport"`
	Version    string             `xml:"version,attr"`
	Exceptions []ServiceException `xml:"ServiceException"`
}

type ServiceException struct {
	Code    string `xml:"code,attr"`
	Locator string `xml:"locator,attr,omitempty"`
	Text    string `xml:",chardata"`
}

// WriteReport encodes err as the fault document for the given WFS version.
// Errors that are not an *Error are reported as NoApplicableCode.
func WriteReport(w io.Writer, wfsVersion string, err error) error {
	code, locator := CodeOf(err), ""
	var e *Error
	if errors.As(err, &e) {
		locator = e.Locator
	}

	var doc any
	if wfsVersion == "1.0.0" {
		doc = ServiceExceptionReport{
			Version:    "1.2.0",
			Exceptions: []ServiceException{{Code: code, Locator: locator, Text: err.Error()}},
		}
	} else {
		doc = ExceptionReport{
			Version:    "2.0.0",
			Exceptions: []Exception{{Code: code, Locator: locator, Text: []string{err.Error()}}},
		}
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Flush()
}

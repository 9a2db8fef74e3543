package wfs

import "github.com/delta10/wfs-proxy/internal/ows"

// ReleaseAction tells the server which locks to release after a transaction.
// The zero value means the request did not say; no default is applied.
type ReleaseAction int

const (
	ReleaseUnspecified ReleaseAction = iota
	ReleaseAll
	ReleaseSome
)

func (r ReleaseAction) String() string {
	switch r {
	case ReleaseAll:
		return "ALL"
	case ReleaseSome:
		return "SOME"
	}
	return ""
}

// ParseReleaseAction parses the releaseAction attribute. An empty value is
// unspecified; anything but ALL or SOME is an InvalidParameterValue.
func ParseReleaseAction(s string) (ReleaseAction, error) {
	switch s {
	case "":
		return ReleaseUnspecified, nil
	case "ALL":
		return ReleaseAll, nil
	case "SOME":
		return ReleaseSome, nil
	}
	return ReleaseUnspecified, ows.InvalidParameter("releaseAction",
		"invalid value (=%s) for release action parameter, valid values are 'ALL' or 'SOME'", s)
}

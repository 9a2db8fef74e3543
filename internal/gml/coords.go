package gml

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// parseCoordinates parses the GML 2 coordinates encoding, e.g. "1,2 3,4".
func parseCoordinates(text, cs, ts, decimal string) ([]orb.Point, error) {
	var tuples []string
	if strings.TrimSpace(ts) == "" {
		tuples = strings.Fields(text)
	} else {
		tuples = strings.Split(strings.TrimSpace(text), ts)
	}

	pts := make([]orb.Point, 0, len(tuples))
	for _, tuple := range tuples {
		tuple = strings.TrimSpace(tuple)
		if tuple == "" {
			continue
		}
		ords := strings.Split(tuple, cs)
		if len(ords) < 2 {
			return nil, fmt.Errorf("coordinate tuple %q has fewer than two ordinates", tuple)
		}
		var p orb.Point
		for i := 0; i < 2; i++ {
			o := strings.TrimSpace(ords[i])
			if decimal != "." {
				o = strings.ReplaceAll(o, decimal, ".")
			}
			v, err := strconv.ParseFloat(o, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid ordinate %q", ords[i])
			}
			p[i] = v
		}
		pts = append(pts, p)
	}
	return pts, nil
}

// parsePosList parses whitespace separated ordinates grouped by dim. A dim of
// zero treats the whole text as a single position.
func parsePosList(text string, dim int) ([]orb.Point, error) {
	fields := strings.Fields(text)
	if dim == 0 {
		dim = len(fields)
	}
	if dim < 2 {
		return nil, fmt.Errorf("positions need at least two ordinates")
	}
	if len(fields)%dim != 0 {
		return nil, fmt.Errorf("%d ordinates do not divide into positions of dimension %d", len(fields), dim)
	}

	pts := make([]orb.Point, 0, len(fields)/dim)
	for i := 0; i < len(fields); i += dim {
		x, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ordinate %q", fields[i])
		}
		y, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ordinate %q", fields[i+1])
		}
		pts = append(pts, orb.Point{x, y})
	}
	return pts, nil
}

package geo

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseGrid converts a 4- or 6-character Maidenhead locator to the centre
// of its square.
func ParseGrid(grid string) (Point, error) {
	g := strings.ToUpper(strings.TrimSpace(grid))
	if len(g) != 4 && len(g) != 6 {
		return Point{}, fmt.Errorf("%w: grid %q", ErrInvalidCoordinate, grid)
	}
	if g[0] < 'A' || g[0] > 'R' || g[1] < 'A' || g[1] > 'R' ||
		g[2] < '0' || g[2] > '9' || g[3] < '0' || g[3] > '9' {
		return Point{}, fmt.Errorf("%w: grid %q", ErrInvalidCoordinate, grid)
	}

	lon := float64(g[0]-'A')*20 - 180 + float64(g[2]-'0')*2
	lat := float64(g[1]-'A')*10 - 90 + float64(g[3]-'0')

	if len(g) == 6 {
		if g[4] < 'A' || g[4] > 'X' || g[5] < 'A' || g[5] > 'X' {
			return Point{}, fmt.Errorf("%w: grid %q", ErrInvalidCoordinate, grid)
		}
		lon += float64(g[4]-'A')*(2.0/24) + 1.0/24
		lat += float64(g[5]-'A')*(1.0/24) + 0.5/24
	} else {
		lon += 1
		lat += 0.5
	}
	return Point{Lat: lat, Lon: lon}, nil
}

// Grid returns the 4-character Maidenhead locator for p.
func Grid(p Point) string {
	lon := normalizeLon(p.Lon) + 180
	lat := p.Lat + 90
	if lat >= 180 {
		lat = 179.999
	}
	b := []byte{
		byte('A' + int(lon/20)),
		byte('A' + int(lat/10)),
		byte('0' + int(lon/2)%10),
		byte('0' + int(lat)%10),
	}
	return string(b)
}

// ParsePoint accepts either "lat,lon" in degrees or a Maidenhead locator.
func ParsePoint(s string) (Point, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return ParseGrid(s)
	}
	var p Point
	var err error
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
	}
	if p.Lon, err = strconv.ParseFloat(strings.TrimSpace(lon), 64); err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
	}
	return p, p.Validate()
}

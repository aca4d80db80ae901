package geo

import (
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
)

const earthRadiusKM = 6371

// Point is one allowed coordinate pair.
type Point struct {
	Lat float64
	Lon float64
}

// Gate checks presented coordinates against the configured allowed
// locations. An empty list disables the gate entirely.
type Gate struct {
	allowed  []Point
	radiusKM float64
}

// NewGate parses "lat,lon" pairs into a gate. Malformed pairs are logged
// and skipped rather than failing boot.
func NewGate(pairs []string, radiusKM float64) *Gate {
	g := &Gate{radiusKM: radiusKM}
	for _, pair := range pairs {
		p, err := parsePair(pair)
		if err != nil {
			log.Printf("Ignoring invalid allowed location %q: %v", pair, err)
			continue
		}
		g.allowed = append(g.allowed, p)
	}
	return g
}

func parsePair(pair string) (Point, error) {
	parts := strings.SplitN(strings.TrimSpace(pair), ",", 2)
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("expected \"lat,lon\"")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("bad latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("bad longitude: %w", err)
	}
	return Point{Lat: lat, Lon: lon}, nil
}

// Enabled reports whether any allowed locations are configured.
func (g *Gate) Enabled() bool {
	return len(g.allowed) > 0
}

// Allowed reports whether the given coordinates fall within the radius of
// any allowed location. With no locations configured everything is allowed.
func (g *Gate) Allowed(lat, lon float64) bool {
	if !g.Enabled() {
		return true
	}
	for _, p := range g.allowed {
		if haversineKM(lat, lon, p.Lat, p.Lon) <= g.radiusKM {
			return true
		}
	}
	return false
}

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

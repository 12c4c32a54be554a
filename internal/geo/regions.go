// Package geo holds the static planning-area to region partition.
package geo

import (
	"fmt"
	"sort"
	"strings"
)

// Region is one of the five planning regions. Every known planning area
// belongs to exactly one region.
type Region int

const (
	Central Region = iota
	East
	North
	NorthEast
	West
)

func (r Region) String() string {
	switch r {
	case Central:
		return "central"
	case East:
		return "east"
	case North:
		return "north"
	case NorthEast:
		return "north_east"
	case West:
		return "west"
	default:
		return "unknown"
	}
}

// Regions lists all regions in stable order.
func Regions() []Region {
	return []Region{Central, East, North, NorthEast, West}
}

// ParseRegion maps a region name back to its Region value.
func ParseRegion(s string) (Region, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "central":
		return Central, nil
	case "east":
		return East, nil
	case "north":
		return North, nil
	case "north_east", "northeast", "north-east":
		return NorthEast, nil
	case "west":
		return West, nil
	}
	return 0, fmt.Errorf("unknown region %q", s)
}

// areaRegion is the static partition of planning areas into regions.
// Loaded once at init; read-only for the lifetime of a run.
var areaRegion = map[string]Region{
	// Central
	"bishan":          Central,
	"bukit merah":     Central,
	"bukit timah":     Central,
	"downtown core":   Central,
	"geylang":         Central,
	"kallang":         Central,
	"marine parade":   Central,
	"museum":          Central,
	"newton":          Central,
	"novena":          Central,
	"orchard":         Central,
	"outram":          Central,
	"queenstown":      Central,
	"river valley":    Central,
	"rochor":          Central,
	"singapore river": Central,
	"tanglin":         Central,
	"toa payoh":       Central,

	// East
	"bedok":      East,
	"changi":     East,
	"pasir ris":  East,
	"paya lebar": East,
	"tampines":   East,

	// North
	"lim chu kang": North,
	"mandai":       North,
	"sembawang":    North,
	"simpang":      North,
	"sungei kadut": North,
	"woodlands":    North,
	"yishun":       North,

	// North-East
	"ang mo kio": NorthEast,
	"hougang":    NorthEast,
	"punggol":    NorthEast,
	"seletar":    NorthEast,
	"sengkang":   NorthEast,
	"serangoon":  NorthEast,

	// West
	"boon lay":                West,
	"bukit batok":             West,
	"bukit panjang":           West,
	"choa chu kang":           West,
	"clementi":                West,
	"jurong east":             West,
	"jurong west":             West,
	"pioneer":                 West,
	"tengah":                  West,
	"tuas":                    West,
	"western water catchment": West,
}

// Partition is a read-only view over the area → region table. It may be
// shared freely across workers.
type Partition struct{}

// NewPartition returns the static partition.
func NewPartition() *Partition { return &Partition{} }

// RegionOf looks up the parent region of a planning area. The second return
// is false for unknown areas.
func (p *Partition) RegionOf(areaID string) (Region, bool) {
	r, ok := areaRegion[normalize(areaID)]
	return r, ok
}

// Areas returns the planning areas of one region, sorted.
func (p *Partition) Areas(region Region) []string {
	var out []string
	for area, r := range areaRegion {
		if r == region {
			out = append(out, area)
		}
	}
	sort.Strings(out)
	return out
}

// AllAreas returns every known planning area, sorted.
func (p *Partition) AllAreas() []string {
	out := make([]string, 0, len(areaRegion))
	for area := range areaRegion {
		out = append(out, area)
	}
	sort.Strings(out)
	return out
}

func normalize(areaID string) string {
	return strings.ToLower(strings.TrimSpace(areaID))
}

package match

import (
	"maps"
	"slices"
	"strings"
)

var placeAliases = map[string]string{
	"københavn":   "copenhagen",
	"kobenhavn":   "copenhagen",
	"cph":         "copenhagen",
	"århus":       "aarhus",
	"danmark":     "denmark",
	"hilleroed":   "hillerød",
	"koege":       "køge",
	"naestved":    "næstved",
	"soenderborg": "sønderborg",
	"hjoerring":   "hjørring",
}

var placeNoise = map[string]struct{}{
	"kommune": {}, "kommunes": {}, "municipality": {}, "region": {},
}

// DefaultRegions groups Danish municipalities by administrative region.
func DefaultRegions() map[string][]string {
	return map[string][]string{
		"hovedstaden": {"copenhagen", "frederiksberg", "gentofte", "gladsaxe", "herlev", "taastrup", "hillerød", "lyngby", "ballerup", "hellerup", "albertslund", "allerød"},
		"sjælland":    {"zealand", "roskilde", "køge", "næstved", "slagelse", "holbæk"},
		"syddanmark":  {"odense", "esbjerg", "kolding", "vejle", "fredericia", "sønderborg", "svendborg", "aabenraa"},
		"midtjylland": {"aarhus", "randers", "horsens", "herning", "silkeborg", "viborg", "holstebro"},
		"nordjylland": {"aalborg", "hjørring", "frederikshavn"},
	}
}

// placeTokens normalises a location into tokens, mapping aliases and
// dropping administrative noise words.
func placeTokens(s string) []string {
	var out []string
	for _, t := range tokens(s) {
		if _, noise := placeNoise[t]; noise {
			continue
		}
		if alias, ok := placeAliases[t]; ok {
			t = alias
		}
		out = append(out, t)
	}
	return out
}

type regionIndex struct {
	byPlace map[string]string
}

// newRegionIndex maps places to regions. A place listed under several
// regions belongs to the first region in sorted order.
func newRegionIndex(regions map[string][]string) *regionIndex {
	idx := &regionIndex{byPlace: make(map[string]string)}
	assign := func(place, region string) {
		if _, taken := idx.byPlace[place]; !taken {
			idx.byPlace[place] = region
		}
	}
	for _, name := range slices.Sorted(maps.Keys(regions)) {
		region := strings.ToLower(strings.TrimSpace(name))
		idx.byPlace[region] = region
		for _, place := range regions[name] {
			for _, t := range placeTokens(place) {
				assign(t, region)
			}
		}
	}
	return idx
}

func (r *regionIndex) regionOf(place []string) string {
	for _, t := range place {
		if region, ok := r.byPlace[t]; ok {
			return region
		}
	}
	return ""
}

func (r *regionIndex) sameRegion(a, b []string) bool {
	ra := r.regionOf(a)
	return ra != "" && ra == r.regionOf(b)
}

package location

import (
	"log"
	"strings"

	"eventpipe/internal/config"
	"eventpipe/internal/database"
)

// venueIndicators are substrings that make a free-text location string
// look like a venue name. Paired with a known city name they trigger the
// MEDIUM-confidence heuristic: full semantic disambiguation of short
// venue strings is not reliably automatable, so the pattern is kept
// deliberately narrow.
var venueIndicators = []string{
	"halle", "saal", "theater", "bühne", "buehne", "zentrum", "kirche",
	"museum", "club", "park", "platz", "schule", "hof ", "wirtshaus",
	"gasthof", "brauerei", "arena", "stadion", "galerie",
}

// Candidate is a resolved location with its confidence.
type Candidate struct {
	Name        string
	Lat         *float64
	Lon         *float64
	Confidence  string
	NeedsReview bool
}

// CandidateStore receives new unverified locations for later editorial
// promotion.
type CandidateStore interface {
	InsertLocationCandidate(name string, lat, lon *float64, kind string) (int64, error)
}

// Resolver maps free-text location strings to coordinates. The verified
// store is loaded once per run; nothing is cached across invocations.
type Resolver struct {
	region config.Region
	byName map[string]*database.Location
	store  CandidateStore
}

// NewResolver builds a resolver over the verified-locations store.
// store may be nil when write-back is not wanted (dry runs, tests).
func NewResolver(region config.Region, locations []database.Location, store CandidateStore) *Resolver {
	byName := make(map[string]*database.Location)
	for i := range locations {
		l := &locations[i]
		if !l.Verified {
			continue
		}
		byName[normalizeKey(l.Name)] = l
		for _, alias := range l.Aliases {
			byName[normalizeKey(alias)] = l
		}
	}
	return &Resolver{region: region, byName: byName, store: store}
}

// Resolve applies the resolution strategies in order, first success wins:
// verified-store match, structured detail-page address, the venue+city
// pattern, then the regional default. Anything below HIGH needs review.
func (r *Resolver) Resolve(rawText, detailAddress string) Candidate {
	rawText = strings.TrimSpace(rawText)
	detailAddress = strings.TrimSpace(detailAddress)

	if rawText == "" && detailAddress == "" {
		return Candidate{Confidence: database.ConfidenceUnknown, NeedsReview: true}
	}

	// 1. Verified store, by raw text or structured address.
	for _, key := range []string{rawText, detailAddress} {
		if key == "" {
			continue
		}
		if loc, ok := r.byName[normalizeKey(key)]; ok {
			return Candidate{
				Name:       loc.Name,
				Lat:        loc.Lat,
				Lon:        loc.Lon,
				Confidence: database.ConfidenceHigh,
			}
		}
	}

	// 2. Structured address from a detail page: plausible but unverified.
	if detailAddress != "" {
		name := detailAddress
		if rawText != "" {
			name = rawText
		}
		r.writeBack(name)
		return Candidate{
			Name:        name,
			Confidence:  database.ConfidenceMedium,
			NeedsReview: true,
		}
	}

	// 3. Venue indicator plus known city name.
	if r.looksLikeVenue(rawText) {
		r.writeBack(rawText)
		return Candidate{
			Name:        rawText,
			Confidence:  database.ConfidenceMedium,
			NeedsReview: true,
		}
	}

	// 4. Regional default: city-center coordinates, last resort.
	lat, lon := r.region.CenterLat, r.region.CenterLon
	return Candidate{
		Name:        rawText,
		Lat:         &lat,
		Lon:         &lon,
		Confidence:  database.ConfidenceLow,
		NeedsReview: true,
	}
}

// looksLikeVenue reports whether the text combines a venue indicator
// with one of the region's city names ("Freiheitshalle Hof",
// "Theater, Selb").
func (r *Resolver) looksLikeVenue(text string) bool {
	lower := " " + strings.ToLower(text) + " "

	indicator := false
	for _, ind := range venueIndicators {
		if strings.Contains(lower, ind) {
			indicator = true
			break
		}
	}
	if !indicator {
		return false
	}

	for _, city := range r.region.Cities {
		if containsWord(lower, strings.ToLower(city)) {
			return true
		}
	}
	return false
}

func (r *Resolver) writeBack(name string) {
	if r.store == nil {
		return
	}
	if _, err := r.store.InsertLocationCandidate(name, nil, nil, "location"); err != nil {
		log.Printf("Failed to store location candidate %q: %v", name, err)
	}
}

// containsWord matches a city as a separate word so "Hofheim" does not
// count as "Hof".
func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		var before byte = ' '
		if i > 0 {
			before = haystack[i-1]
		}
		afterIdx := i + len(word)
		var after byte = ' '
		if afterIdx < len(haystack) {
			after = haystack[afterIdx]
		}
		if !isLetter(before) && !isLetter(after) {
			return true
		}
		idx = i + len(word)
		if idx >= len(haystack) {
			return false
		}
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b >= 0x80
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

package normalize

import (
	"regexp"
	"strings"
	"time"

	"eventpipe/internal/database"
	"eventpipe/internal/source"
)

// dateFormats are tried in order. Naive formats are interpreted as UTC
// so identity keys stay stable across machines.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006 15.04",
	"02.01.2006",
	"2.1.2006 15:04",
	"2.1.2006",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
}

var embeddedDate = regexp.MustCompile(`\d{1,2}\.\d{1,2}\.\d{4}(\s+\d{1,2}[:.]\d{2})?`)

// Normalizer converts raw scraped items into canonical events.
type Normalizer struct {
	maxDescription int
}

// New creates a normalizer. maxDescription bounds the stored description
// length in runes.
func New(maxDescription int) *Normalizer {
	if maxDescription <= 0 {
		maxDescription = 600
	}
	return &Normalizer{maxDescription: maxDescription}
}

// Normalize builds a canonical event from a raw item. Location and
// category are filled by later stages. An unparseable date never drops
// the item: partial data still has curation value, so the event keeps a
// nil start time and a review flag instead.
func (n *Normalizer) Normalize(item source.RawItem, sourceName string) database.Event {
	e := database.Event{
		Title:        collapse(item.Title),
		Description:  Truncate(collapse(item.RawText), n.maxDescription),
		URL:          strings.TrimSpace(item.Link),
		Source:       sourceName,
		LocationName: collapse(item.RawLocationText),
	}

	if item.RawDateText != "" {
		if t, ok := ParseEventDate(item.RawDateText); ok {
			s := t.Format(time.RFC3339)
			e.StartTime = &s
		} else {
			e.NeedsReview = true
			e.Notes = appendNote(e.Notes, "date text not parseable: "+collapse(item.RawDateText))
		}
	}

	if item.OCRConfidence > 0 {
		e.NeedsReview = true
	}

	return e
}

// ParseEventDate parses a date string across the known formats. Free text
// containing an embedded DD.MM.YYYY date is handled by extracting it.
func ParseEventDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	for _, layout := range dateFormats {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return t, true
		}
	}

	if m := embeddedDate.FindString(text); m != "" && m != text {
		return ParseEventDate(m)
	}

	return time.Time{}, false
}

// Truncate shortens a string to max runes, marking the cut. When max
// leaves no room for the ellipsis the string is cut hard instead.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}

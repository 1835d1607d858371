package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"eventpipe/internal/database"
	"eventpipe/internal/source"
)

// IdentityKey derives the duplicate-detection key for an event. Two
// events are the same iff normalized title, start time rounded to the
// minute, and source domain all agree. The key is deterministic, so
// re-scraping an unchanged source reproduces the same keys.
func IdentityKey(e *database.Event) string {
	title := strings.Join(strings.Fields(strings.ToLower(e.Title)), " ")

	start := ""
	if e.StartTime != nil {
		if t, err := time.Parse(time.RFC3339, *e.StartTime); err == nil {
			start = t.Truncate(time.Minute).UTC().Format(time.RFC3339)
		} else {
			start = *e.StartTime
		}
	}

	domain := source.Domain(e.URL)

	sum := sha256.Sum256([]byte(title + "|" + start + "|" + domain))
	return hex.EncodeToString(sum[:])[:16]
}

// Merge folds a fresh scrape of an already-known event into the stored
// one. Only empty fields are filled; populated fields are never
// overwritten, so editorial corrections survive re-scrapes. Returns
// true when anything changed.
func Merge(existing, incoming *database.Event) bool {
	changed := false

	if existing.Description == "" && incoming.Description != "" {
		existing.Description = incoming.Description
		changed = true
	}
	if existing.LocationName == "" && incoming.LocationName != "" {
		existing.LocationName = incoming.LocationName
		changed = true
	}
	if existing.Lat == nil && incoming.Lat != nil {
		existing.Lat = incoming.Lat
		existing.Lon = incoming.Lon
		existing.LocationConfidence = incoming.LocationConfidence
		changed = true
	}
	if existing.EndTime == nil && incoming.EndTime != nil {
		existing.EndTime = incoming.EndTime
		changed = true
	}
	if existing.Category == "" && incoming.Category != "" {
		existing.Category = incoming.Category
		existing.CategoryConfidence = incoming.CategoryConfidence
		existing.CategoryMethod = incoming.CategoryMethod
		changed = true
	}

	return changed
}

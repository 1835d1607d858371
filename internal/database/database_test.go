package database

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func fptr(f float64) *float64 { return &f }

func testEvent(id, title string) *Event {
	return &Event{
		ID:                 id,
		Title:              title,
		Description:        "A test event",
		LocationName:       "Freiheitshalle",
		LocationConfidence: ConfidenceHigh,
		StartTime:          ptr("2026-09-12T20:00:00Z"),
		URL:                "https://example.com/" + id,
		Source:             "test_source",
		Category:           "music",
		CategoryConfidence: 0.9,
		CategoryMethod:     "ai",
	}
}

func TestInsertAndGetEvent(t *testing.T) {
	db := openTestDB(t)

	e := testEvent("abc123", "Konzert im Park")
	e.Lat = fptr(50.3135)
	e.Lon = fptr(11.9128)
	if err := db.InsertEvent(e); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := db.GetEvent("abc123")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected event, got nil")
	}
	if got.Title != "Konzert im Park" {
		t.Errorf("expected title 'Konzert im Park', got %q", got.Title)
	}
	if got.State != StatePending {
		t.Errorf("expected state pending, got %q", got.State)
	}
	if got.Lat == nil || *got.Lat != 50.3135 {
		t.Errorf("expected lat 50.3135, got %v", got.Lat)
	}

	missing, err := db.GetEvent("does-not-exist")
	if err != nil {
		t.Fatalf("get missing failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing event")
	}
}

func TestInsertEventRecordsIngestionHistory(t *testing.T) {
	db := openTestDB(t)
	if err := db.InsertEvent(testEvent("e1", "Test")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	history, err := db.GetHistory("e1")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].Actor != "scraper" || history[0].ToState != StatePending {
		t.Errorf("unexpected ingestion entry: %+v", history[0])
	}
}

func TestTransitionEvent(t *testing.T) {
	db := openTestDB(t)
	if err := db.InsertEvent(testEvent("e1", "Test")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := db.TransitionEvent("e1", StatePending, StatePublished, "editor:anna", nil); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	got, _ := db.GetEvent("e1")
	if got.State != StatePublished {
		t.Errorf("expected published, got %q", got.State)
	}

	history, _ := db.GetHistory("e1")
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	last := history[len(history)-1]
	if last.Actor != "editor:anna" || last.FromState != StatePending || last.ToState != StatePublished {
		t.Errorf("unexpected history entry: %+v", last)
	}
}

func TestTransitionEventWrongStateLeavesNoTrace(t *testing.T) {
	db := openTestDB(t)
	if err := db.InsertEvent(testEvent("e1", "Test")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	err := db.TransitionEvent("e1", StatePublished, StateArchived, "system:archiver", nil)
	if err == nil {
		t.Fatal("expected error for wrong from-state")
	}

	got, _ := db.GetEvent("e1")
	if got.State != StatePending {
		t.Errorf("state should be untouched, got %q", got.State)
	}
	history, _ := db.GetHistory("e1")
	if len(history) != 1 {
		t.Errorf("expected only the ingestion entry, got %d", len(history))
	}
}

func TestTransitionMissingEvent(t *testing.T) {
	db := openTestDB(t)
	if err := db.TransitionEvent("ghost", StatePending, StatePublished, "editor:x", nil); err == nil {
		t.Error("expected error for missing event")
	}
}

func TestUpdateEvent(t *testing.T) {
	db := openTestDB(t)
	e := testEvent("e1", "Test")
	e.Description = ""
	if err := db.InsertEvent(e); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	e.Description = "Filled in by a later duplicate"
	e.EndTime = ptr("2026-09-12T23:00:00Z")
	if err := db.UpdateEvent(e); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, _ := db.GetEvent("e1")
	if got.Description != "Filled in by a later duplicate" {
		t.Errorf("description not updated: %q", got.Description)
	}
	if got.EndTime == nil || *got.EndTime != "2026-09-12T23:00:00Z" {
		t.Errorf("end time not updated: %v", got.EndTime)
	}
}

func TestListEventsByState(t *testing.T) {
	db := openTestDB(t)
	db.InsertEvent(testEvent("e1", "One"))
	db.InsertEvent(testEvent("e2", "Two"))
	db.InsertEvent(testEvent("e3", "Three"))
	db.TransitionEvent("e2", StatePending, StatePublished, "editor:x", nil)

	pending, err := db.ListEventsByState(StatePending)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending, got %d", len(pending))
	}

	published, _ := db.ListEventsByState(StatePublished)
	if len(published) != 1 || published[0].ID != "e2" {
		t.Errorf("expected e2 published, got %+v", published)
	}
}

func TestListPublishedEnded(t *testing.T) {
	db := openTestDB(t)

	past := testEvent("past", "Over")
	past.StartTime = ptr("2026-01-10T20:00:00Z")
	past.EndTime = ptr("2026-01-10T23:00:00Z")
	db.InsertEvent(past)
	db.TransitionEvent("past", StatePending, StatePublished, "editor:x", nil)

	// No end time: the start time decides.
	noEnd := testEvent("noend", "Open-ended")
	noEnd.StartTime = ptr("2026-01-11T19:00:00Z")
	noEnd.EndTime = nil
	db.InsertEvent(noEnd)
	db.TransitionEvent("noend", StatePending, StatePublished, "editor:x", nil)

	future := testEvent("future", "Upcoming")
	future.StartTime = ptr("2027-06-01T20:00:00Z")
	future.EndTime = ptr("2027-06-01T22:00:00Z")
	db.InsertEvent(future)
	db.TransitionEvent("future", StatePending, StatePublished, "editor:x", nil)

	ended, err := db.ListPublishedEnded("2026-02-01T00:00:00Z")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(ended) != 2 {
		t.Fatalf("expected 2 ended events, got %d", len(ended))
	}
}

func TestLocationStore(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertLocationCandidate("Freiheitshalle", nil, nil, "location")
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	// Duplicate name is not an error, just a zero ID.
	dup, err := db.InsertLocationCandidate("Freiheitshalle", nil, nil, "location")
	if err != nil {
		t.Fatalf("duplicate insert errored: %v", err)
	}
	if dup != 0 {
		t.Errorf("expected 0 for duplicate, got %d", dup)
	}

	if err := db.VerifyLocation(id, 50.3201, 11.9036, []string{"Freiheitshalle Hof"}); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	locations, err := db.ListLocations()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(locations) != 1 {
		t.Fatalf("expected 1 location, got %d", len(locations))
	}
	l := locations[0]
	if !l.Verified {
		t.Error("expected verified location")
	}
	if len(l.Aliases) != 1 || l.Aliases[0] != "Freiheitshalle Hof" {
		t.Errorf("unexpected aliases: %v", l.Aliases)
	}
	if l.Lat == nil || *l.Lat != 50.3201 {
		t.Errorf("unexpected lat: %v", l.Lat)
	}
}

func TestInsertLocationCandidateReportsRealErrors(t *testing.T) {
	db := openTestDB(t)
	db.Close()

	// A duplicate name is silent, but a broken connection must not be.
	if _, err := db.InsertLocationCandidate("Freiheitshalle", nil, nil, "location"); err == nil {
		t.Error("expected an error from a closed database")
	}
}

func TestRunReports(t *testing.T) {
	db := openTestDB(t)

	last, err := db.GetLastRunReport()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if last != nil {
		t.Fatal("expected nil before any run")
	}

	_, err = db.InsertRunReport(&RunReport{
		SourcesAttempted: 3,
		SourcesSucceeded: 2,
		EventsFound:      14,
		EventsNew:        9,
		Duplicates:       5,
		SourceErrors:     map[string]string{"fb_kulturbuehne": "blocked"},
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	last, err = db.GetLastRunReport()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if last == nil || last.SourcesSucceeded != 2 {
		t.Fatalf("unexpected report: %+v", last)
	}
	if last.SourceErrors["fb_kulturbuehne"] != "blocked" {
		t.Errorf("unexpected source errors: %v", last.SourceErrors)
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	e := testEvent("e1", "One")
	e.NeedsReview = true
	e.LocationConfidence = ConfidenceMedium
	db.InsertEvent(e)
	db.InsertEvent(testEvent("e2", "Two"))
	db.TransitionEvent("e2", StatePending, StatePublished, "editor:x", nil)
	db.InsertLocationCandidate("Theresienstein", nil, nil, "location")

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalEvents != 2 || stats.Pending != 1 || stats.Published != 1 {
		t.Errorf("unexpected event stats: %+v", stats)
	}
	if stats.NeedsReview != 1 {
		t.Errorf("expected 1 needing review, got %d", stats.NeedsReview)
	}
	if stats.TotalLocations != 1 || stats.VerifiedLocations != 0 {
		t.Errorf("unexpected location stats: %+v", stats)
	}
}

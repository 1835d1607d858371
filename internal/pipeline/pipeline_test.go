package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"eventpipe/internal/config"
	"eventpipe/internal/database"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Veranstaltungen</title>
  <item>
    <title>Rocknacht in der Freiheitshalle</title>
    <link>https://example.com/events/rocknacht</link>
    <description>Konzert mit lokalen Bands</description>
    <pubDate>Fri, 11 Sep 2026 18:00:00 +0200</pubDate>
  </item>
  <item>
    <title>Flohmarkt am Theresienstein</title>
    <link>https://example.com/events/flohmarkt</link>
    <description>Trödel und mehr</description>
    <pubDate>Sat, 12 Sep 2026 08:00:00 +0200</pubDate>
  </item>
</channel>
</rss>`

// newAIServer fakes the categorization endpoint with a fixed answer.
func newAIServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{
				"content": `{"category": "music", "confidence": 0.9}`,
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(sources []config.Source, aiURL string) *config.Config {
	return &config.Config{
		Region: config.Region{
			Name:      "Hochfranken",
			Cities:    []string{"Hof", "Selb"},
			CenterLat: 50.3135,
			CenterLon: 11.9128,
		},
		Sources: sources,
		Scraper: config.Scraper{
			MaxRetries:     1,
			TimeoutSeconds: 5,
			Workers:        2,
		},
		Categorization: config.Categorization{URL: aiURL, Model: "test", TimeoutSeconds: 5},
	}
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunIngestsAndIsIdempotent(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer feed.Close()
	ai := newAIServer(t)

	db := openTestDB(t)
	cfg := testConfig([]config.Source{
		{Name: "test_feed", URL: feed.URL, Type: "rss", Enabled: true},
	}, ai.URL)

	p := New(cfg, db)
	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.SourcesSucceeded != 1 {
		t.Errorf("expected 1 succeeded source, got %d", summary.SourcesSucceeded)
	}
	if summary.EventsNew != 2 {
		t.Errorf("expected 2 new events, got %d", summary.EventsNew)
	}

	pending, _ := db.ListEventsByState(database.StatePending)
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending events, got %d", len(pending))
	}
	for _, e := range pending {
		if e.Category != "music" || e.CategoryMethod != "ai" {
			t.Errorf("event %s: expected music/ai, got %s/%s", e.ID, e.Category, e.CategoryMethod)
		}
		if e.LocationConfidence == "" {
			t.Errorf("event %s: missing location confidence", e.ID)
		}
	}

	// Second run over an unchanged source must add nothing.
	summary, err = p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.EventsNew != 0 {
		t.Errorf("re-scrape must be idempotent, got %d new events", summary.EventsNew)
	}
	if summary.Duplicates != 2 {
		t.Errorf("expected 2 duplicates on re-scrape, got %d", summary.Duplicates)
	}

	pending, _ = db.ListEventsByState(database.StatePending)
	if len(pending) != 2 {
		t.Errorf("expected still 2 pending events, got %d", len(pending))
	}
}

func TestRunIsolatesSourceFailures(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer feed.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer broken.Close()
	ai := newAIServer(t)

	db := openTestDB(t)
	cfg := testConfig([]config.Source{
		{Name: "good", URL: feed.URL, Type: "rss", Enabled: true},
		{Name: "bad", URL: broken.URL, Type: "rss", Enabled: true},
	}, ai.URL)

	summary, err := New(cfg, db).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.SourcesAttempted != 2 {
		t.Errorf("expected 2 attempted, got %d", summary.SourcesAttempted)
	}
	if summary.SourcesSucceeded != 1 {
		t.Errorf("one source must survive the other failing, got %d succeeded", summary.SourcesSucceeded)
	}
	if _, ok := summary.SourceErrors["bad"]; !ok {
		t.Errorf("expected per-source error for bad, got %v", summary.SourceErrors)
	}
	if summary.EventsNew != 2 {
		t.Errorf("expected 2 events from the good source, got %d", summary.EventsNew)
	}
}

func TestRunRecordsUnknownSourceType(t *testing.T) {
	ai := newAIServer(t)
	db := openTestDB(t)
	cfg := testConfig([]config.Source{
		{Name: "mystery", URL: "https://example.com", Type: "carrier_pigeon", Enabled: true},
	}, ai.URL)

	summary, err := New(cfg, db).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.SourcesSucceeded != 0 {
		t.Errorf("expected 0 succeeded, got %d", summary.SourcesSucceeded)
	}
	if _, ok := summary.SourceErrors["mystery"]; !ok {
		t.Error("expected an error entry for the unknown source type")
	}
}

func TestRunRejectsInvalidSourceDescriptor(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer feed.Close()
	ai := newAIServer(t)

	db := openTestDB(t)
	cfg := testConfig([]config.Source{
		{Name: "good", URL: feed.URL, Type: "rss", Enabled: true},
		{Name: "no_url", Type: "html", Enabled: true},
	}, ai.URL)

	summary, err := New(cfg, db).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, ok := summary.SourceErrors["no_url"]; !ok {
		t.Errorf("expected a per-source error for the invalid descriptor, got %v", summary.SourceErrors)
	}
	if summary.SourcesSucceeded != 1 {
		t.Errorf("valid source must still run, got %d succeeded", summary.SourcesSucceeded)
	}
	if summary.EventsNew != 2 {
		t.Errorf("expected 2 events from the valid source, got %d", summary.EventsNew)
	}
}

func TestRunPersistsReport(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer feed.Close()
	ai := newAIServer(t)

	db := openTestDB(t)
	cfg := testConfig([]config.Source{
		{Name: "test_feed", URL: feed.URL, Type: "rss", Enabled: true},
	}, ai.URL)

	if _, err := New(cfg, db).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	report, err := db.GetLastRunReport()
	if err != nil {
		t.Fatalf("loading report: %v", err)
	}
	if report == nil {
		t.Fatal("expected a persisted run report")
	}
	if report.EventsNew != 2 || report.SourcesSucceeded != 1 {
		t.Errorf("report does not match run: %+v", report)
	}
}

package categorize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"eventpipe/internal/config"
)

// mockProvider returns a canned answer or error.
type mockProvider struct {
	category   string
	confidence float64
	err        error
}

func (m *mockProvider) Classify(_ context.Context, _, _ string) (string, float64, error) {
	if m.err != nil {
		return "", 0, m.err
	}
	return m.category, m.confidence, nil
}

func TestCategorizeUsesAIWhenAvailable(t *testing.T) {
	c := New(&mockProvider{category: "theater", confidence: 0.9})

	a := c.Categorize(context.Background(), "Sommertheater", "Freilichtbühne")
	if a.Category != "theater" || a.Method != MethodAI {
		t.Errorf("expected theater/ai, got %s/%s", a.Category, a.Method)
	}
	if a.Confidence != 0.9 {
		t.Errorf("expected AI confidence passed through, got %v", a.Confidence)
	}
}

func TestCategorizeFallsBackWhenAIDown(t *testing.T) {
	c := New(&mockProvider{err: errors.New("connection refused")})

	a := c.Categorize(context.Background(), "Rock Concert Tonight", "Live music performance")
	if a.Category != "music" {
		t.Errorf("expected music, got %q", a.Category)
	}
	if a.Method != MethodKeyword {
		t.Errorf("expected keyword method, got %q", a.Method)
	}
	if a.Confidence != 0.75 {
		t.Errorf("expected confidence 0.75, got %v", a.Confidence)
	}
}

func TestCategorizeRejectsOutOfSchemaAnswer(t *testing.T) {
	c := New(&mockProvider{category: "rock-n-roll", confidence: 0.95})

	a := c.Categorize(context.Background(), "Rock Concert Tonight", "Live music performance")
	if a.Method != MethodKeyword {
		t.Errorf("out-of-schema AI answer must fall back, got method %q", a.Method)
	}
	if a.Category != "music" {
		t.Errorf("expected keyword result music, got %q", a.Category)
	}
}

func TestCategorizeDefaultsToOther(t *testing.T) {
	c := New(nil)

	a := c.Categorize(context.Background(), "Quartalsbericht Q3", "Zahlen und Fakten")
	if a.Category != "other" || a.Method != MethodDefault {
		t.Errorf("expected other/default, got %s/%s", a.Category, a.Method)
	}
	if a.Confidence != 0 {
		t.Errorf("expected zero confidence, got %v", a.Confidence)
	}
}

func TestCategorizeIsTotal(t *testing.T) {
	providers := []Provider{
		nil,
		&mockProvider{err: errors.New("down")},
		&mockProvider{category: "not-a-category"},
		&mockProvider{category: "music", confidence: 0.8},
	}
	for _, p := range providers {
		a := New(p).Categorize(context.Background(), "Irgendein Titel", "")
		if a.Category == "" || a.Method == "" {
			t.Errorf("provider %v: empty assignment %+v", p, a)
		}
		if !InSchema(a.Category) {
			t.Errorf("provider %v: category %q outside schema", p, a.Category)
		}
	}
}

func TestKeywordScoring(t *testing.T) {
	tests := []struct {
		title, desc string
		category    string
	}{
		{"Rock Concert Tonight", "Live music performance", "music"},
		{"Weihnachtsmarkt am Rathaus", "", "christmas_market"},
		{"Flohmarkt im Bürgerpark", "", "flea_market"},
		{"Stadtführung durch die Altstadt", "", "guided_tour"},
		{"Lesung mit regionalem Autor", "", "literature"},
		{"Keine Schlagworte hier", "", ""},
	}

	for _, tt := range tests {
		got, conf := Keyword(tt.title, tt.desc)
		if got != tt.category {
			t.Errorf("Keyword(%q, %q) = %q, want %q", tt.title, tt.desc, got, tt.category)
		}
		if got != "" && (conf <= 0 || conf >= 1) {
			t.Errorf("Keyword(%q, %q) confidence %v out of (0,1)", tt.title, tt.desc, conf)
		}
	}
}

func TestInSchema(t *testing.T) {
	if !InSchema("music") {
		t.Error("music must be in schema")
	}
	if InSchema("rock-n-roll") {
		t.Error("rock-n-roll must not be in schema")
	}
}

func TestServiceClientClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{
				"content": `{"category": "Music", "confidence": 0.85}`,
			},
		})
	}))
	defer srv.Close()

	c := NewServiceClient(config.Categorization{URL: srv.URL, Model: "test", TimeoutSeconds: 5})
	category, confidence, err := c.Classify(context.Background(), "Konzert", "")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if category != "music" {
		t.Errorf("expected lowercased music, got %q", category)
	}
	if confidence != 0.85 {
		t.Errorf("expected 0.85, got %v", confidence)
	}
}

func TestServiceClientRejectsMalformedAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"content": "This looks like a concert to me!"},
		})
	}))
	defer srv.Close()

	c := NewServiceClient(config.Categorization{URL: srv.URL, Model: "test", TimeoutSeconds: 5})
	if _, _, err := c.Classify(context.Background(), "Konzert", ""); err == nil {
		t.Error("expected error for non-JSON answer")
	}
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"plain", `{"category": "music", "confidence": 0.8}`, "music", false},
		{"fenced", "```json\n{\"category\": \"theater\", \"confidence\": 0.7}\n```", "theater", false},
		{"out of schema", `{"category": "jam-session", "confidence": 0.9}`, "", true},
		{"not json", "music, probably", "", true},
	}

	for _, tt := range tests {
		got, _, err := parseAssignment(tt.content)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseAssignmentClampsConfidence(t *testing.T) {
	_, conf, err := parseAssignment(`{"category": "music", "confidence": 1.7}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf != 1 {
		t.Errorf("expected clamp to 1, got %v", conf)
	}
}

package ocr

import "testing"

func TestParseResultJSON(t *testing.T) {
	r := parseResult(`{"text": "ROCKNACHT\n12.09.2026 20 Uhr\nFreiheitshalle Hof", "confidence": 0.85}`)
	if r.Confidence != 0.85 {
		t.Errorf("expected confidence 0.85, got %f", r.Confidence)
	}
	if r.Text == "" || r.Text[:9] != "ROCKNACHT" {
		t.Errorf("unexpected text: %q", r.Text)
	}
}

func TestParseResultFenced(t *testing.T) {
	r := parseResult("```json\n{\"text\": \"Sommerfest\", \"confidence\": 0.9}\n```")
	if r.Text != "Sommerfest" || r.Confidence != 0.9 {
		t.Errorf("unexpected result: %+v", r)
	}
}

func TestParseResultRawText(t *testing.T) {
	r := parseResult("Just a plain transcription without JSON")
	if r.Text != "Just a plain transcription without JSON" {
		t.Errorf("unexpected text: %q", r.Text)
	}
	if r.Confidence != 0.3 {
		t.Errorf("expected fallback confidence 0.3, got %f", r.Confidence)
	}
}

func TestParseResultClampsConfidence(t *testing.T) {
	r := parseResult(`{"text": "x", "confidence": 1.7}`)
	if r.Confidence != 1 {
		t.Errorf("expected clamp to 1, got %f", r.Confidence)
	}
}

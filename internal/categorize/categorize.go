package categorize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"eventpipe/internal/config"
)

// Method values recorded on each assignment so curators can see how a
// category was chosen.
const (
	MethodAI      = "ai"
	MethodKeyword = "keyword"
	MethodDefault = "default"
)

// Assignment is the outcome of categorization. Categorize is total: it
// always returns an assignment, degrading from AI to keywords to the
// default instead of failing.
type Assignment struct {
	Category   string
	Confidence float64
	Method     string
}

// Provider classifies an event into a schema category. An error means
// the provider could not produce a usable answer; the caller falls
// through to the next stage.
type Provider interface {
	Classify(ctx context.Context, title, description string) (string, float64, error)
}

// Categorizer runs the AI-first, keyword-fallback chain. provider may be
// nil to run keyword-only.
type Categorizer struct {
	provider Provider
}

func New(provider Provider) *Categorizer {
	return &Categorizer{provider: provider}
}

// Categorize assigns a category. AI failure is an expected mode, not an
// error: the event always gets a category.
func (c *Categorizer) Categorize(ctx context.Context, title, description string) Assignment {
	if c.provider != nil {
		category, confidence, err := c.provider.Classify(ctx, title, description)
		switch {
		case err != nil:
			log.Printf("AI categorization unavailable, using keywords: %v", err)
		case !InSchema(category):
			log.Printf("AI returned out-of-schema category %q, using keywords", category)
		default:
			return Assignment{Category: category, Confidence: confidence, Method: MethodAI}
		}
	}

	if category, confidence := Keyword(title, description); category != "" {
		return Assignment{Category: category, Confidence: confidence, Method: MethodKeyword}
	}

	return Assignment{Category: "other", Confidence: 0, Method: MethodDefault}
}

const classifyPrompt = `Categorize this local event announcement.

Title: %s
Description: %s

Pick EXACTLY ONE category from this list:
%s

Respond with ONLY this JSON:
{
    "category": "one category from the list",
    "confidence": 0.0-1.0
}`

// ServiceClient classifies events through a local model (Ollama-style
// API). Calls are serialized with a minimum interval so a batch of
// events does not hammer the model server.
type ServiceClient struct {
	Model   string
	BaseURL string
	client  *http.Client

	mu          sync.Mutex
	minInterval time.Duration
	lastCall    time.Time
}

// NewServiceClient creates a classification client from config.
func NewServiceClient(cfg config.Categorization) *ServiceClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &ServiceClient{
		Model:       cfg.Model,
		BaseURL:     cfg.URL,
		client:      &http.Client{Timeout: timeout},
		minInterval: time.Duration(cfg.MinIntervalMs) * time.Millisecond,
	}
}

// Classify asks the model for a category. The answer is validated
// against the schema; anything else is an error so the caller can fall
// back.
func (s *ServiceClient) Classify(ctx context.Context, title, description string) (string, float64, error) {
	s.throttle()

	prompt := fmt.Sprintf(classifyPrompt, title, description, strings.Join(Schema, ", "))
	body := map[string]any{
		"model": s.Model,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
		"stream": false,
		"options": map[string]any{
			"temperature": 0.1,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", 0, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("categorization API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("categorization API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, fmt.Errorf("decoding response: %w", err)
	}

	return parseAssignment(result.Message.Content)
}

// throttle enforces the minimum interval between model calls.
func (s *ServiceClient) throttle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastCall.IsZero() {
		if wait := s.minInterval - time.Since(s.lastCall); wait > 0 {
			time.Sleep(wait)
		}
	}
	s.lastCall = time.Now()
}

// parseAssignment extracts the category answer, tolerating markdown
// fences. An out-of-schema category is an error here so the caller's
// fallback kicks in.
func parseAssignment(content string) (string, float64, error) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines) - 1
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.Join(lines[1:endIdx], "\n")
	}

	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return "", 0, fmt.Errorf("unparseable model answer: %w", err)
	}

	parsed.Category = strings.ToLower(strings.TrimSpace(parsed.Category))
	if !InSchema(parsed.Category) {
		return "", 0, fmt.Errorf("category %q not in schema", parsed.Category)
	}

	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	return parsed.Category, parsed.Confidence, nil
}

package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Reader extracts text from an image. OCR output is a low-precision
// contributor to candidate quality, never authoritative data; callers
// must treat the confidence as a review hint.
type Reader interface {
	ReadImage(ctx context.Context, image []byte) (*Result, error)
}

// Result is the outcome of reading a single image.
type Result struct {
	Text       string
	Confidence float64
}

const readPrompt = `This image is an event flyer or poster. Transcribe all readable text.
Respond with ONLY this JSON:
{
    "text": "the transcribed text, line breaks preserved",
    "confidence": 0.0-1.0
}

confidence: how certain you are the transcription is complete and correct.`

// Client reads images through a local vision model (Ollama-style API).
type Client struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewClient creates a vision OCR client.
func NewClient(model, baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		Model:   model,
		BaseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// ReadImage sends an image to the vision model and returns the
// transcription with its self-reported confidence.
func (c *Client) ReadImage(ctx context.Context, image []byte) (*Result, error) {
	body := map[string]any{
		"model": c.Model,
		"messages": []map[string]any{
			{
				"role":    "user",
				"content": readPrompt,
				"images":  []string{base64.StdEncoding.EncodeToString(image)},
			},
		},
		"stream": false,
		"options": map[string]any{
			"temperature": 0.1,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vision API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return parseResult(result.Message.Content), nil
}

// parseResult extracts text and confidence from the model output,
// tolerating markdown fences and non-JSON responses.
func parseResult(content string) *Result {
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
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		// Model ignored the format; keep the raw text but mark it shaky.
		return &Result{Text: strings.TrimSpace(content), Confidence: 0.3}
	}

	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	return &Result{Text: strings.TrimSpace(parsed.Text), Confidence: parsed.Confidence}
}

package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"eventpipe/internal/config"
)

// RawItem is a single scraped candidate before normalization. Title,
// Link and RawText are guaranteed by every handler; date and location
// extraction is best-effort.
type RawItem struct {
	Title           string
	RawText         string
	Link            string
	RawDateText     string
	RawLocationText string
	ImageURLs       []string

	// DetailAddress is a structured address taken from a detail page in
	// a two-step listing flow; the location resolver prefers it over
	// free-text location strings.
	DetailAddress string

	// OCRConfidence is non-zero only for items whose fields came out of
	// image OCR.
	OCRConfidence float64
}

// Diagnostics carries non-fatal metadata a handler wants surfaced in the
// run summary. A Facebook handler that got blocked fills SearchQuery with
// a descriptive query an operator could run by hand; the pipeline never
// executes it.
type Diagnostics struct {
	SearchQuery string
	Notes       []string
}

// Handler is a scraping strategy for one source type.
type Handler interface {
	// Type returns the source type key this handler serves.
	Type() string

	// Fetch retrieves and parses a source. A total failure returns an
	// error; the orchestrator converts it into a per-source summary
	// entry, never a run abort.
	Fetch(ctx context.Context, src config.Source) ([]RawItem, *Diagnostics, error)
}

// Registry maps source types to handlers. Adding a source type means
// registering one new implementation here; the orchestrator is untouched.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler for its type, replacing any previous one.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Type()] = h
}

// Get returns the handler for a source type.
func (r *Registry) Get(sourceType string) (Handler, error) {
	h, ok := r.handlers[sourceType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for source type %q", sourceType)
	}
	return h, nil
}

// Types returns the registered type keys.
func (r *Registry) Types() []string {
	var types []string
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// Domain extracts the lowercased host of a URL, without a www. prefix.
// It is part of the event identity key, so its output must stay stable.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// stripHTML removes tags and decodes common entities from feed content.
func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// resolveLink makes a possibly relative href absolute against a base URL.
func resolveLink(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

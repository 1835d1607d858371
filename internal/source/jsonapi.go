package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"eventpipe/internal/config"
)

// JSONAPIHandler pulls events from a JSON endpoint. Field names come
// from the source options (items_field, title_field, url_field,
// date_field, location_field, description_field, image_field), so one
// handler covers the usual run of municipal event APIs.
type JSONAPIHandler struct {
	client *Client
}

// NewJSONAPIHandler creates a JSON API source handler.
func NewJSONAPIHandler(client *Client) *JSONAPIHandler {
	return &JSONAPIHandler{client: client}
}

func (h *JSONAPIHandler) Type() string { return "jsonapi" }

func (h *JSONAPIHandler) Fetch(ctx context.Context, src config.Source) ([]RawItem, *Diagnostics, error) {
	body, err := h.client.Get(ctx, src.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching %s: %w", src.URL, err)
	}

	records, err := decodeItems(body, src.Options["items_field"])
	if err != nil {
		return nil, nil, fmt.Errorf("decoding %s: %w", src.URL, err)
	}

	opts := src.Options
	titleField := fieldOr(opts, "title_field", "title")
	urlField := fieldOr(opts, "url_field", "url")
	dateField := fieldOr(opts, "date_field", "date")
	locationField := fieldOr(opts, "location_field", "location")
	descField := fieldOr(opts, "description_field", "description")
	imageField := fieldOr(opts, "image_field", "image")

	var items []RawItem
	for _, rec := range records {
		title := strings.TrimSpace(stringField(rec, titleField))
		link := strings.TrimSpace(stringField(rec, urlField))
		if title == "" || link == "" {
			continue
		}

		item := RawItem{
			Title:           title,
			RawText:         strings.TrimSpace(stringField(rec, descField)),
			Link:            resolveLink(src.URL, link),
			RawDateText:     strings.TrimSpace(stringField(rec, dateField)),
			RawLocationText: strings.TrimSpace(stringField(rec, locationField)),
		}
		if img := strings.TrimSpace(stringField(rec, imageField)); img != "" {
			item.ImageURLs = []string{resolveLink(src.URL, img)}
		}
		items = append(items, item)
	}

	return items, nil, nil
}

// decodeItems accepts either a top-level array or an object with the
// array under itemsField.
func decodeItems(body []byte, itemsField string) ([]map[string]any, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, err
	}

	var list []any
	switch v := root.(type) {
	case []any:
		list = v
	case map[string]any:
		if itemsField == "" {
			return nil, fmt.Errorf("response is an object; items_field option required")
		}
		inner, ok := v[itemsField]
		if !ok {
			return nil, fmt.Errorf("field %q not found in response", itemsField)
		}
		list, ok = inner.([]any)
		if !ok {
			return nil, fmt.Errorf("field %q is not an array", itemsField)
		}
	default:
		return nil, fmt.Errorf("unexpected JSON shape %T", root)
	}

	var records []map[string]any
	for _, entry := range list {
		if rec, ok := entry.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// stringField reads a string-ish value; nested objects are reached with
// a dotted path (e.g. "venue.name").
func stringField(rec map[string]any, field string) string {
	parts := strings.Split(field, ".")
	cur := any(rec)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[p]
		if !ok {
			return ""
		}
	}
	switch v := cur.(type) {
	case string:
		return v
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	default:
		return ""
	}
}

func fieldOr(opts map[string]string, key, fallback string) string {
	if v := opts[key]; v != "" {
		return v
	}
	return fallback
}

package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"eventpipe/internal/config"
)

const maxPerFeed = 50

// RSSHandler parses RSS/Atom feeds.
type RSSHandler struct {
	client *Client
}

// NewRSSHandler creates an RSS source handler.
func NewRSSHandler(client *Client) *RSSHandler {
	return &RSSHandler{client: client}
}

func (h *RSSHandler) Type() string { return "rss" }

// Fetch downloads and parses the feed. Items without a title or link are
// dropped; everything else is passed along for normalization.
func (h *RSSHandler) Fetch(ctx context.Context, src config.Source) ([]RawItem, *Diagnostics, error) {
	body, err := h.client.Get(ctx, src.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching feed %s: %w", src.URL, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing feed %s: %w", src.URL, err)
	}

	var items []RawItem
	for _, item := range feed.Items {
		if len(items) >= maxPerFeed {
			break
		}
		raw := feedItem(item)
		if raw == nil {
			continue
		}
		items = append(items, *raw)
	}

	return items, nil, nil
}

func feedItem(item *gofeed.Item) *RawItem {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return nil
	}

	var rawDate string
	if item.PublishedParsed != nil {
		rawDate = item.PublishedParsed.Format(time.RFC3339)
	} else if item.Published != "" {
		rawDate = item.Published
	} else if item.UpdatedParsed != nil {
		rawDate = item.UpdatedParsed.Format(time.RFC3339)
	}

	var text string
	if item.Content != "" {
		text = stripHTML(item.Content)
	} else if item.Description != "" {
		text = stripHTML(item.Description)
	}

	var images []string
	if item.Image != nil && item.Image.URL != "" {
		images = append(images, item.Image.URL)
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			images = append(images, enc.URL)
		}
	}

	return &RawItem{
		Title:       title,
		RawText:     text,
		Link:        link,
		RawDateText: rawDate,
		ImageURLs:   images,
	}
}

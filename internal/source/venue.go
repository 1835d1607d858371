package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"eventpipe/internal/config"
)

const maxDetailPages = 12

// VenueParser is a scraping routine for one specific venue website.
type VenueParser func(ctx context.Context, client *Client, src config.Source) ([]RawItem, error)

// VenueHandler dispatches to per-venue parsers keyed by the "venue"
// option. Venue sites rarely share markup, so each gets its own routine;
// registering a new one is the only change a new venue needs.
type VenueHandler struct {
	client  *Client
	parsers map[string]VenueParser
}

// NewVenueHandler creates a venue handler with the built-in parsers.
func NewVenueHandler(client *Client) *VenueHandler {
	h := &VenueHandler{
		client:  client,
		parsers: make(map[string]VenueParser),
	}
	h.RegisterVenue("freiheitshalle", parseFreiheitshalle)
	return h
}

// RegisterVenue adds a parser under a venue key.
func (h *VenueHandler) RegisterVenue(key string, p VenueParser) {
	h.parsers[key] = p
}

func (h *VenueHandler) Type() string { return "venue" }

func (h *VenueHandler) Fetch(ctx context.Context, src config.Source) ([]RawItem, *Diagnostics, error) {
	key := src.Options["venue"]
	if key == "" {
		return nil, nil, fmt.Errorf("venue source %s: missing venue option", src.Name)
	}
	parser, ok := h.parsers[key]
	if !ok {
		return nil, nil, fmt.Errorf("no parser registered for venue %q", key)
	}

	items, err := parser(ctx, h.client, src)
	if err != nil {
		return nil, nil, err
	}
	return items, nil, nil
}

// parseFreiheitshalle walks the Freiheitshalle Hof program: the listing
// page yields titles and links, each detail page the date, the venue
// address and a readable description.
func parseFreiheitshalle(ctx context.Context, client *Client, src config.Source) ([]RawItem, error) {
	listURL := src.URL
	if listURL == "" {
		listURL = "https://www.freiheitshalle.de/veranstaltungen"
	}

	doc, err := client.GetDocument(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("fetching program listing: %w", err)
	}

	type stub struct {
		title string
		link  string
	}
	var stubs []stub
	doc.Find("article, .event-item, .veranstaltung").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find("h1, h2, h3").First().Text())
		href, _ := sel.Find("a").First().Attr("href")
		if title == "" || href == "" {
			return
		}
		stubs = append(stubs, stub{title: title, link: resolveLink(listURL, href)})
	})

	var items []RawItem
	for i, s := range stubs {
		if i >= maxDetailPages {
			break
		}

		item := RawItem{Title: s.title, Link: s.link, RawLocationText: "Freiheitshalle Hof"}
		fillFromDetailPage(ctx, client, &item)
		if item.RawText == "" {
			item.RawText = s.title
		}
		items = append(items, item)
	}

	return items, nil
}

// fillFromDetailPage completes an item from its detail page: structured
// address and date fields plus a readability-extracted description.
// Detail fetch failures leave the listing data intact.
func fillFromDetailPage(ctx context.Context, client *Client, item *RawItem) {
	body, err := client.Get(ctx, item.Link)
	if err != nil {
		return
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return
	}

	if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		item.RawDateText = dt
	} else {
		item.RawDateText = strings.TrimSpace(doc.Find(".event-date, .datum").First().Text())
	}

	item.DetailAddress = strings.Join(strings.Fields(
		doc.Find("[itemprop='address'], address, .event-address").First().Text()), " ")

	doc.Find("meta[property='og:image']").Each(func(_ int, sel *goquery.Selection) {
		if content, ok := sel.Attr("content"); ok && content != "" {
			item.ImageURLs = append(item.ImageURLs, resolveLink(item.Link, content))
		}
	})

	pageURL, _ := url.Parse(item.Link)
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		text := strings.TrimSpace(article.TextContent)
		if len(text) > 80 {
			item.RawText = text
		}
	}
}

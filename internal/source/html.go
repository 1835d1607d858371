package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"eventpipe/internal/config"
)

// HTMLHandler scrapes generic listing pages with CSS selectors from the
// source options: item_selector plus title/link/date/location/description
// selectors evaluated inside each item.
type HTMLHandler struct {
	client *Client
}

// NewHTMLHandler creates a generic HTML source handler.
func NewHTMLHandler(client *Client) *HTMLHandler {
	return &HTMLHandler{client: client}
}

func (h *HTMLHandler) Type() string { return "html" }

func (h *HTMLHandler) Fetch(ctx context.Context, src config.Source) ([]RawItem, *Diagnostics, error) {
	itemSel := src.Options["item_selector"]
	if itemSel == "" {
		return nil, nil, fmt.Errorf("html source %s: missing item_selector option", src.Name)
	}

	doc, err := h.client.GetDocument(ctx, src.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching %s: %w", src.URL, err)
	}

	var items []RawItem
	doc.Find(itemSel).Each(func(_ int, sel *goquery.Selection) {
		item := h.parseItem(src, sel)
		if item != nil {
			items = append(items, *item)
		}
	})

	// A matching selector with zero hits usually means a layout change;
	// worth a note in the summary but not an error.
	var diag *Diagnostics
	if len(items) == 0 {
		diag = &Diagnostics{Notes: []string{
			fmt.Sprintf("selector %q matched nothing on %s", itemSel, src.URL),
		}}
	}

	return items, diag, nil
}

func (h *HTMLHandler) parseItem(src config.Source, sel *goquery.Selection) *RawItem {
	title := selectorText(sel, src.Options["title_selector"])
	if title == "" {
		title = strings.TrimSpace(sel.Find("h1, h2, h3").First().Text())
	}
	if title == "" {
		return nil
	}

	linkSel := src.Options["link_selector"]
	if linkSel == "" {
		linkSel = "a"
	}
	href, _ := sel.Find(linkSel).First().Attr("href")
	if href == "" {
		href, _ = sel.Attr("href")
	}
	link := resolveLink(src.URL, href)
	if link == "" {
		return nil
	}

	text := selectorText(sel, src.Options["description_selector"])
	if text == "" {
		text = strings.Join(strings.Fields(sel.Text()), " ")
	}

	var images []string
	sel.Find("img").Each(func(_ int, img *goquery.Selection) {
		if s, ok := img.Attr("src"); ok && s != "" {
			images = append(images, resolveLink(src.URL, s))
		}
	})

	return &RawItem{
		Title:           title,
		RawText:         text,
		Link:            link,
		RawDateText:     selectorText(sel, src.Options["date_selector"]),
		RawLocationText: selectorText(sel, src.Options["location_selector"]),
		ImageURLs:       images,
	}
}

func selectorText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(sel.Find(selector).First().Text())
}

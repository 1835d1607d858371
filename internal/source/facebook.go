package source

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"eventpipe/internal/config"
	"eventpipe/internal/ocr"
)

const maxOCRImagesPerPost = 2

var dateTextPattern = regexp.MustCompile(`\d{1,2}\.\d{1,2}\.\d{4}(\s+\d{1,2}[:.]\d{2})?`)

// FacebookHandler scrapes a public Facebook page: the mobile variant
// first, then desktop, with OCR over embedded post images because event
// announcements there are mostly flyers. When both variants are blocked
// it does not retry indefinitely; it hands back a descriptive search
// query as diagnostics and leaves running it to a human.
type FacebookHandler struct {
	client *Client
	reader ocr.Reader // nil disables image analysis
	region string
}

// NewFacebookHandler creates a Facebook source handler.
func NewFacebookHandler(client *Client, reader ocr.Reader, region string) *FacebookHandler {
	return &FacebookHandler{client: client, reader: reader, region: region}
}

func (h *FacebookHandler) Type() string { return "facebook" }

func (h *FacebookHandler) Fetch(ctx context.Context, src config.Source) ([]RawItem, *Diagnostics, error) {
	pageName := facebookPageName(src.URL)

	variants := []string{src.URL}
	if mobile := mobileURL(src.URL); mobile != src.URL {
		variants = []string{mobile, src.URL}
	}

	var lastErr error
	for _, variant := range variants {
		doc, err := h.client.GetDocument(ctx, variant)
		if err != nil {
			lastErr = err
			continue
		}
		if blockedByLoginWall(doc) {
			lastErr = fmt.Errorf("login wall on %s", variant)
			continue
		}

		items := h.parsePosts(ctx, doc, src.URL)
		if len(items) > 0 {
			return items, nil, nil
		}
		lastErr = fmt.Errorf("no posts found on %s", variant)
	}

	// Both variants failed or were blocked. Surface a query a human
	// could search by hand; the pipeline stays non-interactive.
	diag := &Diagnostics{
		SearchQuery: fmt.Sprintf("%s events upcoming %s", pageName, h.region),
	}
	return nil, diag, fmt.Errorf("facebook page %s unreachable: %w", pageName, lastErr)
}

func (h *FacebookHandler) parsePosts(ctx context.Context, doc *goquery.Document, pageURL string) []RawItem {
	var items []RawItem

	doc.Find("div[role='article'], div.story_body_container").Each(func(_ int, post *goquery.Selection) {
		text := strings.Join(strings.Fields(post.Text()), " ")

		var images []string
		post.Find("img").Each(func(_ int, img *goquery.Selection) {
			src, ok := img.Attr("src")
			if ok && strings.Contains(src, "scontent") {
				images = append(images, src)
			}
		})

		item := h.postItem(ctx, text, images, pageURL)
		if item != nil {
			items = append(items, *item)
		}
	})

	return items
}

// postItem builds a candidate from a post's text, falling back to OCR of
// its images when the text alone is too thin to describe an event.
func (h *FacebookHandler) postItem(ctx context.Context, text string, images []string, pageURL string) *RawItem {
	item := &RawItem{
		RawText:     text,
		Link:        pageURL,
		Title:       firstLine(text),
		RawDateText: dateTextPattern.FindString(text),
		ImageURLs:   images,
	}

	thin := len(text) < 40 || item.RawDateText == ""
	if thin && h.reader != nil && len(images) > 0 {
		h.analyzeImages(ctx, item)
	}

	if item.Title == "" || len(item.Title) < 4 {
		return nil
	}
	return item
}

func (h *FacebookHandler) analyzeImages(ctx context.Context, item *RawItem) {
	analyzed := 0
	for _, imageURL := range item.ImageURLs {
		if analyzed >= maxOCRImagesPerPost {
			break
		}

		data, err := h.client.Get(ctx, imageURL)
		if err != nil {
			log.Printf("Failed to download post image: %v", err)
			continue
		}

		result, err := h.reader.ReadImage(ctx, data)
		if err != nil {
			log.Printf("OCR failed: %v", err)
			continue
		}
		analyzed++

		if result.Text == "" {
			continue
		}

		if item.RawDateText == "" {
			item.RawDateText = dateTextPattern.FindString(result.Text)
		}
		if item.Title == "" {
			item.Title = flyerTitle(result.Text)
		}
		item.RawText = strings.TrimSpace(item.RawText + "\n" + result.Text)
		if result.Confidence > item.OCRConfidence {
			item.OCRConfidence = result.Confidence
		}
	}
}

// flyerTitle picks the first line of OCR text that is not just a date.
func flyerTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || dateTextPattern.MatchString(line) {
			continue
		}
		return firstLine(line)
	}
	return ""
}

func firstLine(text string) string {
	line := strings.TrimSpace(text)
	if idx := strings.IndexAny(line, "\n"); idx > 0 {
		line = line[:idx]
	}
	if runes := []rune(line); len(runes) > 80 {
		line = strings.TrimSpace(string(runes[:80]))
	}
	return line
}

func blockedByLoginWall(doc *goquery.Document) bool {
	title := strings.ToLower(doc.Find("title").First().Text())
	return strings.Contains(title, "log in") || strings.Contains(title, "anmelden")
}

// mobileURL rewrites a facebook.com URL to the mobile variant, which is
// lighter and less aggressively walled. Non-Facebook hosts pass through.
func mobileURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || !strings.HasSuffix(u.Hostname(), "facebook.com") {
		return pageURL
	}
	u.Host = "m.facebook.com"
	return u.String()
}

func facebookPageName(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	name := strings.Trim(u.Path, "/")
	if idx := strings.Index(name, "/"); idx > 0 {
		name = name[:idx]
	}
	return name
}

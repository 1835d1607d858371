package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"eventpipe/internal/categorize"
	"eventpipe/internal/config"
	"eventpipe/internal/database"
	"eventpipe/internal/dedupe"
	"eventpipe/internal/location"
	"eventpipe/internal/normalize"
	"eventpipe/internal/ocr"
	"eventpipe/internal/source"
)

// Summary is the outcome of one scrape cycle. One failing source never
// fails the cycle; per-source errors are collected here instead.
type Summary struct {
	SourcesAttempted int
	SourcesSucceeded int
	EventsFound      int
	EventsNew        int
	Duplicates       int
	NeedsReview      int
	SourceErrors     map[string]string
	Skipped          []string
}

// Pipeline runs the scrape cycle: fetch each enabled source, normalize,
// resolve locations, categorize, and insert deduplicated events into
// the pending queue.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	provider categorize.Provider
	reader   ocr.Reader
}

// New wires a pipeline from config. The categorization provider and the
// OCR reader talk to local model endpoints; both degrade gracefully
// when the endpoint is down.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		db:       db,
		provider: categorize.NewServiceClient(cfg.Categorization),
	}
	if cfg.OCR.Enabled {
		p.reader = ocr.NewClient(
			cfg.OCR.Model,
			cfg.OCR.URL,
			time.Duration(cfg.OCR.TimeoutSeconds)*time.Second,
		)
	}
	return p
}

// sourceResult is what one worker reports back for one source.
type sourceResult struct {
	name        string
	found       int
	inserted    int
	duplicates  int
	needsReview int
	err         error
	skipped     bool
}

// Run executes one scrape cycle across all enabled sources. Workers
// process sources concurrently; each source gets its own rate-limited
// client so one slow host never starves the others. The cycle deadline
// skips sources that have not started yet rather than erroring them.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if deadline := p.cfg.Scraper.CycleDeadlineMinutes; deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(deadline)*time.Minute)
		defer cancel()
	}

	locations, err := p.db.ListLocations()
	if err != nil {
		return nil, fmt.Errorf("loading locations: %w", err)
	}
	resolver := location.NewResolver(p.cfg.Region, locations, p.db)
	normalizer := normalize.New(p.cfg.Scraper.MaxDescriptionLength)
	categorizer := categorize.New(p.provider)

	sources := p.cfg.EnabledSources()
	jobs := make(chan config.Source)
	results := make(chan sourceResult)

	workers := p.cfg.Scraper.Workers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				if ctx.Err() != nil {
					results <- sourceResult{name: src.Name, skipped: true}
					continue
				}
				results <- p.runSource(ctx, src, normalizer, resolver, categorizer)
			}
		}()
	}

	go func() {
		for _, src := range sources {
			jobs <- src
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	summary := &Summary{SourceErrors: make(map[string]string)}
	for r := range results {
		if r.skipped {
			summary.Skipped = append(summary.Skipped, r.name)
			log.Printf("Source %s skipped: cycle deadline reached", r.name)
			continue
		}
		summary.SourcesAttempted++
		summary.EventsFound += r.found
		summary.EventsNew += r.inserted
		summary.Duplicates += r.duplicates
		summary.NeedsReview += r.needsReview
		if r.err != nil {
			summary.SourceErrors[r.name] = r.err.Error()
			log.Printf("Source %s failed: %v", r.name, r.err)
			continue
		}
		summary.SourcesSucceeded++
		log.Printf("Source %s: %d found, %d new, %d duplicates",
			r.name, r.found, r.inserted, r.duplicates)
	}

	report := &database.RunReport{
		SourcesAttempted: summary.SourcesAttempted,
		SourcesSucceeded: summary.SourcesSucceeded,
		EventsFound:      summary.EventsFound,
		EventsNew:        summary.EventsNew,
		Duplicates:       summary.Duplicates,
		SourceErrors:     summary.SourceErrors,
	}
	if _, err := p.db.InsertRunReport(report); err != nil {
		log.Printf("Failed to persist run report: %v", err)
	}

	return summary, nil
}

// runSource fetches and processes a single source. The registry is
// built per source around a fresh client so rate limiting is scoped to
// the source's host.
func (p *Pipeline) runSource(
	ctx context.Context,
	src config.Source,
	normalizer *normalize.Normalizer,
	resolver *location.Resolver,
	categorizer *categorize.Categorizer,
) sourceResult {
	result := sourceResult{name: src.Name}

	if err := src.Validate(); err != nil {
		result.err = err
		return result
	}

	registry := p.buildRegistry()
	handler, err := registry.Get(src.Type)
	if err != nil {
		result.err = err
		return result
	}

	items, diag, err := handler.Fetch(ctx, src)
	if diag != nil {
		if diag.SearchQuery != "" {
			log.Printf("Source %s: suggested manual search: %q", src.Name, diag.SearchQuery)
		}
		for _, note := range diag.Notes {
			log.Printf("Source %s: %s", src.Name, note)
		}
	}
	if err != nil {
		result.err = err
		return result
	}

	result.found = len(items)
	for _, item := range items {
		if err := p.processItem(ctx, item, src.Name, normalizer, resolver, categorizer, &result); err != nil {
			log.Printf("Source %s: dropping item %q: %v", src.Name, item.Title, err)
		}
	}
	return result
}

// processItem runs one raw item through normalize, location resolution,
// categorization, and dedup, then inserts or merges it.
func (p *Pipeline) processItem(
	ctx context.Context,
	item source.RawItem,
	sourceName string,
	normalizer *normalize.Normalizer,
	resolver *location.Resolver,
	categorizer *categorize.Categorizer,
	result *sourceResult,
) error {
	e := normalizer.Normalize(item, sourceName)
	if e.Title == "" {
		return fmt.Errorf("empty title")
	}

	candidate := resolver.Resolve(item.RawLocationText, item.DetailAddress)
	e.LocationName = candidate.Name
	e.Lat = candidate.Lat
	e.Lon = candidate.Lon
	e.LocationConfidence = candidate.Confidence
	e.NeedsReview = e.NeedsReview || candidate.NeedsReview

	assignment := categorizer.Categorize(ctx, e.Title, e.Description)
	e.Category = assignment.Category
	e.CategoryConfidence = assignment.Confidence
	e.CategoryMethod = assignment.Method

	e.ID = dedupe.IdentityKey(&e)

	existing, err := p.db.GetEvent(e.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		if err := p.db.InsertEvent(&e); err != nil {
			return err
		}
		result.inserted++
		if e.NeedsReview {
			result.needsReview++
		}
		return nil
	}

	result.duplicates++
	if dedupe.Merge(existing, &e) {
		return p.db.UpdateEvent(existing)
	}
	return nil
}

// buildRegistry assembles the handlers around one fresh rate-limited
// client.
func (p *Pipeline) buildRegistry() *source.Registry {
	client := source.NewClient(p.cfg.Scraper)
	registry := source.NewRegistry()
	registry.Register(source.NewRSSHandler(client))
	registry.Register(source.NewHTMLHandler(client))
	registry.Register(source.NewJSONAPIHandler(client))
	registry.Register(source.NewVenueHandler(client))
	registry.Register(source.NewFacebookHandler(client, p.reader, p.cfg.Region.Name))
	return registry
}

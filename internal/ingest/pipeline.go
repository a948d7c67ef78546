// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Stellven/KBSkills/internal/resilience"
	"github.com/Stellven/KBSkills/pkg/types"
)

// Inserter stores a document in the knowledge store.
type Inserter interface {
	Insert(ctx context.Context, doc types.Document) error
}

// Deleter removes a source from the knowledge store. Stores that support
// it have deleted files removed while watching.
type Deleter interface {
	Delete(ctx context.Context, source string) error
}

// Fetcher downloads a URL as a document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (types.Document, error)
}

// Summary holds counts from an ingestion run.
type Summary struct {
	Indexed int
	Skipped int
	Failed  int
}

// Total returns the number of sources processed.
func (s Summary) Total() int {
	return s.Indexed + s.Skipped + s.Failed
}

// HasFailures reports whether any source failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Add returns the element-wise sum of s and o.
func (s Summary) Add(o Summary) Summary {
	return Summary{Indexed: s.Indexed + o.Indexed, Skipped: s.Skipped + o.Skipped, Failed: s.Failed + o.Failed}
}

// Pipeline collects documents from files and URLs and inserts them into
// the knowledge store.
type Pipeline struct {
	store   Inserter
	fetcher Fetcher
	loader  *Loader
	policy  resilience.Policy
	logger  *slog.Logger
	w       io.Writer
}

// NewPipeline wires a pipeline. fetcher may be nil when no URLs are
// ingested. Progress lines go to w.
func NewPipeline(store Inserter, fetcher Fetcher, loader *Loader, policy resilience.Policy, logger *slog.Logger, w io.Writer) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if loader == nil {
		loader = NewLoader(nil, logger)
	}
	if w == nil {
		w = io.Discard
	}
	if policy.Logger == nil {
		policy.Logger = logger
	}
	return &Pipeline{
		store:   store,
		fetcher: fetcher,
		loader:  loader,
		policy:  policy.WithOperation(resilience.OpGraphInsert),
		logger:  logger,
		w:       w,
	}
}

// Loader returns the file loader the pipeline reads directories with.
func (p *Pipeline) Loader() *Loader { return p.loader }

// Collect loads documents from sourceDir and urlsFile (either may be
// empty). URLs that cannot be fetched are counted in the returned summary
// and never abort collection. A missing directory or URL file is an error.
func (p *Pipeline) Collect(ctx context.Context, sourceDir, urlsFile string) ([]types.Document, Summary, error) {
	var (
		docs    []types.Document
		summary Summary
	)

	if sourceDir != "" {
		fmt.Fprintf(p.w, "loading files from %s\n", sourceDir)
		loaded, err := p.loader.LoadDirectory(sourceDir)
		if err != nil {
			return nil, summary, err
		}
		fmt.Fprintf(p.w, "loaded %d documents\n", len(loaded))
		docs = append(docs, loaded...)
	}

	if urlsFile != "" {
		urls, err := ParseURLFile(urlsFile)
		if err != nil {
			return nil, summary, err
		}
		counts := CountByType(urls)
		fmt.Fprintf(p.w, "found %d URLs (web: %d, youtube: %d, audio: %d)\n",
			len(urls), counts[URLWeb], counts[URLYouTube], counts[URLAudio])

		for _, u := range urls {
			if err := ctx.Err(); err != nil {
				return nil, summary, err
			}
			if p.fetcher == nil {
				fmt.Fprintf(p.w, "skipped %s: no fetcher configured\n", u.URL)
				summary.Skipped++
				continue
			}
			doc, err := p.fetcher.Fetch(ctx, u.URL)
			switch {
			case err == nil:
				fmt.Fprintf(p.w, "fetched %s\n", u.URL)
				docs = append(docs, doc)
			case Skippable(err):
				fmt.Fprintf(p.w, "skipped %s: %v\n", u.URL, err)
				summary.Skipped++
			default:
				fmt.Fprintf(p.w, "failed  %s: %v\n", u.URL, err)
				p.logger.Warn("fetch failed", "url", u.URL, "error", err)
				summary.Failed++
			}
		}
	}

	return docs, summary, nil
}

// Run inserts docs one at a time through the GraphInsert retry policy. A
// document that still fails after retries is counted and the batch goes on.
func (p *Pipeline) Run(ctx context.Context, docs []types.Document) Summary {
	var summary Summary
	for _, doc := range docs {
		if doc.Content == "" {
			summary.Skipped++
			continue
		}
		err := resilience.Run(ctx, p.policy, func(ctx context.Context) error {
			return p.store.Insert(ctx, doc)
		})
		if err != nil {
			err = resilience.IngestionError(fmt.Errorf("indexing %s: %w", doc.Source, err))
			fmt.Fprintf(p.w, "failed  %s: %v\n", doc.Source, err)
			p.logger.Warn("insert failed after retries", "source", doc.Source, "error", err)
			summary.Failed++
			continue
		}
		fmt.Fprintf(p.w, "indexed %s\n", doc.Source)
		summary.Indexed++
	}
	return summary
}

// Ingest collects from sourceDir and urlsFile and indexes everything found.
func (p *Pipeline) Ingest(ctx context.Context, sourceDir, urlsFile string) (Summary, error) {
	docs, summary, err := p.Collect(ctx, sourceDir, urlsFile)
	if err != nil {
		return summary, err
	}
	if len(docs) == 0 {
		fmt.Fprintf(p.w, "no documents to index\n")
		return summary, nil
	}
	fmt.Fprintf(p.w, "indexing %d documents\n", len(docs))
	return summary.Add(p.Run(ctx, docs)), nil
}

// Remove deletes source from the store when the store supports deletion.
func (p *Pipeline) Remove(ctx context.Context, source string) error {
	d, ok := p.store.(Deleter)
	if !ok {
		return nil
	}
	if err := d.Delete(ctx, source); err != nil {
		return fmt.Errorf("removing %s: %w", source, err)
	}
	fmt.Fprintf(p.w, "removed %s\n", source)
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/Stellven/KBSkills/internal/httputil"
	"github.com/Stellven/KBSkills/internal/resilience"
	"github.com/Stellven/KBSkills/internal/textutil"
	"github.com/Stellven/KBSkills/pkg/types"
)

// Fetch outcomes that skip a URL without counting it as a failure.
var (
	ErrUnsupportedURL = errors.New("transcription of video and audio URLs is not supported")
	ErrNotHTML        = errors.New("not an HTML page")
	ErrNoContent      = errors.New("no text content")
	ErrNotFound       = errors.New("article not found")
)

// maxPageBytes bounds how much of a response body is read.
const maxPageBytes = 10 << 20

var wikipediaRe = regexp.MustCompile(`^https?://(\w+)\.wikipedia\.org/wiki/(.+)$`)

// wikipediaAPI returns the MediaWiki API endpoint for a language edition.
// Package-level var for test substitution.
var wikipediaAPI = func(lang string) string {
	return "https://" + lang + ".wikipedia.org/w/api.php"
}

// WebFetcher downloads web pages as documents.
type WebFetcher struct {
	client    *http.Client
	converter *HTMLConverter
	logger    *slog.Logger
}

// NewWebFetcher returns a fetcher using client (httputil.NewClient defaults
// when nil).
func NewWebFetcher(client *http.Client, logger *slog.Logger) *WebFetcher {
	if client == nil {
		client = httputil.NewClient(types.HTTPConfig{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebFetcher{client: client, converter: NewHTMLConverter(), logger: logger}
}

// Fetch retrieves rawURL. Wikipedia articles are read through the MediaWiki
// extracts API; other pages are fetched and converted from HTML. Video and
// audio URLs return ErrUnsupportedURL.
func (f *WebFetcher) Fetch(ctx context.Context, rawURL string) (types.Document, error) {
	if t := ClassifyURL(rawURL); t != URLWeb {
		return types.Document{}, fmt.Errorf("%s (%s): %w", rawURL, t, ErrUnsupportedURL)
	}

	bare, _, _ := strings.Cut(rawURL, "#")
	bare, _, _ = strings.Cut(bare, "?")
	if m := wikipediaRe.FindStringSubmatch(bare); m != nil {
		title, err := url.PathUnescape(m[2])
		if err != nil {
			title = m[2]
		}
		return f.fetchWikipedia(ctx, rawURL, m[1], title)
	}
	return f.fetchPage(ctx, rawURL)
}

func (f *WebFetcher) get(ctx context.Context, target string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, resilience.IngestionError(fmt.Errorf("building request for %s: %w", target, err))
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := httputil.DoWithRetry(ctx, f.client, req, 0)
	if err != nil {
		return nil, resilience.IngestionError(fmt.Errorf("fetching %s: %w", target, err))
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, resilience.IngestionError(fmt.Errorf("fetching %s: HTTP %d", target, resp.StatusCode))
	}
	return resp, nil
}

func (f *WebFetcher) fetchPage(ctx context.Context, rawURL string) (types.Document, error) {
	resp, err := f.get(ctx, rawURL, http.Header{
		"Accept":          {"text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.9,zh-CN;q=0.8,zh;q=0.7"},
	})
	if err != nil {
		return types.Document{}, err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		return types.Document{}, fmt.Errorf("%s (%s): %w", rawURL, contentType, ErrNotHTML)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return types.Document{}, resilience.IngestionError(fmt.Errorf("reading %s: %w", rawURL, err))
	}

	title, markdown, err := f.converter.Convert(body)
	if err != nil {
		return types.Document{}, resilience.IngestionError(fmt.Errorf("converting %s: %w", rawURL, err))
	}
	content := textutil.Clean(markdown)
	if content == "" {
		return types.Document{}, fmt.Errorf("%s: %w", rawURL, ErrNoContent)
	}

	meta := map[string]string{"type": "web"}
	if title != "" {
		meta["title"] = title
	}
	f.logger.Debug("fetched page", "url", rawURL, "title", title, "chars", len(content))
	return types.Document{Source: rawURL, Content: content, Metadata: meta}, nil
}

type wikiResponse struct {
	Query struct {
		Pages map[string]struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

func (f *WebFetcher) fetchWikipedia(ctx context.Context, rawURL, lang, title string) (types.Document, error) {
	params := url.Values{
		"action":      {"query"},
		"titles":      {strings.ReplaceAll(title, "_", " ")},
		"prop":        {"extracts"},
		"explaintext": {"1"},
		"format":      {"json"},
	}
	resp, err := f.get(ctx, wikipediaAPI(lang)+"?"+params.Encode(), http.Header{
		"Api-User-Agent": {types.DefaultUserAgent},
	})
	if err != nil {
		return types.Document{}, err
	}
	defer resp.Body.Close()

	var data wikiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBytes)).Decode(&data); err != nil {
		return types.Document{}, resilience.IngestionError(fmt.Errorf("decoding Wikipedia response for %s: %w", title, err))
	}

	for id, page := range data.Query.Pages {
		if id == "-1" {
			return types.Document{}, fmt.Errorf("wikipedia article %q: %w", title, ErrNotFound)
		}
		content := textutil.Clean(page.Extract)
		if content == "" {
			continue
		}
		pageTitle := page.Title
		if pageTitle == "" {
			pageTitle = title
		}
		return types.Document{
			Source:  rawURL,
			Content: content,
			Metadata: map[string]string{
				"type":        "web",
				"title":       pageTitle,
				"source_type": "wikipedia",
			},
		}, nil
	}
	return types.Document{}, fmt.Errorf("wikipedia article %q: %w", title, ErrNoContent)
}

// Skippable reports whether err means the URL had nothing to ingest rather
// than that fetching it failed.
func Skippable(err error) bool {
	return errors.Is(err, ErrUnsupportedURL) || errors.Is(err, ErrNotHTML) ||
		errors.Is(err, ErrNoContent) || errors.Is(err, ErrNotFound)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// URLType classifies an ingestion URL.
type URLType string

const (
	URLWeb     URLType = "web"
	URLYouTube URLType = "youtube"
	URLAudio   URLType = "audio"
)

var youTubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/watch`),
	regexp.MustCompile(`^https?://youtu\.be/`),
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/shorts/`),
}

var audioExtensions = []string{".mp3", ".wav", ".m4a", ".flac", ".ogg", ".aac", ".wma"}

// ParsedURL is one line of a URL file.
type ParsedURL struct {
	URL  string
	Type URLType
}

// ClassifyURL reports whether url is a YouTube video, an audio file (by
// extension, ignoring the query string), or a web page.
func ClassifyURL(url string) URLType {
	lower := strings.ToLower(strings.TrimSpace(url))
	for _, re := range youTubePatterns {
		if re.MatchString(lower) {
			return URLYouTube
		}
	}
	path, _, _ := strings.Cut(lower, "?")
	for _, ext := range audioExtensions {
		if strings.HasSuffix(path, ext) {
			return URLAudio
		}
	}
	return URLWeb
}

// ParseURLFile reads one URL per line. Blank lines and lines starting with
// # are skipped.
func ParseURLFile(path string) ([]ParsedURL, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening URL file: %w", err)
	}
	defer f.Close()

	var urls []ParsedURL
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, ParsedURL{URL: line, Type: ClassifyURL(line)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading URL file: %w", err)
	}
	return urls, nil
}

// CountByType tallies urls per type.
func CountByType(urls []ParsedURL) map[URLType]int {
	counts := make(map[URLType]int)
	for _, u := range urls {
		counts[u.Type]++
	}
	return counts
}

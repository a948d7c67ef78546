// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest collects documents from local directories and URL lists
// and indexes them into the knowledge store.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Stellven/KBSkills/internal/textutil"
	"github.com/Stellven/KBSkills/pkg/types"
)

// DefaultInclude matches the text formats ingested when no include globs
// are configured.
var DefaultInclude = []string{"**/*.{md,txt,json,jsonl,csv,tsv,yaml,yml,xml,html,htm}"}

// skipDirs are never descended into.
var skipDirs = map[string]bool{".git": true, "node_modules": true, ".venv": true}

// ErrNotDirectory is returned by LoadDirectory when dir is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Loader reads local files into documents.
type Loader struct {
	include   []string
	converter *HTMLConverter
	logger    *slog.Logger
}

// NewLoader returns a loader for files matching include (DefaultInclude
// when empty). Patterns use doublestar syntax relative to the loaded
// directory.
func NewLoader(include []string, logger *slog.Logger) *Loader {
	if len(include) == 0 {
		include = DefaultInclude
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{include: include, converter: NewHTMLConverter(), logger: logger}
}

// Matches reports whether rel, a slash or OS separated path relative to the
// loaded directory, matches an include pattern. Matching ignores case.
func (l *Loader) Matches(rel string) bool {
	rel = filepath.ToSlash(rel)
	lower := strings.ToLower(rel)
	for _, pattern := range l.include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, lower); ok {
			return true
		}
	}
	return false
}

// LoadDirectory walks dir recursively and loads every matching file in
// lexical order. Unreadable files and files with no text are logged and
// skipped.
func (l *Loader) LoadDirectory(dir string) ([]types.Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("reading source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}

	var docs []types.Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil || !l.Matches(rel) {
			return nil
		}

		doc, err := l.LoadFile(path)
		if err != nil {
			l.logger.Warn("skipping file", "path", path, "error", err)
			return nil
		}
		if doc.Content == "" {
			l.logger.Debug("skipping empty file", "path", path)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	l.logger.Info("loaded documents", "dir", dir, "count", len(docs))
	return docs, nil
}

// LoadFile reads one file. HTML is converted to markdown; everything else is
// read as UTF-8 text with invalid bytes replaced. Content is cleaned.
func (l *Loader) LoadFile(path string) (types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Document{}, err
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	meta := map[string]string{"type": ext}

	var content string
	switch ext {
	case "html", "htm":
		title, markdown, err := l.converter.Convert(data)
		if err != nil {
			return types.Document{}, fmt.Errorf("converting HTML: %w", err)
		}
		if title != "" {
			meta["title"] = title
		}
		content = markdown
	default:
		content = strings.ToValidUTF8(string(data), "�")
	}

	return types.Document{
		Source:   path,
		Content:  textutil.Clean(content),
		Metadata: meta,
	}, nil
}

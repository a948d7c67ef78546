// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Export writes the document inventory to path. The format follows the
// extension: .json writes JSON, anything else writes YAML.
func (s *Store) Export(ctx context.Context, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return s.ExportJSON(ctx, path)
	}
	return s.ExportYAML(ctx, path)
}

// ExportYAML writes the document inventory to path as YAML.
func (s *Store) ExportYAML(ctx context.Context, path string) error {
	docs, err := s.exportEntries(ctx)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return writeExport(path, data)
}

// ExportJSON writes the document inventory to path as indented JSON.
func (s *Store) ExportJSON(ctx context.Context, path string) error {
	docs, err := s.exportEntries(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return writeExport(path, data)
}

func (s *Store) exportEntries(ctx context.Context) ([]DocumentInfo, error) {
	docs, err := s.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents for export: %w", err)
	}
	if docs == nil {
		docs = []DocumentInfo{}
	}
	return docs, nil
}

func writeExport(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

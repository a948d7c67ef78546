// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gemini adapts the Google Gen AI SDK to the generation and
// embedding contracts used by the pipeline, the matcher, and the knowledge
// store. Failures are reported as resilience LLM and embedding errors.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	genai "google.golang.org/genai"

	"github.com/Stellven/KBSkills/internal/resilience"
	"github.com/Stellven/KBSkills/pkg/types"
)

// ErrNoAPIKey is returned by NewClient when no API key is configured.
var ErrNoAPIKey = errors.New("gemini API key not set (run `kbskills init --api-key KEY`, set GEMINI_API_KEY, or write .secrets/gemini-api-key)")

// modelsAPI is the subset of *genai.Models the client uses. Tests substitute a fake.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Client is the shared service handle for generation and embeddings. It is
// built once and is safe for concurrent use.
type Client struct {
	models         modelsAPI
	model          string
	embeddingModel string
	logger         *slog.Logger
}

// NewClient builds a Gemini API client from cfg.
func NewClient(ctx context.Context, cfg types.AIConfig, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return newClient(cli.Models, cfg, logger), nil
}

func newClient(models modelsAPI, cfg types.AIConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = types.DefaultLLMModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = types.DefaultEmbeddingModel
	}
	return &Client{
		models:         models,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		logger:         logger,
	}
}

// Model returns the generation model name.
func (c *Client) Model() string { return c.model }

// Generate sends prompt as a single user turn and returns the response
// text. An empty response is an LLM error.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		return "", resilience.LLMError(fmt.Errorf("gemini generate: %w", err))
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", resilience.LLMError(errors.New("gemini returned an empty response"))
	}
	c.logger.Debug("generated", "model", c.model, "prompt_chars", len(prompt), "response_chars", len(text))
	return text, nil
}

// Embed returns one vector per text, in input order, from a single request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
	}
	resp, err := c.models.EmbedContent(ctx, c.embeddingModel, contents, nil)
	if err != nil {
		return nil, resilience.EmbeddingError(fmt.Errorf("gemini embed: %w", err))
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, resilience.EmbeddingError(fmt.Errorf("gemini returned %d embeddings for %d texts", got, len(texts)))
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, resilience.EmbeddingError(fmt.Errorf("gemini returned no embedding for text %d", i))
		}
		out[i] = e.Values
	}
	return out, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

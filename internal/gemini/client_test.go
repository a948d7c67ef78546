// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"

	"github.com/Stellven/KBSkills/internal/resilience"
	"github.com/Stellven/KBSkills/pkg/types"
)

type fakeModels struct {
	genResp   *genai.GenerateContentResponse
	embedResp *genai.EmbedContentResponse
	err       error

	gotModel    string
	gotContents []*genai.Content
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel, f.gotContents = model, contents
	return f.genResp, f.err
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, _ *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.gotModel, f.gotContents = model, contents
	return f.embedResp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), types.AIConfig{}, nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestGenerate(t *testing.T) {
	fake := &fakeModels{genResp: textResponse("Hello, ", "world")}
	c := newClient(fake, types.AIConfig{Model: "gemini-test"}, nil)

	got, err := c.Generate(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", got)
	assert.Equal(t, "gemini-test", fake.gotModel)
	require.Len(t, fake.gotContents, 1)
	assert.Equal(t, "say hi", fake.gotContents[0].Parts[0].Text)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeModels
	}{
		{"api error", &fakeModels{err: errors.New("503 unavailable")}},
		{"no candidates", &fakeModels{genResp: &genai.GenerateContentResponse{}}},
		{"nil response", &fakeModels{}},
		{"blank text", &fakeModels{genResp: textResponse("  \n")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(tt.fake, types.AIConfig{}, nil)
			_, err := c.Generate(context.Background(), "p")
			require.Error(t, err)
			assert.True(t, resilience.IsKind(err, resilience.KindLLM))
		})
	}
}

func TestEmbed(t *testing.T) {
	fake := &fakeModels{embedResp: &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{
		{Values: []float32{1, 0}},
		{Values: []float32{0, 1}},
	}}}
	c := newClient(fake, types.AIConfig{}, nil)

	got, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, got)
	assert.Equal(t, types.DefaultEmbeddingModel, fake.gotModel)
	require.Len(t, fake.gotContents, 2)
	assert.Equal(t, "b", fake.gotContents[1].Parts[0].Text)
}

func TestEmbed_Errors(t *testing.T) {
	c := newClient(&fakeModels{err: errors.New("quota")}, types.AIConfig{}, nil)
	_, err := c.Embed(context.Background(), []string{"a"})
	assert.True(t, resilience.IsKind(err, resilience.KindEmbedding))

	short := &fakeModels{embedResp: &genai.EmbedContentResponse{}}
	c = newClient(short, types.AIConfig{}, nil)
	_, err = c.Embed(context.Background(), []string{"a"})
	assert.True(t, resilience.IsKind(err, resilience.KindEmbedding))
}

func TestEmbed_Empty(t *testing.T) {
	fake := &fakeModels{}
	c := newClient(fake, types.AIConfig{}, nil)
	got, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Nil(t, fake.gotContents)
}

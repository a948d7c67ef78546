// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package skills

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/Stellven/KBSkills/internal/resilience"
	"github.com/Stellven/KBSkills/internal/vecmath"
	"github.com/Stellven/KBSkills/pkg/types"
)

// Score weights and the similarity above which a domain is reported as matched.
const (
	DomainWeight  = 0.5
	KeywordWeight = 0.3
	IntentWeight  = 0.2

	DomainEvidenceThreshold = 0.4
)

// Embedder turns texts into vectors, one per input in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Matcher scores skills against a topic. It holds no per-topic state.
type Matcher struct {
	embedder Embedder
	topK     int
	policy   resilience.Policy
	logger   *slog.Logger
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithPolicy sets the retry policy applied to embedding calls.
func WithPolicy(p resilience.Policy) MatcherOption {
	return func(m *Matcher) { m.policy = p.WithOperation(resilience.OpEmbedding) }
}

// WithLogger sets the matcher's logger.
func WithLogger(l *slog.Logger) MatcherOption {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMatcher returns a matcher keeping at most topK matches (topK <= 0
// means the default of 3).
func NewMatcher(embedder Embedder, topK int, opts ...MatcherOption) *Matcher {
	if topK <= 0 {
		topK = types.DefaultSkillMatchTopK
	}
	m := &Matcher{
		embedder: embedder,
		topK:     topK,
		policy:   resilience.NewPolicy(resilience.OpEmbedding, types.RetryConfig{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy.Logger == nil {
		m.policy.Logger = m.logger
	}
	return m
}

// Match scores every skill against topic and returns those whose score
// reaches their own trigger threshold, highest first (ties keep input
// order), at most topK of them. The topic is embedded once per call and
// each skill's domains in one batched call.
func (m *Matcher) Match(ctx context.Context, topic string, skills []types.Skill) ([]types.SkillMatch, error) {
	if len(skills) == 0 {
		return nil, nil
	}

	topicVecs, err := m.embed(ctx, []string{topic})
	if err != nil {
		return nil, fmt.Errorf("embedding topic: %w", err)
	}
	topicVec := topicVecs[0]

	var matches []types.SkillMatch
	for i := range skills {
		skill := &skills[i]
		trigger := skill.Metadata.Trigger

		var domainVecs [][]float32
		if len(trigger.Domains) > 0 {
			domainVecs, err = m.embed(ctx, trigger.Domains)
			if err != nil {
				return nil, fmt.Errorf("embedding domains of skill %s: %w", skill.Metadata.Name, err)
			}
		}

		score, domains, keywords := ScoreTrigger(topic, topicVec, domainVecs, trigger)
		m.logger.Debug("scored skill",
			"skill", skill.Metadata.Name,
			"score", score,
			"threshold", trigger.Threshold)
		if score >= trigger.Threshold {
			matches = append(matches, types.SkillMatch{
				Skill:           skill,
				Score:           score,
				MatchedDomains:  domains,
				MatchedKeywords: keywords,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > m.topK {
		matches = matches[:m.topK]
	}
	return matches, nil
}

func (m *Matcher) embed(ctx context.Context, texts []string) ([][]float32, error) {
	return resilience.Do(ctx, m.policy, func(ctx context.Context) ([][]float32, error) {
		vecs, err := m.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, resilience.EmbeddingError(fmt.Errorf("got %d embeddings for %d texts", len(vecs), len(texts)))
		}
		return vecs, nil
	})
}

// ScoreTrigger blends the three trigger signals for one skill:
//
//	0.5*domain_sim + 0.3*keyword_ratio + 0.2*intent_ratio
//
// domainVecs holds one embedding per trigger domain. An absent signal
// contributes 0. Intent patterns that fail to compile count as non-matching.
func ScoreTrigger(topic string, topicVec []float32, domainVecs [][]float32, trigger types.SkillTrigger) (score float64, matchedDomains, matchedKeywords []string) {
	matchedDomains = []string{}
	matchedKeywords = []string{}

	var domainSim float64
	for i, domain := range trigger.Domains {
		if i >= len(domainVecs) {
			break
		}
		sim := CosineSimilarity(topicVec, domainVecs[i])
		if sim > domainSim {
			domainSim = sim
		}
		if sim > DomainEvidenceThreshold {
			matchedDomains = append(matchedDomains, domain)
		}
	}

	var keywordRatio float64
	if len(trigger.Keywords) > 0 {
		lower := strings.ToLower(topic)
		for _, kw := range trigger.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matchedKeywords = append(matchedKeywords, kw)
			}
		}
		keywordRatio = float64(len(matchedKeywords)) / float64(len(trigger.Keywords))
	}

	var intentRatio float64
	if len(trigger.IntentPatterns) > 0 {
		hits := 0
		for _, pattern := range trigger.IntentPatterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			if re.MatchString(topic) {
				hits++
			}
		}
		intentRatio = float64(hits) / float64(len(trigger.IntentPatterns))
	}

	score = DomainWeight*domainSim + KeywordWeight*keywordRatio + IntentWeight*intentRatio
	return score, matchedDomains, matchedKeywords
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	return vecmath.Cosine(a, b)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agent turns a topic into a structured outline: it decomposes the
// topic, activates matching thinking skills, retrieves knowledge for every
// sub-topic, optionally runs a skill-guided analysis, identifies the
// concerns the knowledge store emphasizes, and writes the outline.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Stellven/KBSkills/internal/llmjson"
	"github.com/Stellven/KBSkills/internal/resilience"
	"github.com/Stellven/KBSkills/internal/skills"
	"github.com/Stellven/KBSkills/internal/textutil"
	"github.com/Stellven/KBSkills/pkg/types"
)

// Stage names a pipeline step in logs and metrics.
type Stage string

const (
	StageDecompose        Stage = "decompose"
	StageMatchSkills      Stage = "match_skills"
	StageRetrieve         Stage = "retrieve"
	StageSkillAnalysis    Stage = "skill_analysis"
	StageIdentifyConcerns Stage = "identify_concerns"
	StageGenerateOutline  Stage = "generate_outline"
)

const (
	skillAnalysisContextLimit = 8000
	promptContextLimit        = 12000
	fallbackReasoningLimit    = 500

	// NoKnowledgeFound stands in for the context when retrieval found nothing.
	NoKnowledgeFound = "No relevant knowledge found in the knowledge base."

	skillAnalysisSeparator = "\n\n--- Skill Analysis ---\n"
	fallbackConcern        = "General Analysis"
	fallbackImportance     = 5
)

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Retriever answers a query against the knowledge store. An empty string
// means nothing relevant was found.
type Retriever interface {
	Query(ctx context.Context, query string, mode types.SearchMode) (string, error)
}

// SkillMatcher selects the skills that apply to a topic.
type SkillMatcher interface {
	Match(ctx context.Context, topic string, skills []types.Skill) ([]types.SkillMatch, error)
}

// StageObserver is told how long each stage took and whether it failed.
type StageObserver interface {
	ObserveStage(stage string, d time.Duration, err error)
}

// Config holds the orchestrator's collaborators and settings. Generator and
// Retriever are required; the rest have working zero values.
type Config struct {
	Generator Generator
	Retriever Retriever
	Matcher   SkillMatcher
	Skills    []types.Skill

	Mode    types.SearchMode
	Workers int

	// Retry is the base policy. LLM calls and knowledge store queries each
	// get a copy under their own operation name.
	Retry resilience.Policy

	Observer StageObserver
	Logger   *slog.Logger

	// Progress receives one line per completed stage. Nil discards.
	Progress io.Writer
}

// Orchestrator runs the topic pipeline. It is safe to reuse for several
// topics one after another.
type Orchestrator struct {
	gen      Generator
	ret      Retriever
	matcher  SkillMatcher
	skills   []types.Skill
	mode     types.SearchMode
	workers  int
	llm      resilience.Policy
	kb       resilience.Policy
	observer StageObserver
	logger   *slog.Logger
	progress io.Writer
}

// New builds an orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		gen:      cfg.Generator,
		ret:      cfg.Retriever,
		matcher:  cfg.Matcher,
		skills:   cfg.Skills,
		mode:     cfg.Mode,
		workers:  cfg.Workers,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		progress: cfg.Progress,
	}
	if o.mode == "" {
		o.mode = types.SearchHybrid
	}
	if o.workers <= 0 {
		o.workers = types.DefaultRetrieveWorkers
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.progress == nil {
		o.progress = io.Discard
	}

	base := cfg.Retry
	if base.MaxAttempts <= 0 {
		base = resilience.NewPolicy("", types.DefaultRetryConfig())
		base.Notify = cfg.Retry.Notify
	}
	if base.Logger == nil {
		base.Logger = o.logger
	}
	if notify := base.Notify; notify != nil {
		// Retrieval workers retry concurrently; deliver their events one at a time.
		var mu sync.Mutex
		base.Notify = func(ev resilience.RetryEvent) {
			mu.Lock()
			defer mu.Unlock()
			notify(ev)
		}
	}
	o.llm = base.WithOperation(resilience.OpLLM)
	o.kb = base.WithOperation(resilience.OpKnowledgeBase)
	return o
}

// Result is everything a run produced. Document is the final markdown:
// the header followed by the generated outline.
type Result struct {
	RunID         string
	Topic         string
	SubTopics     []types.SubTopic
	Matches       []types.SkillMatch
	Context       string
	SkillAnalysis string
	Concerns      []types.Concern
	Outline       string
	Document      string

	// FailedQueries counts sub-topics whose retrieval failed after retries.
	FailedQueries int
}

// Run executes every stage for topic. Only an LLM call that exhausts its
// retries (or a cancelled context) ends the run with an error; skill
// matching and individual retrieval failures degrade the result instead.
func (o *Orchestrator) Run(ctx context.Context, topic string) (*Result, error) {
	res := &Result{RunID: uuid.New().String(), Topic: topic}
	logger := o.logger.With("run", res.RunID)
	logger.Info("starting topic run", "topic", topic, "mode", o.mode, "skills", len(o.skills))

	var err error

	start := time.Now()
	res.SubTopics, err = o.decompose(ctx, logger, topic)
	o.observe(StageDecompose, start, err)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(o.progress, "decomposed into %d sub-topics\n", len(res.SubTopics))

	start = time.Now()
	res.Matches, err = o.matchSkills(ctx, topic)
	o.observe(StageMatchSkills, start, err)
	if err != nil {
		logger.Warn("skill matching failed, continuing without skills", "error", err)
		fmt.Fprintf(o.progress, "skill matching failed: %v\n", err)
	}
	if len(res.Matches) > 0 {
		fmt.Fprintf(o.progress, "activated skills: %s\n", matchNames(res.Matches))
	} else {
		fmt.Fprintf(o.progress, "no skills matched\n")
	}

	start = time.Now()
	res.Context, res.FailedQueries = o.retrieve(ctx, logger, res.SubTopics)
	var retrieveErr error
	if res.FailedQueries > 0 {
		retrieveErr = fmt.Errorf("%d of %d queries failed", res.FailedQueries, len(res.SubTopics))
	}
	o.observe(StageRetrieve, start, retrieveErr)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fmt.Fprintf(o.progress, "retrieved knowledge for %d sub-topics (%d failed)\n",
		len(res.SubTopics)-res.FailedQueries, res.FailedQueries)

	kbContext := res.Context
	if len(res.Matches) > 0 {
		start = time.Now()
		res.SkillAnalysis, err = o.skillAnalysis(ctx, topic, kbContext, res.Matches)
		o.observe(StageSkillAnalysis, start, err)
		if err != nil {
			return nil, err
		}
		kbContext += skillAnalysisSeparator + res.SkillAnalysis
		fmt.Fprintf(o.progress, "applied skill frameworks\n")
	}

	start = time.Now()
	res.Concerns, err = o.identifyConcerns(ctx, logger, topic, kbContext, res.Matches)
	o.observe(StageIdentifyConcerns, start, err)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(o.progress, "identified %d concerns\n", len(res.Concerns))

	start = time.Now()
	res.Outline, err = o.generateOutline(ctx, topic, res.Concerns, kbContext, res.Matches)
	o.observe(StageGenerateOutline, start, err)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(o.progress, "generated outline\n")

	res.Document = BuildHeader(topic, res.Matches) + "\n\n" + res.Outline
	logger.Info("topic run complete", "sub_topics", len(res.SubTopics),
		"skills", len(res.Matches), "concerns", len(res.Concerns), "failed_queries", res.FailedQueries)
	return res, nil
}

func (o *Orchestrator) observe(stage Stage, start time.Time, err error) {
	if o.observer != nil {
		o.observer.ObserveStage(string(stage), time.Since(start), err)
	}
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	return resilience.Do(ctx, o.llm, func(ctx context.Context) (string, error) {
		return o.gen.Generate(ctx, prompt)
	})
}

func (o *Orchestrator) decompose(ctx context.Context, logger *slog.Logger, topic string) ([]types.SubTopic, error) {
	prompt, err := renderPrompt(decomposePromptTmpl, decomposePromptData{Topic: topic})
	if err != nil {
		return nil, fmt.Errorf("rendering decomposition prompt: %w", err)
	}
	resp, err := o.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("decomposing topic: %w", err)
	}

	items, ok := llmjson.DecodeArray[types.SubTopic](resp)
	subTopics := normalizeSubTopics(items)
	if !ok || len(subTopics) == 0 {
		logger.Warn("could not parse sub-topics, using the topic itself", "response", textutil.Truncate(resp, 200))
		return []types.SubTopic{{SubTopic: topic, Query: topic}}, nil
	}
	return subTopics, nil
}

// normalizeSubTopics trims entries, fills a missing query from the label
// (and the reverse), and drops entries with neither.
func normalizeSubTopics(items []types.SubTopic) []types.SubTopic {
	out := make([]types.SubTopic, 0, len(items))
	for _, it := range items {
		it.SubTopic = strings.TrimSpace(it.SubTopic)
		it.Query = strings.TrimSpace(it.Query)
		switch {
		case it.SubTopic == "" && it.Query == "":
			continue
		case it.Query == "":
			it.Query = it.SubTopic
		case it.SubTopic == "":
			it.SubTopic = it.Query
		}
		out = append(out, it)
	}
	return out
}

func (o *Orchestrator) matchSkills(ctx context.Context, topic string) ([]types.SkillMatch, error) {
	if o.matcher == nil || len(o.skills) == 0 {
		return nil, nil
	}
	matches, err := o.matcher.Match(ctx, topic, o.skills)
	if err != nil {
		return nil, fmt.Errorf("matching skills: %w", err)
	}
	return matches, nil
}

// retrieve queries every sub-topic on a bounded worker pool and assembles
// the non-empty answers in sub-topic order.
func (o *Orchestrator) retrieve(ctx context.Context, logger *slog.Logger, subTopics []types.SubTopic) (string, int) {
	results := make([]string, len(subTopics))
	errs := make([]error, len(subTopics))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range min(o.workers, len(subTopics)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = resilience.Do(ctx, o.kb, func(ctx context.Context) (string, error) {
					return o.ret.Query(ctx, subTopics[i].Query, o.mode)
				})
			}
		}()
	}
	for i := range subTopics {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var (
		blocks []string
		failed int
	)
	for i, st := range subTopics {
		if errs[i] != nil {
			failed++
			logger.Warn("query failed", "query", st.Query, "error", errs[i])
			fmt.Fprintf(o.progress, "failed  query %q: %v\n", st.Query, errs[i])
			continue
		}
		if strings.TrimSpace(results[i]) == "" {
			continue
		}
		blocks = append(blocks, "### "+st.SubTopic+"\n"+results[i])
	}
	if len(blocks) == 0 {
		return NoKnowledgeFound, failed
	}
	return strings.Join(blocks, "\n\n"), failed
}

func (o *Orchestrator) skillAnalysis(ctx context.Context, topic, kbContext string, matches []types.SkillMatch) (string, error) {
	prompt, err := renderPrompt(skillAnalysisPromptTmpl, skillAnalysisPromptData{
		Topic:      topic,
		Frameworks: skills.FrameworkSummary(matches),
		Context:    textutil.Prefix(kbContext, skillAnalysisContextLimit),
		Steps:      skills.StepsPrompt(matches, topic),
	})
	if err != nil {
		return "", fmt.Errorf("rendering skill analysis prompt: %w", err)
	}
	analysis, err := o.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("applying skill frameworks: %w", err)
	}
	return analysis, nil
}

func (o *Orchestrator) identifyConcerns(ctx context.Context, logger *slog.Logger, topic, kbContext string, matches []types.SkillMatch) ([]types.Concern, error) {
	prompt, err := renderPrompt(concernsPromptTmpl, concernsPromptData{
		Topic:   topic,
		Context: textutil.Prefix(kbContext, promptContextLimit),
		Steps:   skills.StepsPrompt(matches, topic),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering concern prompt: %w", err)
	}
	resp, err := o.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("identifying concerns: %w", err)
	}

	concerns, ok := llmjson.DecodeArray[types.Concern](resp)
	if !ok || len(concerns) == 0 {
		logger.Warn("could not parse concerns, using the raw response")
		return []types.Concern{{
			Concern:    fallbackConcern,
			Importance: fallbackImportance,
			Reasoning:  textutil.Prefix(resp, fallbackReasoningLimit),
			Evidence:   types.StringList{},
		}}, nil
	}
	sort.SliceStable(concerns, func(i, j int) bool {
		return concerns[i].Importance > concerns[j].Importance
	})
	return concerns, nil
}

func (o *Orchestrator) generateOutline(ctx context.Context, topic string, concerns []types.Concern, kbContext string, matches []types.SkillMatch) (string, error) {
	analysis, err := marshalConcerns(concerns)
	if err != nil {
		return "", fmt.Errorf("encoding concerns: %w", err)
	}
	prompt, err := renderPrompt(outlinePromptTmpl, outlinePromptData{
		Topic:              topic,
		Concerns:           analysis,
		Context:            textutil.Prefix(kbContext, promptContextLimit),
		OutputRequirements: skills.OutputRequirementsPrompt(skills.MergeOutputRequirements(matches)),
		ToolFormats:        skills.ToolFormats(matches),
	})
	if err != nil {
		return "", fmt.Errorf("rendering outline prompt: %w", err)
	}
	outline, err := o.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generating outline: %w", err)
	}
	return outline, nil
}

// marshalConcerns renders concerns as indented JSON with non-ASCII text and
// markup characters left as is.
func marshalConcerns(concerns []types.Concern) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(concerns); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func matchNames(matches []types.SkillMatch) string {
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Skill.Metadata.DisplayName
	}
	return strings.Join(names, ", ")
}

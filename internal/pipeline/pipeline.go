// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates report generation: a fixed sequence of
// stages over one ResearchState, with bounded per-section concurrency
// and partial-failure tolerance. A section failure narrows the active
// section set; a stage-level failure ends the run. All failure is
// represented in the returned state, never raised past Run.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/search"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Stage names as recorded in StageError and stage timestamps.
const (
	StageCreate         = "create"
	StagePlan           = "plan"
	StageOutline        = "outline"
	StageSectionQueries = "section_queries"
	StageResearch       = "research"
	StageDraft          = "draft"
	StageValidate       = "validate"
	StageCompile        = "compile"
)

// Generator is the generation capability the pipeline consumes.
// *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateWithFallback(ctx context.Context, prompt string) (string, error)
	GenerateBatch(ctx context.Context, prompts []string) []llm.BatchItem
}

// Searcher is the web-search capability the pipeline consumes.
// *search.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]types.SearchHit, error)
	SearchMultiple(ctx context.Context, queries []string) search.MultiResult
}

// Validator is the advisory section validator. *validate.Validator
// satisfies it.
type Validator interface {
	Validate(ctx context.Context, sectionText string, sources []types.SearchHit, queries []string) (types.Verdict, error)
}

// Deps are the external collaborators of a pipeline run.
type Deps struct {
	Generator Generator
	Searcher  Searcher

	// Validator is required only when validation is enabled.
	Validator Validator

	// Log receives progress lines; nil discards them.
	Log io.Writer
}

// Pipeline drives the fixed stage sequence.
type Pipeline struct {
	deps Deps
	opts types.PipelineOptions
}

// New validates opts and creates a Pipeline. Defaults are applied for
// zero values; negative values are programmer errors and are rejected
// here, before any run starts.
func New(deps Deps, opts types.PipelineOptions) (*Pipeline, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("pipeline: Generator is required")
	}
	if deps.Searcher == nil {
		return nil, fmt.Errorf("pipeline: Searcher is required")
	}
	if opts.EnableValidation && deps.Validator == nil {
		return nil, fmt.Errorf("pipeline: Validator is required when validation is enabled")
	}

	if opts.MaxSectionConcurrency == 0 {
		opts.MaxSectionConcurrency = 4
	}
	if opts.MaxSectionConcurrency < 0 {
		return nil, fmt.Errorf("pipeline: max_section_concurrency must be positive, got %d", opts.MaxSectionConcurrency)
	}
	if opts.PerCallTimeout == 0 {
		opts.PerCallTimeout = 30 * time.Second
	}
	if opts.PerCallTimeout < 0 {
		return nil, fmt.Errorf("pipeline: per_call_timeout must be positive, got %v", opts.PerCallTimeout)
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("pipeline: max_retries must be non-negative, got %d", opts.MaxRetries)
	}

	if deps.Log == nil {
		deps.Log = io.Discard
	}
	return &Pipeline{deps: deps, opts: opts}, nil
}

// Run executes the full pipeline for topic and returns the terminal
// state. The caller always receives a state: provider failures and
// section failures are recorded in it, and Status tells the outcome.
func (p *Pipeline) Run(ctx context.Context, topic string) *types.ResearchState {
	state := types.NewResearchState(topic)
	defer func() {
		state.Duration = time.Since(state.StartedAt)
	}()

	if strings.TrimSpace(topic) == "" {
		return p.fail(state, StageCreate, "topic is empty")
	}
	state.MarkStageEnd(StageCreate)
	fmt.Fprintf(p.deps.Log, "run %s: topic %q\n", state.RunID, topic)

	if !p.advance(state, types.StatusPlanning) {
		return state
	}
	if err := p.plan(ctx, state); err != nil {
		return p.fail(state, StagePlan, "%v", err)
	}
	state.MarkStageEnd(StagePlan)

	if !p.advance(state, types.StatusOutlining) {
		return state
	}
	if err := p.outline(ctx, state); err != nil {
		return p.fail(state, StageOutline, "%v", err)
	}
	state.MarkStageEnd(StageOutline)

	// All outline indices start active; per-section failures remove
	// them for every later stage.
	active := make([]int, len(state.Outline))
	for i := range active {
		active[i] = i
	}

	if !p.advance(state, types.StatusSectionQueries) {
		return state
	}
	active = p.sectionQueries(ctx, state, active)
	state.MarkStageEnd(StageSectionQueries)
	if len(active) == 0 {
		return p.fail(state, StageSectionQueries, "no sections survived query generation")
	}

	if !p.advance(state, types.StatusResearching) {
		return state
	}
	active = p.research(ctx, state, active)
	state.MarkStageEnd(StageResearch)
	if len(active) == 0 {
		return p.fail(state, StageResearch, "no sections survived research")
	}

	if !p.advance(state, types.StatusDrafting) {
		return state
	}
	active = p.draft(ctx, state, active)
	state.MarkStageEnd(StageDraft)
	if len(active) == 0 {
		return p.fail(state, StageDraft, "no sections survived drafting")
	}

	if p.opts.EnableValidation {
		if !p.advance(state, types.StatusValidating) {
			return state
		}
		active = p.validateSections(ctx, state, active)
		state.MarkStageEnd(StageValidate)
		if len(active) == 0 {
			return p.fail(state, StageValidate, "no sections survived validation")
		}
	}

	if !p.advance(state, types.StatusCompiling) {
		return state
	}
	if err := p.compile(ctx, state, active); err != nil {
		return p.fail(state, StageCompile, "%v", err)
	}
	state.MarkStageEnd(StageCompile)

	if !p.advance(state, types.StatusDone) {
		return state
	}
	fmt.Fprintf(p.deps.Log, "run %s: done, %d/%d sections, %d characters\n",
		state.RunID, len(active), len(state.Outline), len(state.CompiledReport))
	return state
}

// advance moves the state to next, enforcing the forward-only status
// invariant. A violation is a pipeline bug and fails the run.
func (p *Pipeline) advance(state *types.ResearchState, next types.Status) bool {
	if !state.Status.CanAdvanceTo(next) {
		p.fail(state, string(state.Status), "illegal status transition %s -> %s", state.Status, next)
		return false
	}
	state.Status = next
	return true
}

// fail marks the run failed with an unrecoverable stage-level error.
func (p *Pipeline) fail(state *types.ResearchState, stage, format string, args ...any) *types.ResearchState {
	state.RecordError(stage, types.PipelineSection, false, format, args...)
	state.Status = types.StatusFailed
	fmt.Fprintf(p.deps.Log, "run %s: failed at %s: %s\n", state.RunID, stage, fmt.Sprintf(format, args...))
	return state
}

// sortedActive returns active in ascending outline order.
func sortedActive(active []int) []int {
	out := make([]int, len(active))
	copy(out, active)
	sort.Ints(out)
	return out
}

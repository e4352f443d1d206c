// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/provider"
	"github.com/pdiddy/report-engine/internal/search"
	"github.com/pdiddy/report-engine/pkg/types"
)

func init() {
	provider.RetryBaseDelay = 1 * time.Millisecond
}

// scriptedGen answers each pipeline prompt from its marker text,
// standing in for a language model across a full run.
type scriptedGen struct {
	outlineResp     string
	failDraftTitles map[string]bool
	draftDelay      func(title string) time.Duration
	failFraming     bool
	extraQuery      string
}

func (g *scriptedGen) Generate(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "focused research questions"):
		return "1. first planning query\n2. second planning query\n3. third planning query\n" +
			"4. fourth planning query\n5. fifth planning query", nil

	case strings.Contains(prompt, "strategic research planner"):
		if g.outlineResp != "" {
			return g.outlineResp, nil
		}
		return "Alpha | about alpha\nBeta | about beta\nGamma | about gamma", nil

	case strings.Contains(prompt, "generating web search queries"):
		title := lineAfter(prompt, "Section: ")
		resp := fmt.Sprintf("1. %s basics\n2. %s details", title, title)
		if g.extraQuery != "" {
			resp += "\n3. " + g.extraQuery
		}
		return resp, nil

	case strings.Contains(prompt, "expert report writer"):
		title := lineAfter(prompt, "Section title: ")
		if g.draftDelay != nil {
			time.Sleep(g.draftDelay(title))
		}
		if g.failDraftTitles[title] {
			return "", provider.Errorf(provider.KindProviderError, "stub", "draft failed for %s", title)
		}
		return "Draft for " + title + ".", nil

	case strings.Contains(prompt, "expert research summarizer"):
		if g.failFraming {
			return "", provider.Errorf(provider.KindProviderError, "stub", "framing failed")
		}
		if strings.Contains(prompt, "Write the introduction") {
			return "Intro text.", nil
		}
		return "Conclusion text.", nil
	}
	return "", fmt.Errorf("unexpected prompt: %.60s", prompt)
}

func (g *scriptedGen) GenerateWithFallback(ctx context.Context, prompt string) (string, error) {
	return g.Generate(ctx, prompt)
}

func (g *scriptedGen) GenerateBatch(ctx context.Context, prompts []string) []llm.BatchItem {
	items := make([]llm.BatchItem, len(prompts))
	for i, prompt := range prompts {
		text, err := g.Generate(ctx, prompt)
		items[i] = llm.BatchItem{Text: text, Err: err}
	}
	return items
}

func lineAfter(prompt, prefix string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// stubSearcher returns one hit per query, with optional per-query
// failures, and records every query it was asked.
type stubSearcher struct {
	mu          sync.Mutex
	queries     []string
	failQueries map[string]bool
}

func (s *stubSearcher) Search(ctx context.Context, query string) ([]types.SearchHit, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()

	if s.failQueries[query] {
		return nil, provider.Errorf(provider.KindProviderError, "stub", "search failed for %q", query)
	}
	return []types.SearchHit{{
		URL:     "https://example.com/" + strings.ReplaceAll(query, " ", "-"),
		Title:   "Result for " + query,
		Snippet: "Snippet about " + query + ".",
	}}, nil
}

func (s *stubSearcher) SearchMultiple(ctx context.Context, queries []string) search.MultiResult {
	out := search.MultiResult{
		Hits:   make(map[string][]types.SearchHit, len(queries)),
		Errors: make(map[string]error),
	}
	for _, query := range queries {
		if _, dup := out.Hits[query]; dup {
			continue
		}
		hits, err := s.Search(ctx, query)
		if err != nil {
			out.Hits[query] = []types.SearchHit{}
			out.Errors[query] = err
			continue
		}
		out.Hits[query] = hits
	}
	return out
}

// stubValidator fails sections whose draft mentions a flagged title.
type stubValidator struct {
	failTitles map[string]bool
	err        error
}

func (v *stubValidator) Validate(ctx context.Context, sectionText string, sources []types.SearchHit, queries []string) (types.Verdict, error) {
	if v.err != nil {
		return types.Verdict{}, v.err
	}
	for title := range v.failTitles {
		if strings.Contains(sectionText, title) {
			return types.Verdict{Passed: false, Reasons: []string{"ungrounded claims"}}, nil
		}
	}
	return types.Verdict{Passed: true}, nil
}

func newTestPipeline(t *testing.T, deps Deps, opts types.PipelineOptions) *Pipeline {
	t.Helper()
	p, err := New(deps, opts)
	require.NoError(t, err)
	return p
}

func TestRunAllSectionsSucceed(t *testing.T) {
	gen := &scriptedGen{}
	p := newTestPipeline(t, Deps{Generator: gen, Searcher: &stubSearcher{}}, types.PipelineOptions{})

	state := p.Run(context.Background(), "solid state batteries")

	require.Equal(t, types.StatusDone, state.Status)
	assert.Empty(t, state.Errors)
	assert.Len(t, state.PlanningQueries, 5)
	require.Len(t, state.Outline, 3)
	assert.Len(t, state.SectionDrafts, 3)

	report := state.CompiledReport
	assert.Contains(t, report, "# solid state batteries")
	assert.Contains(t, report, "## Introduction")
	assert.Contains(t, report, "## Alpha")
	assert.Contains(t, report, "## Beta")
	assert.Contains(t, report, "## Gamma")
	assert.Contains(t, report, "## Conclusion")
	assert.Positive(t, state.Duration)
}

func TestRunSectionFailureDegradesGracefully(t *testing.T) {
	gen := &scriptedGen{failDraftTitles: map[string]bool{"Beta": true}}
	p := newTestPipeline(t, Deps{Generator: gen, Searcher: &stubSearcher{}}, types.PipelineOptions{})

	state := p.Run(context.Background(), "topic")

	require.Equal(t, types.StatusDone, state.Status)
	assert.Contains(t, state.CompiledReport, "## Alpha")
	assert.NotContains(t, state.CompiledReport, "## Beta")
	assert.Contains(t, state.CompiledReport, "## Gamma")

	section := state.SectionErrors()
	require.Len(t, section, 1)
	assert.Equal(t, StageDraft, section[0].Stage)
	assert.Equal(t, 1, section[0].Section)
	assert.True(t, section[0].Recoverable)
}

func TestRunEmptyOutlineFails(t *testing.T) {
	gen := &scriptedGen{outlineResp: "no structured sections here"}
	p := newTestPipeline(t, Deps{Generator: gen, Searcher: &stubSearcher{}}, types.PipelineOptions{})

	state := p.Run(context.Background(), "topic")

	require.Equal(t, types.StatusFailed, state.Status)
	assert.Empty(t, state.CompiledReport)
	require.NotEmpty(t, state.Errors)
	last := state.Errors[len(state.Errors)-1]
	assert.Equal(t, StageOutline, last.Stage)
	assert.False(t, last.Recoverable)
}

func TestRunAllSectionsFailFails(t *testing.T) {
	gen := &scriptedGen{failDraftTitles: map[string]bool{
		"Alpha": true, "Beta": true, "Gamma": true,
	}}
	p := newTestPipeline(t, Deps{Generator: gen, Searcher: &stubSearcher{}}, types.PipelineOptions{})

	state := p.Run(context.Background(), "topic")

	require.Equal(t, types.StatusFailed, state.Status)
	assert.Empty(t, state.CompiledReport)
	// Three recoverable section errors plus the unrecoverable stage error.
	assert.Len(t, state.SectionErrors(), 3)
}

func TestRunEmptyTopicFails(t *testing.T) {
	p := newTestPipeline(t, Deps{Generator: &scriptedGen{}, Searcher: &stubSearcher{}}, types.PipelineOptions{})

	state := p.Run(context.Background(), "   ")

	require.Equal(t, types.StatusFailed, state.Status)
	require.Len(t, state.Errors, 1)
	assert.Equal(t, StageCreate, state.Errors[0].Stage)
}

func TestRunReportInOutlineOrder(t *testing.T) {
	// Earlier sections finish last; the report must still follow the
	// outline order.
	gen := &scriptedGen{draftDelay: func(title string) time.Duration {
		switch title {
		case "Alpha":
			return 30 * time.Millisecond
		case "Beta":
			return 15 * time.Millisecond
		}
		return 0
	}}
	p := newTestPipeline(t, Deps{Generator: gen, Searcher: &stubSearcher{}},
		types.PipelineOptions{MaxSectionConcurrency: 3})

	state := p.Run(context.Background(), "topic")

	require.Equal(t, types.StatusDone, state.Status)
	alpha := strings.Index(state.CompiledReport, "## Alpha")
	beta := strings.Index(state.CompiledReport, "## Beta")
	gamma := strings.Index(state.CompiledReport, "## Gamma")
	require.True(t, alpha >= 0 && beta >= 0 && gamma >= 0)
	assert.Less(t, alpha, beta)
	assert.Less(t, beta, gamma)
}

func TestRunEverySectionDraftedOrFailed(t *testing.T) {
	gen := &scriptedGen{failDraftTitles: map[string]bool{"Beta": true}}
	p := newTestPipeline(t, Deps{Generator: gen, Searcher: &stubSearcher{}}, types.PipelineOptions{})

	state := p.Run(context.Background(), "topic")

	failed := make(map[int]bool)
	for _, e := range state.SectionErrors() {
		failed[e.Section] = true
	}
	for i := range state.Outline {
		_, drafted := state.SectionDrafts[i]
		assert.True(t, drafted != failed[i], "section %d must be drafted or failed, not both", i)
	}
}

func TestRunFramingFailureIsRecoverable(t *testing.T) {
	gen := &scriptedGen{failFraming: true}
	p := newTestPipeline(t, Deps{Generator: gen, Searcher: &stubSearcher{}}, types.PipelineOptions{})

	state := p.Run(context.Background(), "topic")

	require.Equal(t, types.StatusDone, state.Status)
	assert.NotContains(t, state.CompiledReport, "## Introduction")
	assert.NotContains(t, state.CompiledReport, "## Conclusion")
	assert.Contains(t, state.CompiledReport, "## Alpha")

	var framing int
	for _, e := range state.Errors {
		if e.Stage == StageCompile {
			assert.True(t, e.Recoverable)
			framing++
		}
	}
	assert.Equal(t, 2, framing)
}

func TestRunFailedPlanningSearchShrinksContext(t *testing.T) {
	searcher := &stubSearcher{failQueries: map[string]bool{"second planning query": true}}
	p := newTestPipeline(t, Deps{Generator: &scriptedGen{}, Searcher: searcher}, types.PipelineOptions{})

	state := p.Run(context.Background(), "topic")

	require.Equal(t, types.StatusDone, state.Status)
	var outlineErrs int
	for _, e := range state.Errors {
		if e.Stage == StageOutline {
			assert.True(t, e.Recoverable)
			outlineErrs++
		}
	}
	assert.Equal(t, 1, outlineErrs)
}

func TestRunValidationAdvisoryKeepsFailingSection(t *testing.T) {
	gen := &scriptedGen{}
	v := &stubValidator{failTitles: map[string]bool{"Beta": true}}
	p := newTestPipeline(t, Deps{Generator: gen, Searcher: &stubSearcher{}, Validator: v},
		types.PipelineOptions{EnableValidation: true})

	state := p.Run(context.Background(), "topic")

	require.Equal(t, types.StatusDone, state.Status)
	assert.Contains(t, state.CompiledReport, "## Beta")
	require.Contains(t, state.SectionValidation, 1)
	assert.False(t, state.SectionValidation[1].Passed)
}

func TestRunValidationStrictExcludesFailingSection(t *testing.T) {
	gen := &scriptedGen{}
	v := &stubValidator{failTitles: map[string]bool{"Beta": true}}
	p := newTestPipeline(t, Deps{Generator: gen, Searcher: &stubSearcher{}, Validator: v},
		types.PipelineOptions{EnableValidation: true, StrictValidation: true})

	state := p.Run(context.Background(), "topic")

	require.Equal(t, types.StatusDone, state.Status)
	assert.NotContains(t, state.CompiledReport, "## Beta")
	assert.Contains(t, state.CompiledReport, "## Alpha")

	section := state.SectionErrors()
	require.Len(t, section, 1)
	assert.Equal(t, StageValidate, section[0].Stage)
	assert.Equal(t, 1, section[0].Section)
}

func TestRunValidationCallFailureKeepsSection(t *testing.T) {
	gen := &scriptedGen{}
	v := &stubValidator{err: provider.Errorf(provider.KindProviderError, "stub", "validator down")}
	p := newTestPipeline(t, Deps{Generator: gen, Searcher: &stubSearcher{}, Validator: v},
		types.PipelineOptions{EnableValidation: true, StrictValidation: true})

	state := p.Run(context.Background(), "topic")

	require.Equal(t, types.StatusDone, state.Status)
	assert.Contains(t, state.CompiledReport, "## Alpha")
	assert.Contains(t, state.CompiledReport, "## Beta")
	assert.Contains(t, state.CompiledReport, "## Gamma")
	assert.Len(t, state.SectionErrors(), 3)
}

func TestRunStatusMatchesCompiledReport(t *testing.T) {
	tests := []struct {
		name string
		gen  *scriptedGen
	}{
		{"success", &scriptedGen{}},
		{"failure", &scriptedGen{outlineResp: "nothing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, Deps{Generator: tt.gen, Searcher: &stubSearcher{}}, types.PipelineOptions{})
			state := p.Run(context.Background(), "topic")
			if state.Status == types.StatusDone {
				assert.NotEmpty(t, state.CompiledReport)
			} else {
				assert.Empty(t, state.CompiledReport)
			}
		})
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	gen := &scriptedGen{}
	searcher := &stubSearcher{}

	tests := []struct {
		name string
		deps Deps
		opts types.PipelineOptions
	}{
		{"nil generator", Deps{Searcher: searcher}, types.PipelineOptions{}},
		{"nil searcher", Deps{Generator: gen}, types.PipelineOptions{}},
		{"validation without validator", Deps{Generator: gen, Searcher: searcher},
			types.PipelineOptions{EnableValidation: true}},
		{"negative concurrency", Deps{Generator: gen, Searcher: searcher},
			types.PipelineOptions{MaxSectionConcurrency: -1}},
		{"negative timeout", Deps{Generator: gen, Searcher: searcher},
			types.PipelineOptions{PerCallTimeout: -time.Second}},
		{"negative retries", Deps{Generator: gen, Searcher: searcher},
			types.PipelineOptions{MaxRetries: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.deps, tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p := newTestPipeline(t, Deps{Generator: &scriptedGen{}, Searcher: &stubSearcher{}}, types.PipelineOptions{})
	assert.Equal(t, 4, p.opts.MaxSectionConcurrency)
	assert.Equal(t, 30*time.Second, p.opts.PerCallTimeout)
}

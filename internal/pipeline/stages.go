// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/report-engine/pkg/types"
)

const (
	maxPlanningQueries = 7
	minPlanningQueries = 5
	maxOutlineSections = 6
	maxSectionQueries  = 4
)

// plan generates the planning queries for the topic. One generation
// call; failure after retries fails the whole run.
func (p *Pipeline) plan(ctx context.Context, state *types.ResearchState) error {
	prompt := fmt.Sprintf(`You are an AI research assistant.
Based on the topic: %q, generate %d-%d focused research questions
that should be answered to plan a comprehensive report.
Return them as a simple numbered list, one question per line.`,
		state.Topic, minPlanningQueries, maxPlanningQueries)

	resp, err := p.deps.Generator.GenerateWithFallback(ctx, prompt)
	if err != nil {
		return err
	}

	queries := parseNumberedList(resp)
	if len(queries) == 0 {
		return fmt.Errorf("planner returned no usable queries")
	}
	if len(queries) > maxPlanningQueries {
		queries = queries[:maxPlanningQueries]
	}
	state.PlanningQueries = queries
	fmt.Fprintf(p.deps.Log, "run %s: %d planning queries\n", state.RunID, len(queries))
	return nil
}

// outline searches the planning queries for context and generates the
// ordered section list. An empty outline fails the whole run; failed
// planning searches only shrink the context.
func (p *Pipeline) outline(ctx context.Context, state *types.ResearchState) error {
	multi := p.deps.Searcher.SearchMultiple(ctx, state.PlanningQueries)
	for query, err := range multi.Errors {
		state.RecordError(StageOutline, types.PipelineSection, true, "planning search %q: %v", query, err)
	}

	var docs strings.Builder
	for _, query := range state.PlanningQueries {
		for _, hit := range multi.Hits[query] {
			docs.WriteString(hit.Markdown())
			docs.WriteString("\n\n")
		}
	}

	prompt := fmt.Sprintf(`You are a strategic research planner.
Topic: %q

Using the search results below, propose %d to %d report sections.
Return one line per section, formatted exactly as:
Title | one-line summary

Search results:
---
%s---`,
		state.Topic, 4, maxOutlineSections, docs.String())

	resp, err := p.deps.Generator.GenerateWithFallback(ctx, prompt)
	if err != nil {
		return err
	}

	outline := parseOutline(resp)
	if len(outline) == 0 {
		return fmt.Errorf("outliner returned no sections")
	}
	if len(outline) > maxOutlineSections {
		outline = outline[:maxOutlineSections]
	}
	state.Outline = outline
	fmt.Fprintf(p.deps.Log, "run %s: outline with %d sections\n", state.RunID, len(outline))
	return nil
}

// sectionQueries derives 2-4 search queries per section in one
// order-preserving batched call. A section whose item fails is marked
// failed and excluded from later stages.
func (p *Pipeline) sectionQueries(ctx context.Context, state *types.ResearchState, active []int) []int {
	prompts := make([]string, len(active))
	for pos, index := range active {
		spec := state.Outline[index]
		prompts[pos] = fmt.Sprintf(`You are a research assistant generating web search queries.
Report topic: %q
Section: %s
Section summary: %s

Generate 2-%d diverse web search queries for this section.
Return them as a simple numbered list, one query per line.`,
			state.Topic, spec.Title, spec.Summary, maxSectionQueries)
	}

	items := p.deps.Generator.GenerateBatch(ctx, prompts)

	errs := make(map[int]error)
	for pos, index := range active {
		item := items[pos]
		if item.Err != nil {
			errs[index] = item.Err
			continue
		}
		queries := parseNumberedList(item.Text)
		if len(queries) == 0 {
			errs[index] = fmt.Errorf("no usable queries for section %q", state.Outline[index].Title)
			continue
		}
		if len(queries) > maxSectionQueries {
			queries = queries[:maxSectionQueries]
		}
		state.SectionQueries[index] = queries
	}
	return narrowActive(state, StageSectionQueries, active, errs)
}

// sectionResearch is one section's research-stage outcome.
type sectionResearch struct {
	hits        []types.SearchHit
	failedQuery map[string]error
}

// research runs the per-section searches concurrently. A section fails
// only when none of its queries produced a hit; individual query
// failures are recorded and tolerated.
func (p *Pipeline) research(ctx context.Context, state *types.ResearchState, active []int) []int {
	results, errs := runPerSection(ctx, p.opts, active,
		func(ctx context.Context, index int) (sectionResearch, error) {
			multi := p.deps.Searcher.SearchMultiple(ctx, state.SectionQueries[index])

			out := sectionResearch{failedQuery: multi.Errors}
			for _, query := range state.SectionQueries[index] {
				out.hits = append(out.hits, multi.Hits[query]...)
			}
			if len(out.hits) == 0 {
				return out, fmt.Errorf("no search results for section %q", state.Outline[index].Title)
			}
			return out, nil
		})

	// Merge at the barrier: hits in, query failures recorded.
	for index, res := range results {
		state.SectionResults[index] = res.hits
		for query, err := range res.failedQuery {
			state.RecordError(StageResearch, index, true, "query %q: %v", query, err)
		}
	}
	return narrowActive(state, StageResearch, active, errs)
}

// draft writes each section concurrently from its research results.
func (p *Pipeline) draft(ctx context.Context, state *types.ResearchState, active []int) []int {
	results, errs := runPerSection(ctx, p.opts, active,
		func(ctx context.Context, index int) (string, error) {
			spec := state.Outline[index]

			var docs strings.Builder
			for _, hit := range state.SectionResults[index] {
				docs.WriteString(hit.Markdown())
				docs.WriteString("\n\n")
			}

			prompt := fmt.Sprintf(`You are an expert report writer writing one section of a research report.
Section title: %s
Section summary: %s
Source documents:
%s
Instructions:
- Use a professional and analytical tone.
- Write 300-400 words in 2-3 paragraphs.
- Ground every claim in the source documents.
- Cite source URLs in parentheses where appropriate.

Write the section content now:`,
				spec.Title, spec.Summary, docs.String())

			return p.deps.Generator.GenerateWithFallback(ctx, prompt)
		})

	for index, draft := range results {
		state.SectionDrafts[index] = draft
	}
	return narrowActive(state, StageDraft, active, errs)
}

// validateSections collects advisory verdicts for the drafted sections.
// A failed validation call records an error but keeps the section; a
// failing verdict excludes the section only under StrictValidation.
func (p *Pipeline) validateSections(ctx context.Context, state *types.ResearchState, active []int) []int {
	results, errs := runPerSection(ctx, p.opts, active,
		func(ctx context.Context, index int) (types.Verdict, error) {
			return p.deps.Validator.Validate(ctx,
				state.SectionDrafts[index],
				state.SectionResults[index],
				state.SectionQueries[index])
		})

	var surviving []int
	for _, index := range sortedActive(active) {
		if err, ok := errs[index]; ok {
			state.RecordError(StageValidate, index, true, "%v", err)
			surviving = append(surviving, index)
			continue
		}
		verdict := results[index]
		state.SectionValidation[index] = verdict
		if !verdict.Passed && p.opts.StrictValidation {
			state.RecordError(StageValidate, index, true,
				"section %q failed validation: %s",
				state.Outline[index].Title, strings.Join(verdict.Reasons, "; "))
			continue
		}
		surviving = append(surviving, index)
	}
	return surviving
}

// parseNumberedList extracts the items of a numbered or bulleted list,
// tolerating the formatting drift of model output.
func parseNumberedList(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line[0] != '-' && line[0] != '*' && (line[0] < '0' || line[0] > '9') {
			continue
		}
		item := strings.TrimLeft(line, "0123456789.)-* \t")
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parseOutline reads "Title | summary" lines into section specs.
func parseOutline(text string) []types.SectionSpec {
	var outline []types.SectionSpec
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		title, summary, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		title = strings.TrimLeft(strings.TrimSpace(title), "0123456789.)-* \t")
		title = strings.TrimSpace(title)
		summary = strings.TrimSpace(summary)
		if title == "" {
			continue
		}
		outline = append(outline, types.SectionSpec{Title: title, Summary: summary})
	}
	return outline
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/report-engine/pkg/types"
)

// compile assembles the final report: surviving section drafts in
// outline order, framed by a generated introduction and conclusion.
// Section assembly is pure; only the intro and conclusion issue
// generation calls, and either may be dropped with a recoverable error
// without failing the run.
func (p *Pipeline) compile(ctx context.Context, state *types.ResearchState, active []int) error {
	if len(active) == 0 {
		return fmt.Errorf("no sections survived to compilation")
	}

	// Outline order, regardless of the order workers completed in.
	var body strings.Builder
	for _, index := range sortedActive(active) {
		draft, ok := state.SectionDrafts[index]
		if !ok {
			continue
		}
		fmt.Fprintf(&body, "## %s\n\n%s\n\n", state.Outline[index].Title, draft)
	}
	if body.Len() == 0 {
		return fmt.Errorf("no drafts available for compilation")
	}

	intro := p.framingText(ctx, state, "introduction",
		"The introduction should preview what the report covers and why it matters.", body.String())
	conclusion := p.framingText(ctx, state, "conclusion",
		"The conclusion should summarize the key takeaways and offer closing insights.", body.String())

	var report strings.Builder
	fmt.Fprintf(&report, "# %s\n\n", state.Topic)
	if intro != "" {
		fmt.Fprintf(&report, "## Introduction\n\n%s\n\n", intro)
	}
	report.WriteString(body.String())
	if conclusion != "" {
		fmt.Fprintf(&report, "## Conclusion\n\n%s\n", conclusion)
	}

	state.CompiledReport = report.String()
	return nil
}

// framingText generates an introduction or conclusion. A failure is
// recorded as recoverable and yields an empty string; the report
// compiles without the piece.
func (p *Pipeline) framingText(ctx context.Context, state *types.ResearchState, kind, guidance, body string) string {
	prompt := fmt.Sprintf(`You are an expert research summarizer. Use a professional, analytical tone.
Write the %s for a research report titled %q.

Report body:
---
%s---

Guidelines:
- Length: 150-200 words.
- %s
- Do not repeat full section titles or cite specific URLs.`,
		kind, state.Topic, body, guidance)

	text, err := p.deps.Generator.GenerateWithFallback(ctx, prompt)
	if err != nil {
		state.RecordError(StageCompile, types.PipelineSection, true, "generating %s: %v", kind, err)
		return ""
	}
	return text
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package validate scores drafted sections against their sources and
// queries through a generation call. The verdict is advisory; the
// pipeline decides what a failing verdict means.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/report-engine/pkg/types"
)

// Generator is the generation capability the validator consumes.
type Generator interface {
	GenerateWithFallback(ctx context.Context, prompt string) (string, error)
}

// Validator produces pass/fail verdicts for drafted sections.
type Validator struct {
	gen Generator
}

// New creates a Validator over gen.
func New(gen Generator) *Validator {
	return &Validator{gen: gen}
}

// Validate checks that sectionText is grounded in sources and covers
// the original queries. The returned error reports a failed validation
// call, not a failed verdict.
func (v *Validator) Validate(ctx context.Context, sectionText string, sources []types.SearchHit, queries []string) (types.Verdict, error) {
	var docs strings.Builder
	for _, hit := range sources {
		docs.WriteString(hit.Markdown())
		docs.WriteString("\n\n")
	}

	prompt := fmt.Sprintf(`You are a strict reviewer of research report sections.

Section text:
---
%s
---

Source documents:
---
%s
---

Research questions the section should address:
%s

Check that every claim in the section is supported by the source
documents and that the section addresses the research questions.
Answer with a single line "PASS" or "FAIL", followed by one reason
per line, each starting with "- ".`,
		sectionText, docs.String(), "- "+strings.Join(queries, "\n- "))

	resp, err := v.gen.GenerateWithFallback(ctx, prompt)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("validation call: %w", err)
	}
	return parseVerdict(resp), nil
}

// parseVerdict reads the PASS/FAIL line and the "- " reason lines.
// An unrecognized response passes with a note; validation is advisory
// and must not fail sections on formatting drift.
func parseVerdict(resp string) types.Verdict {
	verdict := types.Verdict{Passed: true}
	decided := false

	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		if !decided {
			switch {
			case strings.HasPrefix(upper, "PASS"):
				verdict.Passed = true
				decided = true
				continue
			case strings.HasPrefix(upper, "FAIL"):
				verdict.Passed = false
				decided = true
				continue
			}
		}
		if rest, ok := strings.CutPrefix(line, "- "); ok {
			if reason := strings.TrimSpace(rest); reason != "" {
				verdict.Reasons = append(verdict.Reasons, reason)
			}
		}
	}

	if !decided {
		verdict.Reasons = append(verdict.Reasons, "unrecognized verdict format")
	}
	return verdict
}

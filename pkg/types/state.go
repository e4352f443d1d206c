// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data model and configuration structs
// for the report pipeline.
package types

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"
)

// Status is the pipeline lifecycle state of a ResearchState. It only
// advances forward in declaration order, or jumps to StatusFailed.
type Status string

const (
	StatusCreated        Status = "created"
	StatusPlanning       Status = "planning"
	StatusOutlining      Status = "outlining"
	StatusSectionQueries Status = "section_queries"
	StatusResearching    Status = "researching"
	StatusDrafting       Status = "drafting"
	StatusValidating     Status = "validating"
	StatusCompiling      Status = "compiling"
	StatusDone           Status = "done"
	StatusFailed         Status = "failed"
)

// statusRank orders statuses for the forward-only invariant.
// StatusFailed is reachable from anywhere and has no rank.
var statusRank = map[Status]int{
	StatusCreated:        0,
	StatusPlanning:       1,
	StatusOutlining:      2,
	StatusSectionQueries: 3,
	StatusResearching:    4,
	StatusDrafting:       5,
	StatusValidating:     6,
	StatusCompiling:      7,
	StatusDone:           8,
}

// CanAdvanceTo reports whether moving from s to next respects the
// forward-only ordering. A jump to StatusFailed is always allowed.
func (s Status) CanAdvanceTo(next Status) bool {
	if next == StatusFailed {
		return true
	}
	cur, ok := statusRank[s]
	if !ok {
		return false // failed is terminal
	}
	nxt, ok := statusRank[next]
	return ok && nxt > cur
}

// SectionSpec is one entry of the report outline.
type SectionSpec struct {
	Title   string `json:"title" yaml:"title"`
	Summary string `json:"summary" yaml:"summary"`
}

// SearchHit is a single web search result.
type SearchHit struct {
	URL     string  `json:"url" yaml:"url"`
	Title   string  `json:"title" yaml:"title"`
	Snippet string  `json:"snippet" yaml:"snippet"`
	Score   float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

// Markdown renders the hit as a source block for generation prompts.
func (h SearchHit) Markdown() string {
	return fmt.Sprintf("**%s**\n%s\n(%s)", h.Title, h.Snippet, h.URL)
}

// Verdict is the advisory validation outcome for one drafted section.
type Verdict struct {
	Passed  bool     `json:"passed" yaml:"passed"`
	Reasons []string `json:"reasons,omitempty" yaml:"reasons,omitempty"`
}

// PipelineSection marks a StageError as pipeline-level rather than
// scoped to a single outline section.
const PipelineSection = -1

// StageError records one failure observed during a run. Section is
// PipelineSection for stage-level failures. Recoverable errors narrow
// the active section set; unrecoverable ones end the run.
type StageError struct {
	Stage       string `json:"stage" yaml:"stage"`
	Section     int    `json:"section" yaml:"section"`
	Message     string `json:"message" yaml:"message"`
	Recoverable bool   `json:"recoverable" yaml:"recoverable"`
}

func (e StageError) Error() string {
	if e.Section == PipelineSection {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s[%d]: %s", e.Stage, e.Section, e.Message)
}

// ResearchState is the single object threaded through the pipeline.
// One instance exists per run; the orchestrator mutates it between
// stage barriers and the caller consumes it after Run returns.
type ResearchState struct {
	RunID string `json:"run_id" yaml:"run_id"`
	Topic string `json:"topic" yaml:"topic"`

	Status Status `json:"status" yaml:"status"`

	PlanningQueries []string      `json:"planning_queries,omitempty" yaml:"planning_queries,omitempty"`
	Outline         []SectionSpec `json:"outline,omitempty" yaml:"outline,omitempty"`

	// Per-section maps are keyed by outline index. A key absent from a
	// later map means the section failed at an earlier stage; keys never
	// exceed the outline range.
	SectionQueries    map[int][]string    `json:"section_queries,omitempty" yaml:"section_queries,omitempty"`
	SectionResults    map[int][]SearchHit `json:"section_results,omitempty" yaml:"section_results,omitempty"`
	SectionDrafts     map[int]string      `json:"section_drafts,omitempty" yaml:"section_drafts,omitempty"`
	SectionValidation map[int]Verdict     `json:"section_validation,omitempty" yaml:"section_validation,omitempty"`

	// CompiledReport is non-empty exactly when Status is StatusDone.
	CompiledReport string `json:"compiled_report,omitempty" yaml:"compiled_report,omitempty"`

	Errors []StageError `json:"errors,omitempty" yaml:"errors,omitempty"`

	StartedAt time.Time            `json:"started_at" yaml:"started_at"`
	StageEnds map[string]time.Time `json:"stage_ends,omitempty" yaml:"stage_ends,omitempty"`
	Duration  time.Duration        `json:"duration" yaml:"duration"`
}

// NewResearchState creates the stage-0 state for a run.
func NewResearchState(topic string) *ResearchState {
	return &ResearchState{
		RunID:             uuid.New().String()[:8],
		Topic:             topic,
		Status:            StatusCreated,
		SectionQueries:    make(map[int][]string),
		SectionResults:    make(map[int][]SearchHit),
		SectionDrafts:     make(map[int]string),
		SectionValidation: make(map[int]Verdict),
		StageEnds:         make(map[string]time.Time),
		StartedAt:         time.Now(),
	}
}

// RecordError appends a failure record.
func (s *ResearchState) RecordError(stage string, section int, recoverable bool, format string, args ...any) {
	s.Errors = append(s.Errors, StageError{
		Stage:       stage,
		Section:     section,
		Message:     fmt.Sprintf(format, args...),
		Recoverable: recoverable,
	})
}

// MarkStageEnd records the completion time of a stage.
func (s *ResearchState) MarkStageEnd(stage string) {
	s.StageEnds[stage] = time.Now()
}

// SectionErrors returns the recorded errors scoped to outline sections.
func (s *ResearchState) SectionErrors() []StageError {
	var out []StageError
	for _, e := range s.Errors {
		if e.Section != PipelineSection {
			out = append(out, e)
		}
	}
	return out
}

// Save writes the state as indented JSON to path.
func (s *ResearchState) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}

// SaveYAML writes the state as YAML to path.
func (s *ResearchState) SaveYAML(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}

// LoadState reads a previously saved ResearchState from path.
func LoadState(path string) (*ResearchState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}
	var s ResearchState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	return &s, nil
}

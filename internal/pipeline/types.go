// Package pipeline drives the fixed three-stage document extraction
// flow: extract, arrange, generate. Stages run strictly sequentially;
// each stage's full raw text output is concatenated into the next
// stage's prompt.
package pipeline

import "context"

// Stage identifies one of the three canonical pipeline stages.
type Stage string

const (
	StageExtraction  Stage = "data_extraction"
	StageArrangement Stage = "data_arrangement"
	StageGeneration  Stage = "excel_generation"
)

// CanonicalOrder is the fixed execution and display order.
var CanonicalOrder = []Stage{StageExtraction, StageArrangement, StageGeneration}

// Human-readable stage names for the UI
const (
	NameExtraction  = "Data Extraction"
	NameArrangement = "Data Arrangement"
	NameGeneration  = "Excel Generation"
)

// StageName returns the display name for a canonical stage.
func StageName(s Stage) string {
	switch s {
	case StageExtraction:
		return NameExtraction
	case StageArrangement:
		return NameArrangement
	case StageGeneration:
		return NameGeneration
	}
	return string(s)
}

// Status represents the progress of a single stage. A failed status is
// terminal for the stage and halts the pipeline.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStarting  Status = "starting"
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StageResult is the mutable per-stage record; one per stage per
// session, mutated in place as the stage progresses. Never rolled back.
type StageResult struct {
	Stage   Stage  `json:"stage_key"`
	Status  Status `json:"status"`
	RawText string `json:"raw_text"`
}

// ArrangedDataFile is the artifact the arrangement stage is instructed
// to write into the session output directory. When present, its parsed
// content supersedes the in-memory arrangement text in the final
// report.
const ArrangedDataFile = "arranged_comprehensive_financial_data.json"

// Collaborator is the external text-generation backend, invoked once
// per stage. Treated as opaque, possibly slow, possibly failing.
type Collaborator interface {
	// Generate performs exactly one request/response round trip for
	// the given stage.
	Generate(ctx context.Context, stage Stage, prompt string) (string, error)

	// AgentName returns the display name of the agent serving a stage.
	AgentName(stage Stage) string
}

// StreamingCollaborator is a Collaborator that can surface partial
// output while a stage call is in flight. Partial text feeds the live
// status display only; it never enters the event stream.
type StreamingCollaborator interface {
	Collaborator

	// GenerateStream behaves like Generate but invokes onDelta with
	// the accumulated output each time more text arrives.
	GenerateStream(ctx context.Context, stage Stage, prompt string, onDelta func(string)) (string, error)
}

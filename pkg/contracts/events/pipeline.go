// Package events contains the wire contract for pipeline progress
// events streamed to the UI over WebSocket.
package events

import "time"

// Event types, in the order a successful run emits them
const (
	TypeStepStart    = "step_start"
	TypeStepComplete = "step_complete"
	TypeError        = "error"
	TypeFinalResult  = "final_result"
)

// PipelineEvent is an immutable, emitted-once discriminated record.
// There is no replay or persistence: a consumer that misses an event
// cannot recover it.
type PipelineEvent struct {
	Type    string `json:"type"`
	Step    string `json:"step,omitempty"`
	Message string `json:"message,omitempty"`
	Data    string `json:"data,omitempty"`
	Agent   string `json:"agent,omitempty"`
}

// FinalResult is the payload carried by the terminal event of a
// successful run.
type FinalResult struct {
	ExtractionResult  string `json:"extraction_result"`
	ArrangementResult string `json:"arrangement_result"`
	GenerationResult  string `json:"generation_result"`
	SessionID         string `json:"session_id"`
	OutputDir         string `json:"output_dir"`
}

// Frame wraps an event for WebSocket delivery.
type Frame struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

package pipeline

import (
	"encoding/json"

	"docpulse/pkg/contracts/events"
)

// Event is one pipeline progress record. Events are emitted once, in
// strict stage order, and never replayed.
type Event struct {
	Type    string
	Step    Stage
	Message string
	Data    string
	Agent   string

	// Final is set only on the terminal final_result event.
	Final *events.FinalResult
}

func stepStart(stage Stage, message string) Event {
	return Event{Type: events.TypeStepStart, Step: stage, Message: message}
}

func stepComplete(stage Stage, data, agent string) Event {
	return Event{Type: events.TypeStepComplete, Step: stage, Data: data, Agent: agent}
}

func errorEvent(stage Stage, message string) Event {
	return Event{Type: events.TypeError, Step: stage, Message: message}
}

func finalResult(result *events.FinalResult) Event {
	return Event{Type: events.TypeFinalResult, Final: result}
}

// Wire converts the event to its WebSocket wire representation. The
// terminal event's payload travels in the data field, so a client
// holds the complete run outcome even if it missed earlier frames.
func (e Event) Wire() events.PipelineEvent {
	wire := events.PipelineEvent{
		Type:    e.Type,
		Step:    string(e.Step),
		Message: e.Message,
		Data:    e.Data,
		Agent:   e.Agent,
	}
	if e.Final != nil {
		if payload, err := json.Marshal(e.Final); err == nil {
			wire.Data = string(payload)
		}
	}
	return wire
}

package pipeline

import (
	"sync"

	"docpulse/pkg/contracts/events"
)

// Tracker maintains the per-stage status and last text for the UI.
// Rendering is a pure function of this state.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[Stage]Status
	texts    map[Stage]string
}

// NewTracker creates a tracker with every canonical stage pending.
func NewTracker() *Tracker {
	statuses := make(map[Stage]Status, len(CanonicalOrder))
	for _, s := range CanonicalOrder {
		statuses[s] = StatusPending
	}
	return &Tracker{
		statuses: statuses,
		texts:    make(map[Stage]string, len(CanonicalOrder)),
	}
}

// Apply folds one pipeline event into the tracker. Step keys are
// remapped to canonical stages first, so foreign labels from the
// external framework can never produce an unknown row.
func (t *Tracker) Apply(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stage := CanonicalStage(string(ev.Step))
	switch ev.Type {
	case events.TypeStepStart:
		t.statuses[stage] = StatusStarting
		if ev.Message != "" {
			t.texts[stage] = ev.Message
		}
	case events.TypeStepComplete:
		t.statuses[stage] = StatusCompleted
		if ev.Data != "" {
			t.texts[stage] = ev.Data
		}
	case events.TypeError:
		t.statuses[stage] = StatusFailed
		if ev.Message != "" {
			t.texts[stage] = ev.Message
		}
	}
}

// SetStreaming marks a stage as actively streaming output.
func (t *Tracker) SetStreaming(stage Stage, partial string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[stage] = StatusStreaming
	if partial != "" {
		t.texts[stage] = partial
	}
}

// Status returns the recorded status for a stage.
func (t *Tracker) Status(stage Stage) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statuses[stage]
}

// Text returns the last recorded text for a stage.
func (t *Tracker) Text(stage Stage) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.texts[stage]
}

// Texts returns a copy of the per-stage text map.
func (t *Tracker) Texts() map[Stage]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Stage]string, len(t.texts))
	for k, v := range t.texts {
		out[k] = v
	}
	return out
}

// CurrentStage selects exactly one stage for the UI to present:
// the first stage that is starting or streaming; else the first stage
// still pending; else the last completed stage; else the first stage
// by canonical order. The precedence (what's happening now, over
// what's next, over what's done) must not change: the UI depends on
// it being deterministic.
func (t *Tracker) CurrentStage() Stage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, s := range CanonicalOrder {
		if t.statuses[s] == StatusStarting || t.statuses[s] == StatusStreaming {
			return s
		}
	}
	for _, s := range CanonicalOrder {
		if t.statuses[s] == StatusPending {
			return s
		}
	}
	for i := len(CanonicalOrder) - 1; i >= 0; i-- {
		if t.statuses[CanonicalOrder[i]] == StatusCompleted {
			return CanonicalOrder[i]
		}
	}
	return CanonicalOrder[0]
}

// Snapshot is the complete tracker state sent to the frontend.
type Snapshot struct {
	CurrentStage Stage           `json:"current_stage"`
	Stages       []StageSnapshot `json:"stages"`
}

// StageSnapshot is one stage row in a snapshot.
type StageSnapshot struct {
	Stage  Stage  `json:"stage"`
	Name   string `json:"name"`
	Status Status `json:"status"`
	Text   string `json:"text,omitempty"`
}

// Snapshot renders the full tracker state in canonical order.
func (t *Tracker) Snapshot() Snapshot {
	current := t.CurrentStage()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stages := make([]StageSnapshot, 0, len(CanonicalOrder))
	for _, s := range CanonicalOrder {
		stages = append(stages, StageSnapshot{
			Stage:  s,
			Name:   StageName(s),
			Status: t.statuses[s],
			Text:   t.texts[s],
		})
	}
	return Snapshot{CurrentStage: current, Stages: stages}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docpulse/internal/session"
	"docpulse/pkg/contracts/events"
)

// fakeCollaborator scripts per-stage responses and failures.
type fakeCollaborator struct {
	responses map[Stage]string
	failAt    Stage
	failErr   error
	prompts   map[Stage]string
}

func newFakeCollaborator() *fakeCollaborator {
	return &fakeCollaborator{
		responses: map[Stage]string{
			StageExtraction:  "extracted text",
			StageArrangement: `{"categories": []}`,
			StageGeneration:  "workbook written",
		},
		prompts: make(map[Stage]string),
	}
}

func (f *fakeCollaborator) Generate(ctx context.Context, stage Stage, prompt string) (string, error) {
	f.prompts[stage] = prompt
	if f.failAt == stage {
		return "", f.failErr
	}
	return f.responses[stage], nil
}

func (f *fakeCollaborator) AgentName(stage Stage) string {
	return fmt.Sprintf("%s agent", stage)
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	store := session.NewStore(t.TempDir(), nil)
	sess, err := store.Create()
	require.NoError(t, err)
	return sess
}

func writeTestArtifact(t *testing.T, sess *session.Session, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(sess.OutputDir, name), []byte("{}"), 0o644))
}

func collect(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestRunEmitsEventsInStrictStageOrder(t *testing.T) {
	sess := newTestSession(t)
	runner := NewRunner(newFakeCollaborator(), nil, nil)

	got := collect(runner.Run(context.Background(), sess, "/in/doc.pdf"))

	want := []struct {
		typ  string
		step Stage
	}{
		{events.TypeStepStart, StageExtraction},
		{events.TypeStepComplete, StageExtraction},
		{events.TypeStepStart, StageArrangement},
		{events.TypeStepComplete, StageArrangement},
		{events.TypeStepStart, StageGeneration},
		{events.TypeStepComplete, StageGeneration},
		{events.TypeFinalResult, ""},
	}

	require.Len(t, got, len(want))
	for i, w := range want {
		assert.Equal(t, w.typ, got[i].Type, "event %d", i)
		assert.Equal(t, w.step, got[i].Step, "event %d", i)
	}

	final := got[len(got)-1].Final
	require.NotNil(t, final)
	assert.Equal(t, "extracted text", final.ExtractionResult)
	assert.Equal(t, `{"categories": []}`, final.ArrangementResult)
	assert.Equal(t, "workbook written", final.GenerationResult)
	assert.Equal(t, sess.ID, final.SessionID)
	assert.Equal(t, sess.OutputDir, final.OutputDir)
}

func TestRunHaltsOnSecondStageFailure(t *testing.T) {
	sess := newTestSession(t)
	collab := newFakeCollaborator()
	collab.failAt = StageArrangement
	collab.failErr = errors.New("upstream 503")

	runner := NewRunner(collab, nil, nil)
	got := collect(runner.Run(context.Background(), sess, "/in/doc.pdf"))

	// Sequence stops at step_start(data_arrangement) then error;
	// excel_generation events never appear.
	require.Len(t, got, 4)
	assert.Equal(t, events.TypeStepStart, got[0].Type)
	assert.Equal(t, StageExtraction, got[0].Step)
	assert.Equal(t, events.TypeStepComplete, got[1].Type)
	assert.Equal(t, events.TypeStepStart, got[2].Type)
	assert.Equal(t, StageArrangement, got[2].Step)
	assert.Equal(t, events.TypeError, got[3].Type)
	assert.Contains(t, got[3].Message, "upstream 503")

	for _, ev := range got {
		assert.NotEqual(t, StageGeneration, ev.Step)
	}
}

func TestRunForwardsPreviousStageTextIntoPrompts(t *testing.T) {
	sess := newTestSession(t)
	collab := newFakeCollaborator()
	collab.responses[StageExtraction] = "REVENUE 1.2M EXPENSES 0.8M"

	runner := NewRunner(collab, nil, nil)
	collect(runner.Run(context.Background(), sess, "/in/doc.pdf"))

	assert.Contains(t, collab.prompts[StageExtraction], "/in/doc.pdf")
	// The hand-off is the literal previous output concatenated in
	assert.Contains(t, collab.prompts[StageArrangement], "REVENUE 1.2M EXPENSES 0.8M")
	assert.Contains(t, collab.prompts[StageGeneration], collab.responses[StageArrangement])
	// Dual-path instruction: inline JSON preferred, file as fallback
	assert.Contains(t, collab.prompts[StageGeneration], ArrangedDataFile)
	assert.True(t, strings.Contains(collab.prompts[StageGeneration], "PRIORITY 1"))
	assert.True(t, strings.Contains(collab.prompts[StageGeneration], "PRIORITY 2"))
}

func TestRunErrorLeavesEarlierArtifactsOnDisk(t *testing.T) {
	sess := newTestSession(t)
	collab := newFakeCollaborator()
	collab.failAt = StageGeneration
	collab.failErr = errors.New("model overloaded")

	// Simulate the arrangement stage's tool writing an artifact
	collab.responses[StageArrangement] = "arranged"
	runner := NewRunner(collab, nil, nil)

	ch := runner.Run(context.Background(), sess, "/in/doc.pdf")
	var sawArrangementComplete bool
	for ev := range ch {
		if ev.Type == events.TypeStepComplete && ev.Step == StageArrangement {
			sawArrangementComplete = true
			writeTestArtifact(t, sess, "partial.json")
		}
	}

	require.True(t, sawArrangementComplete)
	// No rollback: the artifact survives the downstream failure
	assert.FileExists(t, sess.OutputDir+"/partial.json")
}

// streamingFake emits scripted partial output before each response.
type streamingFake struct {
	*fakeCollaborator
	deltas []string
}

func (f *streamingFake) GenerateStream(ctx context.Context, stage Stage, prompt string, onDelta func(string)) (string, error) {
	for _, d := range f.deltas {
		if onDelta != nil {
			onDelta(d)
		}
	}
	return f.fakeCollaborator.Generate(ctx, stage, prompt)
}

func TestRunReportsPartialOutputWithoutExtraEvents(t *testing.T) {
	sess := newTestSession(t)
	collab := &streamingFake{
		fakeCollaborator: newFakeCollaborator(),
		deltas:           []string{"chunk one", "chunk one chunk two"},
	}
	runner := NewRunner(collab, nil, nil)

	type progress struct {
		stage   Stage
		partial string
	}
	var seen []progress
	runner.OnProgress(func(stage Stage, partial string) {
		seen = append(seen, progress{stage, partial})
	})

	got := collect(runner.Run(context.Background(), sess, "/in/doc.pdf"))

	// Two deltas per stage, three stages
	require.Len(t, seen, 6)
	assert.Equal(t, progress{StageExtraction, "chunk one"}, seen[0])
	assert.Equal(t, progress{StageExtraction, "chunk one chunk two"}, seen[1])
	assert.Equal(t, StageGeneration, seen[4].stage)

	// The event stream is unchanged: six step events plus the terminal one
	require.Len(t, got, 7)
	assert.Equal(t, events.TypeFinalResult, got[6].Type)
}

func TestRunWithoutProgressListenerUsesPlainGenerate(t *testing.T) {
	sess := newTestSession(t)
	collab := &streamingFake{fakeCollaborator: newFakeCollaborator()}
	runner := NewRunner(collab, nil, nil)

	got := collect(runner.Run(context.Background(), sess, "/in/doc.pdf"))
	require.Len(t, got, 7)
	assert.Equal(t, "extracted text", got[1].Data)
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docpulse/internal/infrastructure"
	"docpulse/internal/session"
	"docpulse/pkg/contracts/events"
)

// Runner executes the three-stage pipeline for one session. A single
// Runner may be reused across sessions; each Run is an independent,
// strictly sequential flow with exactly one outstanding collaborator
// call at a time.
//
// There is no timeout at this layer: a hang in the collaborator hangs
// the run until the process-level inactivity watchdog tears the whole
// process down. Cancellation mid-stage is not supported.
type Runner struct {
	collab   Collaborator
	logger   *slog.Logger
	metrics  *infrastructure.Metrics
	progress func(Stage, string)
}

// NewRunner creates a pipeline runner.
func NewRunner(collab Collaborator, logger *slog.Logger, metrics *infrastructure.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		collab:  collab,
		logger:  logger.With(slog.String("component", "pipeline_runner")),
		metrics: metrics,
	}
}

// OnProgress registers a callback invoked with the accumulated partial
// output of the stage currently generating. Register before Run; the
// callback runs on the pipeline goroutine. Partial output never enters
// the event stream, which stays at exactly one start and one terminal
// event per stage.
func (r *Runner) OnProgress(fn func(stage Stage, partial string)) {
	r.progress = fn
}

// Run drives the pipeline for the uploaded file and returns the event
// channel. Events arrive in strict stage order; on any collaborator
// failure a single error event is emitted and the channel is closed.
// Files already written by earlier stages are left on disk.
func (r *Runner) Run(ctx context.Context, sess *session.Session, filePath string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		r.run(ctx, sess, filePath, out)
	}()
	return out
}

func (r *Runner) run(ctx context.Context, sess *session.Session, filePath string, out chan<- Event) {
	results := make(map[Stage]string, len(CanonicalOrder))

	for _, stage := range CanonicalOrder {
		out <- stepStart(stage, startMessage(stage))

		r.logger.InfoContext(ctx, "stage_started",
			slog.String("session_id", sess.ID),
			slog.String("stage", string(stage)))

		prompt := r.buildPrompt(stage, filePath, results)

		started := time.Now()
		text, err := r.generate(ctx, stage, prompt)
		elapsed := time.Since(started)

		if r.metrics != nil {
			r.metrics.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
		}

		if err != nil {
			r.logger.ErrorContext(ctx, "stage_failed",
				slog.String("session_id", sess.ID),
				slog.String("stage", string(stage)),
				slog.Duration("duration", elapsed),
				slog.String("error", err.Error()))
			if r.metrics != nil {
				r.metrics.StageFailures.WithLabelValues(string(stage)).Inc()
				r.metrics.PipelineRuns.WithLabelValues("failed").Inc()
			}
			out <- errorEvent(stage, fmt.Sprintf("Workflow failed: %v", err))
			return
		}

		r.logger.InfoContext(ctx, "stage_completed",
			slog.String("session_id", sess.ID),
			slog.String("stage", string(stage)),
			slog.Duration("duration", elapsed),
			slog.Int("output_bytes", len(text)))

		results[stage] = text
		out <- stepComplete(stage, text, r.collab.AgentName(stage))
	}

	if r.metrics != nil {
		r.metrics.PipelineRuns.WithLabelValues("completed").Inc()
	}

	out <- finalResult(&events.FinalResult{
		ExtractionResult:  results[StageExtraction],
		ArrangementResult: results[StageArrangement],
		GenerationResult:  results[StageGeneration],
		SessionID:         sess.ID,
		OutputDir:         sess.OutputDir,
	})
}

// generate routes the stage call through the streaming path when both
// the collaborator and a progress listener support it.
func (r *Runner) generate(ctx context.Context, stage Stage, prompt string) (string, error) {
	sc, ok := r.collab.(StreamingCollaborator)
	if !ok || r.progress == nil {
		return r.collab.Generate(ctx, stage, prompt)
	}
	return sc.GenerateStream(ctx, stage, prompt, func(partial string) {
		r.progress(stage, partial)
	})
}

func startMessage(stage Stage) string {
	switch stage {
	case StageExtraction:
		return "Starting data extraction..."
	case StageArrangement:
		return "Organizing and analyzing extracted data..."
	case StageGeneration:
		return "Generating Excel reports..."
	}
	return "Starting " + string(stage) + "..."
}

// buildPrompt assembles the natural-language instruction for a stage.
// The hand-off between stages is deliberately the previous stage's
// literal text concatenated into the prompt; there is no structured
// interchange.
func (r *Runner) buildPrompt(stage Stage, filePath string, results map[Stage]string) string {
	switch stage {
	case StageExtraction:
		return fmt.Sprintf(
			"Extract the data from document: %s. Provide complete structured output.",
			filePath)

	case StageArrangement:
		return fmt.Sprintf(
			"Organize and analyze this extracted data: %s. "+
				"Provide complete structured output with insights, and save the organized "+
				"data as JSON to the file %q in the output directory.",
			results[StageExtraction], ArrangedDataFile)

	case StageGeneration:
		// Dual-path hand-off: the arranged JSON travels inline with a
		// file fallback. Both paths are preserved on purpose.
		return fmt.Sprintf(`Generate Excel reports using the following hybrid data approach:

PRIORITY 1 (PREFERRED): Use the JSON data provided directly below:
%s

PRIORITY 2 (FALLBACK): If the above JSON data cannot be parsed, read the file %q from the output directory.

IMPORTANT INSTRUCTIONS:
- First attempt to parse and use the JSON data provided directly above
- If JSON parsing fails, fall back to reading from the file
- Work with whatever data structure is available
- Create Excel worksheets based on the actual data structure found
- Handle missing or incomplete data gracefully
- Always create at least one worksheet with available data
- Save the Excel file with a timestamp: Report_YYYYMMDD_HHMMSS.xlsx

Create the worksheets and save the files successfully.`,
			results[StageArrangement], ArrangedDataFile)
	}
	return ""
}

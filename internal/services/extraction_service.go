// Package services holds the application services behind the HTTP
// handlers: the extraction service orchestrating uploads, pipeline
// runs and downloads, plus the health service.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"docpulse/internal/archive"
	"docpulse/internal/exporter"
	"docpulse/internal/infrastructure"
	"docpulse/internal/pipeline"
	"docpulse/internal/session"
	"docpulse/internal/upload"
	"docpulse/pkg/contracts/events"
)

// CollaboratorFactory builds a session-scoped collaborator per run.
type CollaboratorFactory interface {
	ForSession(sess *session.Session) pipeline.Collaborator
}

// Broadcaster fans pipeline progress out to connected clients. The
// websocket hub implements it; a nil broadcaster disables streaming.
type Broadcaster interface {
	BroadcastEvent(ev events.PipelineEvent, traceID string)
	BroadcastSnapshot(snapshot interface{}, traceID string)
}

// ActivityRecorder is notified on every user-facing operation. The
// inactivity watchdog implements it; a nil recorder disables it.
type ActivityRecorder interface {
	Touch()
}

// runState is the mutable record of one session's pipeline run.
type runState struct {
	mu       sync.Mutex
	running  bool
	tracker  *pipeline.Tracker
	report   string
	filePath string
}

// ExtractionService orchestrates the document extraction flow: upload,
// run, report, download, reset. One pipeline run per session at a time.
type ExtractionService struct {
	store     *session.Store
	validator *upload.Validator
	factory   CollaboratorFactory
	packager  *archive.Packager
	hub       Broadcaster
	activity  ActivityRecorder
	logger    *slog.Logger
	metrics   *infrastructure.Metrics

	mu   sync.Mutex
	runs map[string]*runState
}

// NewExtractionService wires the extraction service.
func NewExtractionService(
	store *session.Store,
	validator *upload.Validator,
	factory CollaboratorFactory,
	packager *archive.Packager,
	hub Broadcaster,
	activity ActivityRecorder,
	logger *slog.Logger,
	metrics *infrastructure.Metrics,
) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{
		store:     store,
		validator: validator,
		factory:   factory,
		packager:  packager,
		hub:       hub,
		activity:  activity,
		logger:    logger.With(slog.String("component", "extraction_service")),
		metrics:   metrics,
		runs:      make(map[string]*runState),
	}
}

func (s *ExtractionService) touch() {
	if s.activity != nil {
		s.activity.Touch()
	}
}

func (s *ExtractionService) state(sessionID string) *runState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.runs[sessionID]
	if !ok {
		st = &runState{tracker: pipeline.NewTracker()}
		s.runs[sessionID] = st
	}
	return st
}

// Upload validates and stores a document, allocating a new session for
// it.
func (s *ExtractionService) Upload(ctx context.Context, filename string, size int64, r io.Reader) (*session.Session, *upload.FileInfo, error) {
	s.touch()

	sess, err := s.store.Create()
	if err != nil {
		if s.metrics != nil {
			s.metrics.UploadsTotal.WithLabelValues("failed").Inc()
		}
		return nil, nil, err
	}

	info, err := s.validator.Save(sess, filename, size, r)
	if err != nil {
		if s.metrics != nil {
			s.metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		}
		return nil, nil, err
	}

	st := s.state(sess.ID)
	st.mu.Lock()
	st.filePath = info.Path
	st.mu.Unlock()

	if s.metrics != nil {
		s.metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	}
	s.logger.InfoContext(ctx, "document uploaded",
		slog.String("session_id", sess.ID),
		slog.String("file", info.Name),
		slog.Float64("size_mb", info.SizeMB))
	return sess, info, nil
}

// Run starts the pipeline for a session and streams its events to the
// hub. Exactly one run per session may be active; a second Run while
// the first is still going returns ErrRunInProgress. The run proceeds
// in the background; its completion is observable through the event
// stream and the stored report.
func (s *ExtractionService) Run(ctx context.Context, sessionID string) error {
	s.touch()

	sess, err := s.store.Get(sessionID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	st := s.state(sess.ID)
	st.mu.Lock()
	if st.running {
		st.mu.Unlock()
		return ErrRunInProgress
	}
	if st.filePath == "" {
		st.mu.Unlock()
		return ErrNoDocument
	}
	st.running = true
	st.tracker = pipeline.NewTracker()
	st.report = ""
	filePath := st.filePath
	st.mu.Unlock()

	traceID := infrastructure.GetTraceID(ctx)
	collab := s.factory.ForSession(sess)
	runner := pipeline.NewRunner(collab, s.logger, s.metrics)
	runner.OnProgress(func(stage pipeline.Stage, partial string) {
		st.mu.Lock()
		st.tracker.SetStreaming(stage, partial)
		snap := st.tracker.Snapshot()
		st.mu.Unlock()
		if s.hub != nil {
			s.hub.BroadcastSnapshot(snap, traceID)
		}
	})

	// Detach from the request context: the run outlives the request
	// that started it.
	runCtx := infrastructure.WithTraceID(context.Background(), traceID)

	go s.consume(runCtx, sess, st, runner.Run(runCtx, sess, filePath), traceID)
	return nil
}

// consume drains the run's event stream: every event updates the
// tracker and goes out over the hub; the terminal event triggers
// report aggregation.
func (s *ExtractionService) consume(ctx context.Context, sess *session.Session, st *runState, evCh <-chan pipeline.Event, traceID string) {
	defer func() {
		st.mu.Lock()
		st.running = false
		st.mu.Unlock()
	}()

	for ev := range evCh {
		st.mu.Lock()
		st.tracker.Apply(ev)
		snap := st.tracker.Snapshot()
		st.mu.Unlock()

		if s.hub != nil {
			s.hub.BroadcastEvent(ev.Wire(), traceID)
			// The snapshot carries full per-stage state, so a client
			// that missed an event catches up on the next frame.
			s.hub.BroadcastSnapshot(snap, traceID)
		}

		if ev.Type == events.TypeFinalResult || ev.Type == events.TypeError {
			s.finishRun(ctx, sess, st)
		}
	}
}

// finishRun builds and stores the final report from whatever stages
// completed. Called for both successful and failed runs: a failed run
// still reports the stages that finished.
func (s *ExtractionService) finishRun(ctx context.Context, sess *session.Session, st *runState) {
	st.mu.Lock()
	texts := st.tracker.Texts()
	st.mu.Unlock()

	s.ensureWorkbook(ctx, sess)

	agg := pipeline.NewAggregator(s.logger)
	report := agg.BuildReport(sess, texts)

	st.mu.Lock()
	st.report = report
	st.mu.Unlock()

	s.logger.InfoContext(ctx, "run finished",
		slog.String("session_id", sess.ID),
		slog.Int("report_len", len(report)))
}

// ensureWorkbook builds a workbook locally when the generation stage
// saved arranged data but no workbook of its own. Best effort: a build
// failure leaves the run's other artifacts intact.
func (s *ExtractionService) ensureWorkbook(ctx context.Context, sess *session.Session) {
	entries, err := os.ReadDir(sess.OutputDir)
	if err != nil {
		return
	}

	hasArranged := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".xlsx") {
			return
		}
		if e.Name() == pipeline.ArrangedDataFile {
			hasArranged = true
		}
	}
	if !hasArranged {
		return
	}

	builder := exporter.NewWorkbookBuilder(s.logger)
	arrangedPath := filepath.Join(sess.OutputDir, pipeline.ArrangedDataFile)
	if _, err := builder.BuildFromArrangedFile(arrangedPath, sess.OutputDir); err != nil {
		s.logger.WarnContext(ctx, "fallback workbook build failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()))
	}
}

// Report returns the session's final report, or ErrReportNotReady if
// no run has completed yet.
func (s *ExtractionService) Report(ctx context.Context, sessionID string) (string, error) {
	s.touch()

	if _, err := s.store.Get(sessionID); err != nil {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	st := s.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.report == "" {
		return "", ErrReportNotReady
	}
	return st.report, nil
}

// Snapshot returns the session's current stage statuses.
func (s *ExtractionService) Snapshot(sessionID string) (pipeline.Snapshot, error) {
	s.touch()

	if _, err := s.store.Get(sessionID); err != nil {
		return pipeline.Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	st := s.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.tracker.Snapshot(), nil
}

// OutputFiles lists the artifacts the session's run has produced so
// far, relative to the session output directory.
func (s *ExtractionService) OutputFiles(sessionID string) ([]string, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return pipeline.NewAggregator(s.logger).OutputFiles(sess), nil
}

// Download packages the session's output artifacts into a zip and
// returns its path. ErrNoArtifacts when the run produced nothing.
func (s *ExtractionService) Download(ctx context.Context, sessionID string) (string, error) {
	s.touch()

	sess, err := s.store.Get(sessionID)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	zipPath, err := s.packager.Package(sess)
	if err != nil {
		return "", err
	}
	if zipPath == "" {
		return "", ErrNoArtifacts
	}
	return zipPath, nil
}

// Reset abandons the session's state and allocates a fresh session.
// The old session's files stay on disk until the sweep collects them.
func (s *ExtractionService) Reset(ctx context.Context, sessionID string) (*session.Session, error) {
	s.touch()

	old, _ := s.store.Get(sessionID)
	sess, err := s.store.Reset(old)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.runs, sessionID)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "session reset",
		slog.String("old_session_id", sessionID),
		slog.String("new_session_id", sess.ID))
	return sess, nil
}

// Running reports whether the session currently has an active run.
func (s *ExtractionService) Running(sessionID string) bool {
	st := s.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.running
}

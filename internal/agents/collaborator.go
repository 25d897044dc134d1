// Package agents binds the pipeline to the aigentic agent framework.
// Each canonical stage is served by its own agent with its own model
// and instructions; the arranger and generator additionally get
// session-scoped file tools so they can persist artifacts into the
// session output directory.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nexxia-ai/aigentic"
	"github.com/nexxia-ai/aigentic/ai"

	"docpulse/internal/config"
	"docpulse/internal/pipeline"
	"docpulse/internal/session"
)

// Agent display names, reported in step_complete events
const (
	extractorName = "Document Extractor"
	arrangerName  = "Data Arranger"
	generatorName = "Excel Generator"
)

// Collaborator implements pipeline.Collaborator on top of aigentic
// Gemini agents. One Collaborator serves one session; the file tools
// handed to the agents are scoped to that session's output directory.
type Collaborator struct {
	agents map[pipeline.Stage]*aigentic.Agent
	logger *slog.Logger
}

var _ pipeline.StreamingCollaborator = (*Collaborator)(nil)

// Factory builds a session-scoped Collaborator per pipeline run.
type Factory struct {
	cfg    config.CollaboratorConfig
	logger *slog.Logger
}

// NewFactory creates a collaborator factory from configuration.
func NewFactory(cfg config.CollaboratorConfig, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{cfg: cfg, logger: logger.With(slog.String("component", "agents"))}
}

// ForSession builds the three stage agents bound to one session's
// output directory.
func (f *Factory) ForSession(sess *session.Session) *Collaborator {
	files := newFileTools(sess.OutputDir)

	extractor := &aigentic.Agent{
		Model:       f.model(f.cfg.ExtractorModel, f.cfg.ExtractorThinkingBudget),
		Name:        extractorName,
		Description: "Extracts every piece of structured and unstructured data from uploaded documents.",
		Instructions: "Read the referenced document carefully and transcribe all tables, " +
			"figures, headers and narrative data as faithfully as possible. " +
			"Do not summarize; completeness matters more than brevity.",
		Stream: true,
	}

	arranger := &aigentic.Agent{
		Model:       f.model(f.cfg.ArrangerModel, f.cfg.ArrangerThinkingBudget),
		Name:        arrangerName,
		Description: "Organizes raw extracted text into comprehensive, categorized JSON.",
		Instructions: "Arrange the extracted data into a well-structured JSON document " +
			"grouping related values into named categories. Use the save_output_file " +
			"tool to persist the JSON before responding.",
		Tools:  []ai.Tool{files.saveTool(), files.listTool()},
		Stream: true,
	}

	generator := &aigentic.Agent{
		Model:       f.model(f.cfg.GeneratorModel, f.cfg.GeneratorThinkingBudget),
		Name:        generatorName,
		Description: "Produces Excel workbooks from arranged JSON data.",
		Instructions: "Build the requested Excel workbook from the arranged data and " +
			"save it into the output directory with the save_output_file tool. " +
			"Report exactly which files you created.",
		Tools:  []ai.Tool{files.saveTool(), files.readTool(), files.listTool()},
		Stream: true,
	}

	return &Collaborator{
		agents: map[pipeline.Stage]*aigentic.Agent{
			pipeline.StageExtraction:  extractor,
			pipeline.StageArrangement: arranger,
			pipeline.StageGeneration:  generator,
		},
		logger: f.logger.With(slog.String("session_id", sess.ID)),
	}
}

func (f *Factory) model(name string, thinkingBudget int) *ai.Model {
	m := ai.NewGeminiModel(name, f.cfg.APIKey)
	m.Parameters = map[string]interface{}{
		"thinkingConfig": map[string]interface{}{
			"thinkingBudget": thinkingBudget,
		},
	}
	return m
}

// Generate performs one agent round trip for the given stage. The run
// is cancelled if ctx expires before the agent finishes.
func (c *Collaborator) Generate(ctx context.Context, stage pipeline.Stage, prompt string) (string, error) {
	return c.GenerateStream(ctx, stage, prompt, nil)
}

// GenerateStream performs the same round trip while reporting the
// accumulated output through onDelta as content arrives from the
// model. A nil onDelta degrades to Generate.
func (c *Collaborator) GenerateStream(ctx context.Context, stage pipeline.Stage, prompt string, onDelta func(string)) (string, error) {
	agent, ok := c.agents[stage]
	if !ok {
		return "", fmt.Errorf("no agent configured for stage %s", stage)
	}

	c.logger.Debug("agent call starting",
		slog.String("stage", string(stage)),
		slog.String("agent", agent.Name),
		slog.Int("prompt_len", len(prompt)))

	run, err := agent.Run(prompt)
	if err != nil {
		return "", fmt.Errorf("agent %s start: %w", agent.Name, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			run.Cancel()
		case <-done:
		}
	}()

	var content strings.Builder
	var runErr error
	for ev := range run.Next() {
		switch e := ev.(type) {
		case *aigentic.ContentEvent:
			// Sub-agent content carries a different run id; only the
			// top-level agent's output belongs in the stage result.
			if e.RunID != run.ID() {
				continue
			}
			content.WriteString(e.Content)
			if onDelta != nil {
				onDelta(content.String())
			}
		case *aigentic.ErrorEvent:
			runErr = e.Err
		}
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if runErr != nil {
		return "", fmt.Errorf("agent %s: %w", agent.Name, runErr)
	}

	text := content.String()
	c.logger.Debug("agent call finished",
		slog.String("stage", string(stage)),
		slog.Int("response_len", len(text)))
	return text, nil
}

// AgentName returns the display name of the agent serving a stage.
func (c *Collaborator) AgentName(stage pipeline.Stage) string {
	if agent, ok := c.agents[stage]; ok {
		return agent.Name
	}
	return string(stage)
}

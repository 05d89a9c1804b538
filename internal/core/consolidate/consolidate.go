package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"planner/internal/core/executor"
	"planner/internal/core/extract"
	"planner/internal/core/job"
	"planner/internal/logger"
	"planner/internal/platform/eino"
	"planner/internal/platform/storage"
)

const (
	taskName      = "consolidate"
	synthesisName = "consolidated.md"
	documentName  = "document.json"
)

// Synthesis is the merged result of a fan-out job.
type Synthesis struct {
	Content     string
	Document    extract.Document
	ArtifactRef string
}

// Consolidator merges the diagrams, code and structure results of a fan-out
// job into one structured document.
type Consolidator struct {
	gen     eino.Generator
	prompts executor.Renderer
	blobs   storage.BlobStore
	log     *logger.Logger
}

func New(gen eino.Generator, prompts executor.Renderer, blobs storage.BlobStore) *Consolidator {
	return &Consolidator{gen: gen, prompts: prompts, blobs: blobs, log: logger.New("Consolidator")}
}

// Consolidate synthesizes the fan-out results. A synthesis stored by an
// earlier attempt is reused, so a retry after a partial write still returns
// the text behind the stored artifact.
func (c *Consolidator) Consolidate(ctx context.Context, jobID string, results map[string]job.TaskResult, originalInput string) (*Synthesis, error) {
	if err := job.CheckTaskSet(results, job.FanOutTasks); err != nil {
		return nil, err
	}
	log := c.log.ForJob(jobID)

	stored, ref, found, err := executor.Load(ctx, c.blobs, jobID, synthesisName)
	if err != nil {
		return nil, err
	}
	content := string(stored)
	if found {
		log.LogInfof("Reusing %s from an earlier attempt", synthesisName)
	} else if content, ref, err = c.generate(ctx, log, jobID, results, originalInput); err != nil {
		return nil, err
	}

	doc := extract.Extract(content)
	log.LogInfof("Extracted %d sections, %d diagrams, %d code templates, %d structure items",
		len(doc.Sections), len(doc.Diagrams), len(doc.CodeTemplates), len(doc.ProjectStructure))

	// the document is derived from the synthesis, so an existing copy is identical
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if _, _, err := executor.Store(ctx, c.blobs, log, jobID, documentName, b, storage.ContentTypeJSON); err != nil {
		return nil, err
	}

	return &Synthesis{Content: content, Document: doc, ArtifactRef: ref}, nil
}

func (c *Consolidator) generate(ctx context.Context, log *logger.Logger, jobID string, results map[string]job.TaskResult, originalInput string) (string, string, error) {
	system, prompt, err := c.prompts.Render(ctx, taskName, map[string]any{
		"input":     originalInput,
		"diagrams":  results[job.TaskDiagrams].Content,
		"code":      results[job.TaskCode].Content,
		"structure": results[job.TaskStructure].Content,
	})
	if err != nil {
		return "", "", fmt.Errorf("consolidate: %w", err)
	}

	gen, err := c.gen.Generate(eino.WithTask(ctx, taskName), prompt, system)
	if err != nil {
		return "", "", &job.ExternalServiceError{Service: "generation", Op: taskName, Err: err}
	}
	if gen == nil || strings.TrimSpace(gen.Content) == "" {
		return "", "", &job.ExternalServiceError{Service: "generation", Op: taskName, Err: eino.ErrEmptyResponse}
	}

	stored, ref, err := executor.Store(ctx, c.blobs, log, jobID, synthesisName, []byte(gen.Content), storage.ContentTypeMarkdown)
	if err != nil {
		return "", "", err
	}
	return string(stored), ref, nil
}

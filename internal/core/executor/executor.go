package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"planner/internal/core/job"
	"planner/internal/logger"
	"planner/internal/platform/eino"
	"planner/internal/platform/storage"
)

// Renderer turns a task name and its variables into a system instruction and
// a user prompt.
type Renderer interface {
	Render(ctx context.Context, taskName string, vars map[string]any) (system, user string, err error)
}

// Executor runs one named generation task. It never retries; the workflow
// engine owns retries.
type Executor struct {
	gen     eino.Generator
	prompts Renderer
	blobs   storage.BlobStore
	log     *logger.Logger
}

func New(gen eino.Generator, prompts Renderer, blobs storage.BlobStore) *Executor {
	return &Executor{gen: gen, prompts: prompts, blobs: blobs, log: logger.New("TaskExecutor")}
}

// Execute generates the text for taskName and stores it as
// jobs/{jobID}/{taskName}.md. An artifact left by an earlier attempt of the
// same task is returned as is, so the result always matches what is stored.
func (e *Executor) Execute(ctx context.Context, jobID, taskName, inputData string) (*job.TaskResult, error) {
	log := e.log.ForJob(jobID)
	name := taskName + ".md"

	system, prompt, err := e.prompts.Render(ctx, taskName, map[string]any{"input": inputData})
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskName, err)
	}

	stored, ref, found, err := Load(ctx, e.blobs, jobID, name)
	if err != nil {
		return nil, err
	}
	if found {
		log.LogInfof("Reusing %s from an earlier attempt", name)
		return result(taskName, string(stored), map[string]any{"reused": true}, ref), nil
	}

	log.LogDebugf("Generating %s", taskName)
	gen, err := e.gen.Generate(eino.WithTask(ctx, taskName), prompt, system)
	if err != nil {
		return nil, &job.ExternalServiceError{Service: "generation", Op: taskName, Err: err}
	}
	if gen == nil || strings.TrimSpace(gen.Content) == "" {
		return nil, &job.ExternalServiceError{Service: "generation", Op: taskName, Err: eino.ErrEmptyResponse}
	}

	stored, ref, err = Store(ctx, e.blobs, log, jobID, name, []byte(gen.Content), storage.ContentTypeMarkdown)
	if err != nil {
		return nil, err
	}

	log.LogSuccessf("Task %s generated %d chars", taskName, len(stored))
	return result(taskName, string(stored), gen.Metadata, ref), nil
}

func result(taskName, content string, metadata map[string]any, ref string) *job.TaskResult {
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["content_length"] = len(content)
	return &job.TaskResult{
		TaskName:    taskName,
		Content:     content,
		Metadata:    meta,
		ArtifactRef: ref,
	}
}

// Load reads one job artifact. found is false when no attempt has stored it
// yet, or when there is no blob store.
func Load(ctx context.Context, blobs storage.BlobStore, jobID, name string) (content []byte, ref string, found bool, err error) {
	if blobs == nil {
		return nil, "", false, nil
	}
	key := storage.ArtifactKey(jobID, name)
	content, ref, err = blobs.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, &job.ExternalServiceError{Service: "blob store", Op: "get " + key, Err: err}
	}
	return content, ref, true, nil
}

// Store writes one job artifact and returns what the blob store holds for it.
// When a concurrent attempt wrote the key first, its content wins.
func Store(ctx context.Context, blobs storage.BlobStore, log *logger.Logger, jobID, name string, content []byte, contentType string) ([]byte, string, error) {
	if blobs == nil {
		return content, "", nil
	}
	key := storage.ArtifactKey(jobID, name)
	ref, err := blobs.Put(ctx, key, content, contentType)
	if errors.Is(err, storage.ErrExists) {
		log.LogWarnf("Artifact %s already stored by another attempt", key)
		stored, storedRef, found, lerr := Load(ctx, blobs, jobID, name)
		if lerr != nil {
			return nil, "", lerr
		}
		if found {
			return stored, storedRef, nil
		}
		err = fmt.Errorf("%s vanished after a conflicting write: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, "", &job.ExternalServiceError{Service: "blob store", Op: "put " + key, Err: err}
	}
	return content, ref, nil
}

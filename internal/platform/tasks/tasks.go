package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"planner/internal/platform/redis"

	"github.com/hibiken/asynq"
)

const (
	TypeRunTask     = "planner:task"
	TypeConsolidate = "planner:consolidate"

	QueueDefault = "default"
)

// RunTaskPayload asks a worker to generate one named task of a job.
type RunTaskPayload struct {
	JobID     string `json:"job_id"`
	JobType   string `json:"job_type"`
	TaskName  string `json:"task_name"`
	InputData string `json:"input_data"`
}

// ConsolidatePayload asks a worker to merge a fan-out job's task results.
type ConsolidatePayload struct {
	JobID string `json:"job_id"`
}

func NewRunTask(p RunTaskPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRunTask, b), nil
}

func NewConsolidateTask(p ConsolidatePayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeConsolidate, b), nil
}

// Decode unmarshals a task payload. Malformed payloads are never retried.
func Decode(t *asynq.Task, dest interface{}) error {
	if err := json.Unmarshal(t.Payload(), dest); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

type Client struct{ c *asynq.Client }

func New(r *redis.Service) *Client { return &Client{c: asynq.NewClient(r.AsynqRedisOpt())} }

func (t *Client) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	_, err := t.c.EnqueueContext(ctx, task, opts...)
	return err
}

func (t *Client) Close() error { return t.c.Close() }

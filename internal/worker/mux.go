package worker

import (
	"context"
	"fmt"
	"time"

	"planner/internal/logger"
	"planner/internal/platform/tasks"

	"github.com/hibiken/asynq"
)

// Mux wraps asynq's ServeMux and logs every task it runs.
type Mux struct {
	mux *asynq.ServeMux
	log *logger.Logger
}

func NewMux() *Mux {
	m := &Mux{mux: asynq.NewServeMux(), log: logger.New("Worker")}
	m.mux.Use(m.logging)
	return m
}

func (m *Mux) HandleFunc(t string, h func(ctx context.Context, task *asynq.Task) error) {
	m.mux.HandleFunc(t, h)
}

func (m *Mux) Mux() *asynq.ServeMux { return m.mux }

func (m *Mux) logging(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		started := time.Now()
		id, _ := asynq.GetTaskID(ctx)
		retried, _ := asynq.GetRetryCount(ctx)
		err := next.ProcessTask(ctx, t)
		if err != nil {
			m.log.LogWarnf("%s %s failed after %v (retry %d): %v", t.Type(), id, time.Since(started), retried, err)
			return err
		}
		m.log.LogDebugf("%s %s done in %v", t.Type(), id, time.Since(started))
		return nil
	})
}

// NewServer builds the asynq server that runs the mux.
func NewServer(opt asynq.RedisConnOpt, concurrency int) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{tasks.QueueDefault: 1},
		Logger:      &asynqLogger{log: logger.New("Asynq")},
	})
}

// asynqLogger routes asynq's own logs into zerolog.
type asynqLogger struct{ log *logger.Logger }

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }

package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"planner/internal/logger"
	rds "planner/internal/platform/redis"

	redisv8 "github.com/go-redis/redis/v8"
)

const maxTxRetries = 10

// RedisStore keeps each job as JSON under job:{id}, a per-user sorted index
// and a per-job hash of task reports. Every mutation publishes "updated" on
// the job's key so listeners can follow progress.
type RedisStore struct {
	redis *rds.Service
	log   *logger.Logger
}

func NewRedisStore(r *rds.Service) *RedisStore {
	return &RedisStore{redis: r, log: logger.New("RedisJobStore")}
}

func key(id string) string         { return "job:" + id }
func tasksKey(id string) string    { return "job:" + id + ":tasks" }
func userKey(userID string) string { return "user:" + userID + ":jobs" }

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := s.redis.CacheGet(ctx, key(id), &j); err != nil {
		if rds.IsNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &j, nil
}

func (s *RedisStore) Put(ctx context.Context, j *Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	_, err = s.redis.Client().TxPipelined(ctx, func(pipe redisv8.Pipeliner) error {
		pipe.Set(ctx, key(j.ID), b, 0)
		pipe.ZAdd(ctx, userKey(j.UserID), &redisv8.Z{Score: float64(j.CreatedAt.UnixNano()), Member: j.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("put job %s: %w", j.ID, err)
	}
	s.redis.Publish(ctx, key(j.ID), "updated")
	return nil
}

// Update runs apply inside WATCH/MULTI and retries when another writer got
// there first.
func (s *RedisStore) Update(ctx context.Context, id string, p Patch) (*Job, error) {
	var updated *Job
	txf := func(tx *redisv8.Tx) error {
		b, err := tx.Get(ctx, key(id)).Bytes()
		if err != nil {
			if rds.IsNil(err) {
				return ErrNotFound
			}
			return err
		}
		var j Job
		if err := json.Unmarshal(b, &j); err != nil {
			return fmt.Errorf("decode job %s: %w", id, err)
		}
		if err := apply(&j, p, now()); err != nil {
			return err
		}
		nb, err := json.Marshal(&j)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redisv8.Pipeliner) error {
			pipe.Set(ctx, key(id), nb, 0)
			return nil
		})
		if err == nil {
			updated = &j
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Client().Watch(ctx, txf, key(id))
		if errors.Is(err, redisv8.TxFailedErr) {
			s.log.LogDebugf("update job %s: optimistic lock lost, retrying", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		s.redis.Publish(ctx, key(id), "updated")
		return updated, nil
	}
	return nil, fmt.Errorf("update job %s: %w", id, ErrStageConflict)
}

func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]*Job, error) {
	ids, err := s.redis.Client().ZRevRange(ctx, userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", userID, err)
	}
	out := make([]*Job, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	vals, err := s.redis.Client().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load jobs for %s: %w", userID, err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var j Job
		if err := json.Unmarshal([]byte(raw), &j); err != nil {
			s.log.LogWarnf("skipping undecodable job %s: %v", ids[i], err)
			continue
		}
		out = append(out, &j)
	}
	// scores lose sub-microsecond precision as float64
	sortRecentFirst(out)
	return out, nil
}

func (s *RedisStore) RecordTask(ctx context.Context, jobID string, rec TaskRecord) (bool, error) {
	n, err := s.redis.Client().Exists(ctx, key(jobID)).Result()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrNotFound
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	applied, err := s.redis.Client().HSetNX(ctx, tasksKey(jobID), rec.TaskName, b).Result()
	if err != nil {
		return false, fmt.Errorf("record task %s/%s: %w", jobID, rec.TaskName, err)
	}
	if applied {
		s.redis.Publish(ctx, key(jobID), "updated")
	}
	return applied, nil
}

func (s *RedisStore) Tasks(ctx context.Context, jobID string) (map[string]TaskRecord, error) {
	raw, err := s.redis.Client().HGetAll(ctx, tasksKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load tasks for %s: %w", jobID, err)
	}
	out := make(map[string]TaskRecord, len(raw))
	for name, v := range raw {
		var rec TaskRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode task %s/%s: %w", jobID, name, err)
		}
		out[name] = rec
	}
	return out, nil
}

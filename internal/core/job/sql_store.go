package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// jobRecord is the table row for a Job. Output is kept as a JSON column so
// both variants fit one schema.
type jobRecord struct {
	ID                  string `gorm:"primaryKey;size:36"`
	UserID              string `gorm:"index;not null"`
	Name                string
	Type                string `gorm:"not null"`
	Status              string `gorm:"not null"`
	Stage               string `gorm:"not null"`
	InputData           string `gorm:"type:text"`
	Output              string `gorm:"type:text"`
	ErrorMessage        string `gorm:"type:text"`
	ArtifactRef         string
	EstimatedDurationMs int64
	ActualDurationMs    *int64
	CreatedAt           time.Time `gorm:"index;autoCreateTime:false"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime:false"`
	CompletedAt         *time.Time
	Version             int64 `gorm:"not null;default:0"`
}

func (jobRecord) TableName() string { return "jobs" }

type taskRecordRow struct {
	JobID       string `gorm:"primaryKey;size:36"`
	TaskName    string `gorm:"primaryKey;size:64"`
	Succeeded   bool
	Content     string `gorm:"type:text"`
	Metadata    string `gorm:"type:text"`
	ArtifactRef string
	Error       string `gorm:"type:text"`
	ReportedAt  time.Time
}

func (taskRecordRow) TableName() string { return "job_tasks" }

func toRecord(j *Job) (jobRecord, error) {
	rec := jobRecord{
		ID:                  j.ID,
		UserID:              j.UserID,
		Name:                j.Name,
		Type:                string(j.Type),
		Status:              string(j.Status),
		Stage:               string(j.Stage),
		InputData:           j.InputData,
		ErrorMessage:        j.ErrorMessage,
		ArtifactRef:         j.ArtifactRef,
		EstimatedDurationMs: j.EstimatedDurationMs,
		ActualDurationMs:    j.ActualDurationMs,
		CreatedAt:           j.CreatedAt,
		UpdatedAt:           j.UpdatedAt,
		CompletedAt:         j.CompletedAt,
	}
	if j.Output != nil {
		b, err := json.Marshal(j.Output)
		if err != nil {
			return rec, err
		}
		rec.Output = string(b)
	}
	return rec, nil
}

func (r jobRecord) toJob() (*Job, error) {
	j := &Job{
		ID:                  r.ID,
		UserID:              r.UserID,
		Name:                r.Name,
		Type:                Type(r.Type),
		Status:              Status(r.Status),
		Stage:               Stage(r.Stage),
		InputData:           r.InputData,
		ErrorMessage:        r.ErrorMessage,
		ArtifactRef:         r.ArtifactRef,
		EstimatedDurationMs: r.EstimatedDurationMs,
		ActualDurationMs:    r.ActualDurationMs,
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
	if r.CompletedAt != nil {
		t := r.CompletedAt.UTC()
		j.CompletedAt = &t
	}
	if r.Output != "" {
		var out Output
		if err := json.Unmarshal([]byte(r.Output), &out); err != nil {
			return nil, fmt.Errorf("decode output of job %s: %w", r.ID, err)
		}
		j.Output = &out
	}
	return j, nil
}

var errVersionConflict = errors.New("job row version changed")

// SQLStore keeps jobs in a relational table through gorm. Updates use a
// version column for optimistic locking.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore migrates the schema and returns the store.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&jobRecord{}, &taskRecordRow{}); err != nil {
		return nil, fmt.Errorf("migrate job tables: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Job, error) {
	var rec jobRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec.toJob()
}

func (s *SQLStore) Put(ctx context.Context, j *Job) error {
	rec, err := toRecord(j)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing jobRecord
		err := tx.Select("version").First(&existing, "id = ?", j.ID).Error
		switch {
		case err == nil:
			rec.Version = existing.Version + 1
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}
		return tx.Save(&rec).Error
	})
}

func (s *SQLStore) Update(ctx context.Context, id string, p Patch) (*Job, error) {
	for i := 0; i < maxTxRetries; i++ {
		var updated *Job
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var rec jobRecord
			if err := tx.First(&rec, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			j, err := rec.toJob()
			if err != nil {
				return err
			}
			if err := apply(j, p, now()); err != nil {
				return err
			}
			next, err := toRecord(j)
			if err != nil {
				return err
			}
			next.Version = rec.Version + 1
			res := tx.Model(&jobRecord{}).
				Where("id = ? AND version = ?", id, rec.Version).
				Select("*").
				Updates(&next)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errVersionConflict
			}
			updated = j
			return nil
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update job %s: %w", id, ErrStageConflict)
}

func (s *SQLStore) ListByUser(ctx context.Context, userID string) ([]*Job, error) {
	var recs []jobRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(recs))
	for _, rec := range recs {
		j, err := rec.toJob()
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func (s *SQLStore) RecordTask(ctx context.Context, jobID string, rec TaskRecord) (bool, error) {
	meta := ""
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return false, err
		}
		meta = string(b)
	}
	row := taskRecordRow{
		JobID:       jobID,
		TaskName:    rec.TaskName,
		Succeeded:   rec.Succeeded,
		Content:     rec.Content,
		Metadata:    meta,
		ArtifactRef: rec.ArtifactRef,
		Error:       rec.Error,
		ReportedAt:  rec.ReportedAt,
	}

	var applied bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&jobRecord{}).Where("id = ?", jobID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected > 0
		return nil
	})
	return applied, err
}

func (s *SQLStore) Tasks(ctx context.Context, jobID string) (map[string]TaskRecord, error) {
	var rows []taskRecordRow
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]TaskRecord, len(rows))
	for _, r := range rows {
		rec := TaskRecord{
			TaskName:    r.TaskName,
			Succeeded:   r.Succeeded,
			Content:     r.Content,
			ArtifactRef: r.ArtifactRef,
			Error:       r.Error,
			ReportedAt:  r.ReportedAt.UTC(),
		}
		if r.Metadata != "" {
			if err := json.Unmarshal([]byte(r.Metadata), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode task metadata %s/%s: %w", jobID, r.TaskName, err)
			}
		}
		out[r.TaskName] = rec
	}
	return out, nil
}

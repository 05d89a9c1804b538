package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"planner/internal/core/job"
	"planner/internal/logger"
)

const (
	HeaderEvent     = "X-Planner-Event"
	HeaderJobID     = "X-Planner-Job-ID"
	HeaderTimestamp = "X-System-Timestamp"
	HeaderSignature = "X-System-Signature"
)

// Payload is the webhook body sent when a job finishes.
type Payload struct {
	JobID        string     `json:"job_id"`
	UserID       string     `json:"user_id"`
	Type         job.Type   `json:"type"`
	Status       job.Status `json:"status"`
	ArtifactRef  string     `json:"artifact_ref,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	DurationMs   *int64     `json:"duration_ms,omitempty"`
}

// Webhook posts terminal job events to a fixed URL, signed with HMAC-SHA256
// over timestamp+body when a secret is configured.
type Webhook struct {
	url    string
	secret string
	client *http.Client
	log    *logger.Logger
	now    func() time.Time
}

func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger.New("Webhook"),
		now:    time.Now,
	}
}

func (w *Webhook) Notify(ctx context.Context, j *job.Job) error {
	body, err := json.Marshal(Payload{
		JobID:        j.ID,
		UserID:       j.UserID,
		Type:         j.Type,
		Status:       j.Status,
		ArtifactRef:  j.ArtifactRef,
		ErrorMessage: j.ErrorMessage,
		DurationMs:   j.ActualDurationMs,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Planner-Engine/1.0")
	req.Header.Set(HeaderEvent, "job."+string(j.Stage))
	req.Header.Set(HeaderJobID, j.ID)
	if w.secret != "" {
		ts := strconv.FormatInt(w.now().Unix(), 10)
		req.Header.Set(HeaderTimestamp, ts)
		req.Header.Set(HeaderSignature, Sign(w.secret, ts, body))
	} else {
		w.log.LogDebugf("System auth secret not configured, sending unsigned webhook")
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook for job %s: %w", j.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d for job %s", resp.StatusCode, j.ID)
	}
	w.log.ForJob(j.ID).LogInfof("Sent webhook (status: %d)", resp.StatusCode)
	return nil
}

// Sign returns the hex HMAC-SHA256 of timestamp followed by body.
func Sign(secret, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

package job

import (
	"errors"
	"fmt"
	"strings"

	"planner/internal/logger"
	"planner/internal/utils/parser"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	jobs *Manager
	log  *logger.Logger
}

func NewHandler(jobs *Manager) *Handler {
	return &Handler{jobs: jobs, log: logger.New("JobHandler")}
}

type CreateRequest struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	JobType   string `json:"job_type"`
	InputData string `json:"input_data"`
}

type ReportRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid body")
	}
	j, err := h.jobs.CreateJob(c.UserContext(), req.UserID, req.Name, Type(req.JobType), req.InputData)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true, "job_id": j.ID, "job": j})
}

func (h *Handler) HandleGet(c *fiber.Ctx) error {
	j, err := h.jobs.GetJob(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "job": j})
}

// ListQuery filters GET /v1/jobs.
type ListQuery struct {
	UserID string   `form:"user_id"`
	Status []string `form:"status"`
	Limit  int      `form:"limit"`
}

func (h *Handler) HandleList(c *fiber.Ctx) error {
	var q ListQuery
	if err := parser.BindQuery(c, &q); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err.Error())
	}
	if q.Limit < 0 {
		return errorResponse(c, fiber.StatusBadRequest, "limit must not be negative")
	}
	want := make(map[Status]bool, len(q.Status))
	for _, s := range q.Status {
		st := Status(strings.ToUpper(s))
		if st != StatusPending && st != StatusCompleted && st != StatusFailed {
			return errorResponse(c, fiber.StatusBadRequest, fmt.Sprintf("unknown status %q", s))
		}
		want[st] = true
	}

	jobs, err := h.jobs.ListJobsForUser(c.UserContext(), q.UserID)
	if err != nil {
		return h.writeError(c, err)
	}
	out := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		if len(want) > 0 && !want[j.Status] {
			continue
		}
		out = append(out, j)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return c.JSON(fiber.Map{"success": true, "jobs": out})
}

func (h *Handler) HandleReportTask(c *fiber.Ctx) error {
	var req ReportRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid body")
	}
	err := h.jobs.ReportTaskResult(c.UserContext(), c.Params("jobId"), c.Params("taskName"), req.Content, req.Metadata)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true})
}

func (h *Handler) writeError(c *fiber.Ctx, err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return errorResponse(c, fiber.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrNotFound):
		return errorResponse(c, fiber.StatusNotFound, "not_found")
	default:
		h.log.LogErrorf("request %s %s failed: %v", c.Method(), c.Path(), err)
		return errorResponse(c, fiber.StatusInternalServerError, err.Error())
	}
}

func errorResponse(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "error": msg})
}

// Package handlers provides HTTP request handlers for the pingscan API.
// This file implements schedule listing, activation and manual runs.
package handlers

import (
	"net/http"
	"time"

	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/jobs"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/schedule"
)

// ScheduleManager is the part of schedule.Scheduler the handlers use.
type ScheduleManager interface {
	Jobs() []schedule.Info
	Enable(name string) error
	Disable(name string) error
	RunNow(name string) (*jobs.ScanJob, error)
}

// ScheduleHandler handles schedule-related API endpoints.
type ScheduleHandler struct {
	scheduler ScheduleManager
	logger    *logging.Logger
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(scheduler ScheduleManager, logger *logging.Logger) *ScheduleHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ScheduleHandler{
		scheduler: scheduler,
		logger:    logger.WithComponent("schedule_handler"),
	}
}

// ListSchedules handles GET /schedules.
func (h *ScheduleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	params, err := getPaginationParams(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	infos := h.scheduler.Jobs()
	start, end := paginate(params, len(infos))
	writePaginatedResponse(w, r, infos[start:end], params, len(infos))
}

// GetSchedule handles GET /schedules/{name}.
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	name, err := extractStringFromPath(r, "name")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	for _, info := range h.scheduler.Jobs() {
		if info.Name == name {
			writeJSON(w, r, http.StatusOK, info)
			return
		}
	}
	writeCodedError(w, r, errors.ErrScheduleNotFound(name))
}

// EnableSchedule handles POST /schedules/{name}/enable.
func (h *ScheduleHandler) EnableSchedule(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

// DisableSchedule handles POST /schedules/{name}/disable.
func (h *ScheduleHandler) DisableSchedule(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *ScheduleHandler) toggle(w http.ResponseWriter, r *http.Request, enable bool) {
	name, err := extractStringFromPath(r, "name")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	status := "enabled"
	if enable {
		err = h.scheduler.Enable(name)
	} else {
		status = "disabled"
		err = h.scheduler.Disable(name)
	}
	if err != nil {
		writeCodedError(w, r, err)
		return
	}

	h.logger.Info("Schedule "+status,
		"request_id", requestID(r),
		"schedule", name)

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"name":       name,
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"request_id": requestID(r),
	})
}

// RunSchedule handles POST /schedules/{name}/run. A schedule whose last scan
// is still running answers 429.
func (h *ScheduleHandler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	name, err := extractStringFromPath(r, "name")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	job, err := h.scheduler.RunNow(name)
	if err != nil {
		writeCodedError(w, r, err)
		return
	}

	h.logger.Info("Schedule run requested",
		"request_id", requestID(r),
		"schedule", name,
		"scan_id", job.ID())

	w.Header().Set("Location", "/api/v1/scans/"+job.ID())
	writeJSON(w, r, http.StatusAccepted, ScanCreatedResponse{ID: job.ID(), Status: job.Status()})
}

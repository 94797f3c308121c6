// Package handlers provides HTTP request handlers for the pingscan API.
// This file implements scan submission, listing, retrieval and stopping.
package handlers

import (
	"net/http"
	"time"

	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/jobs"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/output"
	"github.com/anstrom/pingscan/internal/profiles"
)

// ScanManager is the part of jobs.Manager the scan handlers use.
type ScanManager interface {
	Submit(req jobs.Request) (*jobs.ScanJob, error)
	Get(id string) (*jobs.ScanJob, error)
	List() []*jobs.ScanJob
	Stop(id string) (bool, error)
}

// ScanHandler handles scan-related API endpoints.
type ScanHandler struct {
	manager  ScanManager
	profiles ProfileSource
	logger   *logging.Logger
}

// NewScanHandler creates a new scan handler. With a nil profile source,
// requests naming a profile are rejected.
func NewScanHandler(manager ScanManager, source ProfileSource, logger *logging.Logger) *ScanHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ScanHandler{
		manager:  manager,
		profiles: source,
		logger:   logger.WithComponent("scan_handler"),
	}
}

// ScanRequest is the body of POST /scans.
type ScanRequest struct {
	Name    string `json:"name,omitempty" validate:"max=255"`
	Targets string `json:"targets" validate:"required,max=4096"`
	// Services maps protocols to port specifications. Omitted means every
	// protocol with its default ports.
	Services map[string]string `json:"services,omitempty" validate:"omitempty,max=3,dive,keys,oneof=icmp tcp udp ICMP TCP UDP,endkeys,max=1024"`
	// Profile names a scan profile supplying services and timeout. It cannot
	// be combined with services.
	Profile string `json:"profile,omitempty" validate:"excluded_with=Services,max=64"`
	// Timeout is a Go duration string such as "750ms".
	Timeout string `json:"timeout,omitempty"`
	Workers int    `json:"workers,omitempty" validate:"gte=0,lte=65536"`
}

// ScanCreatedResponse is returned when a scan is accepted.
type ScanCreatedResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ScanDetailResponse is a scan with its result table.
type ScanDetailResponse struct {
	jobs.Info
	Results *output.Document `json:"results,omitempty"`
}

// StopResponse reports whether a stop request cancelled anything.
type StopResponse struct {
	ID      string `json:"id"`
	Stopped bool   `json:"stopped"`
	Status  string `json:"status"`
}

// CreateScan handles POST /scans.
func (h *ScanHandler) CreateScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := parseJSON(r, &req); err != nil {
		writeCodedError(w, r, err)
		return
	}

	var timeout time.Duration
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			writeCodedError(w, r, errors.NewScanError(errors.CodeValidation,
				"timeout must be a positive duration such as 500ms or 2s"))
			return
		}
		timeout = d
	}

	services := req.Services
	if req.Profile != "" {
		p, err := h.profile(req.Profile)
		if err != nil {
			writeCodedError(w, r, err)
			return
		}
		services = p.Services
		if timeout == 0 {
			timeout = p.Timeout
		}
	}

	job, err := h.manager.Submit(jobs.Request{
		Name:     req.Name,
		Source:   jobs.SourceAPI,
		Targets:  req.Targets,
		Services: services,
		Timeout:  timeout,
		Workers:  req.Workers,
	})
	if err != nil {
		h.logger.Warn("Scan rejected",
			"request_id", requestID(r),
			"targets", req.Targets,
			"error", err)
		writeCodedError(w, r, err)
		return
	}

	h.logger.Info("Scan accepted",
		"request_id", requestID(r),
		"scan_id", job.ID(),
		"targets", req.Targets,
		"profile", req.Profile)

	w.Header().Set("Location", "/api/v1/scans/"+job.ID())
	writeJSON(w, r, http.StatusAccepted, ScanCreatedResponse{ID: job.ID(), Status: job.Status()})
}

// ListScans handles GET /scans. Scans are listed oldest first.
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	params, err := getPaginationParams(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	all := h.manager.List()
	status := r.URL.Query().Get("status")

	infos := make([]jobs.Info, 0, len(all))
	for _, job := range all {
		info := job.Info()
		if status != "" && info.Status != status {
			continue
		}
		infos = append(infos, info)
	}

	start, end := paginate(params, len(infos))
	writePaginatedResponse(w, r, infos[start:end], params, len(infos))
}

// GetScan handles GET /scans/{id}.
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	response := ScanDetailResponse{Info: job.Info()}
	if snap := job.Results(); snap != nil {
		doc := output.NewDocument(snap)
		response.Results = &doc
	}
	writeJSON(w, r, http.StatusOK, response)
}

// StopScan handles DELETE /scans/{id}. Stopping a finished scan is not an
// error; the response says nothing was stopped.
func (h *ScanHandler) StopScan(w http.ResponseWriter, r *http.Request) {
	id, err := extractStringFromPath(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	stopped, err := h.manager.Stop(id)
	if err != nil {
		writeCodedError(w, r, err)
		return
	}

	status := ""
	if job, err := h.manager.Get(id); err == nil {
		status = job.Status()
	}

	h.logger.Info("Scan stop requested",
		"request_id", requestID(r),
		"scan_id", id,
		"stopped", stopped)

	writeJSON(w, r, http.StatusOK, StopResponse{ID: id, Stopped: stopped, Status: status})
}

// profile looks up a profile; an unknown name is a validation error since it
// is part of the request body.
func (h *ScanHandler) profile(name string) (*profiles.Profile, error) {
	if h.profiles == nil {
		return nil, errors.NewScanErrorWithTarget(errors.CodeValidation, "profiles are not available", name)
	}
	p, err := h.profiles.Get(name)
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeValidation, "unknown profile "+name, err)
	}
	return p, nil
}

func (h *ScanHandler) lookup(w http.ResponseWriter, r *http.Request) (*jobs.ScanJob, bool) {
	id, err := extractStringFromPath(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return nil, false
	}

	job, err := h.manager.Get(id)
	if err != nil {
		writeCodedError(w, r, err)
		return nil, false
	}
	return job, true
}

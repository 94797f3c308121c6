// Package handlers provides HTTP request handlers for the pingscan API.
// This file implements scan profile listing and retrieval.
package handlers

import (
	"net/http"

	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/profiles"
)

// ProfileSource is the part of profiles.Manager the handlers use.
type ProfileSource interface {
	GetAll() []*profiles.Profile
	Get(name string) (*profiles.Profile, error)
}

// ProfileHandler handles profile-related API endpoints.
type ProfileHandler struct {
	profiles ProfileSource
	logger   *logging.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(source ProfileSource, logger *logging.Logger) *ProfileHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ProfileHandler{
		profiles: source,
		logger:   logger.WithComponent("profile_handler"),
	}
}

// ListProfiles handles GET /profiles.
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	params, err := getPaginationParams(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	all := h.profiles.GetAll()
	start, end := paginate(params, len(all))
	writePaginatedResponse(w, r, all[start:end], params, len(all))
}

// GetProfile handles GET /profiles/{name}.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	name, err := extractStringFromPath(r, "name")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	p, err := h.profiles.Get(name)
	if err != nil {
		writeCodedError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// Package docs holds the swaggo annotations of the pingscan HTTP API.
//
// The operations below are stubs that only carry annotations; the handlers
// live in internal/api/handlers. Run `go generate ./docs` after changing an
// endpoint to refresh the generated spec in docs/swagger.
//
//go:generate swag init -g swagger_docs.go -o ./swagger --parseDependency --parseInternal
package docs

import "net/http"

// @title pingscan API
// @version 1.0
// @description Concurrent ICMP, TCP and UDP reachability scanning.
// @description
// @description Scans are queued on submission and run by a fixed number of workers.
// @description Poll a scan for its live result table, or stream snapshots over a
// @description WebSocket until it finishes. Probe failures are part of the results,
// @description not errors: a refused TCP connection marks the port closed and the
// @description host up.
//
// @contact.name pingscan
// @contact.url https://github.com/anstrom/pingscan
//
// @license.name MIT
// @license.url https://github.com/anstrom/pingscan/blob/main/LICENSE
//
// @host localhost:8080
// @BasePath /api/v1

// Liveness godoc
// @Summary Liveness probe
// @Tags System
// @Produce json
// @Success 200 {object} handlers.LivenessResponse
// @Router /liveness [get]
// @ID liveness
func Liveness(_ http.ResponseWriter, _ *http.Request) {}

// Health godoc
// @Summary Engine health
// @Description Reports queue depth, running scans and stalled probes. The status is
// @Description degraded while any probe has been in flight for far longer than its timeout.
// @Tags System
// @Produce json
// @Success 200 {object} handlers.HealthResponse
// @Failure 503 {object} handlers.HealthResponse
// @Router /health [get]
// @ID health
func Health(_ http.ResponseWriter, _ *http.Request) {}

// Version godoc
// @Summary Build information
// @Tags System
// @Produce json
// @Success 200 {object} handlers.VersionResponse
// @Router /version [get]
// @ID version
func Version(_ http.ResponseWriter, _ *http.Request) {}

// ListScans godoc
// @Summary List scans
// @Tags Scans
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page" default(50) maximum(1000)
// @Param status query string false "Only scans in this status" Enums(queued, running, completed, stopped)
// @Success 200 {object} handlers.PaginatedResponse{data=[]jobs.Info}
// @Router /scans [get]
// @ID listScans
func ListScans(_ http.ResponseWriter, _ *http.Request) {}

// CreateScan godoc
// @Summary Submit a scan
// @Description Targets is a host specification: addresses, hostnames, octet ranges
// @Description and CIDR blocks separated by commas. Services maps a protocol to a
// @Description port specification; an empty specification uses the protocol defaults
// @Description and omitting services scans every protocol. Profile names a scan
// @Description profile instead of services.
// @Tags Scans
// @Accept json
// @Produce json
// @Param scan body handlers.ScanRequest true "Scan to run"
// @Success 202 {object} handlers.ScanCreatedResponse
// @Header 202 {string} Location "URL of the new scan"
// @Failure 400 {object} handlers.ErrorResponse
// @Failure 429 {object} handlers.ErrorResponse "Queue full"
// @Router /scans [post]
// @ID createScan
func CreateScan(_ http.ResponseWriter, _ *http.Request) {}

// GetScan godoc
// @Summary Scan status and results
// @Tags Scans
// @Produce json
// @Param id path string true "Scan ID" format(uuid)
// @Success 200 {object} handlers.ScanDetailResponse
// @Failure 404 {object} handlers.ErrorResponse
// @Router /scans/{id} [get]
// @ID getScan
func GetScan(_ http.ResponseWriter, _ *http.Request) {}

// StopScan godoc
// @Summary Stop a scan
// @Description Stopping is best effort: probes already in flight run until their
// @Description timeout and unfinished slots stay pending.
// @Tags Scans
// @Produce json
// @Param id path string true "Scan ID" format(uuid)
// @Success 200 {object} handlers.StopResponse
// @Failure 404 {object} handlers.ErrorResponse
// @Router /scans/{id} [delete]
// @ID stopScan
func StopScan(_ http.ResponseWriter, _ *http.Request) {}

// StreamScan godoc
// @Summary Stream scan snapshots
// @Description Upgrades to a WebSocket and pushes scan_update messages at a fixed
// @Description interval, then one scan_complete message carrying the final results.
// @Tags Scans
// @Param id path string true "Scan ID" format(uuid)
// @Success 101 {object} handlers.WebSocketMessage
// @Failure 404 {object} handlers.ErrorResponse
// @Router /scans/{id}/stream [get]
// @ID streamScan
func StreamScan(_ http.ResponseWriter, _ *http.Request) {}

// ListProfiles godoc
// @Summary List scan profiles
// @Description Built-in profiles come first, followed by those of the config file.
// @Tags Profiles
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page" default(50) maximum(1000)
// @Success 200 {object} handlers.PaginatedResponse{data=[]profiles.Profile}
// @Router /profiles [get]
// @ID listProfiles
func ListProfiles(_ http.ResponseWriter, _ *http.Request) {}

// GetProfile godoc
// @Summary Get a scan profile
// @Tags Profiles
// @Produce json
// @Param name path string true "Profile name"
// @Success 200 {object} profiles.Profile
// @Failure 404 {object} handlers.ErrorResponse
// @Router /profiles/{name} [get]
// @ID getProfile
func GetProfile(_ http.ResponseWriter, _ *http.Request) {}

// ListSchedules godoc
// @Summary List scheduled scans
// @Tags Schedules
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page" default(50) maximum(1000)
// @Success 200 {object} handlers.PaginatedResponse{data=[]schedule.Info}
// @Router /schedules [get]
// @ID listSchedules
func ListSchedules(_ http.ResponseWriter, _ *http.Request) {}

// GetSchedule godoc
// @Summary Get a scheduled scan
// @Tags Schedules
// @Produce json
// @Param name path string true "Schedule name"
// @Success 200 {object} schedule.Info
// @Failure 404 {object} handlers.ErrorResponse
// @Router /schedules/{name} [get]
// @ID getSchedule
func GetSchedule(_ http.ResponseWriter, _ *http.Request) {}

// EnableSchedule godoc
// @Summary Enable a scheduled scan
// @Tags Schedules
// @Produce json
// @Param name path string true "Schedule name"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} handlers.ErrorResponse
// @Router /schedules/{name}/enable [post]
// @ID enableSchedule
func EnableSchedule(_ http.ResponseWriter, _ *http.Request) {}

// DisableSchedule godoc
// @Summary Disable a scheduled scan
// @Tags Schedules
// @Produce json
// @Param name path string true "Schedule name"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} handlers.ErrorResponse
// @Router /schedules/{name}/disable [post]
// @ID disableSchedule
func DisableSchedule(_ http.ResponseWriter, _ *http.Request) {}

// RunSchedule godoc
// @Summary Run a scheduled scan now
// @Tags Schedules
// @Produce json
// @Param name path string true "Schedule name"
// @Success 202 {object} handlers.ScanCreatedResponse
// @Failure 404 {object} handlers.ErrorResponse
// @Failure 429 {object} handlers.ErrorResponse "Previous run still in progress"
// @Router /schedules/{name}/run [post]
// @ID runSchedule
func RunSchedule(_ http.ResponseWriter, _ *http.Request) {}

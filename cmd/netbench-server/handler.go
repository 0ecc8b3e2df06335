package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"netbench/pkg/bench"
	"netbench/pkg/config"
)

// APIHandler exposes the run manager over HTTP.
type APIHandler struct {
	manager   *bench.Manager
	logger    zerolog.Logger
	startTime time.Time
}

// StartRunRequest starts a benchmark run on this host. Omitted config
// fields keep their defaults.
type StartRunRequest struct {
	RunID  string        `json:"run_id" binding:"required"`
	Config config.Config `json:"config"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthCheck reports server liveness.
func (h *APIHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    int(time.Since(h.startTime).Seconds()),
		"version":   "1.0.0",
	})
}

// StartRun launches a new benchmark run.
func (h *APIHandler) StartRun(c *gin.Context) {
	request := StartRunRequest{Config: config.Default()}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	if !request.Config.Sender && !request.Config.Receiver {
		request.Config.Sender = true
		request.Config.Receiver = true
	}

	if err := h.manager.StartRun(request.RunID, request.Config); err != nil {
		statusCode := http.StatusInternalServerError
		errorType := "internal_error"
		if strings.Contains(err.Error(), "already") {
			statusCode = http.StatusConflict
			errorType = "run_exists"
		}

		c.JSON(statusCode, ErrorResponse{
			Error:     errorType,
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	h.logger.Info().Str("run_id", request.RunID).Msg("run started")

	status, err := h.manager.GetRun(request.RunID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "internal_error",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusCreated, status)
}

// StopRun ends a run and returns its report. Stopping a completed run is
// idempotent.
func (h *APIHandler) StopRun(c *gin.Context) {
	runID := c.Param("id")

	report, err := h.manager.StopRun(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "run_not_found",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	h.logger.Info().Str("run_id", runID).Msg("run stopped")
	c.JSON(http.StatusOK, report)
}

// GetRun returns live progress for the active run or the summary view of
// a completed one.
func (h *APIHandler) GetRun(c *gin.Context) {
	status, err := h.manager.GetRun(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "run_not_found",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetReport returns the full persisted report of a completed run.
func (h *APIHandler) GetReport(c *gin.Context) {
	report, err := h.manager.GetReport(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "report_not_found",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// ListRuns returns the active run followed by all stored runs.
func (h *APIHandler) ListRuns(c *gin.Context) {
	runs, err := h.manager.ListRuns()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "internal_error",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

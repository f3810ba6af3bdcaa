// handlers_health.go - Liveness and worker summary
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Discoverers int    `json:"discoverers"`
	Ingesters   int    `json:"ingesters"`
	Storage     int    `json:"storage"`
}

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	coord   Coordinator
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, coord Coordinator) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		coord:   coord,
	}
}

// HandleHealth reports the server version and how many workers and datasets it knows.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Version: h.version}
	if h.coord != nil {
		report := h.coord.Status()
		resp.Discoverers = len(report.Discoverers)
		resp.Ingesters = len(report.Ingesters)
		resp.Storage = len(report.Storage)
	}
	return c.JSON(http.StatusOK, resp)
}

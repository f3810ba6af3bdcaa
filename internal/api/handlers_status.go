// handlers_status.go - Coordinator status handlers
package api

import (
	"net/http"

	"github.com/datamart/webapp/internal/web"
	"github.com/labstack/echo/v4"
)

// StatusHandlerImpl implements the StatusHandler interface
type StatusHandlerImpl struct {
	coordinator    Coordinator
	refreshSeconds int
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(coordinator Coordinator, refreshSeconds int) StatusHandler {
	return &StatusHandlerImpl{
		coordinator:    coordinator,
		refreshSeconds: refreshSeconds,
	}
}

// HandleStatus returns connected workers, recent discoveries and local storage
func (h *StatusHandlerImpl) HandleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.coordinator.Status())
}

// HandleStatistics returns recent discoveries and per-source counts. It is
// readable from any origin.
func (h *StatusHandlerImpl) HandleStatistics(c echo.Context) error {
	header := c.Response().Header()
	header.Set(echo.HeaderAccessControlAllowOrigin, "*")
	header.Set(echo.HeaderAccessControlAllowMethods, http.MethodGet)
	return c.JSON(http.StatusOK, h.coordinator.Statistics())
}

// HandleDashboard renders the status page
func (h *StatusHandlerImpl) HandleDashboard(c echo.Context) error {
	data := web.NewDashboard(h.coordinator.Status(), h.coordinator.Statistics(), h.refreshSeconds)
	return c.Render(http.StatusOK, web.DashboardTemplate, data)
}

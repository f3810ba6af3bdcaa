// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/datamart/webapp/internal/models"
	"github.com/datamart/webapp/internal/upload"
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// StatusHandler serves the coordinator state
type StatusHandler interface {
	HandleStatus(c echo.Context) error
	HandleStatistics(c echo.Context) error
	HandleDashboard(c echo.Context) error
}

// DatasetHandler handles profiling, upload and download of datasets
type DatasetHandler interface {
	HandleProfile(c echo.Context) error
	HandleUpload(c echo.Context) error
	HandleUploadStatus(c echo.Context) error
	HandleDownload(c echo.Context) error
}

// WorkerHandler accepts worker registrations
type WorkerHandler interface {
	HandleWorkerSocket(c echo.Context) error
}

// Coordinator is the state behind the status endpoints.
type Coordinator interface {
	Status() *models.StatusReport
	Statistics() *models.Statistics
	Register(kind, name, info string) (uint64, error)
	Unregister(id uint64)
}

// Profiler profiles CSV data.
type Profiler interface {
	Profile(ctx context.Context, r io.Reader) (*models.ProfileData, error)
}

// UploadManager runs upload jobs.
type UploadManager interface {
	StartJob(req upload.Request) (*upload.Job, error)
	GetJob(id string) (*upload.Job, bool)
}

// DatasetStore locates stored datasets.
type DatasetStore interface {
	GetByDataset(datasetID string) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
}

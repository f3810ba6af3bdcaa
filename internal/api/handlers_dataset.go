// handlers_dataset.go - Dataset profiling, upload and download handlers
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/datamart/webapp/internal/metrics"
	"github.com/datamart/webapp/internal/models"
	"github.com/datamart/webapp/internal/upload"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// DatasetHandlerImpl implements the DatasetHandler interface
type DatasetHandlerImpl struct {
	profiler  Profiler
	uploads   UploadManager
	store     DatasetStore
	http      *http.Client
	metrics   *metrics.Metrics
	log       *zap.Logger
	sizeLimit int64
}

// NewDatasetHandler creates a new dataset handler instance
func NewDatasetHandler(profiler Profiler, uploads UploadManager, store DatasetStore, httpClient *http.Client, m *metrics.Metrics, log *zap.Logger) DatasetHandler {
	return &DatasetHandlerImpl{
		profiler:  profiler,
		uploads:   uploads,
		store:     store,
		http:      httpClient,
		metrics:   m,
		log:       log.Named("datasets"),
		sizeLimit: upload.MaxSize,
	}
}

// datasetInput is the file or address part of a profile or upload form.
type datasetInput struct {
	file    *models.Blob
	address string
}

// readDatasetInput reads the "file" part, fully and bounded, or the "address" field.
func (h *DatasetHandlerImpl) readDatasetInput(c echo.Context) (*datasetInput, error) {
	in := &datasetInput{address: strings.TrimSpace(c.FormValue("address"))}

	fh, err := c.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return nil, NewBadRequestError("invalid multipart form", err)
	default:
		f, err := fh.Open()
		if err != nil {
			return nil, NewBadRequestError("cannot read file", err)
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, h.sizeLimit+1))
		if err != nil {
			return nil, NewBadRequestError("cannot read file", err)
		}
		if int64(len(data)) > h.sizeLimit {
			return nil, NewTooLargeError(h.sizeLimit)
		}
		in.file = models.BlobFromBytes(fh.Filename, data)
	}

	if in.file == nil && in.address == "" {
		return nil, NewValidationError("file", "a file or an address is required")
	}
	if in.file != nil && in.address != "" {
		return nil, NewValidationError("address", "send either a file or an address, not both")
	}
	return in, nil
}

// HandleProfile profiles an uploaded file or a remote dataset
func (h *DatasetHandlerImpl) HandleProfile(c echo.Context) error {
	in, err := h.readDatasetInput(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	var src io.ReadCloser
	if in.file != nil {
		src, err = in.file.Open()
		if err != nil {
			return NewInternalError("cannot read file", err)
		}
	} else {
		src, err = h.fetch(c, in.address)
		if err != nil {
			return NewBadGatewayError("cannot fetch dataset", err)
		}
	}
	defer src.Close()

	start := time.Now()
	profile, err := h.profiler.Profile(ctx, src)
	h.metrics.ObserveProfile(time.Since(start), err)
	if err != nil {
		h.log.Info("profiling failed", zap.String("name", c.FormValue("name")), zap.Error(err))
		return NewUnprocessableError("cannot profile dataset", err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *DatasetHandlerImpl) fetch(c echo.Context, address string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, address, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s answered %s", address, resp.Status)
	}
	return resp.Body, nil
}

// uploadResponse is returned when an upload job was accepted
type uploadResponse struct {
	JobID     string        `json:"jobId"`
	DatasetID string        `json:"datasetId"`
	Status    upload.Status `json:"status"`
}

// HandleUpload accepts a dataset and starts its upload job
func (h *DatasetHandlerImpl) HandleUpload(c echo.Context) error {
	in, err := h.readDatasetInput(c)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return NewValidationError("name", "Name is required")
	}

	var updated models.UpdatedColumns
	if raw := c.FormValue("updatedColumns"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &updated); err != nil {
			return NewBadRequestError("invalid updatedColumns", err)
		}
	}

	job, err := h.uploads.StartJob(upload.Request{
		File:           in.file,
		Address:        in.address,
		Name:           name,
		Description:    c.FormValue("description"),
		UpdatedColumns: updated.Columns,
	})
	if err != nil {
		return NewInternalError("cannot start upload", err)
	}

	h.log.Info("upload accepted", zap.String("job", job.ID), zap.String("dataset", job.DatasetID))
	return c.JSON(http.StatusAccepted, uploadResponse{
		JobID:     job.ID,
		DatasetID: job.DatasetID,
		Status:    job.Status,
	})
}

// HandleUploadStatus returns the state of an upload job
func (h *DatasetHandlerImpl) HandleUploadStatus(c echo.Context) error {
	id := c.Param("jobId")
	job, ok := h.uploads.GetJob(id)
	if !ok {
		return NewNotFoundError("upload job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleDownload sends the stored file of a dataset
func (h *DatasetHandlerImpl) HandleDownload(c echo.Context) error {
	id := c.Param("id")
	info, err := h.store.GetByDataset(id)
	if err != nil {
		return NewNotFoundError("dataset", id)
	}
	path, err := h.store.GetFilePath(info.ID)
	if err != nil {
		return NewNotFoundError("dataset", id)
	}
	return c.Attachment(path, downloadName(info.Name))
}

// downloadName keeps the base name of an address or file name.
func downloadName(name string) string {
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "dataset.csv"
	}
	return name
}

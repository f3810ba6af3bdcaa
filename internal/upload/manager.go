package upload

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/datamart/webapp/internal/metrics"
	"github.com/datamart/webapp/internal/models"
	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

// Status represents the upload processing status.
type Status string

const (
	StatusPending       Status = "pending"
	StatusStoring       Status = "storing"
	StatusDecompressing Status = "decompressing"
	StatusProfiling     Status = "profiling"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// Source is the source name uploaded datasets are counted under.
const Source = "upload"

// MaxSize bounds the stored dataset, after decompression.
const MaxSize = 50 << 20

// ErrTooLarge is returned when a dataset exceeds MaxSize.
var ErrTooLarge = errors.New("dataset too large")

// Request is a dataset submission.
type Request struct {
	File           *models.Blob
	Address        string
	Name           string
	Description    string
	UpdatedColumns []models.ColumnMetadata
}

// Job represents an async upload processing job.
type Job struct {
	ID            string              `json:"id"`
	DatasetID     string              `json:"datasetId"`
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	Address       string              `json:"address,omitempty"`
	FileName      string              `json:"fileName,omitempty"`
	Status        Status              `json:"status"`
	Progress      float64             `json:"progress"`
	Stage         string              `json:"stage"`         // Current stage description
	StageProgress float64             `json:"stageProgress"` // Progress within current stage
	FileInfo      *models.FileInfo    `json:"fileInfo,omitempty"`
	Profile       *models.ProfileData `json:"profile,omitempty"`
	Error         string              `json:"error,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty"`

	request Request
}

func (j *Job) snapshot() *Job {
	out := *j
	out.Profile = j.Profile.Clone()
	if j.FileInfo != nil {
		info := *j.FileInfo
		out.FileInfo = &info
	}
	out.request = Request{}
	return &out
}

// Store defines the interface needed from storage layer.
type Store interface {
	Allocate(name string) (*models.FileInfo, error)
	Write(id string, r io.Reader) (int64, error)
	Commit(id, datasetID string, tags []string) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	Delete(id string) error
}

// Profiler profiles a stored dataset.
type Profiler interface {
	ProfileFile(ctx context.Context, path string) (*models.ProfileData, error)
}

// Recorder is notified of every stored dataset.
type Recorder interface {
	RecordDiscovery(datasetID, source string)
}

// Manager handles async upload processing.
type Manager struct {
	jobs     map[string]*Job
	mu       sync.RWMutex
	wg       sync.WaitGroup
	store    Store
	profiler Profiler
	recorder Recorder
	http     *http.Client
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithMetrics records upload metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithHTTPClient sets the client used to fetch datasets by address.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.http = c
	}
}

// NewManager creates a new upload processing manager.
func NewManager(store Store, profiler Profiler, recorder Recorder, opts ...Option) *Manager {
	m := &Manager{
		jobs:     make(map[string]*Job),
		store:    store,
		profiler: profiler,
		recorder: recorder,
		http:     &http.Client{Timeout: 5 * time.Minute},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("upload")
	return m
}

// NewDatasetID returns a fresh id for an uploaded dataset.
func NewDatasetID() string {
	return "datamart.upload." + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// StartJob begins async processing of an upload. The storage slot is allocated
// before it returns, so the dataset is listed right away.
func (m *Manager) StartJob(req Request) (*Job, error) {
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	if (req.File == nil) == (req.Address == "") {
		return nil, errors.New("exactly one of file or address is required")
	}

	fileName := req.Address
	if req.File != nil {
		fileName = req.File.Name
	}
	info, err := m.store.Allocate(fileName)
	if err != nil {
		return nil, fmt.Errorf("allocating storage: %w", err)
	}

	job := &Job{
		ID:          uuid.New().String(),
		DatasetID:   NewDatasetID(),
		Name:        req.Name,
		Description: req.Description,
		Address:     req.Address,
		FileName:    fileName,
		Status:      StatusPending,
		Stage:       "preparing",
		FileInfo:    info,
		CreatedAt:   time.Now(),
		request:     req,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snap := job.snapshot()
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.processJob(context.Background(), job)
	}()

	return snap, nil
}

// GetJob retrieves a copy of a job by ID.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return job.snapshot(), true
}

// Wait blocks until every started job finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// processJob handles the actual async processing.
func (m *Manager) processJob(ctx context.Context, job *Job) {
	log := m.log.With(zap.String("job", job.ID[:8]), zap.String("dataset", job.DatasetID))
	log.Info("processing upload", zap.String("name", job.Name))
	req := job.request
	fileID := job.FileInfo.ID

	// Stage 1: store the content
	m.updateJobStatus(job, StatusStoring, "storing dataset", 0)
	if err := m.storeContent(ctx, fileID, req); err != nil {
		m.fail(job, log, fmt.Sprintf("failed to store dataset: %v", err))
		return
	}
	m.updateJobStatus(job, StatusStoring, "storing dataset", 100)

	// Stage 2: decompress if needed
	path, err := m.store.GetFilePath(fileID)
	if err != nil {
		m.fail(job, log, err.Error())
		return
	}
	gz, err := isGzip(path)
	if err != nil {
		m.fail(job, log, fmt.Sprintf("failed to read dataset: %v", err))
		return
	}
	if gz {
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 0)
		if err := m.decompressFileWithProgress(job, fileID, path); err != nil {
			m.fail(job, log, fmt.Sprintf("failed to decompress dataset: %v", err))
			return
		}
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 100)
		log.Debug("decompressed dataset")
	}

	// Stage 3: profile
	m.updateJobStatus(job, StatusProfiling, "profiling dataset", 0)
	start := time.Now()
	profile, err := m.profiler.ProfileFile(ctx, path)
	m.metrics.ObserveProfile(time.Since(start), err)
	if err != nil {
		m.fail(job, log, fmt.Sprintf("failed to profile dataset: %v", err))
		return
	}
	applyUpdatedColumns(profile, req.UpdatedColumns)

	info, err := m.store.Commit(fileID, job.DatasetID, Tags(profile))
	if err != nil {
		m.fail(job, log, fmt.Sprintf("failed to commit dataset: %v", err))
		return
	}
	m.recorder.RecordDiscovery(job.DatasetID, Source)

	m.mu.Lock()
	job.FileInfo = info
	job.Profile = profile
	m.mu.Unlock()
	m.markJobComplete(job)
	m.metrics.UploadFinished(string(StatusComplete))
	log.Info("upload complete", zap.Int64("size", info.Size), zap.Int("columns", len(profile.Columns)))
}

func (m *Manager) fail(job *Job, log *zap.Logger, msg string) {
	m.markJobError(job, msg)
	m.metrics.UploadFinished(string(StatusError))
	log.Warn("upload failed", zap.String("error", msg))
	if err := m.store.Delete(job.FileInfo.ID); err != nil {
		log.Warn("failed to release storage", zap.Error(err))
	}
}

func (m *Manager) storeContent(ctx context.Context, fileID string, req Request) error {
	var src io.ReadCloser
	if req.File != nil {
		r, err := req.File.Open()
		if err != nil {
			return err
		}
		src = r
	} else {
		r, err := m.fetch(ctx, req.Address)
		if err != nil {
			return err
		}
		src = r
	}
	defer src.Close()

	n, err := m.store.Write(fileID, io.LimitReader(src, MaxSize+1))
	if err != nil {
		return err
	}
	if n > MaxSize {
		return ErrTooLarge
	}
	return nil
}

func (m *Manager) fetch(ctx context.Context, address string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", address, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: %s", address, resp.Status)
	}
	return resp.Body, nil
}

func isGzip(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	magic, err := bufio.NewReader(f).Peek(2)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return magic[0] == 0x1f && magic[1] == 0x8b, nil
}

type progressReader struct {
	r        io.Reader
	read     int64
	total    int64
	last     time.Time
	progress func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 && time.Since(p.last) > 100*time.Millisecond {
		pct := float64(p.read) / float64(p.total) * 100
		if pct > 99 {
			pct = 99
		}
		p.progress(pct)
		p.last = time.Now()
	}
	return n, err
}

// decompressFileWithProgress replaces a gzip file with its content, reporting
// progress over the compressed bytes read.
func (m *Manager) decompressFileWithProgress(job *Job, fileID, path string) error {
	compressed, err := os.Open(path)
	if err != nil {
		return err
	}
	defer compressed.Close()

	stat, err := compressed.Stat()
	if err != nil {
		return err
	}
	pr := &progressReader{
		r:     compressed,
		total: stat.Size(),
		last:  time.Now(),
		progress: func(pct float64) {
			m.updateJobStatus(job, StatusDecompressing, "decompressing file", pct)
		},
	}

	reader, err := gzip.NewReader(pr)
	if err != nil {
		return err
	}
	defer reader.Close()

	tempPath := path + ".decompressing"
	out, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	written, err := io.Copy(out, io.LimitReader(reader, MaxSize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > MaxSize {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(tempPath)
		return err
	}

	in, err := os.Open(tempPath)
	if err != nil {
		return err
	}
	defer os.Remove(tempPath)
	defer in.Close()
	_, err = m.store.Write(fileID, in)
	return err
}

func applyUpdatedColumns(profile *models.ProfileData, updated []models.ColumnMetadata) {
	for _, u := range updated {
		for i := range profile.Columns {
			if profile.Columns[i].Name == u.Name {
				if u.StructuralType != "" {
					profile.Columns[i].StructuralType = models.TypeURI(u.StructuralType)
				}
				if u.SemanticTypes != nil {
					profile.Columns[i].SemanticTypes = append([]string(nil), u.SemanticTypes...)
				}
				break
			}
		}
	}
}

// Tags lists the distinct structural type names of a profile, sorted.
func Tags(profile *models.ProfileData) []string {
	seen := map[string]struct{}{}
	for _, c := range profile.Columns {
		seen[strings.TrimPrefix(c.StructuralType, models.SchemaOrg)] = struct{}{}
	}
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// updateJobStatus updates job progress (thread-safe).
func (m *Manager) updateJobStatus(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	job.StageProgress = stageProgress

	// Storing: 0-40%, Decompressing: 40-60%, Profiling: 60-95%
	switch status {
	case StatusStoring:
		job.Progress = stageProgress * 0.4
	case StatusDecompressing:
		job.Progress = 40 + stageProgress*0.2
	case StatusProfiling:
		job.Progress = 60 + stageProgress*0.35
	case StatusComplete:
		job.Progress = 100
	}
}

// markJobComplete marks job as complete (thread-safe).
func (m *Manager) markJobComplete(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusComplete
	job.Stage = "done"
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
	job.request = Request{}
}

// markJobError marks job as failed (thread-safe).
func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	job.request = Request{}
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status == StatusComplete || job.Status == StatusError {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(m.jobs, id)
				removed++
			}
		}
	}
	return removed
}

// RunCleanup calls CleanupOldJobs on a jittered interval until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, every, maxAge time.Duration) error {
	norm := jitterbug.Norm{Stdev: every / 10}
	next := func() time.Duration {
		if d := norm.Jitter(every); d > 0 {
			return d
		}
		return every
	}

	t := time.NewTimer(next())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if n := m.CleanupOldJobs(maxAge); n > 0 {
			m.log.Debug("cleaned up jobs", zap.Int("removed", n))
		}
		t.Reset(next())
	}
}

// Package coordinator tracks the state reported on the status dashboard:
// connected workers, recent discoveries, per-source counts and local storage.
package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/datamart/webapp/internal/metrics"
	"github.com/datamart/webapp/internal/models"
	"go.uber.org/zap"
)

// Worker kinds accepted by Register.
const (
	KindDiscoverer = "discoverer"
	KindIngester   = "ingester"
)

// ErrUnknownKind is returned when registering a worker of an unsupported kind.
var ErrUnknownKind = errors.New("unknown worker kind")

// StorageView exposes the local storage entries.
type StorageView interface {
	Entries() map[string]*models.StorageEntry
}

type worker struct {
	id   uint64
	kind string
	models.Worker
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	mu            sync.RWMutex
	workers       []worker
	nextID        uint64
	recent        *RecentList
	sourcesCounts map[string]int

	storage StorageView
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithMetrics records worker and discovery metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithStorage sets the storage reported in the status.
func WithStorage(s StorageView) Option {
	return func(c *Coordinator) {
		c.storage = s
	}
}

// New creates an empty coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		recent:        NewRecentList(NbRecent),
		sourcesCounts: make(map[string]int),
		log:           zap.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("coordinator")
	return c
}

// Register adds a connected worker and returns the id to unregister it with.
func (c *Coordinator) Register(kind, name, info string) (uint64, error) {
	if kind != KindDiscoverer && kind != KindIngester {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if name == "" {
		return 0, errors.New("worker name is required")
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.workers = append(c.workers, worker{id: id, kind: kind, Worker: models.Worker{Name: name, Info: info}})
	c.mu.Unlock()

	c.metrics.WorkerConnected(kind, 1)
	c.log.Info("worker connected", zap.String("kind", kind), zap.String("name", name), zap.Uint64("id", id))
	return id, nil
}

// Unregister removes a worker. Unknown ids are ignored.
func (c *Coordinator) Unregister(id uint64) {
	c.mu.Lock()
	var removed *worker
	for i := range c.workers {
		if c.workers[i].id == id {
			w := c.workers[i]
			removed = &w
			c.workers = append(c.workers[:i], c.workers[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	if removed == nil {
		return
	}
	c.metrics.WorkerConnected(removed.kind, -1)
	c.log.Info("worker disconnected", zap.String("kind", removed.kind), zap.String("name", removed.Name))
}

// RecordDiscovery marks a dataset as recently discovered and counts it for source.
func (c *Coordinator) RecordDiscovery(datasetID, source string) {
	ts := c.now().UTC().Format(time.RFC3339)

	c.mu.Lock()
	c.recent.InsertOrReplace(models.Discovery{DatasetID: datasetID, Timestamp: ts})
	if source != "" {
		c.sourcesCounts[source]++
	}
	c.mu.Unlock()

	c.metrics.Discovered()
	c.log.Debug("dataset discovered", zap.String("dataset", datasetID), zap.String("source", source))
}

// Restore seeds the recent discoveries and the count of source from datasets
// committed in a previous run. files are ordered newest first.
func (c *Coordinator) Restore(source string, files []*models.FileInfo) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for i := len(files) - 1; i >= 0; i-- {
		f := files[i]
		if f.Status != models.FileStatusStored || f.DatasetID == "" {
			continue
		}
		c.recent.InsertOrReplace(models.Discovery{
			DatasetID: f.DatasetID,
			Timestamp: f.UploadedAt.UTC().Format(time.RFC3339),
		})
		n++
	}
	if n > 0 {
		c.sourcesCounts[source] += n
	}
	return n
}

func (c *Coordinator) workersOf(kind string) []models.Worker {
	out := []models.Worker{}
	for _, w := range c.workers {
		if w.kind == kind {
			out = append(out, w.Worker)
		}
	}
	return out
}

// Status builds the status report.
func (c *Coordinator) Status() *models.StatusReport {
	c.mu.RLock()
	report := &models.StatusReport{
		Discoverers:       c.workersOf(KindDiscoverer),
		Ingesters:         c.workersOf(KindIngester),
		RecentDiscoveries: c.recent.Items(),
	}
	c.mu.RUnlock()

	report.Storage = map[string]*models.StorageEntry{}
	if c.storage != nil {
		report.Storage = c.storage.Entries()
	}
	return report
}

// Statistics returns recent discoveries and per-source counts.
func (c *Coordinator) Statistics() *models.Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[string]int, len(c.sourcesCounts))
	for k, v := range c.sourcesCounts {
		counts[k] = v
	}
	return &models.Statistics{
		RecentDiscoveries: c.recent.Items(),
		SourcesCounts:     counts,
	}
}

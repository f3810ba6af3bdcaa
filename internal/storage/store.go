package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/datamart/webapp/internal/models"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const indexFile = "index.msgpack"

// ErrNotFound is returned for an unknown file id.
var ErrNotFound = errors.New("file not found")

// LocalStore keeps dataset files on the local filesystem. Each file lives under
// its id; metadata is kept in memory and optionally mirrored to index.msgpack.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.FileInfo
	persist   bool
	log       *zap.Logger
}

// Option configures a LocalStore.
type Option func(*LocalStore)

// WithPersistence mirrors the metadata index to disk and reloads it on start.
func WithPersistence(enabled bool) Option {
	return func(s *LocalStore) {
		s.persist = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *LocalStore) {
		s.log = log
	}
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(uploadDir string, opts ...Option) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	s := &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.FileInfo),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("storage")

	if s.persist {
		if err := s.loadIndex(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *LocalStore) path(id string) string {
	return filepath.Join(s.uploadDir, id)
}

func (s *LocalStore) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.uploadDir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading storage index: %w", err)
	}

	var files []*models.FileInfo
	if err := msgpack.Unmarshal(data, &files); err != nil {
		return fmt.Errorf("decoding storage index: %w", err)
	}
	for _, info := range files {
		if _, err := os.Stat(s.path(info.ID)); err != nil {
			s.log.Warn("dropping index entry without data", zap.String("id", info.ID))
			continue
		}
		s.files[info.ID] = info
	}
	s.log.Info("storage index loaded", zap.Int("files", len(s.files)))
	return nil
}

// saveIndexLocked writes the index atomically. Caller holds the write lock.
func (s *LocalStore) saveIndexLocked() error {
	if !s.persist {
		return nil
	}
	files := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		files = append(files, info)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })

	data, err := msgpack.Marshal(files)
	if err != nil {
		return fmt.Errorf("encoding storage index: %w", err)
	}
	tmp := filepath.Join(s.uploadDir, indexFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing storage index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.uploadDir, indexFile)); err != nil {
		return fmt.Errorf("replacing storage index: %w", err)
	}
	return nil
}

func cloneInfo(info *models.FileInfo) *models.FileInfo {
	out := *info
	out.Tags = append([]string(nil), info.Tags...)
	return &out
}

// Allocate reserves an empty slot. It shows up as allocated until committed.
func (s *LocalStore) Allocate(name string) (*models.FileInfo, error) {
	id := uuid.New().String()
	f, err := os.Create(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	f.Close()

	info := &models.FileInfo{
		ID:         id,
		Key:        s.path(id),
		Name:       name,
		UploadedAt: time.Now(),
		Status:     models.FileStatusAllocated,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info
	if err := s.saveIndexLocked(); err != nil {
		return nil, err
	}
	return cloneInfo(info), nil
}

// Write replaces the content of an allocated slot.
func (s *LocalStore) Write(id string, r io.Reader) (int64, error) {
	s.mu.RLock()
	_, ok := s.files[id]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	f, err := os.Create(s.path(id))
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("writing file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if info, ok := s.files[id]; ok {
		info.Size = size
	}
	return size, s.saveIndexLocked()
}

// Commit marks a slot as holding the given dataset.
func (s *LocalStore) Commit(id, datasetID string, tags []string) (*models.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	info.DatasetID = datasetID
	info.Tags = append([]string(nil), tags...)
	info.Status = models.FileStatusStored
	if err := s.saveIndexLocked(); err != nil {
		return nil, err
	}
	return cloneInfo(info), nil
}

// GetByDataset finds the committed file holding a dataset.
func (s *LocalStore) GetByDataset(datasetID string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, info := range s.files {
		if info.Status == models.FileStatusStored && info.DatasetID == datasetID {
			return cloneInfo(info), nil
		}
	}
	return nil, fmt.Errorf("%w: dataset %s", ErrNotFound, datasetID)
}

// List returns the most recent files.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, cloneInfo(info))
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return s.saveIndexLocked()
}

// GetFilePath returns the absolute path to a file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.path(id), nil
}

// Entries is the storage view of the status report, keyed by file path.
// Allocated slots map to nil.
func (s *LocalStore) Entries() map[string]*models.StorageEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.StorageEntry, len(s.files))
	for _, info := range s.files {
		if info.Status != models.FileStatusStored {
			out[info.Key] = nil
			continue
		}
		out[info.Key] = &models.StorageEntry{
			DatasetID: info.DatasetID,
			Tags:      append([]string(nil), info.Tags...),
		}
	}
	return out
}

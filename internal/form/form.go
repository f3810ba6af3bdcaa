// Package form implements the dataset upload workflow: field state, validation,
// asynchronous profiling with column type overrides, and submission.
package form

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/datamart/webapp/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrSubmitInProgress is returned when Submit is called while a submission is running.
	ErrSubmitInProgress = errors.New("a submission is already in progress")
	// ErrNoProfile is returned when editing columns before any profile was received.
	ErrNoProfile = errors.New("no profiled data")
	// ErrUnknownColumn is returned when editing a column the profile does not contain.
	ErrUnknownColumn = errors.New("unknown column")
)

// Profiler runs the profiling call against the API.
type Profiler interface {
	Profile(ctx context.Context, req models.ProfileRequest) (*models.ProfileData, error)
}

// SubmitFunc sends the upload and reports whether the form should reset itself.
type SubmitFunc func(ctx context.Context, data models.UploadData) bool

// Option configures a Form or a Page.
type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Form holds one upload form session. It is safe for concurrent use; network
// calls run without holding the lock.
type Form struct {
	mu       sync.Mutex
	profiler Profiler
	submit   SubmitFunc
	log      *zap.Logger

	mode           Mode
	file           *models.Blob
	address        string
	name           string
	description    string
	validation     Validation
	state          State
	profiled       *models.ProfileData
	failedProfiler string
	columnsName    []string

	// generation identifies the latest profiling request; responses carrying
	// an older generation are dropped.
	generation uint64
	// submitting is set for the whole upload call. Only Submit clears it.
	submitting bool
}

// NewForm creates a form in its initial state.
func NewForm(mode Mode, profiler Profiler, submit SubmitFunc, opts ...Option) *Form {
	o := buildOptions(opts)
	f := &Form{
		profiler: profiler,
		submit:   submit,
		log:      o.log.Named("form"),
		mode:     mode,
	}
	f.resetLocked()
	return f
}

func (f *Form) resetLocked() {
	f.file = nil
	f.address = ""
	f.name = ""
	f.description = ""
	f.validation = Validation{Valid: true}
	f.state = Idle{}
	f.profiled = nil
	f.failedProfiler = ""
	f.columnsName = nil
	// Bumped rather than zeroed so that a response still in flight stays stale.
	f.generation++
}

// SetMode switches between file upload and URL input. Field values are kept.
func (f *Form) SetMode(mode Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
}

// SetAddress sets the dataset URL used in URL mode.
func (f *Form) SetAddress(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.address = address
}

// SetName sets the dataset name.
func (f *Form) SetName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name = name
}

// SetDescription sets the dataset description.
func (f *Form) SetDescription(description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.description = description
}

// SelectFile sets the file used in upload mode and profiles it, like the file
// input's change handler. It is ignored while a submission is running.
func (f *Form) SelectFile(ctx context.Context, file *models.Blob) bool {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		f.log.Debug("file selection ignored during submission")
		return false
	}
	f.file = file
	f.mu.Unlock()
	if file == nil {
		return false
	}
	return f.Profile(ctx)
}

// State returns the current state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// ProfilingStatus returns the profiling lifecycle status derived from the state.
func (f *Form) ProfilingStatus() models.ProfilingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return profilingStatus(f.state)
}

func (f *Form) inputLocked() Input {
	return Input{
		Mode:    f.mode,
		HasFile: f.file != nil,
		Address: f.address,
		Name:    f.name,
	}
}

// Validate checks the current fields. It has no side effects.
func (f *Form) Validate() Validation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Validate(f.inputLocked())
}

// activeFile and activeAddress gate the inputs on the current mode.
func (f *Form) activeFile() *models.Blob {
	if f.mode == ModeUpload {
		return f.file
	}
	return nil
}

func (f *Form) activeAddress() string {
	if f.mode == ModeURL {
		return f.address
	}
	return ""
}

// Profile requests a profile of the current file or URL. Each call supersedes
// the previous ones: only the response to the latest request is applied.
// It returns true when the profile was received and applied. Nothing is
// requested while a submission is running.
func (f *Form) Profile(ctx context.Context) bool {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		f.log.Debug("profiling refused during submission")
		return false
	}
	req := models.ProfileRequest{
		File:    f.activeFile(),
		Address: f.activeAddress(),
		Name:    f.name,
	}
	if req.File == nil && req.Address == "" {
		mode := f.mode
		f.mu.Unlock()
		f.log.Debug("nothing to profile", zap.String("mode", string(mode)))
		return false
	}
	f.generation++
	gen := f.generation
	f.state = Profiling{Generation: gen}
	f.mu.Unlock()

	f.log.Debug("profiling started", zap.Uint64("gen", gen))
	data, err := f.profiler.Profile(ctx, req)

	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.generation {
		f.log.Debug("discarding stale profile response",
			zap.Uint64("gen", gen), zap.Uint64("current", f.generation))
		return false
	}

	if err != nil {
		f.failedProfiler = err.Error()
		f.state = ProfileFailed{Message: f.failedProfiler}
		f.log.Info("profiling failed", zap.Uint64("gen", gen), zap.Error(err))
		return false
	}

	if data == nil {
		data = &models.ProfileData{}
	}
	f.profiled = data.Clone()
	f.columnsName = nil
	f.failedProfiler = ""
	f.state = Profiled{}
	f.log.Debug("profiling done", zap.Uint64("gen", gen), zap.Int("columns", len(data.Columns)))
	return true
}

// UpdateColumnType overrides the structural type of one profiled column.
// value is either a bare schema.org type name ("Text") or a full URI.
func (f *Form) UpdateColumnType(value, column string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.profiled == nil {
		return ErrNoProfile
	}

	idx := -1
	for i := range f.profiled.Columns {
		if f.profiled.Columns[i].Name == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}

	f.profiled.Columns[idx].StructuralType = models.TypeURI(value)
	for _, name := range f.columnsName {
		if name == column {
			return nil
		}
	}
	f.columnsName = append(f.columnsName, column)
	return nil
}

func (f *Form) uploadDataLocked() (models.UploadData, error) {
	modified := make([]models.ColumnMetadata, 0, len(f.columnsName))
	if f.profiled != nil {
		for _, col := range f.profiled.Columns {
			for _, name := range f.columnsName {
				if col.Name == name {
					modified = append(modified, col.Clone())
					break
				}
			}
		}
	}

	updated, err := json.Marshal(models.UpdatedColumns{Columns: modified})
	if err != nil {
		return models.UploadData{}, fmt.Errorf("encoding updated columns: %w", err)
	}

	return models.UploadData{
		File:           f.activeFile(),
		Address:        f.activeAddress(),
		Name:           f.name,
		Description:    f.description,
		UpdatedColumns: string(updated),
	}, nil
}

// Submit validates the form and, when valid, hands the upload to the submit
// function. It returns true when the submission succeeded and the form was
// reset. A validation failure is returned as an error aggregating the field
// messages; no network call is made in that case.
func (f *Form) Submit(ctx context.Context) (bool, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return false, ErrSubmitInProgress
	}

	v := Validate(f.inputLocked())
	f.validation = v
	if !v.Valid {
		f.state = Invalid{Validation: v}
		f.mu.Unlock()
		return false, v.Err()
	}

	data, err := f.uploadDataLocked()
	if err != nil {
		f.mu.Unlock()
		return false, err
	}

	shown := profilingStatus(f.state)
	if shown == models.ProfilingRunning {
		shown = models.ProfilingStopped
	}
	// Any profile still in flight belongs to the state being submitted away.
	f.generation++
	f.state = Submitting{ProfilingStatus: shown}
	f.submitting = true
	mode := f.mode
	f.mu.Unlock()

	f.log.Info("submitting dataset", zap.String("name", data.Name), zap.String("mode", string(mode)))
	ok := f.submit(ctx, data)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	if ok {
		f.resetLocked()
		return true, nil
	}
	f.state = SubmitFailed{}
	return false, nil
}

// View is a read-only snapshot of the form used for rendering.
type View struct {
	Mode            Mode
	FileName        string
	HasFile         bool
	Address         string
	Name            string
	Description     string
	Validation      Validation
	State           string
	ProfilingStatus models.ProfilingStatus
	FailedProfiler  string
	Profile         *models.ProfileData
	ColumnsName     []string
	Submitting      bool
}

// View returns a snapshot of the current form.
func (f *Form) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := View{
		Mode:            f.mode,
		HasFile:         f.file != nil,
		Address:         f.address,
		Name:            f.name,
		Description:     f.description,
		Validation:      f.validation,
		State:           f.state.Name(),
		ProfilingStatus: profilingStatus(f.state),
		FailedProfiler:  f.failedProfiler,
		Profile:         f.profiled.Clone(),
		ColumnsName:     append([]string(nil), f.columnsName...),
	}
	if f.file != nil {
		v.FileName = f.file.Name
	}
	v.Submitting = f.submitting
	return v
}

package form

import (
	"context"
	"fmt"
	"sync"

	"github.com/datamart/webapp/internal/models"
	"go.uber.org/zap"
)

// Uploader sends a finished upload to the API.
type Uploader interface {
	Upload(ctx context.Context, data models.UploadData) error
}

// BannerKind tells which outcome banner the page shows.
type BannerKind int

const (
	BannerNone BannerKind = iota
	BannerSuccess
	BannerFailure
)

// Banner is the page-level submission outcome.
type Banner struct {
	Kind    BannerKind
	Message string
}

// Page is the upload container: it owns the input mode, the outcome banner and
// the form. The form decides whether to reset from the boolean OnFormSubmit returns.
type Page struct {
	mu       sync.Mutex
	uploader Uploader
	log      *zap.Logger
	form     *Form

	mode    Mode
	success bool
	failed  string
}

// NewPage creates a page in upload mode.
func NewPage(uploader Uploader, profiler Profiler, opts ...Option) *Page {
	o := buildOptions(opts)
	p := &Page{
		uploader: uploader,
		log:      o.log.Named("upload"),
		mode:     ModeUpload,
	}
	p.form = NewForm(p.mode, profiler, p.OnFormSubmit, opts...)
	return p
}

// Form returns the page's form.
func (p *Page) Form() *Form {
	return p.form
}

// Mode returns the selected tab.
func (p *Page) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// SetMode switches tab.
func (p *Page) SetMode(mode Mode) {
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
	p.form.SetMode(mode)
}

// OnFormSubmit uploads the data and records the outcome banner.
func (p *Page) OnFormSubmit(ctx context.Context, data models.UploadData) bool {
	err := p.uploader.Upload(ctx, data)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.success = false
		p.failed = err.Error()
		p.log.Warn("upload failed", zap.String("name", data.Name), zap.Error(err))
		return false
	}
	p.success = true
	p.failed = ""
	p.log.Info("upload submitted", zap.String("name", data.Name))
	return true
}

// Banner returns the outcome of the last submission, if any.
func (p *Page) Banner() Banner {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.failed != "":
		return Banner{
			Kind:    BannerFailure,
			Message: fmt.Sprintf("Unexpected error: failed to submit dataset (%s).", p.failed),
		}
	case p.success:
		return Banner{Kind: BannerSuccess, Message: "File submitted successfully."}
	}
	return Banner{Kind: BannerNone}
}

package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/datamart/webapp/internal/models"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

// DefaultInterval is the delay between two status refreshes.
const DefaultInterval = 2000 * time.Millisecond

// ErrAlreadyRunning is returned by Start on a poller that was not stopped.
var ErrAlreadyRunning = errors.New("poller already running")

// Fetcher loads the current status report.
type Fetcher interface {
	Status(ctx context.Context) (*models.StatusReport, error)
}

// Handler receives every refresh. Exactly one of report and err is non-nil.
type Handler func(report *models.StatusReport, err error)

// Poller periodically fetches the status report until stopped.
type Poller struct {
	fetcher  Fetcher
	handler  Handler
	interval time.Duration
	jitter   time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithJitter sets the standard deviation of the interval jitter.
func WithJitter(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.jitter = d
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) PollerOption {
	return func(p *Poller) {
		p.log = log
	}
}

// NewPoller creates a stopped poller.
func NewPoller(fetcher Fetcher, handler Handler, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		handler:  handler,
		interval: DefaultInterval,
		jitter:   30 * time.Millisecond,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Named("status-poller")
	return p
}

// Start loads the status once right away, then every interval, in a new
// goroutine. The loop ends when ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		select {
		case <-p.done:
		default:
			return ErrAlreadyRunning
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	return nil
}

// Stop ends the loop and waits for it to exit. It is a no-op on a stopped poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	norm := jitterbug.Norm{Stdev: p.jitter}
	next := func() time.Duration {
		if d := norm.Jitter(p.interval); d > 0 {
			return d
		}
		return p.interval
	}

	p.load(ctx)
	t := time.NewTimer(next())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("poller stopped")
			return
		case <-t.C:
		}
		p.load(ctx)
		t.Reset(next())
	}
}

func (p *Poller) load(ctx context.Context) {
	report, err := p.fetcher.Status(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.log.Debug("status fetch failed", zap.Error(err))
		p.handler(nil, err)
		return
	}
	p.handler(report, nil)
}

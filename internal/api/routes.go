// routes.go - Route registration helpers
package api

import (
	"net/http"
	"strings"

	"github.com/datamart/webapp/internal/client"
	"github.com/datamart/webapp/internal/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Coordinator Coordinator
	Profiler    Profiler
	UploadMgr   UploadManager
	Store       DatasetStore
	HTTPClient  *http.Client
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Log         *zap.Logger
	Version     string
	// RefreshSeconds is the auto-refresh period of the status page
	RefreshSeconds int
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Status   StatusHandler
	Datasets DatasetHandler
	Workers  WorkerHandler
	Metrics  http.Handler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.Coordinator),
		Status:   NewStatusHandler(deps.Coordinator, deps.RefreshSeconds),
		Datasets: NewDatasetHandler(deps.Profiler, deps.UploadMgr, deps.Store, httpClient, deps.Metrics, log),
		Workers:  NewWorkerHandler(deps.Coordinator, log),
		Metrics:  promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
}

// RegisterRoutes registers all routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/health", handlers.Health.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(handlers.Metrics))

	// Status
	e.GET("/", handlers.Status.HandleDashboard)
	e.GET(client.PathStatus, handlers.Status.HandleStatus)
	e.GET(client.PathStatistics, handlers.Status.HandleStatistics)

	// Datasets
	v1 := e.Group("/api/v1")
	v1.POST("/profile", handlers.Datasets.HandleProfile)
	v1.POST("/upload", handlers.Datasets.HandleUpload)
	v1.GET("/upload/:jobId", handlers.Datasets.HandleUploadStatus)
	v1.GET("/workers/ws", handlers.Workers.HandleWorkerSocket)
	e.GET(client.PathDownload+":id", handlers.Datasets.HandleDownload)
}

// MiddlewareConfig configures the common middleware
type MiddlewareConfig struct {
	Log            *zap.Logger
	RequestLogger  echo.MiddlewareFunc
	BodyLimit      string
	AllowOrigins   []string
	XSRFSecure     bool
	ShowErrorCause bool
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	e.HTTPErrorHandler = NewErrorHandler(log, cfg.ShowErrorCause)

	e.Use(middleware.RequestID())
	if cfg.RequestLogger != nil {
		e.Use(cfg.RequestLogger)
	}
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 * 1024,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error("panic recovered", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if len(cfg.AllowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			Skipper: func(c echo.Context) bool {
				// Statistics set their own CORS headers
				return c.Path() == client.PathStatistics
			},
		}))
	}

	// XSRF: the token is issued in the _xsrf cookie and must come back in the
	// _xsrf query parameter of every unsafe request.
	e.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "query:" + client.XSRFParam,
		CookieName:     client.XSRFCookie,
		CookiePath:     "/",
		CookieHTTPOnly: false,
		CookieSecure:   cfg.XSRFSecure,
		CookieSameSite: http.SameSiteLaxMode,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Path(), "/api/v1/workers")
		},
	}))
}

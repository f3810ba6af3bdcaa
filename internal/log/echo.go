package log

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// quietPaths are polled constantly and logged at debug level only.
var quietPaths = map[string]bool{
	"/status": true,
	"/health": true,
}

// RequestLogger returns echo middleware logging every request into l.
func RequestLogger(l *zap.Logger, name string) echo.MiddlewareFunc {
	if l == nil {
		panic("log.RequestLogger received a nil *zap.Logger")
	}
	logger := l.Named(name)

	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("type", "http_request"),
				zap.String("request_id", v.RequestID),
				zap.String("http_method", v.Method),
				zap.String("http_path", v.URIPath),
				zap.String("remote_addr", v.RemoteIP),
				zap.Int("http_status_code", v.Status),
				zap.String("http_status_text", statusLabel(v.Status)),
				zap.Duration("latency", v.Latency),
				zap.String("user_agent", v.UserAgent),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}

			msg := fmt.Sprintf("HTTP request completed: %s", v.URIPath)
			switch {
			case v.Status >= 500:
				logger.Error(msg, fields...)
			case v.Status >= 400:
				logger.Warn(msg, fields...)
			case v.Method == http.MethodGet && quietPaths[v.URIPath]:
				logger.Debug(msg, fields...)
			default:
				logger.Info(msg, fields...)
			}
			return nil
		},
	})
}

func statusLabel(status int) string {
	switch {
	case status >= 100 && status < 300:
		return fmt.Sprintf("%d OK", status)
	case status >= 300 && status < 400:
		return fmt.Sprintf("%d Redirect", status)
	case status >= 400 && status < 500:
		return fmt.Sprintf("%d Client Error", status)
	case status >= 500:
		return fmt.Sprintf("%d Server Error", status)
	default:
		return fmt.Sprintf("%d Unknown", status)
	}
}

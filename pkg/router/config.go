package router

import (
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/metrics"
	"github.com/Suhaibinator/SDispatch/pkg/middleware"
	"github.com/Suhaibinator/SDispatch/pkg/pipeline"
	"github.com/Suhaibinator/SDispatch/pkg/transform"
	"go.uber.org/zap"
)

// RouterConfig defines the global configuration for the router.
type RouterConfig struct {
	Logger            *zap.Logger              // Logger for all router operations
	GlobalTimeout     time.Duration            // Default response timeout for all routes
	GlobalMaxBodySize int64                    // Default maximum request body size in bytes
	Transforms        transform.ConfigMap      // Transforms available to route parameters
	PostHooks         pipeline.PostHookPolicy  // Whether post hooks run after an action failure
	Observer          pipeline.Observer        // Optional pipeline state observer
	IPConfig          *middleware.IPConfig     // Configuration for client IP extraction
	EnableMetrics     bool                     // Enable Prometheus metrics
	Metrics           *metrics.Collector       // Collector to use; created when nil and EnableMetrics is set
	MetricsPath       string                   // Path serving the metrics, "/metrics" by default
	EnableTraceID     bool                     // Generate a trace ID per request and log it
	Middlewares       []common.Middleware      // Global middlewares applied to all routes
	Overrides         map[string]RouteOverride // Per route settings keyed by RouteMetadata.Name
}

// RouteOverride changes the global settings for one route.
type RouteOverride struct {
	Timeout     time.Duration       // Override timeout for this route
	MaxBodySize int64               // Override max body size for this route
	Middlewares []common.Middleware // Middlewares applied to this route only
}

// Middleware is an alias for common.Middleware.
type Middleware = common.Middleware

// HTTPError is an alias for common.HTTPError, returned by hooks and actions
// to choose the response status.
type HTTPError = common.HTTPError

// NewHTTPError creates a new HTTPError with the specified status code and message.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return common.NewHTTPError(statusCode, message)
}

package server

import (
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/drydock-pm/drydock/modules/workitems"
	"github.com/drydock-pm/drydock/pkg/configuration"
	"github.com/drydock-pm/drydock/pkg/metrics"
	"github.com/drydock-pm/drydock/pkg/middleware"
	"github.com/drydock-pm/drydock/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Module        *workitems.Module
	// Pool is nil when Module runs over the in-memory store.
	Pool *pgxpool.Pool
}

func Default(options *DefaultOptions) *server.HTTPServer {
	conf := options.Configuration

	// WithLogger goes first so it also wraps the pool lookup and opens the request span.
	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, conf.RequestIDHeader),
	}
	if options.Pool != nil {
		middlewares = append(middlewares, middleware.ProvidePool(options.Pool))
	}
	if len(conf.CORSOrigins) > 0 {
		middlewares = append(middlewares, middleware.Cors(conf.CORSOrigins...))
	}

	if conf.RateLimit.Enabled {
		var store limiter.Store
		switch conf.RateLimit.Storage {
		case "redis":
			var err error
			store, err = middleware.NewRedisStore(conf.RateLimit.RedisURL)
			if err != nil {
				options.Logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
				store = middleware.NewMemoryStore()
			}
		default:
			store = middleware.NewMemoryStore()
		}
		middlewares = append(middlewares, middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerPeriod: conf.RateLimit.GlobalRPS,
			Store:             store,
		}))
	}

	controllers := options.Module.Controllers()
	if conf.Prometheus.Enabled {
		controllers = append(controllers, metrics.NewPrometheusController(conf.Prometheus.Path))
	}
	return server.NewHTTPServer(controllers, middlewares...)
}

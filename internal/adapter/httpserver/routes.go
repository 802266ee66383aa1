package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/sinecast/internal/adapter/metrics"
)

const maxRegistrationBody = "4K"

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(correlationMiddleware)
	if s.metrics != nil {
		s.echo.Use(s.metrics.HTTP.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware())

	s.registerHealthRoutes()
	s.registerSeriesRoutes()
	s.registerStreamRoutes()

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.metrics.Registry)))
	}
}

func (s *Server) registerSeriesRoutes() {
	s.echo.POST("/series", s.handleRegisterSeries,
		middleware.BodyLimit(maxRegistrationBody),
		newRateLimiter(s.config.RegistrationRate, s.config.RegistrationBurst),
	)
	s.echo.GET("/series", s.handleSnapshot)
}

func (s *Server) registerStreamRoutes() {
	s.echo.GET("/ws", s.handleStream)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health/live"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

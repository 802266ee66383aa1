package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/sinecast/internal/adapter/metrics"
	"github.com/pscheid92/sinecast/internal/platform/version"
)

const readinessProbeTimeout = 5 * time.Second

var (
	errStreamCapacity     = errors.New("stream connection limit reached")
	errBroadcasterStopped = errors.New("broadcaster is not running")
)

// HealthCheck is a named health check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) defaultHealthChecks() []HealthCheck {
	checks := []HealthCheck{{
		Name: "stream_capacity",
		Check: func(context.Context) error {
			if s.limits.Global().Saturated() {
				return errStreamCapacity
			}
			return nil
		},
	}}

	if s.broadcaster != nil {
		checks = append(checks, HealthCheck{
			Name: "broadcaster",
			Check: func(context.Context) error {
				select {
				case <-s.broadcaster.Done():
					return errBroadcasterStopped
				default:
					return nil
				}
			},
		})
	}
	return checks
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	for _, hc := range s.healthChecks {
		err := hc.Check(ctx)
		if err == nil {
			continue
		}

		response := map[string]any{
			"status":       "unhealthy",
			"failed_check": hc.Name,
			"error":        err.Error(),
		}
		if err := c.JSON(http.StatusServiceUnavailable, response); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "ready"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}

func (s *Server) streamMetrics() *metrics.StreamMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Stream
}

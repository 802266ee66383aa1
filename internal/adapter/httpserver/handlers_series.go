package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/sinecast/internal/domain"
	apperrors "github.com/pscheid92/sinecast/internal/platform/errors"
	"github.com/pscheid92/sinecast/internal/stream"
)

var errTrailingData = errors.New("unexpected data after JSON object")

type registerSeriesRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRegisterSeries(c echo.Context) error {
	ctx := c.Request().Context()

	var req registerSeriesRequest
	if err := decodeSingleObject(c.Request().Body, &req); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return err
		}
		return apperrors.ValidationError(`request body must be a JSON object like {"name": "..."}`).
			WithField("decode_error", err.Error())
	}

	if _, err := s.app.RegisterSeries(ctx, req.Name); err != nil {
		if errors.Is(err, domain.ErrEmptySeriesName) {
			return apperrors.ValidationError("series name must not be empty")
		}
		return apperrors.InternalError("failed to register series", err).WithField("name", req.Name)
	}

	if err := c.NoContent(http.StatusOK); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}
	return nil
}

// decodeSingleObject decodes exactly one JSON value and rejects anything after it.
func decodeSingleObject(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return err
		}
		return errTrailingData
	}
	return nil
}

// handleSnapshot serves the same mapping a stream frame carries.
func (s *Server) handleSnapshot(c echo.Context) error {
	data, err := stream.Encode(s.app.Snapshot())
	if err != nil {
		return apperrors.InternalError("failed to encode snapshot", err)
	}

	if err := c.JSONBlob(http.StatusOK, data); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"

	"github.com/keyward/keyward/internal/apierr"
	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/pkg/errutil"
)

// GateAllowed is the gate outcome label for an accepted session.
const GateAllowed = "allowed"

func newRequestID() string {
	return ulid.Make().String()
}

func attachRequestID(c echo.Context, id string) {
	req := c.Request()
	c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
}

// accessLog logs one record per request and counts it. Errors are rendered
// here so the logged status is the one the client saw.
func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		req := c.Request()
		res := c.Response()
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.recorder.ObserveHTTPRequest(req.Method, route, res.Status)
		s.logger.InfoContext(req.Context(), "http request",
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", res.Status,
			"bytes", res.Size,
			"latency", time.Since(start),
		)
		return nil
	}
}

// requireSession admits requests whose session_id cookie names an active
// session and stores the caller's identity in the request context.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		raw, present := "", false
		if cookie, err := c.Cookie(auth.SessionCookieName); err == nil {
			raw, present = strings.TrimSpace(cookie.Value), true
		}

		id, err := s.gate.Authenticate(req.Context(), raw, present)
		if err != nil {
			s.recorder.ObserveGate(auth.OutcomeOf(err))
			return err
		}
		s.recorder.ObserveGate(GateAllowed)

		c.SetRequest(req.WithContext(auth.WithIdentity(req.Context(), id)))
		return next(c)
	}
}

// handleError is the echo.HTTPErrorHandler. Internal failures are logged
// with their full context; clients only see the rendered kind.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	apiErr := classify(err)
	if apiErr.Kind == apierr.Internal {
		errutil.LogErrorContext(c.Request().Context(), s.logger, "request failed", err)
	}

	status, body := apierr.Render(apiErr)
	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		s.logger.WarnContext(c.Request().Context(), "write error response", "error", writeErr)
	}
}

// classify maps echo's own errors by status and everything else through
// apierr.FromError.
func classify(err error) *apierr.Error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch {
		case he.Code == http.StatusNotFound || he.Code == http.StatusMethodNotAllowed:
			return apierr.New(apierr.NotFound).WithCause(err)
		case he.Code >= http.StatusInternalServerError:
			return apierr.New(apierr.Internal).WithCause(err)
		default:
			return apierr.New(apierr.BadRequest).WithCause(err)
		}
	}
	return apierr.FromError(err)
}

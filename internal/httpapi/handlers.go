// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// bind decodes a JSON or form body into dst. JSON bodies are checked against
// the named request schema first.
func bind(c echo.Context, schema string, dst any) error {
	req := c.Request()
	ctype := req.Header.Get(echo.HeaderContentType)

	switch {
	case strings.HasPrefix(ctype, echo.MIMEApplicationJSON):
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return oops.Code("REQUEST_BODY_MALFORMED").Wrap(err)
		}
		return validateBody(schema, body, dst)
	case strings.HasPrefix(ctype, echo.MIMEApplicationForm):
		if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
			return oops.Code("REQUEST_BODY_MALFORMED").Wrap(err)
		}
		return nil
	default:
		return oops.Code("REQUEST_MEDIA_TYPE").
			With("content_type", ctype).
			Errorf("unsupported content type %q", ctype)
	}
}

func (s *Server) index(c echo.Context) error {
	return c.HTML(http.StatusOK, "<div>Hello</div>")
}

func (s *Server) register(c echo.Context) error {
	var req RegisterRequest
	if err := bind(c, "register", &req); err != nil {
		return err
	}
	_, err := s.service.Register(c.Request().Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusCreated)
}

func (s *Server) login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, "login", &req); err != nil {
		return err
	}
	user, session, err := s.service.Login(c.Request().Context(), auth.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    session.ID.String(),
		Path:     "/",
		Expires:  session.ExpiryDate,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return respond(c, http.StatusOK, user.Public())
}

func (s *Server) verifyEmail(c echo.Context) error {
	if err := s.service.VerifyEmail(c.Request().Context(), c.Param("token")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) resendVerification(c echo.Context) error {
	var req EmailRequest
	if err := bind(c, "email", &req); err != nil {
		return err
	}
	if err := s.service.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) requestPasswordReset(c echo.Context) error {
	var req EmailRequest
	if err := bind(c, "email", &req); err != nil {
		return err
	}
	if err := s.service.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) confirmPasswordReset(c echo.Context) error {
	var req PasswordRequest
	if err := bind(c, "reset-password", &req); err != nil {
		return err
	}
	if err := s.service.ConfirmPasswordReset(c.Request().Context(), c.Param("token"), req.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) me(c echo.Context) error {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return oops.Code("IDENTITY_MISSING").Errorf("gated route without identity")
	}
	user, err := s.service.CurrentUser(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, user.Public())
}

func (s *Server) protected(c echo.Context) error {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return oops.Code("IDENTITY_MISSING").Errorf("gated route without identity")
	}
	return c.HTML(http.StatusOK, fmt.Sprintf("<h1>Authenticated %s</h1>", id.UserID))
}

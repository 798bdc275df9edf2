// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package apierr_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/apierr"
	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/pkg/errutil"
)

func TestStatus_CoversEveryKind(t *testing.T) {
	want := map[apierr.Kind]int{
		apierr.Internal:            http.StatusInternalServerError,
		apierr.Unauthorized:        http.StatusUnauthorized,
		apierr.NotVerified:         http.StatusUnauthorized,
		apierr.Forbidden:           http.StatusForbidden,
		apierr.NotFound:            http.StatusNotFound,
		apierr.UnprocessableEntity: http.StatusUnprocessableEntity,
		apierr.BadRequest:          http.StatusBadRequest,
	}
	require.Len(t, apierr.Kinds(), len(want))
	for _, k := range apierr.Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			assert.Equal(t, want[k], apierr.Status(k))
		})
	}
	assert.Equal(t, http.StatusInternalServerError, apierr.Status(apierr.Kind(99)))
}

func TestRender_Envelope(t *testing.T) {
	tests := []struct {
		name     string
		err      *apierr.Error
		status   int
		expected string
	}{
		{
			name:     "unauthorized",
			err:      apierr.New(apierr.Unauthorized),
			status:   http.StatusUnauthorized,
			expected: `{"error":{"message":"Invalid user credential","errors":[{"message":"Invalid username or password","field":"auth"}]}}`,
		},
		{
			name:     "not verified",
			err:      apierr.New(apierr.NotVerified),
			status:   http.StatusUnauthorized,
			expected: `{"error":{"message":"Not Verified","errors":[{"message":"Email not verified","field":"email"}]}}`,
		},
		{
			name:     "forbidden",
			err:      apierr.New(apierr.Forbidden),
			status:   http.StatusForbidden,
			expected: `{"error":{"message":"Unauthorized","errors":[{"message":"Not Permitted","field":"auth"}]}}`,
		},
		{
			name:     "not found",
			err:      apierr.New(apierr.NotFound),
			status:   http.StatusNotFound,
			expected: `{"error":{"message":"Not found"}}`,
		},
		{
			name:     "unprocessable",
			err:      apierr.Unprocessable(apierr.FieldError{Field: "email", Message: "email already taken"}),
			status:   http.StatusUnprocessableEntity,
			expected: `{"error":{"message":"Unprocessable entity","errors":[{"message":"email already taken","field":"email"}]}}`,
		},
		{
			name:     "bad request with message",
			err:      apierr.New(apierr.BadRequest).WithMessage("invalid session id"),
			status:   http.StatusBadRequest,
			expected: `{"error":{"message":"invalid session id"}}`,
		},
		{
			name:     "internal hides detail",
			err:      apierr.New(apierr.Internal).WithMessage("pq: connection refused").WithCause(errors.New("dial tcp")),
			status:   http.StatusInternalServerError,
			expected: `{"error":{"message":"Internal server error"}}`,
		},
		{
			name:     "nil is internal",
			err:      nil,
			status:   http.StatusInternalServerError,
			expected: `{"error":{"message":"Internal server error"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := apierr.Render(tt.err)
			assert.Equal(t, tt.status, status)
			raw, err := json.Marshal(body)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(raw))
		})
	}
}

func TestFromError_Codes(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  apierr.Kind
		field string
	}{
		{"username taken", oops.Code("USER_USERNAME_TAKEN").With("field", "username").Errorf("username already taken"), apierr.UnprocessableEntity, "username"},
		{"email taken", oops.Code("USER_EMAIL_TAKEN").Errorf("email already taken"), apierr.UnprocessableEntity, "email"},
		{"email unknown", oops.Code("AUTH_EMAIL_NOT_FOUND").Errorf("email does not exist"), apierr.UnprocessableEntity, "email"},
		{"already verified", oops.Code("AUTH_ALREADY_VERIFIED").Errorf("x"), apierr.UnprocessableEntity, "email"},
		{"token not found", oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrTokenNotFound), apierr.UnprocessableEntity, "token"},
		{"token expired", oops.Code("TOKEN_EXPIRED").Wrap(auth.ErrTokenExpired), apierr.UnprocessableEntity, "token"},
		{"not verified", oops.Code("AUTH_NOT_VERIFIED").Errorf("email not verified"), apierr.NotVerified, ""},
		{"bad credentials", oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid user credential"), apierr.Unauthorized, ""},
		{"cookie missing", oops.Code("SESSION_COOKIE_MISSING").Errorf("no cookie"), apierr.NotFound, ""},
		{"cookie malformed", oops.Code("SESSION_ID_INVALID").Wrap(errors.New("invalid UUID length: 3")), apierr.BadRequest, ""},
		{"session unknown", oops.Code("SESSION_NOT_FOUND").Errorf("gone"), apierr.Forbidden, ""},
		{"session expired", oops.Code("SESSION_EXPIRED").Errorf("expired"), apierr.Forbidden, ""},
		{"malformed body", oops.Code("REQUEST_BODY_MALFORMED").Wrap(errors.New("unexpected EOF")), apierr.BadRequest, ""},
		{"old api version", oops.Code("API_VERSION_UNSUPPORTED").Errorf("want 2"), apierr.BadRequest, ""},
		{"storage failure", oops.Code("USER_QUERY_FAILED").Wrap(errors.New("conn reset")), apierr.Internal, ""},
		{"plain error", errors.New("boom"), apierr.Internal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := apierr.FromError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.kind, got.Kind)
			if tt.field != "" {
				require.Len(t, got.Fields, 1)
				assert.Equal(t, tt.field, got.Fields[0].Field)
				assert.NotEmpty(t, got.Fields[0].Message)
			}
			cause := errors.Unwrap(got)
			require.NotNil(t, cause)
			assert.Equal(t, tt.err.Error(), cause.Error())
		})
	}
}

func TestFromError_FieldErrors(t *testing.T) {
	errs := auth.FieldErrors{
		{Field: "email", Message: auth.MsgInvalidEmail},
		{Field: "password", Message: auth.MsgPasswordSpecial},
	}
	got := apierr.FromError(oops.Code("AUTH_VALIDATION_FAILED").Wrap(errs))

	assert.Equal(t, apierr.UnprocessableEntity, got.Kind)
	assert.Equal(t, []apierr.FieldError{
		{Field: "email", Message: auth.MsgInvalidEmail},
		{Field: "password", Message: auth.MsgPasswordSpecial},
	}, got.Fields)
}

func TestFromError_PassesThroughAPIError(t *testing.T) {
	orig := apierr.New(apierr.BadRequest).WithMessage("malformed body")
	wrapped := oops.Code("HTTP_BIND_FAILED").Wrap(orig)

	assert.Same(t, orig, apierr.FromError(wrapped))
	assert.Nil(t, apierr.FromError(nil))
}

func TestFromError_InfrastructureWrappingClassifiedCodeStaysInternal(t *testing.T) {
	// A flow-level wrapper around an infra error keeps the infra code as the
	// deepest one, so the response stays opaque.
	inner := oops.Code("MAIL_SEND_FAILED").Errorf("status 502")
	err := oops.Code("AUTH_VERIFICATION_FAILED").Wrap(inner)

	got := apierr.FromError(err)
	assert.Equal(t, apierr.Internal, got.Kind)
	assert.Equal(t, "MAIL_SEND_FAILED", errutil.Code(err))
}

func TestError_MessageIncludesCause(t *testing.T) {
	err := apierr.New(apierr.Internal).WithCause(errors.New("dial tcp"))
	assert.Contains(t, err.Error(), "dial tcp")
	assert.Contains(t, apierr.New(apierr.NotFound).Error(), "Not found")
}

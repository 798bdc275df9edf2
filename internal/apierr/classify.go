// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package apierr

import (
	"errors"

	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/pkg/errutil"
)

// rule classifies one oops code.
type rule struct {
	kind  Kind
	field string // overrides the "field" context key when set
	text  string // field error message; empty means no field entry
}

// rules maps flow error codes to kinds. Codes absent here are Internal.
var rules = map[string]rule{
	"USER_USERNAME_TAKEN":      {kind: UnprocessableEntity, field: "username", text: "username already taken"},
	"USER_EMAIL_TAKEN":         {kind: UnprocessableEntity, field: "email", text: "email already taken"},
	"AUTH_EMAIL_NOT_FOUND":     {kind: UnprocessableEntity, field: "email", text: "email does not exist"},
	"AUTH_ALREADY_VERIFIED":    {kind: UnprocessableEntity, field: "email", text: "email already verified"},
	"TOKEN_NOT_FOUND":          {kind: UnprocessableEntity, field: "token", text: "token is invalid or has already been used"},
	"TOKEN_EXPIRED":            {kind: UnprocessableEntity, field: "token", text: "token has expired"},
	"AUTH_NOT_VERIFIED":        {kind: NotVerified},
	"AUTH_INVALID_CREDENTIALS": {kind: Unauthorized},
	"SESSION_COOKIE_MISSING":   {kind: NotFound},
	"SESSION_ID_INVALID":       {kind: BadRequest, text: "invalid session id"},
	"SESSION_NOT_FOUND":        {kind: Forbidden},
	"SESSION_EXPIRED":          {kind: Forbidden},
	"REQUEST_BODY_MALFORMED":   {kind: BadRequest},
	"REQUEST_MEDIA_TYPE":       {kind: BadRequest, text: "unsupported content type"},
	"API_VERSION_UNSUPPORTED":  {kind: BadRequest, text: "unsupported api version"},
}

// FromError classifies err. An *Error anywhere in the chain is returned as
// is; auth.FieldErrors become UnprocessableEntity; known oops codes map per
// rules; everything else is Internal with err kept as the cause.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var fieldErrs auth.FieldErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]FieldError, len(fieldErrs))
		for i, fe := range fieldErrs {
			fields[i] = FieldError{Field: fe.Field, Message: fe.Message}
		}
		return Unprocessable(fields...).WithCause(err)
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return New(Internal).WithCause(err)
	}
	r, ok := rules[errutil.Code(err)]
	if !ok {
		return New(Internal).WithCause(err)
	}

	out := New(r.kind).WithCause(err)
	switch r.kind {
	case BadRequest:
		out.Message = r.text
	case UnprocessableEntity:
		field := r.field
		if field == "" {
			field = contextString(oopsErr, "field")
		}
		out.Fields = []FieldError{{Field: field, Message: r.text}}
	}
	return out
}

func contextString(err oops.OopsError, key string) string {
	v, _ := err.Context()[key].(string)
	return v
}

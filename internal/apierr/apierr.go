// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package apierr defines the closed set of error kinds the HTTP API returns
// and the mapping from each kind to a status code and JSON body.
package apierr

import (
	"fmt"
	"net/http"
)

// Kind is one class of client-visible failure.
type Kind int

// The complete set of kinds. Adding one requires a case in Status and defaultMessage.
const (
	Internal Kind = iota
	Unauthorized
	NotVerified
	Forbidden
	NotFound
	UnprocessableEntity
	BadRequest
)

// Kinds lists every Kind in declaration order.
func Kinds() []Kind {
	return []Kind{Internal, Unauthorized, NotVerified, Forbidden, NotFound, UnprocessableEntity, BadRequest}
}

func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case Unauthorized:
		return "unauthorized"
	case NotVerified:
		return "not_verified"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case UnprocessableEntity:
		return "unprocessable_entity"
	case BadRequest:
		return "bad_request"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Status returns the HTTP status for k. Unknown kinds are treated as Internal.
func Status(k Kind) int {
	switch k {
	case Unauthorized, NotVerified:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case UnprocessableEntity:
		return http.StatusUnprocessableEntity
	case BadRequest:
		return http.StatusBadRequest
	case Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func defaultMessage(k Kind) string {
	switch k {
	case Unauthorized:
		return "Invalid user credential"
	case NotVerified:
		return "Not Verified"
	case Forbidden:
		return "Unauthorized"
	case NotFound:
		return "Not found"
	case UnprocessableEntity:
		return "Unprocessable entity"
	case BadRequest:
		return "Bad request"
	default:
		return "Internal server error"
	}
}

// defaultFields are attached when an error of the kind carries none.
func defaultFields(k Kind) []FieldError {
	switch k {
	case Unauthorized:
		return []FieldError{{Field: "auth", Message: "Invalid username or password"}}
	case NotVerified:
		return []FieldError{{Field: "email", Message: "Email not verified"}}
	case Forbidden:
		return []FieldError{{Field: "auth", Message: "Not Permitted"}}
	default:
		return nil
	}
}

// FieldError is one entry of the errors array.
type FieldError struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Error is a classified API failure.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	cause   error
}

// New returns an Error of kind k with the kind's default message.
func New(k Kind) *Error {
	return &Error{Kind: k}
}

// Unprocessable returns an UnprocessableEntity error carrying fields.
func Unprocessable(fields ...FieldError) *Error {
	return &Error{Kind: UnprocessableEntity, Fields: fields}
}

// WithMessage sets the top-level message.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// WithCause records the underlying error for logging. It is never rendered.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessage(e.Kind)
	}
	if e.cause != nil {
		return e.Kind.String() + ": " + msg + ": " + e.cause.Error()
	}
	return e.Kind.String() + ": " + msg
}

func (e *Error) Unwrap() error { return e.cause }

// Body is the JSON error envelope.
type Body struct {
	Error ClientError `json:"error"`
}

// ClientError is the payload of Body.
type ClientError struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// Render returns the status and body for e. Internal errors never expose
// their message or fields.
func Render(e *Error) (int, Body) {
	if e == nil {
		e = New(Internal)
	}
	if e.Kind == Internal {
		return Status(Internal), Body{Error: ClientError{Message: defaultMessage(Internal)}}
	}

	msg := e.Message
	if msg == "" {
		msg = defaultMessage(e.Kind)
	}
	fields := e.Fields
	if len(fields) == 0 {
		fields = defaultFields(e.Kind)
	}
	return Status(e.Kind), Body{Error: ClientError{Message: msg, Errors: fields}}
}

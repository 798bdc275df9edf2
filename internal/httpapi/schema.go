// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// SchemaBaseURL prefixes every request schema $id.
const SchemaBaseURL = "https://keyward.dev/schemas/"

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username" form:"username" jsonschema:"description=Public display name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email      string `json:"email" form:"email"`
	Password   string `json:"password" form:"password"`
	RememberMe bool   `json:"remember_me,omitempty" form:"remember_me" jsonschema:"description=Selects the long session lifetime"`
}

// EmailRequest is the body of the reset request and resend endpoints.
type EmailRequest struct {
	Email string `json:"email" form:"email"`
}

// PasswordRequest is the body of POST /api/auth/reset-password/{token}.
type PasswordRequest struct {
	Password string `json:"password" form:"password"`
}

// requestTypes names every request body with a published schema.
var requestTypes = map[string]any{
	"register":       &RegisterRequest{},
	"login":          &LoginRequest{},
	"email":          &EmailRequest{},
	"reset-password": &PasswordRequest{},
}

// SchemaNames returns the published schema names in sorted order.
func SchemaNames() []string {
	names := make([]string, 0, len(requestTypes))
	for name := range requestTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func schemaID(name string) string {
	return SchemaBaseURL + name + ".schema.json"
}

// GenerateSchema returns the JSON Schema document for the named request body.
func GenerateSchema(name string) ([]byte, error) {
	v, ok := requestTypes[name]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN").With("name", name).Errorf("no request schema named %q", name)
	}

	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(v)
	schema.ID = jsonschema.ID(schemaID(name))
	schema.Title = "Keyward " + name + " request"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").With("name", name).Wrap(err)
	}
	return data, nil
}

// requestSchemas compiles every request schema once.
var requestSchemas = sync.OnceValues(compileSchemas)

func compileSchemas() (map[string]*jschema.Schema, error) {
	c := jschema.NewCompiler()
	for _, name := range SchemaNames() {
		data, err := GenerateSchema(name)
		if err != nil {
			return nil, err
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("name", name).Wrap(err)
		}
		if err := c.AddResource(schemaID(name), doc); err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("name", name).Wrap(err)
		}
	}

	compiled := make(map[string]*jschema.Schema, len(requestTypes))
	for _, name := range SchemaNames() {
		sch, err := c.Compile(schemaID(name))
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("name", name).Wrap(err)
		}
		compiled[name] = sch
	}
	return compiled, nil
}

// validateBody checks a JSON document against the named schema and decodes
// it into dst. Schema violations become auth.FieldErrors.
func validateBody(name string, body []byte, dst any) error {
	schemas, err := requestSchemas()
	if err != nil {
		return err
	}
	sch, ok := schemas[name]
	if !ok {
		return oops.Code("SCHEMA_UNKNOWN").With("name", name).Errorf("no request schema named %q", name)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return oops.Code("REQUEST_BODY_MALFORMED").Wrap(err)
	}

	if err := sch.Validate(doc); err != nil {
		var ve *jschema.ValidationError
		if errors.As(err, &ve) {
			return oops.Code("REQUEST_SCHEMA_VIOLATION").With("schema", name).Wrap(fieldErrors(ve))
		}
		return oops.Code("REQUEST_SCHEMA_VIOLATION").With("schema", name).Wrap(err)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return oops.Code("REQUEST_BODY_MALFORMED").Wrap(err)
	}
	return nil
}

// fieldErrors flattens the leaves of a validation error tree.
func fieldErrors(ve *jschema.ValidationError) auth.FieldErrors {
	var out auth.FieldErrors
	var walk func(*jschema.ValidationError)
	walk = func(e *jschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		field := strings.Join(e.InstanceLocation, ".")
		switch k := e.ErrorKind.(type) {
		case *kind.Required:
			for _, missing := range k.Missing {
				out = append(out, auth.FieldError{Field: missing, Message: auth.MsgEmpty})
			}
		case *kind.Type:
			out = append(out, auth.FieldError{Field: field, Message: fmt.Sprintf("must be of type %s", strings.Join(k.Want, " or "))})
		default:
			out = append(out, auth.FieldError{Field: field, Message: "is invalid"})
		}
	}
	walk(ve)
	return out
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"github.com/samber/oops"
)

// RegisterRequest is the payload accepted by Register.
type RegisterRequest struct {
	Name     string `json:"name" jsonschema:"minLength=1,maxLength=100,pattern=\\S"`
	School   string `json:"school" jsonschema:"minLength=1,maxLength=100,pattern=\\S"`
	Phone    string `json:"phone" jsonschema:"minLength=6,maxLength=20,pattern=^[+]?[0-9]+$"`
	Password string `json:"password" jsonschema:"minLength=6,maxLength=72"`
}

// LoginRequest is the payload accepted by Login.
type LoginRequest struct {
	Phone    string `json:"phone" jsonschema:"minLength=6,maxLength=20,pattern=^[+]?[0-9]+$"`
	Password string `json:"password" jsonschema:"minLength=1,maxLength=72"`
}

const schemaBaseURL = "https://aptitude.holomush.dev/schemas/"

// Validator checks request payloads against JSON Schemas reflected from
// RegisterRequest and LoginRequest. It is safe for concurrent use.
type Validator struct {
	register      *jschema.Schema
	registerOrder []string
	login         *jschema.Schema
	loginOrder    []string
}

// NewValidator compiles the request schemas.
func NewValidator() (*Validator, error) {
	register, err := compileSchema("register", &RegisterRequest{})
	if err != nil {
		return nil, err
	}
	login, err := compileSchema("login", &LoginRequest{})
	if err != nil {
		return nil, err
	}

	return &Validator{
		register:      register,
		registerOrder: []string{"name", "school", "phone", "password"},
		login:         login,
		loginOrder:    []string{"phone", "password"},
	}, nil
}

// GenerateSchema returns the JSON Schema document for the named payload
// ("register" or "login").
func GenerateSchema(name string) ([]byte, error) {
	var v any
	switch name {
	case "register":
		v = &RegisterRequest{}
	case "login":
		v = &LoginRequest{}
	default:
		return nil, oops.Code("AUTH_SCHEMA_UNKNOWN").With("schema", name).Errorf("unknown schema %q", name)
	}

	data, err := json.MarshalIndent(reflectSchema(name, v), "", "  ")
	if err != nil {
		return nil, oops.Code("AUTH_SCHEMA_FAILED").With("schema", name).Wrap(err)
	}
	return data, nil
}

func reflectSchema(name string, v any) *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(v)
	schema.ID = jsonschema.ID(schemaBaseURL + name + ".schema.json")
	return schema
}

func compileSchema(name string, v any) (*jschema.Schema, error) {
	raw, err := json.Marshal(reflectSchema(name, v))
	if err != nil {
		return nil, oops.Code("AUTH_SCHEMA_FAILED").With("schema", name).Wrap(err)
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("AUTH_SCHEMA_FAILED").With("schema", name).Wrap(err)
	}

	url := schemaBaseURL + name + ".schema.json"
	c := jschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, oops.Code("AUTH_SCHEMA_FAILED").With("schema", name).Wrap(err)
	}

	sch, err := c.Compile(url)
	if err != nil {
		return nil, oops.Code("AUTH_SCHEMA_FAILED").With("schema", name).Wrap(err)
	}
	return sch, nil
}

// Register validates a raw registration payload and decodes it.
func (v *Validator) Register(data []byte) (RegisterRequest, error) {
	var req RegisterRequest
	err := v.check(v.register, v.registerOrder, data, &req)
	return req, err
}

// Login validates a raw login payload and decodes it.
func (v *Validator) Login(data []byte) (LoginRequest, error) {
	var req LoginRequest
	err := v.check(v.login, v.loginOrder, data, &req)
	return req, err
}

func (v *Validator) check(sch *jschema.Schema, order []string, data []byte, out any) error {
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return validationError("", "Invalid request body")
	}

	if err := sch.Validate(doc); err != nil {
		field, msg := firstViolation(err, order)
		return validationError(field, msg)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return validationError("", "Invalid request body")
	}
	return nil
}

func validationError(field, msg string) error {
	return oops.Code(CodeValidationFailed).
		With("field", field).
		Public(msg).
		Errorf("%s", msg)
}

// violation is a single failed keyword located at a top-level field.
type violation struct {
	field    string
	severity int // lower is reported first within a field
	msg      string
}

// firstViolation reduces a schema error to one message. Violations are
// ranked by the payload's declared field order, so the reported message
// does not depend on the validator's traversal order.
func firstViolation(err error, order []string) (string, string) {
	verr, ok := err.(*jschema.ValidationError)
	if !ok {
		return "", "Invalid request body"
	}

	var found []violation
	collectViolations(verr, &found)
	if len(found) == 0 {
		return "", "Invalid request body"
	}

	rank := func(field string) int {
		if i := slices.Index(order, field); i >= 0 {
			return i
		}
		return len(order)
	}
	slices.SortStableFunc(found, func(a, b violation) int {
		if d := rank(a.field) - rank(b.field); d != 0 {
			return d
		}
		return a.severity - b.severity
	})
	return found[0].field, found[0].msg
}

func collectViolations(verr *jschema.ValidationError, out *[]violation) {
	if len(verr.Causes) > 0 {
		for _, c := range verr.Causes {
			collectViolations(c, out)
		}
		return
	}

	field := "value"
	if len(verr.InstanceLocation) > 0 {
		field = verr.InstanceLocation[0]
	}

	switch k := verr.ErrorKind.(type) {
	case *kind.Required:
		for _, missing := range k.Missing {
			*out = append(*out, violation{missing, 0, fmt.Sprintf("%q is required", missing)})
		}
	case *kind.AdditionalProperties:
		for _, extra := range k.Properties {
			*out = append(*out, violation{extra, 0, fmt.Sprintf("%q is not allowed", extra)})
		}
	case *kind.Type:
		*out = append(*out, violation{field, 1, fmt.Sprintf("%q must be of type %s", field, strings.Join(k.Want, " or "))})
	case *kind.MinLength:
		if k.Got == 0 {
			*out = append(*out, violation{field, 2, fmt.Sprintf("%q is not allowed to be empty", field)})
			return
		}
		*out = append(*out, violation{field, 3, fmt.Sprintf("%q length must be at least %d characters long", field, k.Want)})
	case *kind.MaxLength:
		*out = append(*out, violation{field, 3, fmt.Sprintf("%q length must be less than or equal to %d characters long", field, k.Want)})
	case *kind.Pattern:
		switch field {
		case "phone":
			*out = append(*out, violation{field, 4, `"phone" must be a valid phone number`})
			return
		case "name", "school":
			*out = append(*out, violation{field, 2, fmt.Sprintf("%q is not allowed to be empty", field)})
			return
		}
		*out = append(*out, violation{field, 4, fmt.Sprintf("%q fails to match the required pattern", field)})
	default:
		*out = append(*out, violation{field, 5, fmt.Sprintf("%q is invalid", field)})
	}
}

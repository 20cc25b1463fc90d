// Package validate checks inbound job descriptors against a fixed JSON schema
// before any admission slot or browser is touched.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "job-descriptor.json"

// descriptorSchema only requires mode to be a string. The
// set of routed modes is enforced by the dispatcher.
const descriptorSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["mode"],
  "properties": {
    "mode": {"type": "string"},
    "url": {"type": "string", "format": "uri"},
    "authToken": {"type": "string"},
    "siteKey": {"type": "string"},
    "proxy": {
      "type": "object",
      "required": ["host"],
      "properties": {
        "host": {"type": "string", "minLength": 1},
        "port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "username": {"type": "string"},
        "password": {"type": "string"}
      },
      "additionalProperties": false
    }
  }
}`

// FieldError is a single schema violation.
type FieldError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result is the outcome of a validation. The zero value is valid.
type Result struct {
	Errors []FieldError
}

// Valid reports whether the payload satisfied the schema.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Invalid builds a failed Result with a single entry.
func Invalid(path, reason string) Result {
	return Result{Errors: []FieldError{{Path: path, Reason: reason}}}
}

// Validator holds the compiled descriptor schema. It is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the descriptor schema.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	c.AssertFormat = true
	if err := c.AddResource(schemaURL, strings.NewReader(descriptorSchema)); err != nil {
		return nil, fmt.Errorf("add descriptor schema: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile descriptor schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks raw against the schema. It has no side effects.
func (v *Validator) Validate(raw []byte) Result {
	doc, err := decode(raw)
	if err != nil {
		return Invalid("", err.Error())
	}
	if err := v.schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return Invalid("", err.Error())
		}
		return Result{Errors: leaves(verr)}
	}
	return Result{}
}

func decode(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("request body is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("malformed JSON: trailing data after document")
	}
	return doc, nil
}

// leaves flattens the error tree to the violations that carry a concrete reason.
func leaves(root *jsonschema.ValidationError) []FieldError {
	var out []FieldError
	var walk func(*jsonschema.ValidationError)
	walk = func(ve *jsonschema.ValidationError) {
		if len(ve.Causes) == 0 {
			out = append(out, FieldError{Path: ve.InstanceLocation, Reason: ve.Message})
			return
		}
		for _, cause := range ve.Causes {
			walk(cause)
		}
	}
	walk(root)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

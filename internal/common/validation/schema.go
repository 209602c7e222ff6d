package validation

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// JobSchema describes the queue payload shared by the ingest path and the worker.
const JobSchema = `{
  "type": "object",
  "required": ["notificationId", "tenantId", "appId", "event", "channel", "userId"],
  "properties": {
    "notificationId": {"type": "string", "minLength": 1},
    "tenantId":       {"type": "string", "minLength": 1},
    "appId":          {"type": "string", "minLength": 1},
    "event":          {"type": "string", "minLength": 1, "maxLength": 100},
    "channel":        {"type": "string", "enum": ["EMAIL", "SMS", "PUSH", "IN_APP"]},
    "userId":         {"type": "string", "minLength": 1},
    "userEmail":      {"type": "string"},
    "userMobile":     {"type": "string"},
    "data":           {"type": "object"},
    "title":          {"type": "string"},
    "body":           {"type": "string"}
  }
}`

// IngestSchema describes the body accepted by the send endpoint.
const IngestSchema = `{
  "type": "object",
  "required": ["event", "channels", "user"],
  "properties": {
    "event":    {"type": "string", "minLength": 1, "maxLength": 100},
    "channels": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "enum": ["EMAIL", "SMS", "PUSH", "IN_APP"]}
    },
    "user": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id":     {"type": "string", "minLength": 1},
        "email":  {"type": "string", "format": "email"},
        "mobile": {"type": "string", "minLength": 1}
      }
    },
    "data": {
      "type": "object",
      "not": {
        "anyOf": [
          {"required": ["html"]},
          {"required": ["emailHtml"]},
          {"required": ["template"]}
        ]
      }
    },
    "title": {"type": "string", "maxLength": 200},
    "body":  {"type": "string", "maxLength": 5000}
  }
}`

// Schema is a compiled JSON schema.
type Schema struct {
	schema *gojsonschema.Schema
}

// Compile parses a JSON schema document.
func Compile(doc string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustCompile is Compile for package level schemas.
func MustCompile(doc string) *Schema {
	s, err := Compile(doc)
	if err != nil {
		panic(err)
	}
	return s
}

var (
	jobSchema    = MustCompile(JobSchema)
	ingestSchema = MustCompile(IngestSchema)
)

// ValidateJob checks a raw queue payload.
func ValidateJob(raw []byte) *ValidationResult {
	return jobSchema.ValidateBytes(raw)
}

// ValidateIngest checks a raw send request body.
func ValidateIngest(raw []byte) *ValidationResult {
	return ingestSchema.ValidateBytes(raw)
}

func (s *Schema) ValidateBytes(raw []byte) *ValidationResult {
	return s.validate(gojsonschema.NewBytesLoader(raw))
}

// ValidateValue validates any value that marshals to JSON.
func (s *Schema) ValidateValue(v interface{}) *ValidationResult {
	raw, err := json.Marshal(v)
	if err != nil {
		return &ValidationResult{Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "INVALID_JSON"}}}
	}
	return s.ValidateBytes(raw)
}

func (s *Schema) validate(doc gojsonschema.JSONLoader) *ValidationResult {
	result, err := s.schema.Validate(doc)
	if err != nil {
		return &ValidationResult{Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "INVALID_JSON"}}}
	}
	if result.Valid() {
		return &ValidationResult{Valid: true}
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Code:    e.Type(),
		})
	}
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return &ValidationResult{Errors: errs}
}

// FormatValidationErrors joins errors into one message.
func FormatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	msg := "validation failed: "
	for i, err := range errors {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return msg
}

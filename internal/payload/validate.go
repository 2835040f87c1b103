package payload

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed metrics.schema.json
var metricsSchemaJSON []byte

//go:embed system_info.schema.json
var systemInfoSchemaJSON []byte

// Validator checks raw broker payloads against the embedded JSON Schemas and
// decodes them into their typed forms. Both schemas are compiled once at
// construction; unknown descriptive keys are allowed so older servers accept
// newer agents.
type Validator struct {
	metrics    *jsonschema.Schema
	systemInfo *jsonschema.Schema
}

// NewValidator compiles the embedded payload schemas.
func NewValidator() (*Validator, error) {
	metrics, err := compileSchema("metrics.schema.json", metricsSchemaJSON)
	if err != nil {
		return nil, err
	}
	systemInfo, err := compileSchema("system_info.schema.json", systemInfoSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &Validator{metrics: metrics, systemInfo: systemInfo}, nil
}

// ValidateMetrics parses and validates one metrics sample.
func (v *Validator) ValidateMetrics(raw []byte) (*MetricsPayload, error) {
	if err := v.validate(v.metrics, raw); err != nil {
		return nil, err
	}
	var p MetricsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode metrics payload: %w", err)
	}
	return &p, nil
}

// ValidateSystemInfo parses and validates one inventory message.
func (v *Validator) ValidateSystemInfo(raw []byte) (*SystemInfoPayload, error) {
	if err := v.validate(v.systemInfo, raw); err != nil {
		return nil, err
	}
	var p SystemInfoPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode system info payload: %w", err)
	}
	return &p, nil
}

func (v *Validator) validate(schema *jsonschema.Schema, raw []byte) error {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return fmt.Errorf("schema violation: %s", formatValidationError(err))
	}
	return nil
}

func compileSchema(name string, schemaJSON []byte) (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)
	if err := compiler.AddResource(name, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}

	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

// formatValidationError renders a validation failure as a single log-friendly
// line with the offending JSON path, e.g. "at '$.cpu': maximum: got 1.5".
func formatValidationError(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}

	path := "$"
	if len(ve.InstanceLocation) > 0 {
		path = "$." + strings.Join(ve.InstanceLocation, ".")
	}

	msg := ve.Error()
	if len(msg) > 200 {
		msg = msg[:200] + "... (truncated)"
	}
	return fmt.Sprintf("at '%s': %s", path, msg)
}

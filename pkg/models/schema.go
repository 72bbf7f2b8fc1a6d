package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema represents a JSON Schema for node configuration validation.
type JSONSchema struct {
	Type        string               `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a JSON Schema property.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	MinLength   *int     `json:"minLength,omitempty"`
}

func ptr[T any](v T) *T {
	return &v
}

var nodeSchemas = map[NodeType]*JSONSchema{
	NodeTypeTrigger: {
		Type:  "object",
		Title: "Trigger",
		Properties: map[string]*Property{
			"event":      {Type: "string", Enum: []any{"stage_changed", "purchase", "manual"}, Description: "Event that starts the automation"},
			"stage":      {Type: "string", Description: "Pipeline stage to match for stage_changed events"},
			"product_id": {Type: "string", Description: "Product to match for purchase events"},
		},
		Required: []string{"event"},
	},
	NodeTypeMessage: {
		Type:  "object",
		Title: "Message",
		Properties: map[string]*Property{
			"mode":            {Type: "string", Enum: []any{"static", "generated"}},
			"content":         {Type: "string", Description: "Content sent verbatim in static mode"},
			"prompt_template": {Type: "string", Description: "Instruction rendered for generation in generated mode"},
		},
		Required: []string{"mode"},
	},
	NodeTypeWait: {
		Type:  "object",
		Title: "Wait",
		Properties: map[string]*Property{
			"amount": {Type: "integer", Minimum: ptr(1.0), Maximum: ptr(float64(MaxWait / time.Minute))},
			"unit":   {Type: "string", Enum: []any{"minutes", "hours", "days"}},
		},
		Required: []string{"amount", "unit"},
	},
	NodeTypeSmartCondition: {
		Type:  "object",
		Title: "Smart condition",
		Properties: map[string]*Property{
			"kind":              {Type: "string", Enum: []any{"repliedRecently", "naturalLanguageRule", "expression"}},
			"rule_text":         {Type: "string"},
			"recency_threshold": {Type: "string", Description: "Go duration, e.g. 1h or 30m"},
			"expression":        {Type: "string"},
		},
		Required: []string{"kind"},
	},
	NodeTypeStopAutomation: {
		Type:  "object",
		Title: "Stop automation",
		Properties: map[string]*Property{
			"reason": {Type: "string"},
		},
	},
}

// NodeSchema returns the config schema of a known node type.
func NodeSchema(nodeType NodeType) (*JSONSchema, bool) {
	schema, ok := nodeSchemas[nodeType]

	return schema, ok
}

// ValidateConfigSchema checks a raw config payload against the schema of its node type.
// Unknown node types have no schema and always pass.
func ValidateConfigSchema(nodeType NodeType, payload json.RawMessage) error {
	schema, ok := nodeSchemas[nodeType]
	if !ok {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNodeConfig, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("%w: %s config: %s", ErrInvalidNodeConfig, nodeType, strings.Join(problems, "; "))
	}

	return nil
}

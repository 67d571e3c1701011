package judge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Models wrap JSON in code fences or prose more often than not; strip
// fences first, then fall back to the outermost object.
var (
	codeFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")
	objectRegex    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// extractJSON pulls the JSON object out of a model reply.
func extractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)

	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if json.Valid([]byte(text)) {
		return text, nil
	}
	if m := objectRegex.FindString(text); m != "" && json.Valid([]byte(m)) {
		return m, nil
	}
	return "", fmt.Errorf("no JSON object in model reply")
}

// schemaValidator is a compiled JSON schema.
type schemaValidator struct {
	schema *jsonschema.Schema
}

func mustSchema(raw string) *schemaValidator {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		panic(err)
	}
	s, err := c.Compile("schema.json")
	if err != nil {
		panic(err)
	}
	return &schemaValidator{schema: s}
}

func (v *schemaValidator) validate(payload string) error {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(payload))
	if err != nil {
		return err
	}
	return v.schema.Validate(inst)
}

var judgmentSchema = mustSchema(`{
	"type": "object",
	"required": ["similarity", "confidence"],
	"properties": {
		"similarity": {"type": "number", "minimum": 0, "maximum": 1},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reasoning": {"type": "string"}
	}
}`)

var patternSchema = mustSchema(`{
	"type": "object",
	"required": ["regex"],
	"properties": {
		"label": {"type": "string"},
		"regex": {"type": "string", "minLength": 1}
	}
}`)

// internal/nlu/models.go
package nlu

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"trip-report-bot/internal/filter"
)

// chatRequest is the OpenAI-compatible chat completion payload.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// candidateSchema constrains the model reply before any vocabulary checks
// run. Shape errors are caught here; value errors are left to the
// validator, which drops unknown tokens field by field.
const candidateSchema = `{
	"type": "object",
	"properties": {
		"categories":     {"type": "array", "items": {"type": "string"}},
		"areas":          {"type": "array", "items": {"type": "string"}},
		"period":         {"type": ["string", "null"]},
		"all_categories": {"type": "boolean"},
		"all_areas":      {"type": "boolean"}
	},
	"additionalProperties": true
}`

var schemaLoader = gojsonschema.NewStringLoader(candidateSchema)

// parseCandidate decodes and schema-checks a raw model reply. Replies
// wrapped in markdown code fences are unwrapped first.
func parseCandidate(raw string) (filter.Candidate, error) {
	var c filter.Candidate

	cleaned := stripFences(raw)
	if cleaned == "" {
		return c, fmt.Errorf("empty reply")
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return c, fmt.Errorf("reply is not valid JSON: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return c, fmt.Errorf("reply failed schema check: %s", strings.Join(problems, "; "))
	}

	if err := json.Unmarshal([]byte(cleaned), &c); err != nil {
		return c, fmt.Errorf("decode reply: %w", err)
	}
	return c, nil
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Package judge implements the optional LLM collaborators: a semantic
// judge for candidate pairs and a split-pattern supplier for oversized
// groups. Both speak to any OpenAI-compatible endpoint, including a
// local Ollama server via base_url.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mimiclab/mimic/pkg/config"
	"github.com/mimiclab/mimic/pkg/grouping"
	"github.com/mimiclab/mimic/pkg/models"
)

// maxUnitSource caps how much of a unit's source is sent per prompt.
const maxUnitSource = 4000

// Client wraps an OpenAI-compatible chat endpoint.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a client from judge configuration. The API key is
// read from the configured environment variable; Ollama-style endpoints
// accept any non-empty key.
func NewClient(cfg config.JudgeConfig) (*Client, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" && cfg.BaseURL == "" {
		return nil, &models.ConfigurationError{
			Field:  "judge.api_key_env",
			Reason: fmt.Sprintf("environment variable %s is empty and no base_url is set", cfg.APIKeyEnv),
		}
	}
	if apiKey == "" {
		apiKey = "unused"
	}

	oc := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(oc),
		model: cfg.Model,
	}, nil
}

const evaluateSystemPrompt = `You compare two code fragments and decide whether they are semantic duplicates.
Respond with a single JSON object, no prose:
{"similarity": <0..1>, "confidence": <0..1>, "reasoning": "<one sentence>"}`

// Evaluate asks the model for a semantic opinion on a pair. Any failure
// is returned to the caller, who degrades to the structural score.
func (c *Client) Evaluate(ctx context.Context, a, b models.CodeUnit) (models.Judgment, error) {
	prompt := fmt.Sprintf("Fragment A (%s %s):\n%s\n\nFragment B (%s %s):\n%s",
		a.Language, a.QualifiedName, truncate(a.Source, maxUnitSource),
		b.Language, b.QualifiedName, truncate(b.Source, maxUnitSource))

	raw, err := c.complete(ctx, evaluateSystemPrompt, prompt)
	if err != nil {
		return models.Judgment{}, fmt.Errorf("%w: %v", models.ErrJudgeUnavailable, err)
	}

	var j models.Judgment
	if err := decodeResponse(raw, judgmentSchema, &j); err != nil {
		return models.Judgment{}, fmt.Errorf("%w: %v", models.ErrJudgeUnavailable, err)
	}
	j.Similarity = clamp01(j.Similarity)
	j.Confidence = clamp01(j.Confidence)
	return j, nil
}

const proposeSystemPrompt = `You are shown several code fragments that were grouped as near-duplicates.
Propose a single regular expression (Go RE2 syntax) that matches the source of some fragments but not others, splitting the group along a meaningful line.
Respond with a single JSON object, no prose:
{"label": "<short description of what matches>", "regex": "<pattern>"}`

// Propose asks the model for a split pattern over a member sample.
// The grouping layer validates the pattern and treats failures as a
// spent retry.
func (c *Client) Propose(ctx context.Context, sample []models.CodeUnit) (grouping.Pattern, error) {
	var sb strings.Builder
	for i, u := range sample {
		fmt.Fprintf(&sb, "Fragment %d (%s %s):\n%s\n\n",
			i+1, u.Language, u.QualifiedName, truncate(u.Source, maxUnitSource/2))
	}

	raw, err := c.complete(ctx, proposeSystemPrompt, sb.String())
	if err != nil {
		return grouping.Pattern{}, fmt.Errorf("%w: %v", models.ErrJudgeUnavailable, err)
	}

	var p struct {
		Label string `json:"label"`
		Regex string `json:"regex"`
	}
	if err := decodeResponse(raw, patternSchema, &p); err != nil {
		return grouping.Pattern{}, fmt.Errorf("%w: %v", models.ErrJudgeUnavailable, err)
	}
	if _, err := regexp.Compile(p.Regex); err != nil {
		return grouping.Pattern{}, fmt.Errorf("proposed pattern does not compile: %w", err)
	}
	return grouping.Pattern{Label: p.Label, Regex: p.Regex}, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n// ... truncated"
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// decodeResponse extracts JSON from a model reply, validates it against
// the schema, and unmarshals into out.
func decodeResponse(raw string, schema *schemaValidator, out any) error {
	payload, err := extractJSON(raw)
	if err != nil {
		return err
	}
	if err := schema.validate(payload); err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), out)
}

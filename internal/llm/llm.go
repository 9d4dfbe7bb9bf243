package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pavelanni/neetrank/internal/llm/prompts"
	"github.com/pavelanni/neetrank/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// FocusItem is one topic the study plan asks the student to work on.
type FocusItem struct {
	Topic  string `json:"topic"`
	Advice string `json:"advice"`
}

// StudyPlan is the coach's response for one student.
type StudyPlan struct {
	Summary     string      `json:"summary"`
	WeeklyHours int         `json:"weekly_hours"`
	Focus       []FocusItem `json:"focus"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client. The prompt templates must load cleanly.
func New(baseURL, apiKey, modelName, variant string) (*Client, error) {
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.PromptVariant(variant),
	}, nil
}

// Ping checks that the endpoint answers and serves the configured model.
func (c *Client) Ping(ctx context.Context) error {
	models, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range models.Models {
		if m.ID == c.model {
			return nil
		}
	}
	slog.Warn("model not listed by endpoint", "model", c.model, "available", len(models.Models))
	return nil
}

// StudyPlan asks the LLM for a study plan derived from the student's insight
// report and predicted rank.
func (c *Client) StudyPlan(ctx context.Context, userID string, report model.InsightReport, predictedRank int) (*StudyPlan, error) {
	data, err := prompts.NewCoachData(userID, report, predictedRank)
	if err != nil {
		return nil, err
	}
	systemPrompt, err := prompts.BuildCoachPrompt(c.variant, data)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Write my study plan."},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseStudyPlan(raw)
}

func parseStudyPlan(raw string) (*StudyPlan, error) {
	var plan StudyPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	if plan.Summary == "" {
		return nil, fmt.Errorf("LLM response has no summary (raw: %s)", raw)
	}
	if plan.WeeklyHours < 0 {
		plan.WeeklyHours = 0
	}
	return &plan, nil
}

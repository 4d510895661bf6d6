// Package agent wraps the Gemini model used for advisory text generation.
package agent

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Agent holds the Gemini client and model handle.
type Agent struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewAgent creates an Agent. Returns (nil, nil) when apiKey is empty so
// callers can fall back to deterministic output.
func NewAgent(ctx context.Context, apiKey string) (*Agent, error) {
	if apiKey == "" {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := client.GenerativeModel("gemini-1.5-flash")
	model.SetMaxOutputTokens(550)

	return &Agent{client: client, model: model}, nil
}

// Close releases the underlying client.
func (a *Agent) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}

// Generate sends a system prompt plus a user prompt and returns the text
// reply. The caller bounds the context; there are no retries here.
func (a *Agent) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if a == nil || a.model == nil {
		return "", fmt.Errorf("ai agent is not initialized")
	}

	a.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	resp, err := a.model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from agent: %v", resp)
	}

	part := resp.Candidates[0].Content.Parts[0]
	textPart, ok := part.(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response type from agent: %T", part)
	}

	return string(textPart), nil
}

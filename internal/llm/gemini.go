package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"titan/internal/logging"
)

// GeminiCompleter implements types.Completer over the Google GenAI SDK.
// It serves the cheap single-shot paths: intent escalation and titles.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter creates a completer with the given API key and model.
func NewGeminiCompleter(ctx context.Context, apiKey, model string) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiCompleter{client: client, model: model}, nil
}

// Complete sends a single prompt and returns the text response.
func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GenAI completion failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}
	logging.LLMDebug("Gemini complete: model=%s prompt_len=%d response_len=%d", g.model, len(prompt), len(text))
	return text, nil
}

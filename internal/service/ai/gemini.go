package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/legendisdaname/whatsapp-platform-backend/config"
)

// GenerateReply asks Gemini for a response to an inbound message, steered
// by the session's configured context prompt.
func GenerateReply(ctx context.Context, systemPrompt, inbound string) (string, error) {
	if config.GeminiAPIKey == "" {
		return "", fmt.Errorf("gemini api key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}

	systemInstruction := systemPrompt
	if systemInstruction == "" {
		systemInstruction = "You are a helpful assistant replying on a messaging app. Be friendly and concise."
	}

	temp := float32(config.AIDefaultTemperature)
	maxTok := int32(config.AIDefaultMaxTokens)
	modelName := strings.TrimPrefix(config.GeminiDefaultModel, "models/")

	result, err := client.Models.GenerateContent(
		ctx,
		modelName,
		genai.Text(inbound),
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{
					{Text: systemInstruction},
				},
			},
			Temperature:     &temp,
			MaxOutputTokens: maxTok,
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in gemini response")
	}

	candidate := result.Candidates[0]
	if candidate.Content == nil {
		return "", fmt.Errorf("nil content in gemini candidate")
	}

	var textParts []string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}
	response := strings.TrimSpace(strings.Join(textParts, " "))
	if response == "" {
		return "", fmt.Errorf("empty response from gemini")
	}
	return response, nil
}

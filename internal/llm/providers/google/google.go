// internal/llm/providers/google/google.go
package google

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/medtrainlab/casesim/internal/llm"
)

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{}
	})
}

// Provider runs completions through the Gemini API using the official genai
// SDK.
type Provider struct {
	apiKey       string
	defaultModel string
	client       *genai.Client
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("Gemini API key not provided")
	}
	p.apiKey = apiKey

	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: p.apiKey,
	})
	if err != nil {
		return fmt.Errorf("create genai client: %w", err)
	}
	p.client = client
	return nil
}

func (p *Provider) GetName() string {
	return "google"
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	genConfig := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature > 0 {
		temperature := req.Temperature
		genConfig.Temperature = &temperature
	}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONOutput {
		genConfig.ResponseMIMEType = "application/json"
	}

	resp, err := p.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)},
		genConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, errors.New("gemini returned empty response")
	}

	return &llm.CompletionResponse{
		Text:         text,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}

package gemini

import (
	"context"
	"fmt"
	"io"

	"github.com/clinicathon/patientsim/internal/ai"
	"github.com/clinicathon/patientsim/internal/config"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Provider struct {
	apiKey string
	model  string
}

func NewProvider(cfg config.GeminiConfig) *Provider {
	return &Provider{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) modelName() string {
	if p.model != "" {
		return p.model
	}
	return "gemini-2.5-flash"
}

func (p *Provider) newModel(ctx context.Context, script string) (*genai.Client, *genai.GenerativeModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(p.modelName())
	if script != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(script)},
		}
	}
	return client, model, nil
}

func (p *Provider) OpenSession(ctx context.Context, script string) (string, error) {
	if !p.IsConfigured() {
		return "", fmt.Errorf("gemini provider is not configured (missing API key)")
	}

	client, model, err := p.newModel(ctx, script)
	if err != nil {
		return "", err
	}
	defer client.Close()

	resp, err := model.GenerateContent(ctx, genai.Text(ai.BuildOpeningPrompt()))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response from gemini")
	}
	return text, nil
}

func (p *Provider) StreamReply(ctx context.Context, script string, history []ai.Message, message string) (ai.Stream, error) {
	if !p.IsConfigured() {
		return nil, fmt.Errorf("gemini provider is not configured (missing API key)")
	}

	client, model, err := p.newModel(ctx, script)
	if err != nil {
		return nil, err
	}

	cs := model.StartChat()
	for _, m := range history {
		role := "user"
		if m.Role == ai.RoleAgent {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	iter := cs.SendMessageStream(ctx, genai.Text(message))
	return &stream{client: client, iter: iter}, nil
}

func (p *Provider) Evaluate(ctx context.Context, transcript string, rubric string) (*ai.Evaluation, error) {
	if !p.IsConfigured() {
		return nil, fmt.Errorf("gemini provider is not configured (missing API key)")
	}

	client, model, err := p.newModel(ctx, "")
	if err != nil {
		return nil, err
	}
	defer client.Close()

	// Deterministic grading.
	var temperature float32 = 0.0
	model.Temperature = &temperature
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(ai.BuildEvaluationPrompt(transcript, rubric)))
	if err != nil {
		return nil, fmt.Errorf("gemini evaluation error: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return nil, fmt.Errorf("empty evaluation from gemini")
	}
	return ai.ParseEvaluation(text)
}

// stream adapts the genai response iterator to ai.Stream.
type stream struct {
	client *genai.Client
	iter   *genai.GenerateContentResponseIterator
}

func (s *stream) Recv() (string, error) {
	resp, err := s.iter.Next()
	if err == iterator.Done {
		return "", io.EOF
	}
	if err != nil {
		return "", fmt.Errorf("gemini stream error: %w", err)
	}
	return collectText(resp), nil
}

func (s *stream) Close() {
	s.client.Close()
}

func collectText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out
}

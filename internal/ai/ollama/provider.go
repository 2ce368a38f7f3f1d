package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clinicathon/patientsim/internal/ai"
)

// Provider implements ai.Provider for Ollama
type Provider struct {
	host         string
	defaultModel string
	client       *http.Client
}

// NewProvider creates a new Ollama provider
func NewProvider(host, defaultModel string) ai.Provider {
	if defaultModel == "" {
		defaultModel = "llama3"
	}
	return &Provider{
		host:         host,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 300 * time.Second},
	}
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "ollama"
}

// IsConfigured checks if provider has valid credentials
func (p *Provider) IsConfigured() bool {
	return p.host != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func (p *Provider) messages(script string, history []ai.Message, message string) []chatMessage {
	msgs := []chatMessage{{Role: "system", Content: script}}
	for _, m := range history {
		role := "user"
		if m.Role == ai.RoleAgent {
			role = "assistant"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: m.Content})
	}
	if message != "" {
		msgs = append(msgs, chatMessage{Role: "user", Content: message})
	}
	return msgs
}

func (p *Provider) post(ctx context.Context, req chatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return resp, nil
}

// OpenSession asks for the patient's opening turn.
func (p *Provider) OpenSession(ctx context.Context, script string) (string, error) {
	msgs := p.messages(script, nil, ai.BuildOpeningPrompt())
	resp, err := p.post(ctx, chatRequest{Model: p.defaultModel, Messages: msgs, Stream: false})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Message.Content, nil
}

// StreamReply continues the dialogue, yielding NDJSON chunks as fragments.
func (p *Provider) StreamReply(ctx context.Context, script string, history []ai.Message, message string) (ai.Stream, error) {
	msgs := p.messages(script, history, message)
	resp, err := p.post(ctx, chatRequest{Model: p.defaultModel, Messages: msgs, Stream: true})
	if err != nil {
		return nil, err
	}
	return &stream{body: resp.Body, dec: json.NewDecoder(resp.Body)}, nil
}

// Evaluate grades a transcript, forcing JSON output mode.
func (p *Provider) Evaluate(ctx context.Context, transcript string, rubric string) (*ai.Evaluation, error) {
	msgs := []chatMessage{{Role: "user", Content: ai.BuildEvaluationPrompt(transcript, rubric)}}
	resp, err := p.post(ctx, chatRequest{
		Model:    p.defaultModel,
		Messages: msgs,
		Stream:   false,
		Format:   "json",
		Options:  map[string]any{"temperature": 0.0},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return ai.ParseEvaluation(out.Message.Content)
}

// stream adapts the NDJSON chat response to ai.Stream.
type stream struct {
	body io.ReadCloser
	dec  *json.Decoder
	done bool
}

func (s *stream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	var chunk chatResponse
	if err := s.dec.Decode(&chunk); err != nil {
		if err == io.EOF {
			return "", io.EOF
		}
		return "", fmt.Errorf("ollama stream error: %w", err)
	}
	if chunk.Done {
		s.done = true
		if chunk.Message.Content == "" {
			return "", io.EOF
		}
	}
	return chunk.Message.Content, nil
}

func (s *stream) Close() {
	s.body.Close()
}

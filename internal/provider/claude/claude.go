package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vnmchuo/hub-assistant/internal/provider"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	defaultModel     = "claude-3-5-haiku-20241022"
	anthropicVersion = "2023-06-01"
)

type ClaudeProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Messages    []claudeMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	TopP        float64         `json:"top_p,omitempty"`
	TopK        int             `json:"top_k,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	ID      string          `json:"id"`
	Content []claudeContent `json:"content"`
	Model   string          `json:"model"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func New(cfg provider.Config) *ClaudeProvider {
	p := &ClaudeProvider{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
	if p.baseURL == "" {
		p.baseURL = defaultBaseURL
	}
	if p.model == "" {
		p.model = defaultModel
	}
	if cfg.Timeout == 0 {
		p.client.Timeout = 30 * time.Second
	}
	return p
}

func (p *ClaudeProvider) Complete(ctx context.Context, prompt string, cfg provider.GenerationConfig) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("claude: %w", provider.ErrMissingAPIKey)
	}

	maxTokens := cfg.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = provider.DefaultGeneration.MaxOutputTokens
	}

	body, err := json.Marshal(claudeRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Messages:    []claudeMessage{{Role: "user", Content: prompt}},
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		TopK:        cfg.TopK,
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/messages", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("claude request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &provider.APIError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var claudeResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return "", fmt.Errorf("claude: %w: %v", provider.ErrMalformedReply, err)
	}

	var sb strings.Builder
	for _, c := range claudeResp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("claude: %w: no text content", provider.ErrMalformedReply)
	}

	return sb.String(), nil
}

func (p *ClaudeProvider) Name() string {
	return "claude"
}

func (p *ClaudeProvider) Configured() bool {
	return p.apiKey != ""
}

func (p *ClaudeProvider) CostPerToken() float64 {
	return 0.000004
}

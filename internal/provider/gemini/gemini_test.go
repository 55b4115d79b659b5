package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vnmchuo/hub-assistant/internal/provider"
)

func TestComplete_Mock(t *testing.T) {
	var captured geminiRequest
	var path, key string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.URL.Query().Get("key")
		_ = json.NewDecoder(r.Body).Decode(&captured)

		resp := geminiResponse{
			Candidates: []geminiCandidate{
				{
					Content: geminiContent{
						Parts: []geminiPart{{Text: "Hello from mock!"}},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL, Model: "gemini-pro"})

	text, err := p.Complete(context.Background(), "hi", provider.DefaultGeneration)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if text != "Hello from mock!" {
		t.Errorf("Expected 'Hello from mock!', got %s", text)
	}
	if path != "/models/gemini-pro:generateContent" {
		t.Errorf("Unexpected path %s", path)
	}
	if key != "test-key" {
		t.Errorf("Expected api key in query, got %s", key)
	}
	if captured.GenerationConfig.MaxOutputTokens != 100 || captured.GenerationConfig.TopK != 20 {
		t.Errorf("Unexpected generation config %+v", captured.GenerationConfig)
	}
	if captured.GenerationConfig.Temperature != 0.3 || captured.GenerationConfig.TopP != 0.9 {
		t.Errorf("Unexpected sampling config %+v", captured.GenerationConfig)
	}
	if len(captured.SafetySettings) != 4 {
		t.Fatalf("Expected 4 safety settings, got %d", len(captured.SafetySettings))
	}
	for _, s := range captured.SafetySettings {
		if s.Threshold != "BLOCK_MEDIUM_AND_ABOVE" {
			t.Errorf("Unexpected threshold %s for %s", s.Threshold, s.Category)
		}
	}
	if len(captured.Contents) != 1 || captured.Contents[0].Parts[0].Text != "hi" {
		t.Errorf("Prompt not forwarded: %+v", captured.Contents)
	}
}

func TestComplete_QuotaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"status":"RESOURCE_EXHAUSTED","message":"You exceeded your current quota"}}`))
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := p.Complete(context.Background(), "hi", provider.DefaultGeneration)
	if err == nil {
		t.Fatal("Expected error")
	}
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected APIError with 429, got %v", err)
	}
	if !provider.IsQuotaError(err) {
		t.Errorf("Expected quota classification for %v", err)
	}
}

func TestComplete_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := p.Complete(context.Background(), "hi", provider.DefaultGeneration)
	if err == nil {
		t.Fatal("Expected error")
	}
	if provider.IsQuotaError(err) {
		t.Errorf("500 should not be classified as quota: %v", err)
	}
}

func TestComplete_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := p.Complete(context.Background(), "hi", provider.DefaultGeneration)
	if !errors.Is(err, provider.ErrMalformedReply) {
		t.Errorf("Expected ErrMalformedReply, got %v", err)
	}
}

func TestComplete_MissingKey(t *testing.T) {
	p := New(provider.Config{})
	if p.Configured() {
		t.Fatal("Provider without key should not be configured")
	}
	_, err := p.Complete(context.Background(), "hi", provider.DefaultGeneration)
	if !errors.Is(err, provider.ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}
}

func TestName(t *testing.T) {
	p := New(provider.Config{APIKey: "key"})
	if p.Name() != "gemini" {
		t.Errorf("Expected 'gemini', got %s", p.Name())
	}
	if p.CostPerToken() != 0 {
		t.Errorf("Expected free tier cost, got %f", p.CostPerToken())
	}
}

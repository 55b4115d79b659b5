package provider

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultModule is the hub module assumed when a request carries no context.
	DefaultModule = "home"

	LocalProviderName    = "local"
	FallbackProviderName = "fallback"
)

var (
	ErrMissingAPIKey  = errors.New("api key not configured")
	ErrMalformedReply = errors.New("unexpected response shape")
)

type Context struct {
	Module string         `json:"module,omitempty"`
	Page   string         `json:"page,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Attachment describes a file the user attached to the chat. Content extraction
// happens elsewhere; the core only looks at the name and type.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Extractor turns an attachment into plain text. Implementations live outside
// this module.
type Extractor interface {
	Extract(ctx context.Context, a Attachment) (string, error)
}

type Turn struct {
	Role      string    `json:"role"` // "user", "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Request struct {
	Message     string       `json:"message"`
	Context     *Context     `json:"context,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	History     []Turn       `json:"history,omitempty"`
	// Identity used for logging only
	TenantID  string `json:"-"`
	UserID    string `json:"-"`
	RequestID string `json:"-"`
}

// Module returns the context module, or DefaultModule when unset.
func (r *Request) Module() string {
	if r.Context == nil || r.Context.Module == "" {
		return DefaultModule
	}
	return r.Context.Module
}

type ActionType string

const (
	ActionCreate     ActionType = "create"
	ActionUpdate     ActionType = "update"
	ActionDelete     ActionType = "delete"
	ActionNavigation ActionType = "navigation"
	ActionQuery      ActionType = "query"
)

type SuggestedAction struct {
	ID                   string         `json:"id"`
	Type                 ActionType     `json:"type"`
	Title                string         `json:"title"`
	Description          string         `json:"description"`
	Module               string         `json:"module,omitempty"`
	Payload              map[string]any `json:"payload,omitempty"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	Confidence           float64        `json:"confidence"`
}

type Metadata struct {
	Provider         string  `json:"provider"`
	TokensUsed       int     `json:"tokens_used"`
	Cost             float64 `json:"cost"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	FallbackFrom     string  `json:"fallback_from,omitempty"`
	Cached           bool    `json:"cached,omitempty"`
	TaskType         string  `json:"task_type,omitempty"`
}

type Response struct {
	Message  string            `json:"message"`
	Actions  []SuggestedAction `json:"actions"`
	Error    string            `json:"error,omitempty"`
	Metadata Metadata          `json:"metadata"`
}

// Clone returns a copy that shares nothing mutable with r except payload values.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Actions = make([]SuggestedAction, len(r.Actions))
	for i, a := range r.Actions {
		a.Payload = maps.Clone(a.Payload)
		cp.Actions[i] = a
	}
	return &cp
}

// Provider is what the router registers: a complete adapter that can answer a
// chat request and report its health.
type Provider interface {
	Name() string
	Respond(ctx context.Context, req *Request) (*Response, error)
	CheckHealth(ctx context.Context) bool
	Available() bool
}

type GenerationConfig struct {
	Temperature     float64
	MaxOutputTokens int
	TopP            float64
	TopK            int
}

var (
	DefaultGeneration = GenerationConfig{Temperature: 0.3, MaxOutputTokens: 100, TopP: 0.9, TopK: 20}
	HealthGeneration  = GenerationConfig{Temperature: 0, MaxOutputTokens: 5, TopP: 0.9, TopK: 1}
)

// Completer is a single remote text-generation endpoint.
type Completer interface {
	Name() string
	Configured() bool
	Complete(ctx context.Context, prompt string, cfg GenerationConfig) (string, error)
	CostPerToken() float64 // cost in USD per estimated token
}

// Config is what a backend needs to be constructed.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// APIError is a non-2xx reply from a remote endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// IsQuota reports whether the endpoint rejected the call for rate or quota reasons.
func (e *APIError) IsQuota() bool {
	return e.StatusCode == http.StatusTooManyRequests || strings.Contains(strings.ToLower(e.Body), "quota")
}

// IsQuotaError reports whether err signals quota exhaustion rather than an outage.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsQuota() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "quota")
}

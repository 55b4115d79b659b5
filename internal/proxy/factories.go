package proxy

import (
	"github.com/vnmchuo/hub-assistant/internal/provider"
	"github.com/vnmchuo/hub-assistant/internal/provider/claude"
	"github.com/vnmchuo/hub-assistant/internal/provider/gemini"
	"github.com/vnmchuo/hub-assistant/internal/provider/openai"
)

// Factory builds a registrable provider from backend configuration.
type Factory func(cfg provider.Config) provider.Provider

// DefaultFactories returns adapters for every built-in backend kind. opts are
// applied to each adapter.
func DefaultFactories(opts ...provider.Option) map[string]Factory {
	return map[string]Factory{
		"gemini": func(cfg provider.Config) provider.Provider {
			return provider.NewAdapter(gemini.New(cfg), opts...)
		},
		"openai": func(cfg provider.Config) provider.Provider {
			return provider.NewAdapter(openai.New(cfg), opts...)
		},
		"claude": func(cfg provider.Config) provider.Provider {
			return provider.NewAdapter(claude.New(cfg), opts...)
		},
	}
}

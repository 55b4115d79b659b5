package proxy

import (
	"strings"

	"github.com/google/uuid"
	"github.com/vnmchuo/hub-assistant/internal/provider"
)

const (
	noProviderMessage = "A assistente está indisponível no momento. Você pode navegar pelos módulos normalmente enquanto isso."
	noProviderError   = "no eligible provider"
	allFailedError    = "all providers failed"

	crmFallbackMessage     = "Não consegui falar com a IA agora, mas posso te levar ao CRM para gerenciar seus clientes."
	financeFallbackMessage = "Não consegui falar com a IA agora, mas posso te levar ao Financeiro para lançar receitas."
	genericFallbackMessage = "A IA está temporariamente indisponível. Enquanto isso, navegue pelos módulos manualmente."
)

func noProviderResponse(task TaskType) *provider.Response {
	return &provider.Response{
		Message: noProviderMessage,
		Actions: []provider.SuggestedAction{},
		Error:   noProviderError,
		Metadata: provider.Metadata{
			Provider: provider.FallbackProviderName,
			TaskType: string(task),
		},
	}
}

// heuristicResponse is the reply when every provider failed. It points the
// user at the module the message seems to be about.
func heuristicResponse(req *provider.Request, failedFrom string, task TaskType) *provider.Response {
	msg := strings.ToLower(req.Message)

	resp := &provider.Response{
		Message: genericFallbackMessage,
		Actions: []provider.SuggestedAction{},
		Error:   allFailedError,
		Metadata: provider.Metadata{
			Provider:     provider.FallbackProviderName,
			FallbackFrom: failedFrom,
			TaskType:     string(task),
		},
	}

	switch {
	case strings.Contains(msg, "cliente") || strings.Contains(msg, "crm"):
		resp.Message = crmFallbackMessage
		resp.Actions = append(resp.Actions, navigateTo("crm", "Abrir CRM", "Gerencie seus clientes no CRM"))
	case strings.Contains(msg, "receita") || strings.Contains(msg, "financeiro"):
		resp.Message = financeFallbackMessage
		resp.Actions = append(resp.Actions, navigateTo("multifins", "Abrir Financeiro", "Lance receitas e despesas no Financeiro"))
	}
	return resp
}

func navigateTo(module, title, description string) provider.SuggestedAction {
	return provider.SuggestedAction{
		ID:          uuid.NewString(),
		Type:        provider.ActionNavigation,
		Title:       title,
		Description: description,
		Module:      module,
		Payload:     map[string]any{"target_module": module},
		Confidence:  0.5,
	}
}

package provider

import (
	"regexp"
	"strings"
)

// ActionCode is the vocabulary the model may emit after the AÇÃO_SUGERIDA marker.
// Codes are stored by the hub UI, so renaming one needs a migration.
type ActionCode string

const (
	CodeCreateCliente     ActionCode = "create-cliente"
	CodeCreateReceita     ActionCode = "create-receita"
	CodeCreateAgendamento ActionCode = "create-agendamento"
	CodeQueryRelatorio    ActionCode = "query-relatorio"
	CodeQueryClientes     ActionCode = "query-clientes"
	CodeNavigationModulo  ActionCode = "navigation-modulo"
)

// ActionCodes lists every code that has a template, in prompt order.
var ActionCodes = []ActionCode{
	CodeCreateCliente,
	CodeCreateReceita,
	CodeCreateAgendamento,
	CodeQueryRelatorio,
	CodeQueryClientes,
	CodeNavigationModulo,
}

const (
	compatibleConfidence = 0.9
	defaultConfidence    = 0.6
)

type actionTemplate struct {
	Type                 ActionType
	Title                string
	Description          string
	Module               string
	RequiresConfirmation bool
	BaseConfidence       float64
}

var actionTemplates = map[ActionCode]actionTemplate{
	CodeCreateCliente: {
		Type:                 ActionCreate,
		Title:                "Criar cliente",
		Description:          "Cadastrar um novo cliente no CRM",
		Module:               "crm",
		RequiresConfirmation: true,
		BaseConfidence:       0.8,
	},
	CodeCreateReceita: {
		Type:                 ActionCreate,
		Title:                "Lançar receita",
		Description:          "Registrar uma nova receita no Financeiro",
		Module:               "multifins",
		RequiresConfirmation: true,
		BaseConfidence:       0.85,
	},
	CodeCreateAgendamento: {
		Type:                 ActionCreate,
		Title:                "Criar agendamento",
		Description:          "Marcar um novo compromisso na Agenda",
		Module:               "agenda",
		RequiresConfirmation: true,
		BaseConfidence:       0.8,
	},
	CodeQueryRelatorio: {
		Type:           ActionQuery,
		Title:          "Gerar relatório",
		Description:    "Montar um relatório financeiro do período",
		Module:         "multifins",
		BaseConfidence: 0.7,
	},
	CodeQueryClientes: {
		Type:           ActionQuery,
		Title:          "Buscar clientes",
		Description:    "Listar clientes cadastrados no CRM",
		Module:         "crm",
		BaseConfidence: 0.75,
	},
	CodeNavigationModulo: {
		Type:           ActionNavigation,
		Title:          "Abrir módulo",
		Description:    "Navegar para o módulo indicado",
		BaseConfidence: 0.6,
	},
}

// compatibleActions lists, per hub module, the codes that make sense there.
var compatibleActions = map[string][]ActionCode{
	"crm":       {CodeCreateCliente, CodeQueryClientes},
	"multifins": {CodeCreateReceita, CodeQueryRelatorio},
	"agenda":    {CodeCreateAgendamento},
	"home":      {CodeNavigationModulo},
}

var (
	markerPattern = regexp.MustCompile(`(?i)A[ÇC][ÃA]O_SUGERIDA:\s*([a-z]+(?:-[a-z]+)*)`)
	// markerTail covers a marker and the rest of its line.
	markerTail = regexp.MustCompile(`(?im)A[ÇC][ÃA]O_SUGERIDA:.*$`)
)

// Confidence scores how likely code is to be what the user wants in module.
func Confidence(code ActionCode, module string) float64 {
	for _, c := range compatibleActions[module] {
		if c == code {
			return compatibleConfidence
		}
	}
	if tmpl, ok := actionTemplates[code]; ok && tmpl.BaseConfidence > 0 {
		return tmpl.BaseConfidence
	}
	return defaultConfidence
}

// ParseReply splits a raw model reply into the display message and the actions
// named by its AÇÃO_SUGERIDA markers. Each marker is cut from the message
// together with the rest of its line. Unknown codes are dropped.
func ParseReply(raw, module string, newID func() string) (string, []SuggestedAction) {
	actions := []SuggestedAction{}
	seen := make(map[ActionCode]bool)

	for _, m := range markerPattern.FindAllStringSubmatch(raw, -1) {
		code := ActionCode(strings.ToLower(m[1]))
		tmpl, ok := actionTemplates[code]
		if !ok || seen[code] {
			continue
		}
		seen[code] = true
		actions = append(actions, SuggestedAction{
			ID:                   newID(),
			Type:                 tmpl.Type,
			Title:                tmpl.Title,
			Description:          tmpl.Description,
			Module:               tmpl.Module,
			Payload:              map[string]any{"action_code": string(code), "source_module": module},
			RequiresConfirmation: tmpl.RequiresConfirmation,
			Confidence:           Confidence(code, module),
		})
	}

	message := markerTail.ReplaceAllString(raw, "")
	lines := strings.Split(message, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n"), actions
}

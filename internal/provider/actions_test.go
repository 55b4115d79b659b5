package provider

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("action-%d", n)
	}
}

func TestEveryActionCodeHasTemplate(t *testing.T) {
	for _, code := range ActionCodes {
		tmpl, ok := actionTemplates[code]
		require.True(t, ok, "missing template for %s", code)
		assert.NotEmpty(t, tmpl.Type, code)
		assert.NotEmpty(t, tmpl.Title, code)
		assert.GreaterOrEqual(t, tmpl.BaseConfidence, 0.6, code)
		assert.LessOrEqual(t, tmpl.BaseConfidence, 0.85, code)
	}
	assert.Len(t, actionTemplates, len(ActionCodes))
}

func TestParseReply_StripsMarker(t *testing.T) {
	msg, actions := ParseReply("Claro! AÇÃO_SUGERIDA: create-cliente", "home", sequentialIDs())

	assert.Equal(t, "Claro!", msg)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionCreate, actions[0].Type)
	assert.Equal(t, "crm", actions[0].Module)
	assert.Equal(t, "action-1", actions[0].ID)
	assert.True(t, actions[0].RequiresConfirmation)
	assert.Equal(t, "create-cliente", actions[0].Payload["action_code"])
}

func TestParseReply_DropsRestOfMarkerLine(t *testing.T) {
	raw := "Claro! AÇÃO_SUGERIDA: create-cliente para cadastrar.\nDepois é só confirmar."
	msg, actions := ParseReply(raw, "crm", sequentialIDs())

	assert.Equal(t, "Claro!\nDepois é só confirmar.", msg)
	assert.NotContains(t, msg, "para cadastrar")
	require.Len(t, actions, 1)
	assert.Equal(t, "create-cliente", actions[0].Payload["action_code"])
}

func TestParseReply_MarkerOnOwnLine(t *testing.T) {
	raw := "Posso gerar o relatório do mês.\nAÇÃO_SUGERIDA: query-relatorio\n"
	msg, actions := ParseReply(raw, "multifins", sequentialIDs())

	assert.Equal(t, "Posso gerar o relatório do mês.", msg)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionQuery, actions[0].Type)
	assert.Equal(t, 0.9, actions[0].Confidence)
}

func TestParseReply_UnknownCodeDropped(t *testing.T) {
	msg, actions := ParseReply("Certo. AÇÃO_SUGERIDA: delete-everything", "crm", sequentialIDs())

	assert.Equal(t, "Certo.", msg)
	assert.Empty(t, actions)
	assert.NotNil(t, actions)
}

func TestParseReply_NoMarker(t *testing.T) {
	msg, actions := ParseReply("  Tudo certo por aqui.  ", "crm", sequentialIDs())

	assert.Equal(t, "Tudo certo por aqui.", msg)
	assert.Empty(t, actions)
}

func TestParseReply_UnaccentedAndDuplicateMarkers(t *testing.T) {
	raw := "Vamos lá. ACAO_SUGERIDA: Create-Agendamento\nAÇÃO_SUGERIDA: create-agendamento"
	msg, actions := ParseReply(raw, "agenda", sequentialIDs())

	assert.Equal(t, "Vamos lá.", msg)
	require.Len(t, actions, 1)
	assert.Equal(t, "agenda", actions[0].Module)
}

func TestConfidence_BoostedByContext(t *testing.T) {
	inContext := Confidence(CodeCreateCliente, "crm")
	outOfContext := Confidence(CodeCreateCliente, "agenda")
	noContext := Confidence(CodeCreateCliente, DefaultModule)

	assert.Equal(t, 0.9, inContext)
	assert.Greater(t, inContext, outOfContext)
	assert.Greater(t, inContext, noContext)
	assert.Equal(t, 0.8, outOfContext)
}

func TestConfidence_UnknownCodeDefault(t *testing.T) {
	assert.Equal(t, 0.6, Confidence(ActionCode("query-estoque"), "crm"))
}

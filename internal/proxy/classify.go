package proxy

import (
	"strings"

	"github.com/vnmchuo/hub-assistant/internal/provider"
)

type TaskType string

const (
	TaskPDFProcessing TaskType = "pdf_processing"
	TaskCreateAction  TaskType = "create_action"
	TaskUpdateAction  TaskType = "update_action"
	TaskComplexQuery  TaskType = "complex_query"
	TaskSimpleQuery   TaskType = "simple_query"
)

var taskKeywords = []struct {
	task     TaskType
	keywords []string
}{
	{TaskPDFProcessing, []string{"pdf", "documento"}},
	{TaskCreateAction, []string{"criar", "adicionar"}},
	{TaskUpdateAction, []string{"editar", "atualizar"}},
	{TaskComplexQuery, []string{"relatório", "relatorio", "buscar"}},
}

// ClassifyTask labels req from its attachments and message keywords.
func ClassifyTask(req *provider.Request) TaskType {
	for _, a := range req.Attachments {
		if a.MimeType == "application/pdf" || strings.HasSuffix(strings.ToLower(a.Name), ".pdf") {
			return TaskPDFProcessing
		}
	}

	msg := strings.ToLower(req.Message)
	for _, tk := range taskKeywords {
		for _, kw := range tk.keywords {
			if strings.Contains(msg, kw) {
				return tk.task
			}
		}
	}
	return TaskSimpleQuery
}

package provider

import "strings"

type localReply struct {
	keyword string
	message string
}

// Matching is by substring in table order. Longer phrases come first so
// "boa noite" wins over the "oi" inside it.
var defaultLocalReplies = []struct{ keyword, message string }{
	{"bom dia", "Bom dia! Como posso ajudar?"},
	{"boa tarde", "Boa tarde! Como posso ajudar?"},
	{"boa noite", "Boa noite! Como posso ajudar?"},
	{"obrigado", "Por nada! É só chamar se precisar."},
	{"obrigada", "Por nada! É só chamar se precisar."},
	{"valeu", "Por nada! É só chamar se precisar."},
	{"tchau", "Até mais!"},
	{"olá", "Olá! O que você precisa?"},
	{"ola", "Olá! O que você precisa?"},
	{"oi", "Oi! O que você precisa?"},
}

// LocalResponder answers greetings and small talk without a remote call.
type LocalResponder struct {
	replies []localReply
}

func NewLocalResponder() *LocalResponder {
	l := &LocalResponder{}
	for _, r := range defaultLocalReplies {
		l.add(r.keyword, r.message)
	}
	return l
}

func (l *LocalResponder) add(keyword, message string) {
	l.replies = append(l.replies, localReply{keyword: strings.ToLower(keyword), message: message})
}

// Match returns the canned reply for the first keyword contained in message,
// ignoring case.
func (l *LocalResponder) Match(message string) (string, bool) {
	if l == nil {
		return "", false
	}
	lower := strings.ToLower(message)
	for _, r := range l.replies {
		if strings.Contains(lower, r.keyword) {
			return r.message, true
		}
	}
	return "", false
}

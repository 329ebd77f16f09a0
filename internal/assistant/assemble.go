// Package assistant wires identity, memory, trends and model access
// into the conversation pipeline behind the chat endpoints.
package assistant

import (
	"strings"

	"github.com/anne-chat/anne/internal/llm"
	"github.com/anne-chat/anne/internal/memory"
)

// Assemble builds the message list for a completion request: one
// system entry carrying the persona (with trending topics folded in
// when available), the recalled turns oldest first, and the current
// user message last. The result never exceeds len(recent)+2 entries.
func Assemble(persona string, topics []string, recent []memory.Turn, message string) []llm.Message {
	msgs := make([]llm.Message, 0, len(recent)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemContent(persona, topics)})

	for _, turn := range recent {
		msgs = append(msgs, llm.Message{Role: turn.Role, Content: turn.Text})
	}

	msgs = append(msgs, llm.Message{Role: "user", Content: message})
	return msgs
}

func systemContent(persona string, topics []string) string {
	if len(topics) == 0 {
		return persona
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nCurrent trending topics you are aware of:\n")
	for _, topic := range topics {
		b.WriteString("- ")
		b.WriteString(topic)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

package prompt

import (
	"fmt"
	"strings"

	"rulebookai/pkg/domain"
)

// instructionTemplate grounds the assistant in one rulebook. The rulebook
// text is substituted as opaque data; nothing downstream parses it again, so
// delimiter-like sequences inside the manual cannot break the request.
const instructionTemplate = "You are a world-class expert on board-game rules named Rulebook AI. " +
	"Your only source of truth is the following rulebook text for the game '%s'. " +
	"Answer strictly from this text; if the answer is not present, politely say " +
	"the manual does not contain that information. Be concise and clear.\n\n" +
	"RULEBOOK:\n%s"

// Builder assembles the bounded request sent to the language model.
type Builder interface {
	Build(gameName, rulebookText string, history []domain.Message, prompt string) (systemPrompt, userPrompt string)
}

// TranscriptBuilder flattens the conversation into a single completion
// request: the instruction plus rulebook text become the system prompt, the
// prior history plus the new question become the user prompt.
type TranscriptBuilder struct {
	// HistoryLimit caps the transcript to the last N messages. Zero means
	// the whole history is sent; the rulebook text is never truncated.
	HistoryLimit int
}

// Build implements Builder.
func (b TranscriptBuilder) Build(gameName, rulebookText string, history []domain.Message, prompt string) (string, string) {
	systemPrompt := fmt.Sprintf(instructionTemplate, gameName, rulebookText)

	if b.HistoryLimit > 0 && len(history) > b.HistoryLimit {
		history = history[len(history)-b.HistoryLimit:]
	}

	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("CONVERSATION HISTORY:\n")
		for _, msg := range history {
			sb.WriteString(roleLabel(msg.Role))
			sb.WriteString(": ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("USER: ")
	sb.WriteString(prompt)
	sb.WriteString("\nASSISTANT: ")
	return systemPrompt, sb.String()
}

func roleLabel(role string) string {
	if role == domain.RoleUser {
		return "USER"
	}
	return "ASSISTANT"
}

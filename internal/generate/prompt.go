package generate

import (
	"strings"

	"github.com/akarpos/glossa/internal/engine"
)

// defaultInstructions is the system preamble. It tells the model to
// answer from the supplied context and how to behave when the context
// section carries the no-context sentinel instead of a real chunk.
const defaultInstructions = `You are a helpful assistant. Answer the user's question using the context below.
If the context says there is no specific context for the query, answer from general knowledge and say so briefly.`

// Prompt assembles the message sequence sent to the generation model.
// The layout is fixed: system instructions with the context block first,
// then the session history in order, then the current user input last.
type Prompt struct {
	Instructions string
}

// NewPrompt returns a Prompt with the given instructions, or the default
// instructions when empty.
func NewPrompt(instructions string) *Prompt {
	if strings.TrimSpace(instructions) == "" {
		instructions = defaultInstructions
	}
	return &Prompt{Instructions: instructions}
}

// Build produces the message list. contextText is included verbatim,
// whether it is a retrieved chunk or the no-context sentinel; the model
// must see the sentinel phrase unchanged. history carries alternating
// user/assistant turns in conversation order.
func (p *Prompt) Build(contextText string, history []engine.Message, input string) []engine.Message {
	var sb strings.Builder
	sb.WriteString(p.Instructions)
	sb.WriteString("\n\nContext: ")
	sb.WriteString(contextText)

	messages := make([]engine.Message, 0, len(history)+2)
	messages = append(messages, engine.Message{Role: "system", Content: sb.String()})
	messages = append(messages, history...)
	messages = append(messages, engine.Message{Role: "user", Content: input})
	return messages
}

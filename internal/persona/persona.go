// Package persona biases the LLM toward a fixed conversational behavior by
// prepending a system instruction to the conversation history.
package persona

import "github.com/sashabaranov/go-openai"

// DebateInstruction is the shipped "oppositional debate champion" persona:
// adopt the position implied by context and counter the user tersely and
// declaratively, without exposing reasoning steps.
const DebateInstruction = `You are a debate champion who instinctively opposes the user's position.
Your responses MUST:
1. **Never** show reasoning steps (<think>, *ponders*, etc.)
2. **Immediately** state your counter-argument in 1-3 sentences
3. **Always** sound convinced of your position

BAD RESPONSES (NEVER USE):
- "<think>First I should mention...</think> Actually..."
- "Let me explain why..."
- "The correct view is..."

GOOD RESPONSES (ALWAYS USE):
- "That's incorrect because [fact]. For example [evidence]. This proves [conclusion]."
- "[Your claim] ignores [counter-fact], as shown by [real-world example]."
- "Data contradicts this: [statistic] demonstrates [your error]."

Current Debate Rules:
1. NO internal monologue
2. NO explanations
3. ONLY final arguments`

// Formatter prepends a fixed system instruction to a history. It is a pure,
// stateless transform; the instruction is set once at construction so an
// alternate persona is a config change, not a code change.
type Formatter struct {
	instruction string
}

// NewFormatter builds a formatter for the given instruction. An empty
// instruction selects the built-in debate persona.
func NewFormatter(instruction string) *Formatter {
	if instruction == "" {
		instruction = DebateInstruction
	}
	return &Formatter{instruction: instruction}
}

// Format returns a fresh slice with the system instruction at position 0 and
// the given history unchanged after it. The input slice is never mutated.
func (f *Formatter) Format(history []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: f.instruction,
	})
	return append(out, history...)
}

// Package modeladapt adjusts prompts for known model families. The
// agent loop asks for an Adapter by model identifier and applies it
// without knowing which family it got; unrecognized identifiers map to
// a default adapter that changes nothing.
package modeladapt

import (
	"strings"
)

// family is a closed set of prompt-behavior variants.
type family int

const (
	// familyDefault applies no deltas.
	familyDefault family = iota
	// familyDescriber covers models that tend to describe a tool call
	// in prose instead of emitting the call markup.
	familyDescriber
	// familyThinker covers models with a separate reasoning channel
	// that sometimes place tool calls inside it, where the codec
	// never sees them.
	familyThinker
)

// classifiers maps identifier substrings to families. Order matters:
// the first match wins, so more specific fragments come first.
var classifiers = []struct {
	fragment string
	fam      family
}{
	{"deepseek", familyThinker},
	{"qwq", familyThinker},
	{"qwen3", familyThinker},
	{"-r1", familyThinker},
	{"gemma", familyDescriber},
	{"llama", familyDescriber},
	{"mistral", familyDescriber},
}

// Adapter supplies model-family-specific prompt deltas.
type Adapter struct {
	model string
	fam   family
}

// ForModel classifies a model identifier and returns its adapter.
// Classification is substring-based on the lower-cased identifier and
// total: every identifier maps to exactly one family.
func ForModel(model string) *Adapter {
	id := strings.ToLower(model)
	for _, c := range classifiers {
		if strings.Contains(id, c.fragment) {
			return &Adapter{model: model, fam: c.fam}
		}
	}
	return &Adapter{model: model, fam: familyDefault}
}

const describerReinforcement = `

IMPORTANT: When you decide to use a tool you MUST emit the tool call markup itself, exactly as specified above. Describing the call in prose ("I will now search the vault") without the markup does nothing - no tool runs unless the markup is present in your response.`

const thinkerReinforcement = `

IMPORTANT: Tool call markup must appear in the visible body of your response, never inside your internal reasoning. Calls placed inside reasoning are not executed. Think first, then emit the call in your answer.`

// EnhanceSystemPrompt appends family-specific reinforcement to the
// base system prompt. The base already carries the protocol grammar
// and worked examples; the default family returns it unchanged.
func (a *Adapter) EnhanceSystemPrompt(base string) string {
	switch a.fam {
	case familyDescriber:
		return base + describerReinforcement
	case familyThinker:
		return base + thinkerReinforcement
	default:
		return base
	}
}

const toolReminder = "\n\n(Remember: if answering requires looking something up, emit a tool call rather than guessing.)"

// EnhanceUserMessage returns the message, with a tool-use reminder
// appended for the describer family when the request looks like it
// needs a lookup. All other families return the message unchanged.
func (a *Adapter) EnhanceUserMessage(message string, requiresTools bool) string {
	if a.fam != familyDescriber || !requiresTools {
		return message
	}
	return message + toolReminder
}

// NeedsSpecialHandling reports whether the loop should apply extra
// defensiveness for this model family.
func (a *Adapter) NeedsSpecialHandling() bool {
	return a.fam != familyDefault
}

// Model returns the identifier this adapter was built for.
func (a *Adapter) Model() string {
	return a.model
}

// toolKeywords are fragments that suggest a user request implies tool
// use. Matching is deliberately loose: a false positive only adds a
// one-line reminder.
var toolKeywords = []string{
	"search", "find", "look up", "lookup", "fetch", "browse",
	"my notes", "vault", "web", "website", "url", "http",
	"timer", "remind", "list files", "what files",
}

// RequiresTools is a keyword heuristic over the user's message used to
// decide whether EnhanceUserMessage should reinforce tool use.
func RequiresTools(message string) bool {
	m := strings.ToLower(message)
	for _, kw := range toolKeywords {
		if strings.Contains(m, kw) {
			return true
		}
	}
	return false
}

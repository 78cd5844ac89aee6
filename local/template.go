package local

import (
	"strings"

	"github.com/deepfocus-app/agentcore"
)

// chatTemplate renders a conversation into one prompt string using the
// model's special tokens: each turn wrapped in role sentinels, then a
// trailing assistant-open token to cue generation.
type chatTemplate interface {
	render(messages []agentcore.Message) string
	stopSequences() []string
}

type catalogued struct {
	info     agentcore.ModelInfo
	template chatTemplate
}

// catalog maps the local model identifiers this build knows how to prompt.
// Adding a model means adding its template here; the factory rejects ids it
// does not find.
var catalog = map[string]catalogued{
	"qwen2.5-3b-instruct": {
		info:     agentcore.ModelInfo{ID: "qwen2.5-3b-instruct", Name: "Qwen 2.5 3B Instruct", ContextLength: 32768},
		template: chatML{},
	},
	"phi-3.5-mini-instruct": {
		info:     agentcore.ModelInfo{ID: "phi-3.5-mini-instruct", Name: "Phi 3.5 Mini Instruct", ContextLength: 131072},
		template: chatML{},
	},
	"llama-3.2-3b-instruct": {
		info:     agentcore.ModelInfo{ID: "llama-3.2-3b-instruct", Name: "Llama 3.2 3B Instruct", ContextLength: 131072},
		template: llama3{},
	},
}

func catalogEntry(model string) (catalogued, bool) {
	entry, ok := catalog[model]
	return entry, ok
}

// chatML is the <|im_start|>/<|im_end|> template family (Qwen, Phi).
type chatML struct{}

func (chatML) render(messages []agentcore.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString("<|im_start|>")
		b.WriteString(wireRole(m))
		b.WriteString("\n")
		b.WriteString(wireText(m))
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}

func (chatML) stopSequences() []string {
	return []string{"<|im_end|>", "<|im_start|>"}
}

// llama3 is the header-id template family.
type llama3 struct{}

func (llama3) render(messages []agentcore.Message) string {
	var b strings.Builder
	b.WriteString("<|begin_of_text|>")
	for _, m := range messages {
		b.WriteString("<|start_header_id|>")
		b.WriteString(wireRole(m))
		b.WriteString("<|end_header_id|>\n\n")
		b.WriteString(wireText(m))
		b.WriteString("<|eot_id|>")
	}
	b.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
	return b.String()
}

func (llama3) stopSequences() []string {
	return []string{"<|eot_id|>", "<|start_header_id|>"}
}

// Tool results have no sentinel of their own in these templates; they are
// rendered as user turns, same as the cloud providers do on the wire.
func wireRole(m agentcore.Message) string {
	if m.Role == agentcore.RoleTool {
		return "user"
	}
	return string(m.Role)
}

func wireText(m agentcore.Message) string {
	if m.Role == agentcore.RoleTool && m.Name != "" {
		return "Tool result (" + m.Name + "): " + m.Content
	}
	return m.Content
}

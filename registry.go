package agentcore

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry is the declarative catalog of invocable tools. Registration
// happens during startup; afterwards the registry is read-mostly and safe
// for concurrent use by the parser and executor.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
	order []string
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]*registeredTool{}}
}

// Register adds a tool, compiling its parameter schema once. Registering a
// name twice replaces the previous tool in place; the documentation position
// of the first registration is kept so generated docs stay stable.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q missing handler", t.Name)
	}

	raw, err := t.Schema()
	if err != nil {
		return err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", strings.NewReader(string(raw))); err != nil {
		return fmt.Errorf("tool %q schema resource: %w", t.Name, err)
	}
	compiled, err := c.Compile("tool.json")
	if err != nil {
		return fmt.Errorf("tool %q schema: %w", t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = &registeredTool{tool: t, schema: compiled}
	return nil
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return rt.tool, true
}

func (r *Registry) schema(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.schema, true
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// UsageLine renders the canonical invocation of a tool with placeholder
// values for its required parameters. The line is valid call syntax for the
// parser.
func UsageLine(t Tool) string {
	var b strings.Builder
	b.WriteString("<" + toolTag + " " + attrToolName + "=\"" + t.Name + "\"")
	for _, p := range t.Params {
		if !p.Required {
			continue
		}
		b.WriteString(" " + p.Name + "=\"" + escapeAttr(p.exampleValue()) + "\"")
	}
	b.WriteString("></" + toolTag + ">")
	return b.String()
}

// Docs renders every tool's name, parameters, and examples for injection
// into the model's system prompt. Output is deterministic: tools in
// registration order, parameters in declaration order. The tag vocabulary
// here is exactly what the parser accepts.
func (r *Registry) Docs() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	b.WriteString("To perform an action, include exactly one tool tag in your reply:\n")
	b.WriteString("<" + toolTag + " " + attrToolName + "=\"TOOL_NAME\" parameter=\"value\"></" + toolTag + ">\n")
	b.WriteString("Attribute values must be double-quoted. Escape embedded characters as ")
	b.WriteString("&quot; &lt; &gt; &amp;.\n")
	b.WriteString("Only one action per reply. Text outside the tag is shown to the user.\n")

	for _, name := range r.order {
		t := r.tools[name].tool
		b.WriteString("\n## " + t.Name)
		if t.Category != "" {
			b.WriteString(" (" + t.Category + ")")
		}
		b.WriteString("\n")
		if t.Description != "" {
			b.WriteString(t.Description + "\n")
		}
		if len(t.Params) > 0 {
			b.WriteString("Parameters:\n")
			for _, p := range t.Params {
				b.WriteString("- " + p.Name + " (" + paramTypeLabel(p) + ", " + requiredLabel(p.Required) + ")")
				if p.Description != "" {
					b.WriteString(": " + p.Description)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("Usage: " + UsageLine(t) + "\n")
		for _, ex := range t.Examples {
			b.WriteString("Example: " + ex + "\n")
		}
	}
	return b.String()
}

func paramTypeLabel(p Param) string {
	if p.Type == ParamEnum {
		return "one of: " + strings.Join(p.Enum, ", ")
	}
	return string(p.Type)
}

func requiredLabel(required bool) string {
	if required {
		return "required"
	}
	return "optional"
}

package agentcore

import (
	"regexp"
	"strings"
)

// Tag vocabulary shared by the parser and the registry's generated docs.
// Changing it in one place changes both, which keeps them in lock-step.
const (
	toolTag      = "tool"
	attrToolName = "name"
)

var (
	// A well-formed candidate: self-closing or an empty-bodied open/close
	// pair. Attribute values are entity-escaped, so a candidate never
	// contains a bare '>' before its end.
	candidateRe = regexp.MustCompile(`(?is)<` + toolTag + `\b([^>]*?)(?:/>|>\s*</` + toolTag + `\s*>)`)
	attemptRe   = regexp.MustCompile(`(?i)<` + toolTag + `\b`)
	attrRe      = regexp.MustCompile(`(?is)([a-z_][a-z0-9_-]*)\s*=\s*"([^"]*)"`)
)

var (
	escapeAttrReplacer   = strings.NewReplacer("&", "&amp;", `"`, "&quot;", "<", "&lt;", ">", "&gt;")
	unescapeAttrReplacer = strings.NewReplacer("&quot;", `"`, "&lt;", "<", "&gt;", ">", "&amp;", "&")
)

func escapeAttr(v string) string   { return escapeAttrReplacer.Replace(v) }
func unescapeAttr(v string) string { return unescapeAttrReplacer.Replace(v) }

// ParsedToolCall is a structured call extracted from model text. Argument
// values are kept as the raw attribute strings; the executor coerces them to
// the declared parameter types.
type ParsedToolCall struct {
	Name string
	Args map[string]string
	Raw  string
}

type ParseKind int

const (
	// NoCall: narrative text only, no tag at all. Not an error.
	NoCall ParseKind = iota
	// OneCall: exactly one well-formed, registered, complete call.
	OneCall
	// Rejected: an attempted call that cannot be executed as-is. The loop
	// feeds the reason back so the model can retry.
	Rejected
)

type RejectReason string

const (
	RejectTooMany          RejectReason = "too_many_calls"
	RejectMalformed        RejectReason = "malformed_call"
	RejectUnknownTool      RejectReason = "unknown_tool"
	RejectMissingParameter RejectReason = "missing_parameter"
)

// ParseResult is the tagged outcome of parsing one model response.
// Narrative is the text outside the call delimiters, preserved even when a
// call is found: a response can carry both prose and one action.
type ParseResult struct {
	Kind      ParseKind
	Call      *ParsedToolCall
	Narrative string
	Reason    RejectReason
	Detail    string
}

// Parser extracts zero-or-one tool call from free-form model output. It is
// constructed over the registry so that "unknown tool" and "missing required
// parameter" are parse-time rejections.
type Parser struct {
	registry *Registry
}

func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// HasToolCall is a cheap probe for callers that only need to know whether
// the text attempts a call at all.
func (p *Parser) HasToolCall(text string) bool {
	return attemptRe.MatchString(text)
}

// Parse scans text for the tool tag vocabulary. Policy, in order: more than
// one well-formed candidate is rejected (never pick-first); a broken attempt
// is rejected as malformed so the model can retry; a single well-formed
// candidate is validated against the registry.
func (p *Parser) Parse(text string) ParseResult {
	candidates := candidateRe.FindAllStringSubmatchIndex(text, -1)
	attempts := len(attemptRe.FindAllStringIndex(text, -1))

	if len(candidates) == 0 {
		if attempts > 0 {
			return ParseResult{
				Kind:   Rejected,
				Reason: RejectMalformed,
				Detail: "a tool tag was started but not well-formed; use <" + toolTag + " " + attrToolName + "=\"TOOL\" param=\"value\"></" + toolTag + ">",
			}
		}
		return ParseResult{Kind: NoCall, Narrative: strings.TrimSpace(text)}
	}

	if len(candidates) > 1 {
		return ParseResult{
			Kind:   Rejected,
			Reason: RejectTooMany,
			Detail: "only one action per reply is allowed",
		}
	}
	if attempts > len(candidates) {
		return ParseResult{
			Kind:   Rejected,
			Reason: RejectMalformed,
			Detail: "reply mixes a well-formed tool tag with a broken one",
		}
	}

	m := candidates[0]
	raw := text[m[0]:m[1]]
	attrText := text[m[2]:m[3]]
	narrative := strings.TrimSpace(text[:m[0]] + text[m[1]:])

	name, args, ok := parseAttrs(attrText)
	if !ok {
		return ParseResult{
			Kind:      Rejected,
			Narrative: narrative,
			Reason:    RejectMalformed,
			Detail:    "tool tag is not well-formed: every attribute must be double-quoted and the " + attrToolName + " attribute is required",
		}
	}

	tool, found := p.registry.Get(name)
	if !found {
		return ParseResult{
			Kind:      Rejected,
			Narrative: narrative,
			Reason:    RejectUnknownTool,
			Detail:    "unknown tool " + name,
		}
	}

	// Unknown attributes are dropped for forward compatibility.
	known := make(map[string]string, len(args))
	for k, v := range args {
		if _, declared := tool.param(k); declared {
			known[k] = v
		}
	}
	for _, param := range tool.Params {
		if param.Required {
			if _, present := known[param.Name]; !present {
				return ParseResult{
					Kind:      Rejected,
					Narrative: narrative,
					Reason:    RejectMissingParameter,
					Detail:    "tool " + name + " requires parameter " + param.Name,
				}
			}
		}
	}

	return ParseResult{
		Kind:      OneCall,
		Narrative: narrative,
		Call: &ParsedToolCall{
			Name: name,
			Args: known,
			Raw:  raw,
		},
	}
}

// ExtractCall is a convenience for callers that already know at most one
// call is expected. It returns the call and true only for a clean OneCall.
func (p *Parser) ExtractCall(text string) (*ParsedToolCall, bool) {
	res := p.Parse(text)
	if res.Kind != OneCall {
		return nil, false
	}
	return res.Call, true
}

// parseAttrs splits an attribute region into the tool name and the remaining
// attributes. Attribute names are case-insensitive; duplicate attributes keep
// the last value. Anything in the region that is not a quoted attribute pair
// (an unquoted value, stray text) makes the tag structurally invalid.
func parseAttrs(attrText string) (name string, args map[string]string, ok bool) {
	leftover := attrRe.ReplaceAllString(attrText, "")
	if strings.TrimSpace(leftover) != "" {
		return "", nil, false
	}

	args = map[string]string{}
	for _, m := range attrRe.FindAllStringSubmatch(attrText, -1) {
		key := strings.ToLower(m[1])
		val := unescapeAttr(m[2])
		if key == attrToolName {
			name = val
			continue
		}
		args[key] = val
	}
	if name == "" {
		return "", nil, false
	}
	return name, args, true
}

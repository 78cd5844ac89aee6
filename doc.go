// Package agentcore coordinates a language-model agent that can both
// converse and invoke application actions through plain-text output, across
// interchangeable model backends.
//
// The core pieces are:
//
//   - Provider: one uniform completion/streaming interface per backend
//     (local engine, Anthropic, OpenAI-compatible, Gemini), constructed from
//     a declarative config by the providers package.
//   - Registry: the declarative tool catalog plus deterministic prompt
//     documentation for the model.
//   - Parser: extracts at most one structured tool call from free-form model
//     text, tolerating surrounding prose.
//   - Agent: the bounded generate -> parse -> execute loop, returning a full
//     AgentState (conversation, trace, termination reason) for every outcome.
//
// Tool calling is text-based on purpose: one code path works across backends
// with and without native function-calling APIs. The registry's generated
// documentation and the parser share one tag vocabulary, so what the model
// is told to emit is exactly what the parser accepts.
package agentcore

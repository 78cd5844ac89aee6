package agentcore

import (
	"context"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single turn in a conversation. Insertion order is
// chronological and meaningful.
type Message struct {
	Role    Role
	Content string
	Name    string
}

func System(text string) Message { return Message{Role: RoleSystem, Content: text} }

func User(text string) Message { return Message{Role: RoleUser, Content: text} }

func Assistant(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// ToolMessage is a tool-result turn. Providers that have no native tool role
// on the wire send it as a user turn.
func ToolMessage(toolName, text string) Message {
	return Message{Role: RoleTool, Name: toolName, Content: text}
}

// CompletionOptions tunes a single completion call. Zero-valued fields fall
// back to defaults: MaxTokens 1024, Temperature 0.7, streaming off.
type CompletionOptions struct {
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
	Stop        []string
	Stream      bool
}

const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = float32(0.7)
)

// WithDefaults returns a copy with unset fields filled in. Providers apply it
// before building their wire request.
func (o CompletionOptions) WithDefaults() CompletionOptions {
	if o.MaxTokens == nil {
		n := DefaultMaxTokens
		o.MaxTokens = &n
	}
	if o.Temperature == nil {
		t := DefaultTemperature
		o.Temperature = &t
	}
	return o
}

type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishError         FinishReason = "error"
	FinishUnknown       FinishReason = "unknown"
)

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func AddUsage(a, b Usage) Usage {
	return Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}

type CompletionResponse struct {
	Content      string
	Model        string
	FinishReason FinishReason
	Usage        Usage
}

// StreamChunk is one increment of a streamed completion. The terminal chunk
// carries a non-empty FinishReason and, when the backend reports it, the
// final usage.
type StreamChunk struct {
	Delta        string
	FinishReason FinishReason
	Usage        *Usage
}

type ModelInfo struct {
	ID            string
	Name          string
	ContextLength int
}

// StreamBufferSize bounds the channel between a streaming producer and its
// consumer. A slow consumer blocks the producer rather than dropping chunks.
const StreamBufferSize = 32

// Provider turns a conversation into a completion, either blocking or as an
// ordered stream of chunks. Implementations are stateless per call and safe
// for concurrent use.
//
// CompleteStream spawns a producer that publishes onto a bounded channel and
// closes it after the terminal chunk. Cancelling ctx is the only cancellation
// mechanism: the producer observes it on every send and terminates without
// leaking.
type Provider interface {
	Name() string
	Model() string
	HealthCheck(ctx context.Context) error
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (CompletionResponse, error)
	CompleteStream(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan StreamChunk, error)
}

// DefaultRequestTimeout bounds a single completion call. Large-model
// generation is slow but a single call must not hang indefinitely.
const DefaultRequestTimeout = 120 * time.Second

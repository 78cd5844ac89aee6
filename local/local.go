// Package local implements the on-device provider. It renders the
// conversation through the target model's special-token chat template and
// delegates generation to an in-process inference engine. Model weights and
// their download lifecycle live behind the Engine interface; this package
// never touches them.
package local

import (
	"context"
	"slices"

	"github.com/deepfocus-app/agentcore"
)

const providerName = "local"

// GenerateRequest is the engine-level request: a fully rendered prompt plus
// sampling parameters.
type GenerateRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float32
	TopP        float32
	Stop        []string
}

type GenerateResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	// Truncated is set when generation hit the token cap.
	Truncated bool
}

// Engine is the narrow seam to the inference runtime. GenerateStream calls
// emit for each token batch in generation order; when emit returns an error
// the engine must stop generating and return promptly.
type Engine interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	GenerateStream(ctx context.Context, req GenerateRequest, emit func(delta string) error) (GenerateResult, error)
	Models() []string
}

type Config struct {
	Model string
}

type Client struct {
	cfg    Config
	engine Engine
	tmpl   chatTemplate
	info   agentcore.ModelInfo
}

// New validates the model against the catalog. An unknown model identifier
// is a config error, not a panic: the id typically comes straight from user
// settings.
func New(cfg Config, engine Engine) (*Client, error) {
	if engine == nil {
		return nil, &agentcore.Error{Provider: providerName, Code: agentcore.CodeConfig, Message: "inference engine is required"}
	}
	entry, ok := catalogEntry(cfg.Model)
	if !ok {
		return nil, &agentcore.Error{
			Provider: providerName,
			Code:     agentcore.CodeConfig,
			Message:  "unknown local model " + cfg.Model,
		}
	}
	return &Client{cfg: cfg, engine: engine, tmpl: entry.template, info: entry.info}, nil
}

func (c *Client) Name() string  { return providerName }
func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !slices.Contains(c.engine.Models(), c.cfg.Model) {
		return &agentcore.Error{
			Provider: providerName,
			Code:     agentcore.CodeConfig,
			Message:  "model " + c.cfg.Model + " is not loaded",
		}
	}
	return nil
}

// ListModels reports the catalog models the engine currently has available.
func (c *Client) ListModels(ctx context.Context) ([]agentcore.ModelInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loaded := c.engine.Models()
	var out []agentcore.ModelInfo
	for _, id := range loaded {
		if entry, ok := catalogEntry(id); ok {
			out = append(out, entry.info)
		}
	}
	return out, nil
}

func (c *Client) Complete(ctx context.Context, messages []agentcore.Message, opts agentcore.CompletionOptions) (agentcore.CompletionResponse, error) {
	req, err := c.buildRequest(messages, opts)
	if err != nil {
		return agentcore.CompletionResponse{}, err
	}

	res, err := c.engine.Generate(ctx, req)
	if err != nil {
		return agentcore.CompletionResponse{}, &agentcore.Error{
			Provider: providerName, Code: "engine_error", Message: err.Error(), Cause: err,
		}
	}
	return agentcore.CompletionResponse{
		Content:      res.Text,
		Model:        c.cfg.Model,
		FinishReason: finishReason(res),
		Usage:        usage(res),
	}, nil
}

func (c *Client) CompleteStream(ctx context.Context, messages []agentcore.Message, opts agentcore.CompletionOptions) (<-chan agentcore.StreamChunk, error) {
	req, err := c.buildRequest(messages, opts)
	if err != nil {
		return nil, err
	}

	ch := make(chan agentcore.StreamChunk, agentcore.StreamBufferSize)
	go func() {
		defer close(ch)
		res, err := c.engine.GenerateStream(ctx, req, func(delta string) error {
			select {
			case ch <- agentcore.StreamChunk{Delta: delta}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			send(ctx, ch, agentcore.StreamChunk{FinishReason: agentcore.FinishError})
			return
		}
		u := usage(res)
		send(ctx, ch, agentcore.StreamChunk{FinishReason: finishReason(res), Usage: &u})
	}()
	return ch, nil
}

func send(ctx context.Context, ch chan<- agentcore.StreamChunk, chunk agentcore.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) buildRequest(messages []agentcore.Message, opts agentcore.CompletionOptions) (GenerateRequest, error) {
	if len(messages) == 0 {
		return GenerateRequest{}, &agentcore.Error{Provider: providerName, Code: agentcore.CodeConfig, Message: "messages are required"}
	}
	opts = opts.WithDefaults()

	stop := append([]string(nil), opts.Stop...)
	// The role-open sentinel doubles as a stop sequence so the model cannot
	// keep generating past its own turn.
	stop = append(stop, c.tmpl.stopSequences()...)

	var topP float32
	if opts.TopP != nil {
		topP = *opts.TopP
	}
	return GenerateRequest{
		Model:       c.cfg.Model,
		Prompt:      c.tmpl.render(messages),
		MaxTokens:   *opts.MaxTokens,
		Temperature: *opts.Temperature,
		TopP:        topP,
		Stop:        stop,
	}, nil
}

func finishReason(res GenerateResult) agentcore.FinishReason {
	if res.Truncated {
		return agentcore.FinishLength
	}
	return agentcore.FinishStop
}

func usage(res GenerateResult) agentcore.Usage {
	return agentcore.Usage{
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		TotalTokens:      res.PromptTokens + res.CompletionTokens,
	}
}

var _ agentcore.Provider = (*Client)(nil)

// Package anthropic implements the Anthropic messages-API provider family.
// Unlike the OpenAI shape, system messages are not part of the message
// array: they are extracted into a top-level system field.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepfocus-app/agentcore"
	"github.com/deepfocus-app/agentcore/internal/httpx"
	"github.com/deepfocus-app/agentcore/internal/sse"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	providerName   = "anthropic"
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string

	HTTPClient *http.Client
	MaxRetries int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: agentcore.DefaultRequestTimeout}
	}
	return &Client{cfg: cfg}
}

func (c *Client) Name() string  { return providerName }
func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) headers() http.Header {
	h := make(http.Header)
	h.Set("x-api-key", c.cfg.APIKey)
	h.Set("anthropic-version", apiVersion)
	return h
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

func (c *Client) ListModels(ctx context.Context) ([]agentcore.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/v1/models"), nil)
	if err != nil {
		return nil, &agentcore.Error{Provider: providerName, Code: "request_error", Message: err.Error(), Cause: err}
	}
	req.Header = c.headers()

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, c.netErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.httpErr(resp)
	}

	var list struct {
		Data []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, c.decodeErr(err)
	}
	out := make([]agentcore.ModelInfo, 0, len(list.Data))
	for _, m := range list.Data {
		out = append(out, agentcore.ModelInfo{ID: m.ID, Name: m.DisplayName})
	}
	return out, nil
}

func (c *Client) Complete(ctx context.Context, messages []agentcore.Message, opts agentcore.CompletionOptions) (agentcore.CompletionResponse, error) {
	body, err := c.buildBody(messages, opts, false)
	if err != nil {
		return agentcore.CompletionResponse{}, err
	}

	resp, err := httpx.PostJSON(ctx, c.cfg.HTTPClient, c.url("/v1/messages"), body, c.headers(), c.retryPolicy())
	if err != nil {
		return agentcore.CompletionResponse{}, c.netErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return agentcore.CompletionResponse{}, c.httpErr(resp)
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return agentcore.CompletionResponse{}, c.decodeErr(err)
	}

	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return agentcore.CompletionResponse{
		Content:      b.String(),
		Model:        out.Model,
		FinishReason: mapStopReason(out.StopReason),
		Usage: agentcore.Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
	}, nil
}

func (c *Client) CompleteStream(ctx context.Context, messages []agentcore.Message, opts agentcore.CompletionOptions) (<-chan agentcore.StreamChunk, error) {
	body, err := c.buildBody(messages, opts, true)
	if err != nil {
		return nil, err
	}

	h := c.headers()
	h.Set("Accept", "text/event-stream")
	resp, err := httpx.PostJSON(ctx, c.cfg.HTTPClient, c.url("/v1/messages"), body, h, c.retryPolicy())
	if err != nil {
		return nil, c.netErr(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, c.httpErr(resp)
	}

	ch := make(chan agentcore.StreamChunk, agentcore.StreamBufferSize)
	go c.pump(ctx, resp, ch)
	return ch, nil
}

// pump republishes the named-event stream as normalized chunks. Usage is
// assembled from message_start (input tokens) and message_delta (output
// tokens); message_stop terminates the stream.
func (c *Client) pump(ctx context.Context, resp *http.Response, ch chan<- agentcore.StreamChunk) {
	defer close(ch)
	defer resp.Body.Close()

	dec := sse.NewDecoder(resp.Body)
	finish := agentcore.FinishStop
	var usage agentcore.Usage

	for dec.Next() {
		var ev streamEvent
		if err := json.Unmarshal(dec.Data(), &ev); err != nil {
			send(ctx, ch, agentcore.StreamChunk{FinishReason: agentcore.FinishError})
			return
		}

		switch dec.Event() {
		case "message_start":
			if ev.Message != nil {
				usage.PromptTokens = ev.Message.Usage.InputTokens
			}
		case "content_block_delta":
			if ev.Delta != nil && ev.Delta.Text != "" {
				if !send(ctx, ch, agentcore.StreamChunk{Delta: ev.Delta.Text}) {
					return
				}
			}
		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				finish = mapStopReason(ev.Delta.StopReason)
			}
			if ev.Usage != nil {
				usage.CompletionTokens = ev.Usage.OutputTokens
			}
		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			send(ctx, ch, agentcore.StreamChunk{FinishReason: finish, Usage: &usage})
			return
		case "error":
			send(ctx, ch, agentcore.StreamChunk{FinishReason: agentcore.FinishError})
			return
		}
	}

	if dec.Err() != nil {
		send(ctx, ch, agentcore.StreamChunk{FinishReason: agentcore.FinishError})
		return
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	send(ctx, ch, agentcore.StreamChunk{FinishReason: finish, Usage: &usage})
}

func send(ctx context.Context, ch chan<- agentcore.StreamChunk, chunk agentcore.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// buildBody translates the conversation into the messages-API shape. System
// messages are collected into the top-level system field, never inlined into
// the message array; tool results become user turns.
func (c *Client) buildBody(messages []agentcore.Message, opts agentcore.CompletionOptions, stream bool) ([]byte, error) {
	if len(messages) == 0 {
		return nil, &agentcore.Error{Provider: providerName, Code: agentcore.CodeConfig, Message: "messages are required"}
	}
	opts = opts.WithDefaults()

	var system []string
	msgs := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case agentcore.RoleSystem:
			system = append(system, m.Content)
		case agentcore.RoleTool:
			content := m.Content
			if m.Name != "" {
				content = "Tool result (" + m.Name + "): " + content
			}
			msgs = append(msgs, wireMessage{Role: "user", Content: content})
		case agentcore.RoleAssistant:
			msgs = append(msgs, wireMessage{Role: "assistant", Content: m.Content})
		default:
			msgs = append(msgs, wireMessage{Role: "user", Content: m.Content})
		}
	}

	req := messagesRequest{
		Model:         c.cfg.Model,
		System:        strings.Join(system, "\n\n"),
		Messages:      msgs,
		MaxTokens:     *opts.MaxTokens,
		Temperature:   opts.Temperature,
		TopP:          opts.TopP,
		StopSequences: append([]string(nil), opts.Stop...),
		Stream:        stream,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &agentcore.Error{Provider: providerName, Code: "marshal_error", Message: err.Error(), Cause: err}
	}
	return body, nil
}

func (c *Client) retryPolicy() httpx.RetryPolicy {
	return httpx.RetryPolicy{
		MaxRetries: c.cfg.MaxRetries,
		MinBackoff: c.cfg.MinBackoff,
		MaxBackoff: c.cfg.MaxBackoff,
	}
}

func mapStopReason(reason string) agentcore.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return agentcore.FinishStop
	case "max_tokens":
		return agentcore.FinishLength
	case "tool_use":
		return agentcore.FinishToolCalls
	case "":
		return agentcore.FinishUnknown
	default:
		return agentcore.FinishUnknown
	}
}

func (c *Client) netErr(err error) error {
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return &agentcore.Error{
			Provider:  providerName,
			Code:      agentcore.CodeHTTP,
			Status:    se.Status,
			Message:   se.Error(),
			Retryable: httpx.RetryableStatus(se.Status),
			Cause:     err,
		}
	}
	code, retryable := httpx.ClassifyErr(err)
	return &agentcore.Error{Provider: providerName, Code: code, Message: err.Error(), Retryable: retryable, Cause: err}
}

func (c *Client) httpErr(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	e := &agentcore.Error{
		Provider:  providerName,
		Code:      agentcore.CodeHTTP,
		Status:    resp.StatusCode,
		Message:   strings.TrimSpace(string(b)),
		Retryable: httpx.RetryableStatus(resp.StatusCode),
	}
	var er errorResponse
	if json.Unmarshal(b, &er) == nil && er.Error.Message != "" {
		e.Message = er.Error.Message
		if er.Error.Type != "" {
			e.Code = er.Error.Type
		}
	}
	return e
}

func (c *Client) decodeErr(err error) error {
	return &agentcore.Error{Provider: providerName, Code: agentcore.CodeDecode, Message: err.Error(), Cause: err}
}

var _ agentcore.Provider = (*Client)(nil)

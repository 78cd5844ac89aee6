// Package openaicompat implements the OpenAI-wire-compatible provider
// family. The same implementation serves every product that speaks this
// wire shape; only the product name, base URL, and default headers differ.
package openaicompat

import (
	"bytes"
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
	openAIBaseURL = "https://api.openai.com/v1"
	groqBaseURL   = "https://api.groq.com/openai/v1"
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Org     string
	Headers map[string]string

	HTTPClient *http.Client
	MaxRetries int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

type Client struct {
	product string
	cfg     Config
}

// New returns a client for the OpenAI product itself.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openAIBaseURL
	}
	return newClient("openai", cfg)
}

// NewGroq returns a client for Groq's OpenAI-compatible endpoint. Same wire
// code, different base URL and product name; deliberately composition, not a
// subtype.
func NewGroq(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = groqBaseURL
	}
	return newClient("groq", cfg)
}

func newClient(product string, cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: agentcore.DefaultRequestTimeout}
	}
	return &Client{product: product, cfg: cfg}
}

func (c *Client) Name() string  { return c.product }
func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) headers() http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Org != "" {
		h.Set("OpenAI-Organization", c.cfg.Org)
	}
	for k, v := range c.cfg.Headers {
		h.Set(k, v)
	}
	return h
}

func (c *Client) retryPolicy() httpx.RetryPolicy {
	return httpx.RetryPolicy{
		MaxRetries: c.cfg.MaxRetries,
		MinBackoff: c.cfg.MinBackoff,
		MaxBackoff: c.cfg.MaxBackoff,
	}
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

func (c *Client) ListModels(ctx context.Context) ([]agentcore.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/models"), nil)
	if err != nil {
		return nil, c.wrapErr("request_error", err)
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

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, c.decodeErr(err)
	}
	out := make([]agentcore.ModelInfo, 0, len(list.Data))
	for _, m := range list.Data {
		out = append(out, agentcore.ModelInfo{ID: m.ID, Name: m.ID})
	}
	return out, nil
}

func (c *Client) Complete(ctx context.Context, messages []agentcore.Message, opts agentcore.CompletionOptions) (agentcore.CompletionResponse, error) {
	body, err := c.buildBody(messages, opts, false)
	if err != nil {
		return agentcore.CompletionResponse{}, err
	}

	resp, err := httpx.PostJSON(ctx, c.cfg.HTTPClient, c.url("/chat/completions"), body, c.headers(), c.retryPolicy())
	if err != nil {
		return agentcore.CompletionResponse{}, c.netErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return agentcore.CompletionResponse{}, c.httpErr(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return agentcore.CompletionResponse{}, c.decodeErr(err)
	}
	if len(out.Choices) == 0 {
		return agentcore.CompletionResponse{}, &agentcore.Error{
			Provider: c.product, Code: agentcore.CodeDecode, Message: "response has no choices",
		}
	}
	choice := out.Choices[0]
	return agentcore.CompletionResponse{
		Content:      choice.Message.Content,
		Model:        out.Model,
		FinishReason: mapFinishReason(choice.FinishReason),
		Usage: agentcore.Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
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
	resp, err := httpx.PostJSON(ctx, c.cfg.HTTPClient, c.url("/chat/completions"), body, h, c.retryPolicy())
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

// pump republishes the SSE delta stream as normalized chunks. It terminates
// on the [DONE] sentinel, a decode failure, or a cancelled consumer.
func (c *Client) pump(ctx context.Context, resp *http.Response, ch chan<- agentcore.StreamChunk) {
	defer close(ch)
	defer resp.Body.Close()

	dec := sse.NewDecoder(resp.Body)
	finish := agentcore.FinishStop
	var usage *agentcore.Usage

	for dec.Next() {
		data := bytes.TrimSpace(dec.Data())
		if len(data) == 0 {
			continue
		}
		if string(data) == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			send(ctx, ch, agentcore.StreamChunk{FinishReason: agentcore.FinishError})
			return
		}
		if chunk.Usage != nil {
			usage = &agentcore.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finish = mapFinishReason(*choice.FinishReason)
		}
		if choice.Delta.Content != nil && *choice.Delta.Content != "" {
			if !send(ctx, ch, agentcore.StreamChunk{Delta: *choice.Delta.Content}) {
				return
			}
		}
	}

	if dec.Err() != nil {
		send(ctx, ch, agentcore.StreamChunk{FinishReason: agentcore.FinishError})
		return
	}
	send(ctx, ch, agentcore.StreamChunk{FinishReason: finish, Usage: usage})
}

func send(ctx context.Context, ch chan<- agentcore.StreamChunk, chunk agentcore.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) buildBody(messages []agentcore.Message, opts agentcore.CompletionOptions, stream bool) ([]byte, error) {
	if len(messages) == 0 {
		return nil, &agentcore.Error{Provider: c.product, Code: agentcore.CodeConfig, Message: "messages are required"}
	}
	opts = opts.WithDefaults()

	msgs := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, toChatMessage(m))
	}
	req := chatRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stop:        append([]string(nil), opts.Stop...),
		Stream:      stream,
	}
	if stream {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, c.wrapErr("marshal_error", err)
	}
	return body, nil
}

// toChatMessage maps a core message onto the wire. Tool results travel as
// user turns: text-based tool calling has no tool_call_id to satisfy the
// native tool role.
func toChatMessage(m agentcore.Message) chatMessage {
	if m.Role == agentcore.RoleTool {
		content := m.Content
		if m.Name != "" {
			content = "Tool result (" + m.Name + "): " + content
		}
		return chatMessage{Role: "user", Content: content}
	}
	return chatMessage{Role: string(m.Role), Content: m.Content, Name: m.Name}
}

func mapFinishReason(reason string) agentcore.FinishReason {
	switch reason {
	case "stop":
		return agentcore.FinishStop
	case "length":
		return agentcore.FinishLength
	case "content_filter":
		return agentcore.FinishContentFilter
	case "tool_calls":
		return agentcore.FinishToolCalls
	case "":
		return agentcore.FinishUnknown
	default:
		return agentcore.FinishUnknown
	}
}

func (c *Client) wrapErr(code string, err error) error {
	return &agentcore.Error{Provider: c.product, Code: code, Message: err.Error(), Cause: err}
}

func (c *Client) netErr(err error) error {
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return &agentcore.Error{
			Provider:  c.product,
			Code:      agentcore.CodeHTTP,
			Status:    se.Status,
			Message:   se.Error(),
			Retryable: httpx.RetryableStatus(se.Status),
			Cause:     err,
		}
	}
	code, retryable := httpx.ClassifyErr(err)
	return &agentcore.Error{Provider: c.product, Code: code, Message: err.Error(), Retryable: retryable, Cause: err}
}

func (c *Client) httpErr(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	e := &agentcore.Error{
		Provider:  c.product,
		Code:      agentcore.CodeHTTP,
		Status:    resp.StatusCode,
		Message:   strings.TrimSpace(string(b)),
		Retryable: httpx.RetryableStatus(resp.StatusCode),
	}
	var er errorResponse
	if json.Unmarshal(b, &er) == nil && er.Error.Message != "" {
		e.Message = er.Error.Message
		if s, ok := er.Error.Code.(string); ok && s != "" {
			e.Code = s
		} else if er.Error.Type != "" {
			e.Code = er.Error.Type
		}
	}
	return e
}

func (c *Client) decodeErr(err error) error {
	return &agentcore.Error{Provider: c.product, Code: agentcore.CodeDecode, Message: err.Error(), Cause: err}
}

var _ agentcore.Provider = (*Client)(nil)

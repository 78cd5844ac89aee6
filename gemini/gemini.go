// Package gemini implements the Gemini generateContent provider family:
// contents/parts message shape, systemInstruction, SSE streaming via
// alt=sse.
package gemini

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
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	providerName   = "gemini"
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
	h.Set("x-goog-api-key", c.cfg.APIKey)
	return h
}

func (c *Client) modelURL(verb string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/v1beta/models/" + c.cfg.Model + ":" + verb
}

func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

func (c *Client) ListModels(ctx context.Context) ([]agentcore.ModelInfo, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1beta/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
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
		Models []struct {
			Name            string `json:"name"`
			DisplayName     string `json:"displayName"`
			InputTokenLimit int    `json:"inputTokenLimit"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, c.decodeErr(err)
	}
	out := make([]agentcore.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, agentcore.ModelInfo{
			ID:            strings.TrimPrefix(m.Name, "models/"),
			Name:          m.DisplayName,
			ContextLength: m.InputTokenLimit,
		})
	}
	return out, nil
}

func (c *Client) Complete(ctx context.Context, messages []agentcore.Message, opts agentcore.CompletionOptions) (agentcore.CompletionResponse, error) {
	body, err := c.buildBody(messages, opts)
	if err != nil {
		return agentcore.CompletionResponse{}, err
	}

	resp, err := httpx.PostJSON(ctx, c.cfg.HTTPClient, c.modelURL("generateContent"), body, c.headers(), c.retryPolicy())
	if err != nil {
		return agentcore.CompletionResponse{}, c.netErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return agentcore.CompletionResponse{}, c.httpErr(resp)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return agentcore.CompletionResponse{}, c.decodeErr(err)
	}
	if len(out.Candidates) == 0 {
		return agentcore.CompletionResponse{}, &agentcore.Error{
			Provider: providerName, Code: agentcore.CodeDecode, Message: "response has no candidates",
		}
	}
	cand := out.Candidates[0]
	return agentcore.CompletionResponse{
		Content:      joinParts(cand.Content.Parts),
		Model:        c.cfg.Model,
		FinishReason: mapFinishReason(cand.FinishReason),
		Usage:        out.UsageMetadata.toUsage(),
	}, nil
}

func (c *Client) CompleteStream(ctx context.Context, messages []agentcore.Message, opts agentcore.CompletionOptions) (<-chan agentcore.StreamChunk, error) {
	body, err := c.buildBody(messages, opts)
	if err != nil {
		return nil, err
	}

	h := c.headers()
	h.Set("Accept", "text/event-stream")
	resp, err := httpx.PostJSON(ctx, c.cfg.HTTPClient, c.modelURL("streamGenerateContent")+"?alt=sse", body, h, c.retryPolicy())
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

// pump republishes incremental generateContent responses as normalized
// chunks. The stream has no done sentinel; EOF terminates it and the last
// candidate carries the finish reason.
func (c *Client) pump(ctx context.Context, resp *http.Response, ch chan<- agentcore.StreamChunk) {
	defer close(ch)
	defer resp.Body.Close()

	dec := sse.NewDecoder(resp.Body)
	finish := agentcore.FinishStop
	var usage *agentcore.Usage

	for dec.Next() {
		var event generateResponse
		if err := json.Unmarshal(dec.Data(), &event); err != nil {
			send(ctx, ch, agentcore.StreamChunk{FinishReason: agentcore.FinishError})
			return
		}
		if event.UsageMetadata.TotalTokenCount > 0 {
			u := event.UsageMetadata.toUsage()
			usage = &u
		}
		if len(event.Candidates) == 0 {
			continue
		}
		cand := event.Candidates[0]
		if cand.FinishReason != "" {
			finish = mapFinishReason(cand.FinishReason)
		}
		if text := joinParts(cand.Content.Parts); text != "" {
			if !send(ctx, ch, agentcore.StreamChunk{Delta: text}) {
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

// buildBody translates the conversation into contents/parts. Gemini names
// the assistant role "model"; system messages go to systemInstruction; tool
// results travel as user turns.
func (c *Client) buildBody(messages []agentcore.Message, opts agentcore.CompletionOptions) ([]byte, error) {
	if len(messages) == 0 {
		return nil, &agentcore.Error{Provider: providerName, Code: agentcore.CodeConfig, Message: "messages are required"}
	}
	opts = opts.WithDefaults()

	var system []part
	contents := make([]content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case agentcore.RoleSystem:
			system = append(system, part{Text: m.Content})
		case agentcore.RoleAssistant:
			contents = append(contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		case agentcore.RoleTool:
			text := m.Content
			if m.Name != "" {
				text = "Tool result (" + m.Name + "): " + text
			}
			contents = append(contents, content{Role: "user", Parts: []part{{Text: text}}})
		default:
			contents = append(contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}

	req := generateRequest{
		Contents: contents,
		GenerationConfig: &generationConfig{
			MaxOutputTokens: opts.MaxTokens,
			Temperature:     opts.Temperature,
			TopP:            opts.TopP,
			StopSequences:   append([]string(nil), opts.Stop...),
		},
	}
	if len(system) > 0 {
		req.SystemInstruction = &content{Parts: system}
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

func joinParts(parts []part) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func mapFinishReason(reason string) agentcore.FinishReason {
	switch reason {
	case "STOP":
		return agentcore.FinishStop
	case "MAX_TOKENS":
		return agentcore.FinishLength
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
		return agentcore.FinishContentFilter
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
		if er.Error.Status != "" {
			e.Code = er.Error.Status
		}
	}
	return e
}

func (c *Client) decodeErr(err error) error {
	return &agentcore.Error{Provider: providerName, Code: agentcore.CodeDecode, Message: err.Error(), Cause: err}
}

var _ agentcore.Provider = (*Client)(nil)

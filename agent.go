package agentcore

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
)

// TerminationReason says why an agent run stopped.
type TerminationReason string

const (
	// Answered: the model produced a plain reply with no tool call.
	Answered TerminationReason = "answered"
	// MaxIterationsReached: the iteration budget was spent. Not a failure;
	// the best partial answer and the full trace are still returned.
	MaxIterationsReached TerminationReason = "max_iterations"
	// RunError: the provider failed after a retry, or a handler faulted.
	RunError TerminationReason = "error"
)

// ToolExecutionRecord is one entry of the activity trace.
type ToolExecutionRecord struct {
	ToolName string
	Args     map[string]string
	Success  bool
	UserText string
	Elapsed  time.Duration
}

// AgentState is the full outcome of one user turn. It is created per run,
// mutated only by the loop, and returned for every termination reason so the
// caller can always render a trace.
type AgentState struct {
	Conversation  []Message
	Records       []ToolExecutionRecord
	Iterations    int
	MaxIterations int
	Reason        TerminationReason
	FinalAnswer   string
	Err           error
}

const (
	defaultMaxIterations   = 5
	defaultMaxParseRetries = 2
	generateRetryBackoff   = 500 * time.Millisecond
)

// Agent drives the bounded generate -> parse -> execute cycle. One Agent may
// serve concurrent runs: the provider is stateless per call and the registry
// is read-only after setup. State is the application handle passed to tool
// handlers; its synchronization is the application's concern.
type Agent struct {
	Provider Provider
	Registry *Registry
	State    any

	// MaxIterations bounds tool executions per run (default 5).
	MaxIterations int
	// MaxParseRetries bounds self-correction attempts on unparseable or
	// invalid calls (default 2). Deliberately a separate, smaller budget
	// than MaxIterations: a retry costs a generation but no tool run.
	MaxParseRetries int

	Logger *slog.Logger

	// OnDelta, when set, switches generation to streaming and forwards every
	// text delta in order.
	OnDelta func(delta string)
}

func (a *Agent) maxIterations() int {
	if a.MaxIterations > 0 {
		return a.MaxIterations
	}
	return defaultMaxIterations
}

func (a *Agent) maxParseRetries() int {
	if a.MaxParseRetries > 0 {
		return a.MaxParseRetries
	}
	return defaultMaxParseRetries
}

func (a *Agent) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Run executes one user turn. systemPrompt is the opaque system/tool
// documentation text supplied by the prompt builder; history is the
// conversation so far. The returned state is non-nil for every outcome; err
// is non-nil only when Reason is RunError.
func (a *Agent) Run(ctx context.Context, systemPrompt string, history []Message) (*AgentState, error) {
	parser := NewParser(a.Registry)
	exec := NewExecutor(a.Registry)
	log := a.logger()

	msgs := make([]Message, 0, len(history)+1)
	if systemPrompt != "" {
		msgs = append(msgs, System(systemPrompt))
	}
	msgs = append(msgs, history...)

	st := &AgentState{MaxIterations: a.maxIterations()}
	parseRetries := 0
	lastNarrative := ""

	finish := func(reason TerminationReason, err error) (*AgentState, error) {
		st.Conversation = msgs
		st.Reason = reason
		st.Err = err
		if st.FinalAnswer == "" {
			st.FinalAnswer = lastNarrative
		}
		return st, err
	}

	for {
		resp, err := a.generate(ctx, msgs)
		if err != nil {
			log.Error("generation failed", "provider", a.Provider.Name(), "error", err)
			return finish(RunError, err)
		}

		res := parser.Parse(resp.Content)
		switch res.Kind {
		case NoCall:
			msgs = append(msgs, Assistant(resp.Content))
			st.FinalAnswer = res.Narrative
			log.Debug("run answered", "iterations", st.Iterations)
			return finish(Answered, nil)

		case Rejected:
			log.Debug("call rejected", "reason", res.Reason, "detail", res.Detail)
			if res.Narrative != "" {
				lastNarrative = res.Narrative
			}
			msgs = append(msgs, Assistant(resp.Content))
			msgs = append(msgs, ToolMessage("validator", "invalid action: "+res.Detail))
			parseRetries++
			if parseRetries > a.maxParseRetries() {
				log.Warn("parse retry budget exhausted", "retries", parseRetries-1)
				return finish(Answered, nil)
			}

		case OneCall:
			if res.Narrative != "" {
				lastNarrative = res.Narrative
			}
			msgs = append(msgs, Assistant(resp.Content))

			execRes, err := exec.Execute(ctx, res.Call, a.State)
			if err != nil {
				if IsNoSuchTool(err) || IsInvalidToolInput(err) {
					// Same self-correction path as a rejected parse.
					log.Debug("call failed validation", "tool", res.Call.Name, "error", err)
					msgs = append(msgs, ToolMessage("validator", "invalid action: "+err.Error()))
					parseRetries++
					if parseRetries > a.maxParseRetries() {
						return finish(Answered, nil)
					}
					continue
				}
				// Recovered panic or another unexpected fault.
				return finish(RunError, err)
			}

			msgs = append(msgs, ToolMessage(execRes.ToolName, execRes.ModelText))
			st.Records = append(st.Records, ToolExecutionRecord{
				ToolName: execRes.ToolName,
				Args:     res.Call.Args,
				Success:  execRes.Success,
				UserText: execRes.UserText,
				Elapsed:  execRes.Elapsed,
			})
			st.Iterations++
			log.Info("tool executed",
				"tool", execRes.ToolName,
				"success", execRes.Success,
				"iteration", st.Iterations,
				"elapsed", execRes.Elapsed)
			if st.Iterations >= st.MaxIterations {
				log.Warn("iteration budget reached", "max", st.MaxIterations)
				return finish(MaxIterationsReached, nil)
			}
		}
	}
}

// generate calls the provider, retrying once with backoff on failure. With
// OnDelta set it streams and forwards deltas as they arrive.
func (a *Agent) generate(ctx context.Context, msgs []Message) (CompletionResponse, error) {
	resp, err := a.generateOnce(ctx, msgs)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return CompletionResponse{}, err
	}
	a.logger().Debug("retrying generation", "error", err)

	timer := time.NewTimer(generateRetryBackoff)
	select {
	case <-ctx.Done():
		timer.Stop()
		return CompletionResponse{}, err
	case <-timer.C:
	}
	return a.generateOnce(ctx, msgs)
}

func (a *Agent) generateOnce(ctx context.Context, msgs []Message) (CompletionResponse, error) {
	if a.OnDelta == nil {
		return a.Provider.Complete(ctx, msgs, CompletionOptions{})
	}

	ch, err := a.Provider.CompleteStream(ctx, msgs, CompletionOptions{Stream: true})
	if err != nil {
		return CompletionResponse{}, err
	}

	var b strings.Builder
	resp := CompletionResponse{Model: a.Provider.Model(), FinishReason: FinishUnknown}
	for chunk := range ch {
		if chunk.Delta != "" {
			b.WriteString(chunk.Delta)
			a.OnDelta(chunk.Delta)
		}
		if chunk.FinishReason != "" {
			resp.FinishReason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
	}
	if resp.FinishReason == FinishError {
		return CompletionResponse{}, &Error{
			Provider: a.Provider.Name(),
			Code:     CodeNetwork,
			Message:  "stream ended with an error",
		}
	}
	if err := ctx.Err(); err != nil {
		return CompletionResponse{}, err
	}
	resp.Content = b.String()
	return resp, nil
}

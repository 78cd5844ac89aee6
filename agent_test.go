package agentcore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func agentRegistry(t *testing.T) (*Registry, *int) {
	t.Helper()
	executions := 0
	reg := NewRegistry()
	if err := reg.Register(Tool{
		Name:   "start_session",
		Params: []Param{{Name: "duration", Type: ParamNumber, Required: true}},
		Handler: func(ctx context.Context, args map[string]any, state any) (HandlerResult, error) {
			executions++
			return HandlerResult{
				Data:     map[string]any{"duration": args["duration"]},
				UserText: "Started a session.",
			}, nil
		},
	}); err != nil {
		t.Fatal(err)
	}
	return reg, &executions
}

func textResponse(text string) CompletionResponse {
	return CompletionResponse{Content: text, Model: "fake-model", FinishReason: FinishStop}
}

func TestRunAnswersWithoutToolCall(t *testing.T) {
	reg, executions := agentRegistry(t)
	fp := &fakeProvider{
		complete: func(call int, msgs []Message) (CompletionResponse, error) {
			return textResponse("You're doing great."), nil
		},
	}

	a := &Agent{Provider: fp, Registry: reg}
	st, err := a.Run(context.Background(), "system prompt", []Message{User("how am I doing?")})
	if err != nil {
		t.Fatal(err)
	}
	if st.Reason != Answered {
		t.Fatalf("reason=%s", st.Reason)
	}
	if st.FinalAnswer != "You're doing great." {
		t.Fatalf("FinalAnswer=%q", st.FinalAnswer)
	}
	if *executions != 0 {
		t.Fatalf("executions=%d", *executions)
	}
	if len(st.Records) != 0 {
		t.Fatalf("records=%d", len(st.Records))
	}
}

func TestRunExecutesOneCallThenAnswers(t *testing.T) {
	reg, executions := agentRegistry(t)
	fp := &fakeProvider{
		complete: func(call int, msgs []Message) (CompletionResponse, error) {
			switch call {
			case 0:
				return textResponse(`On it! <tool name="start_session" duration="25"></tool>`), nil
			default:
				return textResponse("Session started, good luck!"), nil
			}
		},
	}

	a := &Agent{Provider: fp, Registry: reg}
	st, err := a.Run(context.Background(), "sys", []Message{User("start a 25 minute session")})
	if err != nil {
		t.Fatal(err)
	}
	if st.Reason != Answered {
		t.Fatalf("reason=%s", st.Reason)
	}
	if *executions != 1 {
		t.Fatalf("executions=%d", *executions)
	}
	if len(st.Records) != 1 || st.Records[0].ToolName != "start_session" {
		t.Fatalf("records=%+v", st.Records)
	}
	if !st.Records[0].Success {
		t.Fatal("record not successful")
	}
	if st.Iterations != 1 {
		t.Fatalf("iterations=%d", st.Iterations)
	}

	// The tool result was fed back to the model on the second call.
	second := fp.Requests()[1]
	last := second[len(second)-1]
	if last.Role != RoleTool || !strings.Contains(last.Content, `"success":true`) {
		t.Fatalf("last message=%+v", last)
	}
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	reg, executions := agentRegistry(t)
	fp := &fakeProvider{
		complete: func(call int, msgs []Message) (CompletionResponse, error) {
			return textResponse(`Again. <tool name="start_session" duration="5"></tool>`), nil
		},
	}

	a := &Agent{Provider: fp, Registry: reg, MaxIterations: 3}
	st, err := a.Run(context.Background(), "sys", []Message{User("go")})
	if err != nil {
		t.Fatal(err)
	}
	if st.Reason != MaxIterationsReached {
		t.Fatalf("reason=%s", st.Reason)
	}
	if *executions != 3 {
		t.Fatalf("executions=%d", *executions)
	}
	if st.Iterations != 3 {
		t.Fatalf("iterations=%d", st.Iterations)
	}
	if st.FinalAnswer != "Again." {
		t.Fatalf("FinalAnswer=%q", st.FinalAnswer)
	}
	if len(st.Records) != 3 {
		t.Fatalf("records=%d", len(st.Records))
	}
}

func TestRunToolFailureDoesNotTerminate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Tool{
		Name: "stop_session",
		Handler: func(ctx context.Context, args map[string]any, state any) (HandlerResult, error) {
			return HandlerResult{}, errors.New("no active session")
		},
	}); err != nil {
		t.Fatal(err)
	}

	fp := &fakeProvider{
		complete: func(call int, msgs []Message) (CompletionResponse, error) {
			switch call {
			case 0:
				return textResponse(`<tool name="stop_session"></tool>`), nil
			default:
				return textResponse("Nothing to stop, you're free."), nil
			}
		},
	}

	a := &Agent{Provider: fp, Registry: reg}
	st, err := a.Run(context.Background(), "sys", []Message{User("stop")})
	if err != nil {
		t.Fatal(err)
	}
	if st.Reason != Answered {
		t.Fatalf("reason=%s", st.Reason)
	}
	if len(st.Records) != 1 || st.Records[0].Success {
		t.Fatalf("records=%+v", st.Records)
	}

	// Exactly one tool-result message describing the failure went back.
	second := fp.Requests()[1]
	failures := 0
	for _, m := range second {
		if m.Role == RoleTool && strings.Contains(m.Content, "no active session") {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("failure messages=%d", failures)
	}
}

func TestRunRejectedCallFeedsBackAndRetries(t *testing.T) {
	reg, executions := agentRegistry(t)
	fp := &fakeProvider{
		complete: func(call int, msgs []Message) (CompletionResponse, error) {
			switch call {
			case 0:
				// Two calls in one reply: rejected, never pick-first.
				return textResponse(`<tool name="start_session" duration="5"></tool><tool name="start_session" duration="10"></tool>`), nil
			case 1:
				last := msgs[len(msgs)-1]
				if last.Role != RoleTool || !strings.Contains(last.Content, "one action") {
					t.Fatalf("expected violation feedback, got %+v", last)
				}
				return textResponse(`<tool name="start_session" duration="5"></tool>`), nil
			default:
				return textResponse("Done."), nil
			}
		},
	}

	a := &Agent{Provider: fp, Registry: reg}
	st, err := a.Run(context.Background(), "sys", []Message{User("start two")})
	if err != nil {
		t.Fatal(err)
	}
	if st.Reason != Answered {
		t.Fatalf("reason=%s", st.Reason)
	}
	if *executions != 1 {
		t.Fatalf("executions=%d", *executions)
	}
}

func TestRunParseRetryBudgetIsSeparateAndSmaller(t *testing.T) {
	reg, executions := agentRegistry(t)
	calls := 0
	fp := &fakeProvider{
		complete: func(call int, msgs []Message) (CompletionResponse, error) {
			calls++
			return textResponse(`I'll try <tool name="start_session" duration=`), nil
		},
	}

	a := &Agent{Provider: fp, Registry: reg, MaxIterations: 10, MaxParseRetries: 2}
	st, err := a.Run(context.Background(), "sys", []Message{User("go")})
	if err != nil {
		t.Fatal(err)
	}
	// Initial generation + two retries, then give up without burning the
	// iteration budget.
	if calls != 3 {
		t.Fatalf("provider calls=%d", calls)
	}
	if st.Reason != Answered {
		t.Fatalf("reason=%s", st.Reason)
	}
	if st.Iterations != 0 {
		t.Fatalf("iterations=%d", st.Iterations)
	}
	if *executions != 0 {
		t.Fatalf("executions=%d", *executions)
	}
}

func TestRunProviderFailureRetriesOnceThenErrors(t *testing.T) {
	reg, _ := agentRegistry(t)
	calls := 0
	fp := &fakeProvider{
		complete: func(call int, msgs []Message) (CompletionResponse, error) {
			calls++
			return CompletionResponse{}, &Error{Provider: "fake", Code: CodeNetwork, Message: "connection refused", Retryable: true}
		},
	}

	a := &Agent{Provider: fp, Registry: reg}
	st, err := a.Run(context.Background(), "sys", []Message{User("go")})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Fatalf("provider calls=%d", calls)
	}
	if st == nil || st.Reason != RunError {
		t.Fatalf("state=%+v", st)
	}
	if st.Err == nil {
		t.Fatal("state should carry the error")
	}
}

func TestRunProviderRecoversOnRetry(t *testing.T) {
	reg, _ := agentRegistry(t)
	fp := &fakeProvider{
		complete: func(call int, msgs []Message) (CompletionResponse, error) {
			if call == 0 {
				return CompletionResponse{}, &Error{Provider: "fake", Code: CodeTimeout, Message: "timeout", Retryable: true}
			}
			return textResponse("Back online."), nil
		},
	}

	a := &Agent{Provider: fp, Registry: reg}
	st, err := a.Run(context.Background(), "sys", []Message{User("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if st.Reason != Answered || st.FinalAnswer != "Back online." {
		t.Fatalf("state=%+v", st)
	}
}

func TestRunStreamingMatchesBlocking(t *testing.T) {
	reg, _ := agentRegistry(t)
	const answer = "Focus mode is a state of mind."

	blockingFP := &fakeProvider{
		complete: func(call int, msgs []Message) (CompletionResponse, error) {
			return textResponse(answer), nil
		},
	}
	streamingFP := &fakeProvider{
		stream: func(call int, msgs []Message) ([]StreamChunk, error) {
			return []StreamChunk{
				{Delta: "Focus mode is "},
				{Delta: "a state "},
				{Delta: "of mind."},
				{FinishReason: FinishStop, Usage: &Usage{PromptTokens: 4, CompletionTokens: 8, TotalTokens: 12}},
			}, nil
		},
	}

	blocking := &Agent{Provider: blockingFP, Registry: reg}
	blockingState, err := blocking.Run(context.Background(), "sys", []Message{User("hi")})
	if err != nil {
		t.Fatal(err)
	}

	var deltas []string
	streaming := &Agent{Provider: streamingFP, Registry: reg, OnDelta: func(d string) { deltas = append(deltas, d) }}
	streamingState, err := streaming.Run(context.Background(), "sys", []Message{User("hi")})
	if err != nil {
		t.Fatal(err)
	}

	if streamingState.FinalAnswer != blockingState.FinalAnswer {
		t.Fatalf("streaming=%q blocking=%q", streamingState.FinalAnswer, blockingState.FinalAnswer)
	}
	if got := strings.Join(deltas, ""); got != answer {
		t.Fatalf("concatenated deltas=%q", got)
	}
}

func TestRunNeverInsertsConsecutiveSameRoleMessages(t *testing.T) {
	reg, _ := agentRegistry(t)
	fp := &fakeProvider{
		complete: func(call int, msgs []Message) (CompletionResponse, error) {
			if call < 2 {
				return textResponse(`<tool name="start_session" duration="5"></tool>`), nil
			}
			return textResponse("done"), nil
		},
	}

	a := &Agent{Provider: fp, Registry: reg}
	st, err := a.Run(context.Background(), "sys", []Message{User("go")})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(st.Conversation); i++ {
		if st.Conversation[i].Role == st.Conversation[i-1].Role {
			t.Fatalf("consecutive %s messages at %d", st.Conversation[i].Role, i)
		}
	}
}

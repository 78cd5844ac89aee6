package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ExecutionResult carries two renderings of one tool run: ModelText is
// compact data appended to the conversation so the model can continue;
// UserText is prose for the activity trace shown to the user.
type ExecutionResult struct {
	Success   bool
	UserText  string
	ModelText string
	ToolName  string
	Elapsed   time.Duration
}

// Executor validates parsed calls against the registry and runs their
// handlers against the injected application state.
type Executor struct {
	registry *Registry
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute runs one validated call. A non-nil error is a validation failure
// (*NoSuchToolError, *InvalidToolInputError) or a recovered handler panic;
// the agent loop converts validation failures into retry feedback and treats
// a panic as fatal. A handler-reported domain failure is not an error: it
// comes back as a result with Success=false.
func (e *Executor) Execute(ctx context.Context, call *ParsedToolCall, state any) (res ExecutionResult, err error) {
	tool, ok := e.registry.Get(call.Name)
	if !ok {
		return ExecutionResult{}, &NoSuchToolError{ToolName: call.Name}
	}

	args, err := e.coerceArgs(tool, call.Args)
	if err != nil {
		return ExecutionResult{}, err
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %s panicked: %v", tool.Name, p)
		}
	}()

	out, herr := tool.Handler(ctx, args, state)
	elapsed := time.Since(start)
	if herr != nil {
		ee := &ToolExecutionError{ToolName: tool.Name, Cause: herr}
		return ExecutionResult{
			Success:   false,
			ToolName:  tool.Name,
			Elapsed:   elapsed,
			UserText:  fmt.Sprintf("%s failed: %s", tool.Name, herr.Error()),
			ModelText: marshalToolResult(map[string]any{"success": false, "error": ee.Cause.Error()}),
		}, nil
	}

	modelText := marshalToolResult(map[string]any{"success": true, "data": out.Data})
	userText := out.UserText
	if userText == "" {
		userText = tool.Name + " completed"
	}
	return ExecutionResult{
		Success:   true,
		ToolName:  tool.Name,
		Elapsed:   elapsed,
		UserText:  userText,
		ModelText: modelText,
	}, nil
}

// coerceArgs converts the parser's raw string attributes into the declared
// parameter types, then validates the result against the tool's compiled
// schema.
func (e *Executor) coerceArgs(tool Tool, raw map[string]string) (map[string]any, error) {
	args := make(map[string]any, len(raw))
	for name, val := range raw {
		p, ok := tool.param(name)
		if !ok {
			continue
		}
		switch p.Type {
		case ParamNumber:
			n, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, &InvalidToolInputError{ToolName: tool.Name, Param: name, Cause: fmt.Errorf("%q is not a number", val)}
			}
			args[name] = n
		case ParamBoolean:
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, &InvalidToolInputError{ToolName: tool.Name, Param: name, Cause: fmt.Errorf("%q is not a boolean", val)}
			}
			args[name] = b
		default:
			args[name] = val
		}
	}

	schema, ok := e.registry.schema(tool.Name)
	if !ok {
		return nil, &NoSuchToolError{ToolName: tool.Name}
	}
	doc, err := json.Marshal(args)
	if err != nil {
		return nil, &InvalidToolInputError{ToolName: tool.Name, Cause: err}
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, &InvalidToolInputError{ToolName: tool.Name, Cause: err}
	}
	if err := schema.Validate(v); err != nil {
		return nil, &InvalidToolInputError{ToolName: tool.Name, Cause: err}
	}
	return args, nil
}

func marshalToolResult(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(raw)
}

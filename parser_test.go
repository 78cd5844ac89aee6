package agentcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(ctx context.Context, args map[string]any, state any) (HandlerResult, error) {
	return HandlerResult{}, nil
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(Tool{
		Name:        "start_session",
		Description: "Start a focus session.",
		Category:    "focus",
		Params: []Param{
			{Name: "duration", Type: ParamNumber, Required: true, Description: "Length in minutes."},
			{Name: "label", Type: ParamString, Description: "Optional session label."},
		},
		Handler: noopHandler,
	}))
	require.NoError(t, reg.Register(Tool{
		Name:        "block_site",
		Description: "Block a distracting site.",
		Category:    "blocking",
		Params: []Param{
			{Name: "domain", Type: ParamString, Required: true},
			{Name: "mode", Type: ParamEnum, Enum: []string{"soft", "hard"}},
		},
		Handler: noopHandler,
	}))
	return reg
}

func TestParseCallWithNarrative(t *testing.T) {
	p := NewParser(testRegistry(t))

	res := p.Parse(`Sure! <tool name="start_session" duration="25"></tool>`)
	require.Equal(t, OneCall, res.Kind)
	require.NotNil(t, res.Call)
	assert.Equal(t, "start_session", res.Call.Name)
	assert.Equal(t, map[string]string{"duration": "25"}, res.Call.Args)
	assert.Equal(t, "Sure!", res.Narrative)
	assert.Equal(t, `<tool name="start_session" duration="25"></tool>`, res.Call.Raw)
}

func TestParseMissingRequiredParameter(t *testing.T) {
	p := NewParser(testRegistry(t))

	res := p.Parse(`Sure! <tool name="start_session"></tool>`)
	require.Equal(t, Rejected, res.Kind)
	assert.Equal(t, RejectMissingParameter, res.Reason)
	assert.Contains(t, res.Detail, "duration")
}

func TestParseTooManyCalls(t *testing.T) {
	p := NewParser(testRegistry(t))

	res := p.Parse(`<tool name="start_session" duration="25"></tool> and <tool name="block_site" domain="news.example"></tool>`)
	require.Equal(t, Rejected, res.Kind)
	assert.Equal(t, RejectTooMany, res.Reason)
}

func TestParsePlainTextIsNoCall(t *testing.T) {
	p := NewParser(testRegistry(t))

	res := p.Parse("You have 2 sessions left today. Keep it up!")
	require.Equal(t, NoCall, res.Kind)
	assert.Nil(t, res.Call)
	assert.Equal(t, "You have 2 sessions left today. Keep it up!", res.Narrative)
}

func TestParseUnknownTool(t *testing.T) {
	p := NewParser(testRegistry(t))

	res := p.Parse(`<tool name="launch_rocket"></tool>`)
	require.Equal(t, Rejected, res.Kind)
	assert.Equal(t, RejectUnknownTool, res.Reason)
}

func TestParseMalformedTag(t *testing.T) {
	p := NewParser(testRegistry(t))

	for _, text := range []string{
		`I will <tool name="start_session" duration="25">`,
		`<tool name="start_session" duration=25></tool>`,
		`<tool`,
	} {
		res := p.Parse(text)
		require.Equal(t, Rejected, res.Kind, "input: %s", text)
		assert.Equal(t, RejectMalformed, res.Reason, "input: %s", text)
	}
}

func TestParseWellFormedPlusBrokenIsMalformed(t *testing.T) {
	p := NewParser(testRegistry(t))

	res := p.Parse(`<tool name="start_session" duration="25"></tool> <tool name="block_site"`)
	require.Equal(t, Rejected, res.Kind)
	assert.Equal(t, RejectMalformed, res.Reason)
}

func TestParseSelfClosingTag(t *testing.T) {
	p := NewParser(testRegistry(t))

	res := p.Parse(`<tool name="start_session" duration="25" />`)
	require.Equal(t, OneCall, res.Kind)
	assert.Equal(t, "start_session", res.Call.Name)
}

func TestParseCaseAndWhitespaceTolerance(t *testing.T) {
	p := NewParser(testRegistry(t))

	res := p.Parse("<TOOL   Name=\"start_session\"\n\tDURATION = \"25\" ></TOOL>")
	require.Equal(t, OneCall, res.Kind)
	assert.Equal(t, "start_session", res.Call.Name)
	assert.Equal(t, "25", res.Call.Args["duration"])
}

func TestParseIgnoresUnknownAttributes(t *testing.T) {
	p := NewParser(testRegistry(t))

	res := p.Parse(`<tool name="start_session" duration="25" priority="high"></tool>`)
	require.Equal(t, OneCall, res.Kind)
	_, has := res.Call.Args["priority"]
	assert.False(t, has)
}

func TestParseUnescapesAttributeValues(t *testing.T) {
	p := NewParser(testRegistry(t))

	res := p.Parse(`<tool name="start_session" duration="25" label="&quot;deep&quot; &lt;work&gt; &amp; rest"></tool>`)
	require.Equal(t, OneCall, res.Kind)
	assert.Equal(t, `"deep" <work> & rest`, res.Call.Args["label"])
}

func TestParseDeterminism(t *testing.T) {
	p := NewParser(testRegistry(t))

	inputs := []string{
		`Sure! <tool name="start_session" duration="25"></tool>`,
		`no call here`,
		`<tool name="start_session"></tool>`,
		`<tool name="a"></tool><tool name="b"></tool>`,
	}
	for _, in := range inputs {
		first := p.Parse(in)
		second := p.Parse(in)
		assert.Equal(t, first, second, "input: %s", in)
	}
}

func TestHasToolCall(t *testing.T) {
	p := NewParser(testRegistry(t))

	assert.True(t, p.HasToolCall(`<tool name="start_session" duration="1"></tool>`))
	assert.True(t, p.HasToolCall(`broken <tool`))
	assert.False(t, p.HasToolCall("just words, even mentioning tools"))
}

func TestExtractCall(t *testing.T) {
	p := NewParser(testRegistry(t))

	call, ok := p.ExtractCall(`<tool name="block_site" domain="news.example"></tool>`)
	require.True(t, ok)
	assert.Equal(t, "block_site", call.Name)

	_, ok = p.ExtractCall("nothing here")
	assert.False(t, ok)
}

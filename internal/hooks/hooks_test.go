package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/server"
	"github.com/lazypower/hebbian/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testHandler(t *testing.T) (*Handler, *store.DB, *bytes.Buffer) {
	t.Helper()
	db := testDB(t)
	var out bytes.Buffer
	return &Handler{Backend: NewLocal(db), Out: &out, HighwayLimit: 5, RecallLimit: 5}, db, &out
}

func run(t *testing.T, h *Handler, event string, input any) {
	t.Helper()
	data, err := json.Marshal(input)
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), event, bytes.NewReader(data)))
}

func parseOutput(t *testing.T, buf *bytes.Buffer) Output {
	t.Helper()
	var out Output
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out), buf.String())
	return out
}

func stats(t *testing.T, db *store.DB) *engine.Stats {
	t.Helper()
	st, err := engine.New(db, "").Stats(context.Background())
	require.NoError(t, err)
	return st
}

func toolInput(session, name, input, response string) map[string]any {
	m := map[string]any{
		"session_id":      session,
		"hook_event_name": EventPostToolUse,
		"tool_name":       name,
		"tool_input":      json.RawMessage(input),
	}
	if response != "" {
		m["tool_response"] = json.RawMessage(response)
	}
	return m
}

type failingBackend struct{ Backend }

func (failingBackend) Superhighways(context.Context, int) ([]store.Neuron, error) {
	return nil, errors.New("store unavailable")
}

func TestStartEmptyStore(t *testing.T) {
	h, _, out := testHandler(t)
	run(t, h, Start, map[string]string{"session_id": "s1", "hook_event_name": EventSessionStart})

	got := parseOutput(t, out)
	assert.Equal(t, EventSessionStart, got.HookSpecificOutput.HookEventName)
	assert.Empty(t, got.HookSpecificOutput.AdditionalContext)
}

func TestStartEmptyStdin(t *testing.T) {
	h, _, out := testHandler(t)
	require.NoError(t, h.Handle(context.Background(), Start, strings.NewReader("")))
	assert.Empty(t, parseOutput(t, out).HookSpecificOutput.AdditionalContext)

	out.Reset()
	require.NoError(t, h.Handle(context.Background(), Tool, strings.NewReader("")))
	assert.Empty(t, out.String())
}

func TestStartInjectsSuperhighways(t *testing.T) {
	h, _, out := testHandler(t)
	h.Clock = func() time.Time { return time.Now().Add(time.Hour) }
	for i := 0; i < 20; i++ {
		run(t, h, Tool, toolInput("s1", "Read", `{"file_path":"/repo/main.go"}`, ""))
	}
	run(t, h, Tool, toolInput("s1", "Read", `{"file_path":"/repo/rare.go"}`, ""))

	run(t, h, Start, map[string]string{"session_id": "s2"})
	ctx := parseOutput(t, out).HookSpecificOutput.AdditionalContext
	assert.Contains(t, ctx, contextOpen)
	assert.Contains(t, ctx, "/repo/main.go")
	assert.Contains(t, ctx, "20 uses")
	assert.Contains(t, ctx, "1 hour ago")
	assert.NotContains(t, ctx, "rare.go")
}

func TestStartDegradesOnBackendFailure(t *testing.T) {
	h, _, out := testHandler(t)
	h.Backend = failingBackend{h.Backend}
	run(t, h, Start, map[string]string{"session_id": "s1"})
	assert.Empty(t, parseOutput(t, out).HookSpecificOutput.AdditionalContext)
}

func TestToolRecordsAccesses(t *testing.T) {
	h, db, out := testHandler(t)

	run(t, h, Tool, toolInput("s1", "Read", `{"file_path":"/repo/a.go"}`, `{"file":{"content":"package a"}}`))
	run(t, h, Tool, toolInput("s1", "Edit", `{"file_path":"/repo/b.go","old_string":"x","new_string":"y"}`, ""))
	run(t, h, Tool, toolInput("s1", "TodoWrite", `{"todos":[]}`, ""))
	run(t, h, Tool, toolInput("s1", "Bash", `{"command":"go test ./...","description":"run tests"}`, `{"stdout":"ok","stderr":""}`))

	st := stats(t, db)
	assert.Equal(t, 2, st.ByType[store.FileNeuron])
	assert.Equal(t, 1, st.ByType[store.ToolNeuron])
	assert.Equal(t, 0, st.ByType[store.ErrorNeuron])
	assert.Equal(t, 3, st.SynapseCount)
	assert.Empty(t, out.String())
}

func TestToolRejectsMalformedInput(t *testing.T) {
	h, _, _ := testHandler(t)
	data, _ := json.Marshal(toolInput("s1", "Read", `{}`, ""))
	assert.Error(t, h.Handle(context.Background(), Tool, bytes.NewReader(data)))
}

func TestToolFailureSurfacesPreviousFix(t *testing.T) {
	h, db, out := testHandler(t)
	failure := `{"stdout":"","stderr":"./main.go:3:2: undefined: foo","exit_code":1}`

	run(t, h, Tool, toolInput("s1", "Bash", `{"command":"go build ./..."}`, failure))
	assert.Equal(t, 1, stats(t, db).ByType[store.ErrorNeuron])
	assert.Empty(t, out.String(), "nothing known about a first failure")

	err := engine.New(db, "s1").ResolveError(context.Background(), "./main.go:3:2: undefined: foo", []string{"/repo/main.go"}, "declare foo")
	require.NoError(t, err)

	run(t, h, Tool, toolInput("s2", "Bash", `{"command":"go build ./..."}`, failure))
	got := parseOutput(t, out)
	assert.Equal(t, EventPostToolUse, got.HookSpecificOutput.HookEventName)
	assert.Contains(t, got.HookSpecificOutput.AdditionalContext, "/repo/main.go")
}

func TestSubmitRecallsAndRecordsSignal(t *testing.T) {
	h, db, out := testHandler(t)
	h.Scrubber = redactor{}

	run(t, h, Submit, map[string]string{"session_id": "s1", "prompt": "hello there"})
	assert.Empty(t, out.String())

	for i := 0; i < 10; i++ {
		run(t, h, Tool, toolInput("s1", "Read", `{"file_path":"/repo/internal/auth/token.go"}`, ""))
	}
	run(t, h, Submit, map[string]string{"session_id": "s2", "prompt": "fix the auth token refresh"})

	got := parseOutput(t, out)
	assert.Equal(t, EventUserPromptSubmit, got.HookSpecificOutput.HookEventName)
	assert.Contains(t, got.HookSpecificOutput.AdditionalContext, "token.go")
	assert.Equal(t, 0, stats(t, db).ByType[store.SemanticNeuron])

	out.Reset()
	run(t, h, Submit, map[string]string{
		"session_id": "s2",
		"cwd":        "/repo",
		"prompt":     "Thanks. Remember this: the key is hunter2",
	})

	assert.Equal(t, 1, stats(t, db).ByType[store.SemanticNeuron])
	res, err := engine.New(db, "").Recall(context.Background(), engine.RecallParams{Query: "remember", Type: store.SemanticNeuron})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Remember this: the key is [REDACTED]", res[0].Neuron.Path)
}

type redactor struct{}

func (redactor) Scrub(s string) string { return strings.ReplaceAll(s, "hunter2", "[REDACTED]") }

func TestPreRecallsForSearches(t *testing.T) {
	h, _, out := testHandler(t)
	for i := 0; i < 10; i++ {
		run(t, h, Tool, toolInput("s1", "Grep", `{"pattern":"RecallParams"}`, ""))
		run(t, h, Tool, toolInput("s1", "Read", `{"file_path":"/repo/internal/engine/recall.go"}`, ""))
	}

	pre := toolInput("s2", "Read", `{"file_path":"/repo/x.go"}`, "")
	run(t, h, Pre, pre)
	assert.Empty(t, out.String(), "only searches are answered")

	run(t, h, Pre, toolInput("s2", "Grep", `{"pattern":"RecallParams"}`, ""))
	got := parseOutput(t, out)
	assert.Equal(t, EventPreToolUse, got.HookSpecificOutput.HookEventName)
	assert.Contains(t, got.HookSpecificOutput.AdditionalContext, "recall.go")
}

func TestEndDecays(t *testing.T) {
	h, _, out := testHandler(t)
	run(t, h, End, map[string]string{"session_id": "s1", "reason": "exit"})
	assert.Empty(t, out.String())
}

func TestUnknownEvent(t *testing.T) {
	h, _, _ := testHandler(t)
	err := h.Handle(context.Background(), "stop", strings.NewReader(`{"session_id":"s1"}`))
	assert.ErrorContains(t, err, "unknown hook event")
}

func TestSignal(t *testing.T) {
	tests := []struct {
		prompt, want string
	}{
		{"just refactor it", ""},
		{"Remember this: use WAL mode", "Remember this: use WAL mode"},
		{"Ok. The root cause was a stale cache! Please fix.", "The root cause was a stale cache"},
		{"we decided on chi\nnext question", "we decided on chi"},
		{strings.Repeat("x", 300) + " always use gofmt", strings.Repeat("x", 200)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, signal(tt.prompt), tt.prompt)
	}
}

func TestSkipTools(t *testing.T) {
	assert.True(t, (&HookInput{ToolName: "TodoWrite"}).ShouldSkipTool())
	assert.True(t, (&HookInput{}).ShouldSkipTool())
	assert.False(t, (&HookInput{ToolName: "Read"}).ShouldSkipTool())
}

func TestClientAgainstServer(t *testing.T) {
	db := testDB(t)
	ts := httptest.NewServer(server.New(db, "test"))
	defer ts.Close()
	ctx := context.Background()

	c := NewClientURL(ts.URL, ts.Client())
	require.True(t, c.Healthy(ctx))

	for i := 0; i < 20; i++ {
		require.NoError(t, c.Record(ctx, "s1", engine.AccessEvent{Type: store.FileNeuron, Path: "internal/store/db.go"}))
	}
	require.NoError(t, c.Record(ctx, "s1", engine.AccessEvent{Type: store.ToolNeuron, Path: "go test"}))
	assert.Error(t, c.Record(ctx, "s1", engine.AccessEvent{Type: "dir", Path: "x"}))

	results, err := c.Recall(ctx, "s1", engine.RecallParams{Query: "store"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "internal/store/db.go", results[0].Neuron.Path)

	highways, err := c.Superhighways(ctx, 3)
	require.NoError(t, err)
	require.Len(t, highways, 1)
	assert.Equal(t, 20, highways[0].AccessCount)

	er, err := c.RecordError(ctx, "s1", "db.go:9: database is locked", "")
	require.NoError(t, err)
	assert.Equal(t, store.ErrorNeuron, er.ErrorNeuron.Type)

	_, err = c.Decay(ctx)
	require.NoError(t, err)

	h := &Handler{Backend: c, Out: &bytes.Buffer{}}
	run(t, h, Start, map[string]string{"session_id": "s2"})
	assert.Contains(t, h.Out.(*bytes.Buffer).String(), "db.go")
}

func TestClientUnhealthy(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	t.Setenv("HEBBIAN_URL", url)
	c := NewClient()
	assert.False(t, c.Healthy(context.Background()))
}

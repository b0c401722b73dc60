package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/store"
)

func TestRecordAndRecall(t *testing.T) {
	srv := testServer(t)

	for i := 0; i < 3; i++ {
		w := do(t, srv, "POST", "/api/record", "s1", `{"type":"file","path":"internal/auth/token.go","context":"login bug"}`, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	var n store.Neuron
	do(t, srv, "POST", "/api/record", "s1", `{"type":"tool","path":"go test ./internal/auth"}`, &n)
	assert.Equal(t, store.ToolNeuron, n.Type)
	assert.Equal(t, 1, n.AccessCount)

	var resp RecallResponse
	w := do(t, srv, "POST", "/api/recall", "s1", `{"query":"auth","limit":5}`, &resp)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "auth", resp.Query)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "internal/auth/token.go", resp.Results[0].Neuron.Path)

	var tokens engine.TokenReport
	do(t, srv, "GET", "/api/tokens", "", "", &tokens)
	assert.Equal(t, int64(1), tokens.Recalls)
	assert.Positive(t, tokens.TokensSaved)
}

func TestValidationIsBadRequest(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name, method, path, body string
	}{
		{"bad json", "POST", "/api/record", `{`},
		{"unknown type", "POST", "/api/record", `{"type":"dir","path":"x"}`},
		{"empty path", "POST", "/api/record", `{"type":"file","path":" "}`},
		{"empty query", "POST", "/api/recall", `{"query":""}`},
		{"negative limit", "POST", "/api/recall", `{"query":"auth","limit":-1}`},
		{"empty error", "POST", "/api/errors", `{"error_text":""}`},
		{"bad min", "GET", "/api/superhighways?min=abc", ""},
		{"min out of range", "GET", "/api/superhighways?min=2", ""},
		{"bad limit", "GET", "/api/superhighways?limit=0", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.path, "s1", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestErrorFixRoutes(t *testing.T) {
	srv := testServer(t)
	const errText = "db.go:12: database is locked"

	var first engine.ErrorRecall
	w := do(t, srv, "POST", "/api/errors", "s1", `{"error_text":"`+errText+`"}`, &first)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, first.PotentialFixes)

	do(t, srv, "POST", "/api/record", "s1", `{"type":"file","path":"internal/store/db.go"}`, nil)
	w = do(t, srv, "POST", "/api/errors/resolve", "s1",
		`{"error_text":"`+errText+`","fixed_files":["internal/store/db.go"],"note":"add busy_timeout"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var again engine.ErrorRecall
	do(t, srv, "POST", "/api/errors", "s2", `{"error_text":"db.go:40: database is locked"}`, &again)
	require.NotEmpty(t, again.PotentialFixes)
	assert.Equal(t, "internal/store/db.go", again.PotentialFixes[0].Neuron.Path)
}

func TestMaintenanceRoutes(t *testing.T) {
	srv := testServer(t)
	do(t, srv, "POST", "/api/record", "s1", `{"type":"file","path":"a.go"}`, nil)
	do(t, srv, "POST", "/api/record", "s1", `{"type":"file","path":"b.go"}`, nil)

	var dr engine.DecayResult
	w := do(t, srv, "POST", "/api/decay", "", "", &dr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, dr.PrunedSynapses)

	var cs engine.ConsolidationSummary
	w = do(t, srv, "POST", "/api/consolidate", "", "", &cs)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, cs.ShortcutsCreated)

	var st engine.Stats
	do(t, srv, "GET", "/api/stats", "", "", &st)
	assert.Equal(t, 2, st.NeuronCount)
	assert.Equal(t, 1, st.SynapseCount)
}

func TestSuperhighwaysAndEmbeddings(t *testing.T) {
	srv := testServer(t)
	for i := 0; i < 20; i++ {
		do(t, srv, "POST", "/api/record", "s1", `{"type":"file","path":"main.go"}`, nil)
	}
	do(t, srv, "POST", "/api/record", "s1", `{"type":"file","path":"rare.go"}`, nil)

	var hw NeuronsResponse
	do(t, srv, "GET", "/api/superhighways", "", "", &hw)
	require.Equal(t, 1, hw.Count)
	assert.Equal(t, "main.go", hw.Neurons[0].Path)

	do(t, srv, "GET", "/api/superhighways?min=0&limit=1", "", "", &hw)
	assert.Equal(t, 1, hw.Count)

	w := do(t, srv, "PUT", "/api/embeddings", "", `{"type":"file","path":"missing.go","embedding":[1,0]}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, "PUT", "/api/embeddings", "", `{"type":"file","path":"main.go","embedding":[1,0],"model":"test"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var cov engine.EmbeddingCoverage
	do(t, srv, "GET", "/api/coverage", "", "", &cov)
	assert.Equal(t, 1, cov.Embedded)
	assert.Equal(t, 2, cov.Total)
}

package engine

import (
	"github.com/lazypower/hebbian/internal/store"
)

// tokenCost estimates what the agent would have spent rediscovering n
// without memory: reading the file, rerunning the tool, re-diagnosing the
// error. Files use their size hint when one was recorded.
func (e *Engine) tokenCost(n store.Neuron) int {
	tc := e.params.Tokens
	switch n.Type {
	case store.FileNeuron:
		if n.SizeBytes > 0 && tc.CharsPerToken > 0 {
			cost := int(n.SizeBytes / int64(tc.CharsPerToken))
			if tc.MaxFile > 0 && cost > tc.MaxFile {
				cost = tc.MaxFile
			}
			return max(cost, 1)
		}
		return tc.File
	case store.ToolNeuron:
		return tc.Tool
	case store.ErrorNeuron:
		return tc.Error
	case store.SemanticNeuron:
		return tc.Semantic
	}
	return 0
}

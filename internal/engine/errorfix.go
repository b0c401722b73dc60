package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/store"
)

// maxSignatureLen bounds canonical error signatures.
const maxSignatureLen = 200

var (
	hexPattern     = regexp.MustCompile(`0[xX][0-9a-fA-F]+`)
	lineColPattern = regexp.MustCompile(`:\d+(:\d+)?`)
	digitsPattern  = regexp.MustCompile(`\d+`)
)

// CanonicalizeError reduces raw error output to a stable signature so the
// same failure maps to the same neuron across runs: first meaningful line,
// addresses and line numbers normalized, whitespace collapsed, truncated.
func CanonicalizeError(text string) string {
	line := ""
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		line = l
		break
	}
	if line == "" {
		return ""
	}

	line = hexPattern.ReplaceAllString(line, "ADDR")
	line = lineColPattern.ReplaceAllString(line, ":N")
	line = digitsPattern.ReplaceAllString(line, "N")
	line = strings.Join(strings.Fields(line), " ")
	return truncateRunes(line, maxSignatureLen)
}

// ErrorRecall is the answer to RecordError.
type ErrorRecall struct {
	ErrorNeuron    store.Neuron   `json:"error_neuron"`
	Signature      string         `json:"signature"`
	PotentialFixes []RecallResult `json:"potential_fixes"`
}

// RecordError records an error occurrence and returns the files that fixed
// the same error before, ranked by how strongly they are linked to it.
func (e *Engine) RecordError(ctx context.Context, errorText, query string) (*ErrorRecall, error) {
	sig := CanonicalizeError(errorText)
	if sig == "" {
		return nil, invalid("recordError", "error", "", "must not be empty")
	}
	ev := AccessEvent{Type: store.ErrorNeuron, Path: sig, Context: e.prepareText(query)}

	now := e.now()
	var out ErrorRecall
	err := e.db.Update(ctx, "recordError", func(tx *store.Tx) error {
		n, _, err := e.record(tx, ev, now)
		if err != nil {
			return err
		}
		if err := tx.OpenError(e.session, n.ID, now); err != nil {
			return err
		}
		activation, err := e.spread(tx, map[int64]float64{n.ID: 1})
		if err != nil {
			return err
		}
		fixes, err := e.rank(tx, activation, store.FileNeuron, map[int64]bool{n.ID: true}, e.params.DefaultLimit, e.params.DefaultTokenBudget)
		if err != nil {
			return err
		}
		out = ErrorRecall{ErrorNeuron: *n, Signature: sig, PotentialFixes: fixes}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recordError %q: %w", sig, err)
	}

	e.logger.Debug("recorded error",
		zap.String("signature", sig),
		zap.Int("potential_fixes", len(out.PotentialFixes)))
	if e.metrics != nil {
		e.metrics.RecordAccess(string(store.ErrorNeuron), 0)
	}
	return &out, nil
}

// ResolveError links an error to the files that fixed it. Fixed files are
// wired with the fix rate; other files touched in this session since the
// error was recorded get an ordinary co-activation.
func (e *Engine) ResolveError(ctx context.Context, errorText string, fixedFiles []string, note string) error {
	sig := CanonicalizeError(errorText)
	if sig == "" {
		return invalid("resolveError", "error", "", "must not be empty")
	}
	var files []string
	seen := make(map[string]bool)
	for _, f := range fixedFiles {
		path, err := validateIdentity("resolveError", store.FileNeuron, f)
		if err != nil {
			return err
		}
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}
	note = e.prepareText(note)

	now := e.now()
	var trailed int
	err := e.db.Update(ctx, "resolveError", func(tx *store.Tx) error {
		trailed = 0
		errN, err := e.ensure(tx, store.ErrorNeuron, sig, now)
		if err != nil {
			return err
		}

		fixed := make(map[int64]bool, len(files))
		for _, path := range files {
			f, err := e.ensure(tx, store.FileNeuron, path, now)
			if err != nil {
				return err
			}
			fixed[f.ID] = true
			src, tgt := e.synapseKey(errN.ID, f.ID)
			if _, _, err := tx.ReinforceSynapse(src, tgt, e.params.FixRate, now); err != nil {
				return err
			}
		}

		trail, err := tx.ErrorTrail(e.session, errN.ID)
		if err != nil {
			return err
		}
		for _, id := range trail {
			if fixed[id] || id == errN.ID {
				continue
			}
			src, tgt := e.synapseKey(errN.ID, id)
			if _, _, err := tx.ReinforceSynapse(src, tgt, e.params.CoactivationRate, now); err != nil {
				return err
			}
			trailed++
		}

		errN.Contexts = e.appendContext(errN.Contexts, note)
		errN.LastAccessedAt = now
		if err := tx.UpdateNeuron(errN); err != nil {
			return err
		}
		return tx.CloseError(e.session, errN.ID)
	})
	if err != nil {
		return fmt.Errorf("resolveError %q: %w", sig, err)
	}

	e.logger.Debug("resolved error",
		zap.String("signature", sig),
		zap.Strings("fixed_files", files),
		zap.Int("co_activated", trailed))
	return nil
}

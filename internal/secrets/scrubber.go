// Package secrets redacts credentials from free text before it is stored,
// using the default gitleaks rule set.
package secrets

import (
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Scrubber replaces every secret gitleaks detects with a redaction marker.
// It satisfies engine.Scrubber.
type Scrubber struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// New builds a scrubber with the gitleaks default config. Building the
// detector compiles several hundred rules, so callers should keep one.
func New() (*Scrubber, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}
	return &Scrubber{detector: d}, nil
}

// Finding is one detected secret.
type Finding struct {
	RuleID string
	Secret string
}

// Detect returns the secrets found in text, longest first.
func (s *Scrubber) Detect(text string) []Finding {
	if text == "" {
		return nil
	}
	s.mu.Lock()
	found := s.detector.DetectString(text)
	s.mu.Unlock()

	out := make([]Finding, 0, len(found))
	seen := make(map[string]bool)
	for _, f := range found {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		if secret == "" || seen[secret] {
			continue
		}
		seen[secret] = true
		out = append(out, Finding{RuleID: f.RuleID, Secret: secret})
	}
	// longer secrets first so a secret containing another is replaced whole
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Secret) != len(out[j].Secret) {
			return len(out[i].Secret) > len(out[j].Secret)
		}
		return out[i].Secret < out[j].Secret
	})
	return out
}

// Scrub returns text with each detected secret replaced by
// [REDACTED:<rule-id>].
func (s *Scrubber) Scrub(text string) string {
	for _, f := range s.Detect(text) {
		text = strings.ReplaceAll(text, f.Secret, "[REDACTED:"+f.RuleID+"]")
	}
	return text
}

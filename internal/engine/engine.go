package engine

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/store"
)

// Scrubber redacts secrets from text before it is persisted.
type Scrubber interface {
	Scrub(text string) string
}

// Engine runs Hebbian memory operations against a store on behalf of one
// session. It holds no learned state between calls: every operation is a
// single store transaction.
type Engine struct {
	db      *store.DB
	session string
	params  Params
	logger  *zap.Logger
	clock   func() time.Time
	scrub   Scrubber
	metrics *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithParams overrides the default learning and recall parameters.
func WithParams(p Params) Option {
	return func(e *Engine) { e.params = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock replaces time.Now, mostly for decay tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithScrubber redacts context snippets and notes before they are stored.
func WithScrubber(s Scrubber) Option {
	return func(e *Engine) { e.scrub = s }
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine bound to sessionID. An empty session id is allowed
// and simply shares one window across callers that also pass "".
func New(db *store.DB, sessionID string, opts ...Option) *Engine {
	e := &Engine{
		db:      db,
		session: strings.TrimSpace(sessionID),
		params:  DefaultParams(),
		logger:  zap.NewNop(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session returns the session id the engine records under.
func (e *Engine) Session() string { return e.session }

// Params returns the engine's parameters.
func (e *Engine) Params() Params { return e.params }

func (e *Engine) now() int64 {
	return e.clock().UnixMilli()
}

// prepareText scrubs and truncates free text destined for context snippets.
func (e *Engine) prepareText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if e.scrub != nil {
		text = e.scrub.Scrub(text)
	}
	text = strings.Join(strings.Fields(text), " ")
	return truncateRunes(text, e.params.MaxContextChars)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// synapseKey orders a pair for storage. Undirected synapses live under
// (min, max); directed ones under (earlier, later).
func (e *Engine) synapseKey(earlier, later int64) (int64, int64) {
	if e.params.Directed || earlier < later {
		return earlier, later
	}
	return later, earlier
}

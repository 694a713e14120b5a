package extraction

import (
	"time"

	"github.com/fyrsmithlabs/extractd/internal/fields"
	"github.com/fyrsmithlabs/extractd/internal/session"
	"github.com/fyrsmithlabs/extractd/internal/strategy"
	"github.com/fyrsmithlabs/extractd/internal/voting"
)

// Request describes one extraction job.
type Request struct {
	// Text is the full document text. Required.
	Text string `json:"text"`

	// SourceRef identifies the document (file name, URL, upload ID).
	SourceRef string `json:"source_ref,omitempty"`

	// TypeHint is the contract type when the caller knows it. Empty means
	// detect automatically.
	TypeHint string `json:"type_hint,omitempty"`

	// Strategy forces a specific strategy ID. Empty means pick by
	// priority. "multi" runs multi-strategy extraction with voting.
	Strategy string `json:"strategy,omitempty"`

	// Types filters extraction to a subset of information types.
	Types []fields.InformationType `json:"types,omitempty"`

	// Voting overrides voting behavior for multi-strategy runs.
	Voting *voting.Config `json:"voting,omitempty"`
}

// MultiRequest describes a synchronous multi-strategy parse.
type MultiRequest struct {
	Text       string           `json:"text"`
	TypeHint   string           `json:"type_hint,omitempty"`
	Strategies []string         `json:"strategies,omitempty"`
	Options    strategy.Options `json:"options"`
	Voting     *voting.Config   `json:"voting,omitempty"`
}

// Config configures the extraction service.
type Config struct {
	// DefaultStrategy forces a strategy for requests that don't name one.
	// Empty means pick the best available by priority.
	DefaultStrategy string

	// MinChunkSize is the minimum chunk size in bytes (default: 500).
	MinChunkSize int

	// SessionDeadline bounds one background extraction end to end
	// (default: 10m).
	SessionDeadline time.Duration

	// MaxConcurrentTasks caps in-flight tasks per session (default: 3).
	MaxConcurrentTasks int

	// TaskTimeout bounds each per-type task (default: 90s).
	TaskTimeout time.Duration

	// Session configures the session store's eviction policy.
	Session session.Config
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() *Config {
	return &Config{
		MinChunkSize:       500,
		SessionDeadline:    10 * time.Minute,
		MaxConcurrentTasks: 3,
		TaskTimeout:        90 * time.Second,
		Session:            session.DefaultConfig(),
	}
}

// Package tasks decomposes an extraction job into independent
// information-type tasks that run concurrently against the strategy
// engine. A task failure never aborts its siblings.
package tasks

import (
	"time"

	"github.com/fyrsmithlabs/extractd/internal/fields"
)

// Status is the lifecycle state of one task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task is one unit of field extraction for a single information type.
type Task struct {
	ID         string                 `json:"id"`
	Type       fields.InformationType `json:"information_type"`
	Status     Status                 `json:"status"`
	StartTime  time.Time              `json:"start_time,omitzero"`
	EndTime    time.Time              `json:"end_time,omitzero"`
	Data       fields.Set             `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	TokensUsed int                    `json:"tokens_used"`

	// ProcessingTime is EndTime-StartTime, kept denormalized for callers.
	ProcessingTime time.Duration `json:"processing_time_ms"`
}

// Summary aggregates a task batch.
type Summary struct {
	TotalTasks      int           `json:"total_tasks"`
	SuccessfulTasks int           `json:"successful_tasks"`
	FailedTasks     int           `json:"failed_tasks"`
	TotalTokensUsed int           `json:"total_tokens_used"`
	TotalTime       time.Duration `json:"total_time_ms"`
}

// ParseResult is the merged outcome of a task batch.
type ParseResult struct {
	// Data merges every successful task's fields, keyed by information type.
	Data map[fields.InformationType]fields.Set `json:"data"`

	// Merged flattens Data into one field set (highest confidence wins).
	Merged fields.Set `json:"merged"`

	Tasks   []Task  `json:"results"`
	Summary Summary `json:"summary"`
}

// typeNarrowing maps contract-type hints to the task subset worth running.
// Unknown hints keep the full default set.
var typeNarrowing = map[string][]fields.InformationType{
	"nda": {
		fields.TypeBasicInfo, fields.TypeParties, fields.TypeTime, fields.TypeLegalTerms,
	},
	"employment": {
		fields.TypeBasicInfo, fields.TypeParties, fields.TypeFinancial,
		fields.TypeTime, fields.TypePayment, fields.TypeLegalTerms,
	},
	"loan": {
		fields.TypeBasicInfo, fields.TypeParties, fields.TypeFinancial,
		fields.TypeTime, fields.TypePayment, fields.TypeLegalTerms,
	},
}

// TaskTypes computes the effective task set: an explicit filter wins,
// otherwise the default set possibly narrowed by the contract-type hint.
func TaskTypes(typeHint string, filter []fields.InformationType) []fields.InformationType {
	if len(filter) > 0 {
		out := make([]fields.InformationType, 0, len(filter))
		for _, t := range filter {
			if fields.ValidType(t) {
				out = append(out, t)
			}
		}
		return out
	}
	if narrowed, ok := typeNarrowing[typeHint]; ok {
		return narrowed
	}
	return fields.AllTypes()
}

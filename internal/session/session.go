// Package session is the process-wide registry of extraction sessions.
// Each session is written by exactly one background worker and read by
// arbitrary pollers; readers always observe consistent snapshots.
package session

import (
	"time"

	"github.com/fyrsmithlabs/extractd/internal/fields"
	"github.com/fyrsmithlabs/extractd/internal/tasks"
	"github.com/fyrsmithlabs/extractd/internal/voting"
)

// Status is the session lifecycle state. Transitions are monotonic:
// created -> running -> completed | failed.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ChunkProgress tracks chunk-level completion.
type ChunkProgress struct {
	Total        int `json:"total"`
	Completed    int `json:"completed"`
	CurrentIndex int `json:"current_index"`
}

// TaskProgress tracks task-level completion.
type TaskProgress struct {
	Total        int    `json:"total"`
	Completed    int    `json:"completed"`
	CurrentLabel string `json:"current_task,omitempty"`
}

// TokenUsage tracks token throughput for the session.
type TokenUsage struct {
	CurrentRate float64 `json:"current_rate"` // tokens/sec over recent units
	AverageRate float64 `json:"average_rate"` // tokens/sec since start
	TotalTokens int     `json:"total_tokens"`
}

// Result is the extraction outcome stored on a completed session.
type Result struct {
	SourceRef    string                                 `json:"source_ref"`
	DocumentType string                                 `json:"document_type,omitempty"`
	Strategy     string                                 `json:"strategy"`
	Fields       fields.Set                             `json:"fields"`
	Data         map[fields.InformationType]fields.Set  `json:"data"`
	Tasks        []tasks.Task                           `json:"tasks"`
	Summary      tasks.Summary                          `json:"summary"`
	Multi        *voting.MultiResult                    `json:"multi,omitempty"`
	Completeness float64                                `json:"completeness"`
}

// Session is one extraction job instance. All fields are owned by the
// session's background worker; pollers receive copies.
type Session struct {
	ID        string    `json:"id"`
	SourceRef string    `json:"source_ref"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`

	Chunks ChunkProgress `json:"chunk_progress"`
	Tasks  TaskProgress  `json:"task_progress"`
	Tokens TokenUsage    `json:"token_usage"`

	// EstimatedRemaining is derived from moving-average unit throughput.
	EstimatedRemaining time.Duration `json:"estimated_remaining"`

	// Error is set iff Status == failed.
	Error string `json:"error,omitempty"`

	// Result is set iff Status == completed.
	Result *Result `json:"result,omitempty"`

	// Progress is the derived percentage (0..100), monotonically
	// non-decreasing for the session's lifetime.
	Progress float64 `json:"progress"`
}

// Progress blend weights: chunking is the cheap front of the pipeline,
// task execution dominates wall time.
const (
	chunkWeight = 0.4
	taskWeight  = 0.6
)

// rawProgress computes the unclamped blend of chunk and task completion.
func rawProgress(s *Session) float64 {
	if s.Status == StatusCompleted {
		return 100
	}

	var chunkPct, taskPct float64
	if s.Chunks.Total > 0 {
		chunkPct = float64(s.Chunks.Completed) / float64(s.Chunks.Total)
	}
	if s.Tasks.Total > 0 {
		taskPct = float64(s.Tasks.Completed) / float64(s.Tasks.Total)
	}
	return (chunkPct*chunkWeight + taskPct*taskWeight) * 100
}

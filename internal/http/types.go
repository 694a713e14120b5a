package http

import (
	"github.com/fyrsmithlabs/extractd/internal/fields"
	"github.com/fyrsmithlabs/extractd/internal/scoring"
	"github.com/fyrsmithlabs/extractd/internal/session"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ListResponse is the response body for GET /api/v1/extractions.
type ListResponse struct {
	Sessions []session.Session `json:"sessions"`
	Count    int               `json:"count"`
}

// ResolveRequest is the request body for POST /api/v1/extractions/:id/resolve.
type ResolveRequest struct {
	// Choices maps conflicted field names to the chosen value.
	Choices    map[string]string `json:"choices"`
	ResolvedBy string            `json:"resolved_by,omitempty"`
}

// DetectTypeRequest is the request body for POST /api/v1/detect-type.
type DetectTypeRequest struct {
	Text     string `json:"text"`
	FileName string `json:"file_name,omitempty"`
}

// ScoreRequest is the request body for POST /api/v1/score.
type ScoreRequest struct {
	Fields fields.Set `json:"fields"`
}

// ScoreResponse is the response body for POST /api/v1/score.
type ScoreResponse struct {
	Score         scoring.Score `json:"score"`
	MissingFields []string      `json:"missing_fields,omitempty"`
}

// StrategiesResponse is the response body for GET /api/v1/strategies.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
}

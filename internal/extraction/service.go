// Package extraction orchestrates the full pipeline: chunking, strategy
// selection, task decomposition, multi-strategy voting, and session
// tracking. Extractions run in the background; callers poll for progress.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/extractd/internal/chunker"
	"github.com/fyrsmithlabs/extractd/internal/doctype"
	"github.com/fyrsmithlabs/extractd/internal/fields"
	"github.com/fyrsmithlabs/extractd/internal/scoring"
	"github.com/fyrsmithlabs/extractd/internal/session"
	"github.com/fyrsmithlabs/extractd/internal/strategy"
	"github.com/fyrsmithlabs/extractd/internal/tasks"
	"github.com/fyrsmithlabs/extractd/internal/voting"
)

const instrumentationName = "github.com/fyrsmithlabs/extractd/internal/extraction"

// StrategyMulti requests multi-strategy extraction with voting instead of
// a single strategy.
const StrategyMulti = "multi"

// Service provides extraction orchestration operations.
type Service interface {
	// CreateSession registers an extraction job in the created state.
	CreateSession(ctx context.Context, req *Request) (session.Session, error)

	// StartExtraction moves the session to running and spawns the
	// background worker. It returns immediately.
	StartExtraction(ctx context.Context, sessionID string) error

	// GetProgress returns a snapshot of the session.
	GetProgress(ctx context.Context, sessionID string) (session.Session, error)

	// GetAllProgress returns snapshots of every tracked session.
	GetAllProgress(ctx context.Context) []session.Session

	// GetResult returns the result of a completed session.
	GetResult(ctx context.Context, sessionID string) (*session.Result, error)

	// DetectDocumentType classifies a document by its text and file name.
	DetectDocumentType(ctx context.Context, text, fileName string) doctype.Detection

	// ParseWithStrategies runs a synchronous multi-strategy parse.
	ParseWithStrategies(ctx context.Context, req *MultiRequest) (*voting.MultiResult, error)

	// ResolveConflicts applies manual per-field choices to a completed
	// session's voting conflicts.
	ResolveConflicts(ctx context.Context, sessionID string, choices map[string]string, resolvedBy string) (*voting.MultiResult, error)

	// CompareSessions diffs the extracted field sets of two completed
	// sessions.
	CompareSessions(ctx context.Context, idA, idB string) (*voting.Comparison, error)

	// ScoreCompleteness scores a field set against the contract catalog.
	ScoreCompleteness(set fields.Set) (scoring.Score, []string)

	// Strategies lists the currently available strategy IDs.
	Strategies() []string

	// Close drains running extractions and shuts the service down.
	Close() error
}

// service implements the Service interface.
type service struct {
	config     *Config
	selector   *strategy.Selector
	engine     *voting.Engine
	chunker    *chunker.Chunker
	store      *session.Store
	decomposer *tasks.Decomposer
	defs       []fields.Def
	votingCfg  voting.Config
	logger     *zap.Logger

	tracer  trace.Tracer
	metrics *Metrics

	mu      sync.RWMutex
	closed  bool
	pending map[string]*Request

	wg sync.WaitGroup
}

// NewService creates the extraction service.
func NewService(cfg *Config, selector *strategy.Selector, engine *voting.Engine, ck *chunker.Chunker, logger *zap.Logger) (Service, error) {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if selector == nil {
		return nil, errors.New("strategy selector is required")
	}
	if engine == nil {
		return nil, errors.New("voting engine is required")
	}
	if ck == nil {
		ck = chunker.New(chunker.Config{MinChunkSize: cfg.MinChunkSize})
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := session.NewStore(cfg.Session, logger.Named("session"))
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	return &service{
		config:   cfg,
		selector: selector,
		engine:   engine,
		chunker:  ck,
		store:    store,
		decomposer: tasks.NewDecomposer(tasks.Config{
			MaxConcurrent: cfg.MaxConcurrentTasks,
			TaskTimeout:   cfg.TaskTimeout,
		}, logger.Named("tasks")),
		defs:      fields.DefaultContractFields(),
		votingCfg: voting.DefaultConfig(),
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		metrics:   NewMetrics(),
		pending:   make(map[string]*Request),
	}, nil
}

// Close drains background extractions, then shuts down the session store.
func (s *service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	return s.store.Close()
}

// CreateSession registers the job. The request is held until
// StartExtraction claims it.
func (s *service) CreateSession(ctx context.Context, req *Request) (session.Session, error) {
	_, span := s.tracer.Start(ctx, "extraction.create_session")
	defer span.End()

	if req == nil || req.Text == "" {
		err := errors.New("document text is required")
		span.SetStatus(codes.Error, err.Error())
		return session.Session{}, err
	}
	if req.Strategy != "" && req.Strategy != StrategyMulti {
		if _, err := s.selector.Get(req.Strategy); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return session.Session{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return session.Session{}, session.ErrClosed
	}

	sess, err := s.store.Create(req.SourceRef)
	if err != nil {
		span.RecordError(err)
		return session.Session{}, err
	}
	s.pending[sess.ID] = req

	span.SetAttributes(
		attribute.String("session_id", sess.ID),
		attribute.Int("text_bytes", len(req.Text)),
		attribute.String("strategy", req.Strategy),
	)
	return sess, nil
}

// StartExtraction claims the pending request and spawns the worker. The
// worker's lifetime is bounded by the configured session deadline, not by
// the caller's context.
func (s *service) StartExtraction(ctx context.Context, sessionID string) error {
	_, span := s.tracer.Start(ctx, "extraction.start",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return session.ErrClosed
	}
	req, ok := s.pending[sessionID]
	if !ok {
		return fmt.Errorf("session %s has no pending extraction", sessionID)
	}

	if err := s.store.Start(sessionID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	delete(s.pending, sessionID)

	s.wg.Add(1)
	go s.run(sessionID, req)
	return nil
}

// run is the background worker for one session.
func (s *service) run(sessionID string, req *Request) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.SessionDeadline)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "extraction.run",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	s.metrics.ActiveSessions.Inc()
	defer s.metrics.ActiveSessions.Dec()
	started := time.Now()

	result, err := s.extract(ctx, sessionID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.SessionsTotal.WithLabelValues(string(session.StatusFailed)).Inc()
		s.logger.Error("extraction failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		if ferr := s.store.Fail(sessionID, err.Error()); ferr != nil {
			s.logger.Warn("failed to mark session failed",
				zap.String("session_id", sessionID),
				zap.Error(ferr),
			)
		}
		return
	}

	if cerr := s.store.Complete(sessionID, result); cerr != nil {
		s.logger.Warn("failed to mark session completed",
			zap.String("session_id", sessionID),
			zap.Error(cerr),
		)
		return
	}

	s.metrics.SessionsTotal.WithLabelValues(string(session.StatusCompleted)).Inc()
	s.metrics.SessionDuration.WithLabelValues(result.Strategy).Observe(time.Since(started).Seconds())
	s.logger.Info("extraction completed",
		zap.String("session_id", sessionID),
		zap.String("strategy", result.Strategy),
		zap.String("document_type", result.DocumentType),
		zap.Int("fields", len(result.Fields)),
		zap.Float64("completeness", result.Completeness),
		zap.Duration("duration", time.Since(started)),
	)
}

// extract runs the pipeline: detect type, chunk, then extract via a single
// strategy's task batch or the multi-strategy voting engine.
func (s *service) extract(ctx context.Context, sessionID string, req *Request) (*session.Result, error) {
	typeHint := req.TypeHint
	if typeHint == "" {
		det := doctype.Detect(req.Text, req.SourceRef)
		if det.Type != doctype.TypeOther {
			typeHint = det.Type
		}
		s.logger.Debug("document type detected",
			zap.String("session_id", sessionID),
			zap.String("type", det.Type),
			zap.Float64("confidence", det.Confidence),
		)
	}

	chunkRes := s.chunker.Chunk(req.Text, s.config.MinChunkSize)
	if !chunkRes.Success {
		return nil, errors.New("document produced no chunks")
	}
	if err := s.store.SetChunkTotal(sessionID, len(chunkRes.Chunks)); err != nil {
		return nil, err
	}
	for _, ch := range chunkRes.Chunks {
		if err := s.store.ChunkDone(sessionID, ch.Index); err != nil {
			return nil, err
		}
	}

	input := strategy.Input{
		Text:     req.Text,
		Chunks:   chunkRes.Chunks,
		Fields:   s.defs,
		TypeHint: typeHint,
	}

	forced := req.Strategy
	if forced == "" {
		forced = s.config.DefaultStrategy
	}
	if forced == StrategyMulti {
		return s.extractMulti(ctx, sessionID, req, input, typeHint)
	}

	st, err := s.selector.Pick(forced)
	if err != nil {
		return nil, err
	}

	taskTypes := tasks.TaskTypes(typeHint, req.Types)
	if err := s.store.SetTaskTotal(sessionID, len(taskTypes)); err != nil {
		return nil, err
	}

	parseStart := time.Now()
	pr := s.decomposer.ParseByTasks(ctx, st, input, typeHint, req.Types, func(t tasks.Task) {
		s.metrics.TasksTotal.WithLabelValues(string(t.Type), string(t.Status)).Inc()
		if err := s.store.TaskDone(sessionID, t.TokensUsed); err != nil {
			s.logger.Debug("progress update dropped", zap.Error(err))
		}
	})
	s.metrics.StrategyDuration.WithLabelValues(st.ID()).Observe(time.Since(parseStart).Seconds())
	s.metrics.StrategyCalls.WithLabelValues(st.ID(), "ok").Inc()
	s.metrics.TokensTotal.WithLabelValues(st.ID()).Add(float64(pr.Summary.TotalTokensUsed))

	if pr.Summary.SuccessfulTasks == 0 {
		return nil, fmt.Errorf("all %d tasks failed", pr.Summary.TotalTasks)
	}

	score, _ := s.ScoreCompleteness(pr.Merged)
	return &session.Result{
		SourceRef:    req.SourceRef,
		DocumentType: typeHint,
		Strategy:     st.ID(),
		Fields:       pr.Merged,
		Data:         pr.Data,
		Tasks:        pr.Tasks,
		Summary:      pr.Summary,
		Completeness: score.Score,
	}, nil
}

// extractMulti runs every available strategy through the voting engine.
func (s *service) extractMulti(ctx context.Context, sessionID string, req *Request, input strategy.Input, typeHint string) (*session.Result, error) {
	ids := s.selector.Available()
	if err := s.store.SetTaskTotal(sessionID, len(ids)); err != nil {
		return nil, err
	}

	mr, err := s.engine.Parse(ctx, input, ids, strategy.Options{Timeout: s.config.TaskTimeout}, req.Voting)
	if err != nil {
		return nil, err
	}

	// Strategy runs are the progress units for multi extraction.
	for id, r := range mr.Results {
		if perr := s.store.TaskDone(sessionID, r.TokensUsed); perr != nil {
			s.logger.Debug("progress update dropped", zap.Error(perr))
		}
		s.metrics.StrategyCalls.WithLabelValues(id, "ok").Inc()
		s.metrics.TokensTotal.WithLabelValues(id).Add(float64(r.TokensUsed))
	}
	for id := range mr.Errors {
		if perr := s.store.TaskDone(sessionID, 0); perr != nil {
			s.logger.Debug("progress update dropped", zap.Error(perr))
		}
		s.metrics.StrategyCalls.WithLabelValues(id, "error").Inc()
	}
	s.metrics.ConflictsTotal.Add(float64(len(mr.Conflicts)))

	score, _ := s.ScoreCompleteness(mr.Merged)
	return &session.Result{
		SourceRef:    req.SourceRef,
		DocumentType: typeHint,
		Strategy:     StrategyMulti,
		Fields:       mr.Merged,
		Multi:        mr,
		Summary: tasks.Summary{
			TotalTasks:      len(ids),
			SuccessfulTasks: len(mr.Results),
			FailedTasks:     len(mr.Errors),
			TotalTokensUsed: mr.TokensUsed,
			TotalTime:       mr.Duration,
		},
		Completeness: score.Score,
	}, nil
}

// GetProgress returns a snapshot of the session.
func (s *service) GetProgress(ctx context.Context, sessionID string) (session.Session, error) {
	return s.store.Get(sessionID)
}

// GetAllProgress returns snapshots of every tracked session.
func (s *service) GetAllProgress(ctx context.Context) []session.Session {
	return s.store.All()
}

// GetResult returns the result of a completed session. Failed sessions
// surface their recorded error.
func (s *service) GetResult(ctx context.Context, sessionID string) (*session.Result, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case session.StatusCompleted:
		return sess.Result, nil
	case session.StatusFailed:
		return nil, fmt.Errorf("extraction failed: %s", sess.Error)
	default:
		return nil, fmt.Errorf("session %s is %s, result not ready", sessionID, sess.Status)
	}
}

// DetectDocumentType classifies a document by its text and file name.
func (s *service) DetectDocumentType(ctx context.Context, text, fileName string) doctype.Detection {
	_, span := s.tracer.Start(ctx, "extraction.detect_type")
	defer span.End()

	det := doctype.Detect(text, fileName)
	span.SetAttributes(
		attribute.String("document_type", det.Type),
		attribute.Float64("confidence", det.Confidence),
	)
	return det
}

// ParseWithStrategies runs a synchronous multi-strategy parse outside any
// session.
func (s *service) ParseWithStrategies(ctx context.Context, req *MultiRequest) (*voting.MultiResult, error) {
	ctx, span := s.tracer.Start(ctx, "extraction.parse_multi")
	defer span.End()

	if req == nil || req.Text == "" {
		return nil, errors.New("document text is required")
	}

	chunkRes := s.chunker.Chunk(req.Text, s.config.MinChunkSize)
	input := strategy.Input{
		Text:     req.Text,
		Chunks:   chunkRes.Chunks,
		Fields:   s.defs,
		TypeHint: req.TypeHint,
	}

	mr, err := s.engine.Parse(ctx, input, req.Strategies, req.Options, req.Voting)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.metrics.ConflictsTotal.Add(float64(len(mr.Conflicts)))
	span.SetAttributes(
		attribute.Int("conflicts", len(mr.Conflicts)),
		attribute.Float64("agreement_ratio", mr.AgreementRatio),
	)
	return mr, nil
}

// ResolveConflicts applies manual choices to a completed session's voting
// conflicts and folds the chosen values into the merged field set.
func (s *service) ResolveConflicts(ctx context.Context, sessionID string, choices map[string]string, resolvedBy string) (*voting.MultiResult, error) {
	_, span := s.tracer.Start(ctx, "extraction.resolve_conflicts",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	err := s.store.UpdateResult(sessionID, func(r *session.Result) error {
		if r.Multi == nil {
			return fmt.Errorf("session %s was not a multi-strategy extraction", sessionID)
		}
		if err := voting.ResolveManually(r.Multi, choices, resolvedBy); err != nil {
			return err
		}
		for name := range choices {
			r.Fields[name] = r.Multi.Merged[name]
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Result.Multi, nil
}

// CompareSessions diffs the merged field sets of two completed sessions.
func (s *service) CompareSessions(ctx context.Context, idA, idB string) (*voting.Comparison, error) {
	_, span := s.tracer.Start(ctx, "extraction.compare_sessions")
	defer span.End()

	ra, err := s.GetResult(ctx, idA)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", idA, err)
	}
	rb, err := s.GetResult(ctx, idB)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", idB, err)
	}
	return voting.CompareFieldSets(ra.Fields, rb.Fields, s.defs, s.votingCfg), nil
}

// ScoreCompleteness scores a field set against the contract catalog and
// lists missing required fields.
func (s *service) ScoreCompleteness(set fields.Set) (scoring.Score, []string) {
	return scoring.Calculate(set, s.defs), scoring.MissingFields(set, s.defs)
}

// Strategies lists the currently available strategy IDs.
func (s *service) Strategies() []string {
	return s.selector.Available()
}

package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fyrsmithlabs/extractd/internal/chunker"
	"github.com/fyrsmithlabs/extractd/internal/doctype"
	"github.com/fyrsmithlabs/extractd/internal/fields"
	"github.com/fyrsmithlabs/extractd/internal/session"
	"github.com/fyrsmithlabs/extractd/internal/strategy"
	"github.com/fyrsmithlabs/extractd/internal/voting"
)

// TestMain verifies background extraction workers and the session sweeper
// are drained on Close.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// cannedStrategy returns fixed values for the requested target fields.
type cannedStrategy struct {
	id  string
	out fields.Set
	err error
}

func (c *cannedStrategy) ID() string                 { return c.id }
func (c *cannedStrategy) Available() bool            { return true }
func (c *cannedStrategy) Cost() strategy.CostProfile { return strategy.CostProfile{} }

func (c *cannedStrategy) Parse(ctx context.Context, input strategy.Input, opts strategy.Options) (*strategy.Result, error) {
	if c.err != nil {
		return nil, c.err
	}
	set := make(fields.Set)
	if len(opts.TargetFields) == 0 {
		for name, v := range c.out {
			set[name] = v
		}
	} else {
		for _, name := range opts.TargetFields {
			if v, ok := c.out[name]; ok {
				set[name] = v
			}
		}
	}
	return &strategy.Result{StrategyID: c.id, Fields: set, TokensUsed: 5}, nil
}

var cannedFields = fields.Set{
	"contract_title": {Value: "Service Agreement", Confidence: 0.9},
	"party_a":        {Value: "Acme Corp", Confidence: 0.9},
	"party_b":        {Value: "Widget LLC", Confidence: 0.85},
	"total_amount":   {Value: "$100,000", Confidence: 0.8},
	"effective_date": {Value: "2024-01-15", Confidence: 0.8},
}

func newTestService(t *testing.T, strategies ...strategy.Strategy) Service {
	t.Helper()
	if len(strategies) == 0 {
		strategies = []strategy.Strategy{&cannedStrategy{id: strategy.IDRule, out: cannedFields}}
	}
	sel := strategy.NewSelector(strategies, nil)
	engine := voting.NewEngine(sel, voting.DefaultConfig(), nil, nil)
	ck := chunker.New(chunker.Config{MinChunkSize: 50})

	svc, err := NewService(&Config{
		MinChunkSize:    50,
		SessionDeadline: 5 * time.Second,
	}, sel, engine, ck, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

const testContract = `SERVICE AGREEMENT

Article 1 Parties
This Agreement is made between Acme Corp and Widget LLC.

Article 2 Payment
The total contract amount is $100,000 payable by wire transfer.

Article 3 Term
This Agreement is effective as of 2024-01-15.`

func awaitStatus(t *testing.T, svc Service, id string, want session.Status) session.Session {
	t.Helper()
	var got session.Session
	require.Eventually(t, func() bool {
		s, err := svc.GetProgress(context.Background(), id)
		if err != nil {
			return false
		}
		got = s
		return s.Status == want
	}, 5*time.Second, 10*time.Millisecond, "session never reached %s", want)
	return got
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selector is required")
}

func TestCreateSession_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, nil)
	assert.Error(t, err)

	_, err = svc.CreateSession(ctx, &Request{Text: ""})
	assert.Error(t, err)

	_, err = svc.CreateSession(ctx, &Request{Text: "doc", Strategy: "bogus"})
	assert.Error(t, err)
}

func TestExtraction_EndToEnd(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, &Request{
		Text:      testContract,
		SourceRef: "contract.md",
		Strategy:  strategy.IDRule,
	})
	require.NoError(t, err)
	assert.Equal(t, session.StatusCreated, sess.Status)

	require.NoError(t, svc.StartExtraction(ctx, sess.ID))

	done := awaitStatus(t, svc, sess.ID, session.StatusCompleted)
	assert.Equal(t, 100.0, done.Progress)

	result, err := svc.GetResult(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, strategy.IDRule, result.Strategy)
	assert.Equal(t, "contract.md", result.SourceRef)
	assert.True(t, result.Fields.Present("party_a"))
	assert.True(t, result.Fields.Present("total_amount"))
	assert.Greater(t, result.Completeness, 0.0)
	assert.NotEmpty(t, result.Tasks)
	assert.Equal(t, result.Summary.TotalTasks, len(result.Tasks))
	assert.Greater(t, result.Summary.TotalTokensUsed, 0)
}

func TestExtraction_DetectsDocumentType(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	text := `LOAN AGREEMENT between the Lender and the Borrower for a principal
amount of $500,000 at an interest rate of 5%.`

	sess, err := svc.CreateSession(ctx, &Request{Text: text, Strategy: strategy.IDRule})
	require.NoError(t, err)
	require.NoError(t, svc.StartExtraction(ctx, sess.ID))
	awaitStatus(t, svc, sess.ID, session.StatusCompleted)

	result, err := svc.GetResult(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, doctype.TypeLoan, result.DocumentType)
}

func TestExtraction_Failure(t *testing.T) {
	svc := newTestService(t, &cannedStrategy{id: strategy.IDRule, err: errors.New("extractor broke")})
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, &Request{Text: testContract, Strategy: strategy.IDRule})
	require.NoError(t, err)
	require.NoError(t, svc.StartExtraction(ctx, sess.ID))

	failed := awaitStatus(t, svc, sess.ID, session.StatusFailed)
	assert.NotEmpty(t, failed.Error)

	_, err = svc.GetResult(ctx, sess.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction failed")
}

func TestStartExtraction_Errors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.Error(t, svc.StartExtraction(ctx, "unknown"))

	sess, err := svc.CreateSession(ctx, &Request{Text: testContract, Strategy: strategy.IDRule})
	require.NoError(t, err)
	require.NoError(t, svc.StartExtraction(ctx, sess.ID))

	// The pending request was claimed; a second start has nothing to run.
	assert.Error(t, svc.StartExtraction(ctx, sess.ID))
	awaitStatus(t, svc, sess.ID, session.StatusCompleted)
}

func TestGetResult_NotReady(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, &Request{Text: testContract})
	require.NoError(t, err)

	_, err = svc.GetResult(ctx, sess.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestGetAllProgress(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateSession(ctx, &Request{Text: testContract})
		require.NoError(t, err)
	}
	assert.Len(t, svc.GetAllProgress(ctx), 3)
}

func TestExtraction_Multi(t *testing.T) {
	svc := newTestService(t,
		&cannedStrategy{id: strategy.IDRule, out: cannedFields},
		&cannedStrategy{id: strategy.IDLLM, out: fields.Set{
			"party_a":      {Value: "ACME CORP", Confidence: 0.95},
			"total_amount": {Value: "100000", Confidence: 0.9},
		}},
	)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, &Request{Text: testContract, Strategy: StrategyMulti})
	require.NoError(t, err)
	require.NoError(t, svc.StartExtraction(ctx, sess.ID))

	done := awaitStatus(t, svc, sess.ID, session.StatusCompleted)
	assert.Equal(t, 100.0, done.Progress)

	result, err := svc.GetResult(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StrategyMulti, result.Strategy)
	require.NotNil(t, result.Multi)
	assert.Len(t, result.Multi.Results, 2)

	// Normalization makes the two spellings agree.
	assert.Empty(t, result.Multi.Conflicts)
	assert.Equal(t, "ACME CORP", result.Fields["party_a"].Value)
}

func TestResolveConflicts_EndToEnd(t *testing.T) {
	svc := newTestService(t,
		&cannedStrategy{id: strategy.IDRule, out: fields.Set{
			"party_a": {Value: "Acme Corp", Confidence: 0.8},
		}},
		&cannedStrategy{id: strategy.IDLLM, out: fields.Set{
			"party_a": {Value: "Widget LLC", Confidence: 0.8},
		}},
	)
	ctx := context.Background()

	noAuto := voting.DefaultConfig()
	noAuto.AutoResolve = false
	sess, err := svc.CreateSession(ctx, &Request{
		Text:     testContract,
		Strategy: StrategyMulti,
		Voting:   &noAuto,
	})
	require.NoError(t, err)
	require.NoError(t, svc.StartExtraction(ctx, sess.ID))
	awaitStatus(t, svc, sess.ID, session.StatusCompleted)

	result, err := svc.GetResult(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Multi)
	require.Len(t, result.Multi.Unresolved(), 1)

	mr, err := svc.ResolveConflicts(ctx, sess.ID, map[string]string{"party_a": "Acme Corp"}, "reviewer")
	require.NoError(t, err)
	assert.Empty(t, mr.Unresolved())
	assert.Equal(t, "Acme Corp", mr.Merged["party_a"].Value)

	// The stored result reflects the resolution.
	result, err = svc.GetResult(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", result.Fields["party_a"].Value)
}

func TestResolveConflicts_Errors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ResolveConflicts(ctx, "unknown", map[string]string{"x": "y"}, "me")
	assert.Error(t, err)

	// A single-strategy session has no voting state to resolve.
	sess, err := svc.CreateSession(ctx, &Request{Text: testContract, Strategy: strategy.IDRule})
	require.NoError(t, err)
	require.NoError(t, svc.StartExtraction(ctx, sess.ID))
	awaitStatus(t, svc, sess.ID, session.StatusCompleted)

	_, err = svc.ResolveConflicts(ctx, sess.ID, map[string]string{"party_a": "x"}, "me")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a multi-strategy")
}

func TestParseWithStrategies(t *testing.T) {
	svc := newTestService(t,
		&cannedStrategy{id: strategy.IDRule, out: cannedFields},
		&cannedStrategy{id: strategy.IDLLM, out: cannedFields},
	)

	mr, err := svc.ParseWithStrategies(context.Background(), &MultiRequest{Text: testContract})
	require.NoError(t, err)
	assert.Len(t, mr.Results, 2)
	assert.True(t, mr.Merged.Present("party_a"))

	_, err = svc.ParseWithStrategies(context.Background(), &MultiRequest{})
	assert.Error(t, err)
}

func TestCompareSessions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 2; i++ {
		sess, err := svc.CreateSession(ctx, &Request{Text: testContract, Strategy: strategy.IDRule})
		require.NoError(t, err)
		require.NoError(t, svc.StartExtraction(ctx, sess.ID))
		awaitStatus(t, svc, sess.ID, session.StatusCompleted)
		ids = append(ids, sess.ID)
	}

	cmp, err := svc.CompareSessions(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, 1.0, cmp.Similarity)

	_, err = svc.CompareSessions(ctx, ids[0], "unknown")
	assert.Error(t, err)
}

func TestDetectDocumentType(t *testing.T) {
	svc := newTestService(t)

	det := svc.DetectDocumentType(context.Background(),
		"NON-DISCLOSURE AGREEMENT protecting Confidential Information between the Disclosing Party and the Receiving Party", "")
	assert.Equal(t, doctype.TypeNDA, det.Type)
}

func TestScoreCompleteness(t *testing.T) {
	svc := newTestService(t)

	score, missing := svc.ScoreCompleteness(cannedFields)
	assert.Greater(t, score.Score, 0.0)
	assert.Less(t, score.Score, 100.0)
	assert.NotEmpty(t, score.Groups)
	assert.Empty(t, missing) // all required fields are in cannedFields
}

func TestStrategies(t *testing.T) {
	svc := newTestService(t)
	assert.Equal(t, []string{strategy.IDRule}, svc.Strategies())
}

func TestClose(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	_, err := svc.CreateSession(context.Background(), &Request{Text: "doc"})
	assert.ErrorIs(t, err, session.ErrClosed)
}

package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fyrsmithlabs/extractd/internal/fields"
)

// TestMain ensures the sweeper goroutine never outlives its store.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	st, err := NewStore(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestCreate(t *testing.T) {
	st := newTestStore(t, Config{})

	s, err := st.Create("contract.md")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "contract.md", s.SourceRef)
	assert.Equal(t, StatusCreated, s.Status)
	assert.Zero(t, s.Progress)

	// IDs are unique per call.
	s2, err := st.Create("contract.md")
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, s2.ID)
	assert.Equal(t, 2, st.Len())
}

func TestGet_Unknown(t *testing.T) {
	st := newTestStore(t, Config{})

	_, err := st.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.Progress("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycleTransitions(t *testing.T) {
	st := newTestStore(t, Config{})
	s, err := st.Create("doc")
	require.NoError(t, err)

	// Cannot complete or fail before running.
	assert.Error(t, st.Complete(s.ID, &Result{}))
	assert.Error(t, st.Fail(s.ID, "x"))

	require.NoError(t, st.Start(s.ID))
	got, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.False(t, got.StartedAt.IsZero())

	// Double start is rejected.
	assert.Error(t, st.Start(s.ID))

	require.NoError(t, st.Complete(s.ID, &Result{Strategy: "rule"}))
	got, err = st.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.Progress)
	require.NotNil(t, got.Result)

	// Terminal states are final.
	assert.Error(t, st.Complete(s.ID, &Result{}))
	assert.Error(t, st.Fail(s.ID, "x"))
}

func TestFail(t *testing.T) {
	st := newTestStore(t, Config{})
	s, _ := st.Create("doc")
	require.NoError(t, st.Start(s.ID))

	require.NoError(t, st.Fail(s.ID, "llm unreachable"))
	got, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "llm unreachable", got.Error)
	assert.Nil(t, got.Result)

	// A failed session does not jump to 100.
	assert.Less(t, got.Progress, 100.0)
}

func TestProgress_Blend(t *testing.T) {
	st := newTestStore(t, Config{})
	s, _ := st.Create("doc")
	require.NoError(t, st.Start(s.ID))

	require.NoError(t, st.SetChunkTotal(s.ID, 4))
	require.NoError(t, st.SetTaskTotal(s.ID, 2))

	// Half the chunks done: 0.5 * 40%.
	require.NoError(t, st.ChunkDone(s.ID, 0))
	require.NoError(t, st.ChunkDone(s.ID, 1))
	p, err := st.Progress(s.ID)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, p, 0.001)

	// One of two tasks done adds 0.5 * 60%.
	require.NoError(t, st.TaskDone(s.ID, 100))
	p, _ = st.Progress(s.ID)
	assert.InDelta(t, 50.0, p, 0.001)
}

func TestProgress_Monotonic(t *testing.T) {
	st := newTestStore(t, Config{})
	s, _ := st.Create("doc")
	require.NoError(t, st.Start(s.ID))

	require.NoError(t, st.SetChunkTotal(s.ID, 2))
	require.NoError(t, st.ChunkDone(s.ID, 0))
	require.NoError(t, st.ChunkDone(s.ID, 1))
	before, _ := st.Progress(s.ID)
	assert.InDelta(t, 40.0, before, 0.001)

	// Discovering tasks later shrinks the raw blend, but the reported
	// value must never decrease.
	require.NoError(t, st.SetTaskTotal(s.ID, 10))
	after, _ := st.Progress(s.ID)
	assert.GreaterOrEqual(t, after, before)
}

func TestTaskProgress_CounterBased(t *testing.T) {
	st := newTestStore(t, Config{})
	s, _ := st.Create("doc")
	require.NoError(t, st.Start(s.ID))
	require.NoError(t, st.SetTaskTotal(s.ID, 3))

	require.NoError(t, st.TaskStarted(s.ID, "financial"))
	require.NoError(t, st.TaskDone(s.ID, 50))
	require.NoError(t, st.TaskDone(s.ID, 70))

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Tasks.Completed)
	assert.Equal(t, "financial", got.Tasks.CurrentLabel)
	assert.Equal(t, 120, got.Tokens.TotalTokens)

	// Completions never exceed the declared total.
	require.NoError(t, st.TaskDone(s.ID, 0))
	require.NoError(t, st.TaskDone(s.ID, 0))
	got, _ = st.Get(s.ID)
	assert.Equal(t, 3, got.Tasks.Completed)
}

func TestCountEviction(t *testing.T) {
	st := newTestStore(t, Config{MaxSessions: 3})

	var ids []string
	for i := 0; i < 5; i++ {
		s, err := st.Create(fmt.Sprintf("doc-%d", i))
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	assert.Equal(t, 3, st.Len())

	// The two oldest sessions are gone; polling them reports not found,
	// same as an ID that never existed.
	_, err := st.Get(ids[0])
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(ids[1])
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(ids[4])
	assert.NoError(t, err)
}

func TestTTLEviction(t *testing.T) {
	st := newTestStore(t, Config{TTL: 10 * time.Millisecond, SweepInterval: 5 * time.Millisecond})

	s, err := st.Create("doc")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := st.Get(s.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond, "session should expire")
}

func TestClose(t *testing.T) {
	st := newTestStore(t, Config{})
	require.NoError(t, st.Close())

	// Close is idempotent; creates are rejected afterwards.
	require.NoError(t, st.Close())
	_, err := st.Create("doc")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSnapshotIsolation(t *testing.T) {
	st := newTestStore(t, Config{})
	s, _ := st.Create("doc")
	require.NoError(t, st.Start(s.ID))
	require.NoError(t, st.Complete(s.ID, &Result{
		Fields: fields.Set{"party_a": {Value: "Acme", Confidence: 0.9}},
	}))

	snap, err := st.Get(s.ID)
	require.NoError(t, err)

	// Mutating the snapshot's result pointer must not leak into the store.
	snap.Result.Strategy = "tampered"
	again, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", again.Result.Strategy)
}

func TestConcurrentAccess(t *testing.T) {
	st := newTestStore(t, Config{})
	s, _ := st.Create("doc")
	require.NoError(t, st.Start(s.ID))
	require.NoError(t, st.SetTaskTotal(s.ID, 100))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = st.TaskDone(s.ID, 1)
				_, _ = st.Progress(s.ID)
			}
		}()
	}
	wg.Wait()

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Tasks.Completed)
	assert.Equal(t, 100, got.Tokens.TotalTokens)
}

func TestSnapshotIsolation_UpdateResult(t *testing.T) {
	st := newTestStore(t, Config{})
	s, _ := st.Create("doc")
	require.NoError(t, st.Start(s.ID))
	require.NoError(t, st.Complete(s.ID, &Result{
		Fields: fields.Set{"party_a": {Value: "Acme", Confidence: 0.9}},
		Data: map[fields.InformationType]fields.Set{
			fields.TypeParties: {"party_a": {Value: "Acme", Confidence: 0.9}},
		},
	}))

	snap, err := st.Get(s.ID)
	require.NoError(t, err)

	// A resolution applied after the snapshot was taken must not appear in
	// it: pollers hold copies, never the live maps.
	require.NoError(t, st.UpdateResult(s.ID, func(r *Result) error {
		r.Fields["total_amount"] = fields.Value{Value: "100000", Confidence: 1}
		return nil
	}))
	assert.False(t, snap.Result.Fields.Present("total_amount"))

	// Writes through a snapshot never reach the store either.
	snap.Result.Fields["party_b"] = fields.Value{Value: "tampered"}
	snap.Result.Data[fields.TypeParties]["party_b"] = fields.Value{Value: "tampered"}
	again, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.False(t, again.Result.Fields.Present("party_b"))
	assert.False(t, again.Result.Data[fields.TypeParties].Present("party_b"))
}

func TestUpdateResult(t *testing.T) {
	st := newTestStore(t, Config{})
	s, _ := st.Create("doc")

	// Only completed sessions carry a result to update.
	err := st.UpdateResult(s.ID, func(r *Result) error { return nil })
	assert.Error(t, err)

	require.NoError(t, st.Start(s.ID))
	require.NoError(t, st.Complete(s.ID, &Result{Fields: fields.Set{}}))

	require.NoError(t, st.UpdateResult(s.ID, func(r *Result) error {
		r.Fields["party_a"] = fields.Value{Value: "Acme", Confidence: 1}
		return nil
	}))
	got, _ := st.Get(s.ID)
	assert.True(t, got.Result.Fields.Present("party_a"))
}

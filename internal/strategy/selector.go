package strategy

import (
	"errors"
	"fmt"
)

// ErrNoStrategy is returned when no requested strategy is available.
var ErrNoStrategy = errors.New("no available strategy")

// Selector resolves a strategy choice against the registered set.
type Selector struct {
	strategies map[string]Strategy
	priority   []string
}

// NewSelector registers strategies with a selection priority order.
// A nil priority uses DefaultPriority.
func NewSelector(strategies []Strategy, priority []string) *Selector {
	if len(priority) == 0 {
		priority = DefaultPriority()
	}
	m := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		m[s.ID()] = s
	}
	return &Selector{strategies: m, priority: priority}
}

// Get returns the registered strategy with the given ID.
func (s *Selector) Get(id string) (Strategy, error) {
	st, ok := s.strategies[id]
	if !ok {
		return nil, fmt.Errorf("unknown strategy: %s", id)
	}
	return st, nil
}

// Pick returns the forced strategy when given, otherwise the first
// available strategy in priority order.
func (s *Selector) Pick(forced string) (Strategy, error) {
	if forced != "" && forced != IDMulti {
		st, err := s.Get(forced)
		if err != nil {
			return nil, err
		}
		if !st.Available() {
			return nil, fmt.Errorf("strategy %s is not available", forced)
		}
		return st, nil
	}

	for _, id := range s.priority {
		if id == IDMulti {
			// Multi is a composition handled by the voting engine, not a
			// directly dispatchable strategy.
			continue
		}
		if st, ok := s.strategies[id]; ok && st.Available() {
			return st, nil
		}
	}
	return nil, ErrNoStrategy
}

// Available returns the IDs of currently available strategies, in
// priority order.
func (s *Selector) Available() []string {
	var out []string
	for _, id := range s.priority {
		if st, ok := s.strategies[id]; ok && st.Available() {
			out = append(out, id)
		}
	}
	return out
}

// Priority returns the configured priority order.
func (s *Selector) Priority() []string {
	out := make([]string, len(s.priority))
	copy(out, s.priority)
	return out
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: store_hypotheses.go
Description: Equivalence oracle decorator archiving every hypothesis before delegating.
*/

package learning

import (
	"context"
	"fmt"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/kleascm/akaylee-tlsfsm/pkg/logging"
	"github.com/sirupsen/logrus"
)

// Archive stores the automata produced during a learning run
type Archive interface {
	SaveHypothesis(ctx context.Context, runID string, iteration int, a *automaton.Automaton) error
	SaveFinal(ctx context.Context, runID string, a *automaton.Automaton) error
}

// StoreHypotheses converts and archives each hypothesis, then calls through
type StoreHypotheses struct {
	archive    Archive
	runID      string
	vocabulary []string
	next       EquivalenceOracle
	iteration  int
	logger     *logrus.Logger
}

// NewStoreHypotheses wraps next
func NewStoreHypotheses(archive Archive, runID string, vocabulary []string, next EquivalenceOracle, logger *logrus.Logger) *StoreHypotheses {
	return &StoreHypotheses{
		archive:    archive,
		runID:      runID,
		vocabulary: vocabulary,
		next:       next,
		logger:     logging.OrDiscard(logger),
	}
}

// Iterations returns the number of hypotheses archived so far
func (s *StoreHypotheses) Iterations() int {
	return s.iteration
}

// FindCounterexample archives the hypothesis and delegates
func (s *StoreHypotheses) FindCounterexample(ctx context.Context, hypothesis Hypothesis) (*Query, error) {
	if hypothesis == nil {
		return nil, ErrNilHypothesis
	}
	a, err := automaton.FromLearned(s.vocabulary, hypothesis)
	if err != nil {
		return nil, fmt.Errorf("failed to convert hypothesis: %w", err)
	}
	logging.LogHypothesis(s.logger, s.iteration, a.NumStates(), a.HashHex())
	if err := s.archive.SaveHypothesis(ctx, s.runID, s.iteration, a); err != nil {
		return nil, fmt.Errorf("failed to save hypothesis %d: %w", s.iteration, err)
	}
	s.iteration++
	return s.next.FindCounterexample(ctx, hypothesis)
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: session.go
Description: Learning session. Wires the equivalence oracle chain (hypothesis archive,
interesting paths first, random walk fallback) around the knowledge base, runs the
external learner and archives the final automaton.
*/

package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/kleascm/akaylee-tlsfsm/pkg/logging"
	"github.com/kleascm/akaylee-tlsfsm/pkg/oracle"
	"github.com/sirupsen/logrus"
)

// StatsResolver is a query resolver keeping query counters, such as the knowledge base
type StatsResolver interface {
	QueryResolver
	Stats() oracle.Stats
}

// SessionConfig configures a learning session
type SessionConfig struct {
	Vocabulary            []string
	InterestingPaths      [][]string
	DisableHappyPathFirst bool
	Method                EquivalenceMethod
	Seed                  uint64
}

// Result summarizes a finished learning run
type Result struct {
	RunID      string               `json:"run_id"`
	Automaton  *automaton.Automaton `json:"-"`
	Hash       string               `json:"hash"`
	States     int                  `json:"n_states"`
	Hypotheses int                  `json:"n_hypotheses"`
	Duration   time.Duration        `json:"duration"`
	Stats      oracle.Stats         `json:"stats"`
}

// Session runs one learning run
type Session struct {
	config   SessionConfig
	resolver StatsResolver
	archive  Archive
	learner  Learner
	logger   *logrus.Logger
	runID    string
}

// NewSession creates a session with a fresh run id
func NewSession(config SessionConfig, resolver StatsResolver, archive Archive, learner Learner, logger *logrus.Logger) (*Session, error) {
	if len(config.Vocabulary) == 0 {
		return nil, fmt.Errorf("input vocabulary must not be empty")
	}
	if resolver == nil || archive == nil || learner == nil {
		return nil, fmt.Errorf("resolver, archive and learner are required")
	}
	if config.Method.MaxSteps <= 0 {
		return nil, fmt.Errorf("equivalence method must have a positive step count")
	}
	return &Session{
		config:   config,
		resolver: resolver,
		archive:  archive,
		learner:  learner,
		logger:   logging.OrDiscard(logger),
		runID:    uuid.NewString(),
	}, nil
}

// RunID identifies the run in the archive
func (s *Session) RunID() string {
	return s.runID
}

// equivalenceChain builds archive -> interesting paths -> fallback
func (s *Session) equivalenceChain() *StoreHypotheses {
	var eq EquivalenceOracle = s.config.Method.Build(s.resolver, s.config.Vocabulary, s.config.Seed, s.logger)
	if !s.config.DisableHappyPathFirst && len(s.config.InterestingPaths) > 0 {
		eq = NewHappyPathFirst(s.resolver, s.config.InterestingPaths, eq, s.logger)
	}
	return NewStoreHypotheses(s.archive, s.runID, s.config.Vocabulary, eq, s.logger)
}

// Run learns the target and archives the final automaton
func (s *Session) Run(ctx context.Context) (*Result, error) {
	chain := s.equivalenceChain()
	s.logger.WithFields(logrus.Fields{
		"run_id":     s.runID,
		"vocabulary": s.config.Vocabulary,
		"eq_method":  s.config.Method.String(),
	}).Info("Learning started")

	start := time.Now()
	hypothesis, err := s.learner.Learn(ctx, s.config.Vocabulary, s.resolver, chain)
	if err != nil {
		return nil, fmt.Errorf("learning failed: %w", err)
	}
	duration := time.Since(start)

	final, err := automaton.FromLearned(s.config.Vocabulary, hypothesis)
	if err != nil {
		return nil, fmt.Errorf("failed to convert final hypothesis: %w", err)
	}
	if err := s.archive.SaveFinal(ctx, s.runID, final); err != nil {
		return nil, fmt.Errorf("failed to save final automaton: %w", err)
	}

	result := &Result{
		RunID:      s.runID,
		Automaton:  final,
		Hash:       final.HashHex(),
		States:     final.NumStates(),
		Hypotheses: chain.Iterations(),
		Duration:   duration,
		Stats:      s.resolver.Stats(),
	}
	s.logger.WithFields(logrus.Fields{
		"run_id":              result.RunID,
		"duration":            result.Duration,
		"n_states":            result.States,
		"n_queries":           result.Stats.Queries,
		"n_submitted_queries": result.Stats.SubmittedQueries,
		"n_letters":           result.Stats.Letters,
		"n_submitted_letters": result.Stats.SubmittedLetters,
	}).Info("Learning finished")
	return result, nil
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: learning_test.go
Description: Tests for the equivalence oracle chain and the learning session.
*/

package learning_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/kleascm/akaylee-tlsfsm/pkg/learning"
	"github.com/kleascm/akaylee-tlsfsm/pkg/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// model builds a single state automaton answering outputs[i] to vocabulary[i]
func model(t *testing.T, vocabulary, outputs []string) learning.AutomatonHypothesis {
	t.Helper()
	a := automaton.New(vocabulary)
	for i, sym := range vocabulary {
		require.NoError(t, a.AddTransition(0, 0, sym, []string{outputs[i]}, nil))
	}
	return learning.AutomatonHypothesis{Automaton: a}
}

// fakeResolver answers from a reference model
type fakeResolver struct {
	truth    learning.AutomatonHypothesis
	errs     map[string]error
	resolved [][]string
	stats    oracle.Stats
}

func (r *fakeResolver) Resolve(ctx context.Context, input []string) ([]string, error) {
	r.resolved = append(r.resolved, input)
	r.stats.Queries++
	r.stats.Letters += len(input)
	if err := r.errs[strings.Join(input, ",")]; err != nil {
		return nil, err
	}
	return r.truth.PlayQuery(input)
}

func (r *fakeResolver) Stats() oracle.Stats { return r.stats }

type staticOracle struct {
	query *learning.Query
	calls int
}

func (o *staticOracle) FindCounterexample(ctx context.Context, h learning.Hypothesis) (*learning.Query, error) {
	o.calls++
	return o.query, nil
}

type memoryArchive struct {
	hypotheses map[int]*automaton.Automaton
	runIDs     []string
	final      *automaton.Automaton
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{hypotheses: make(map[int]*automaton.Automaton)}
}

func (m *memoryArchive) SaveHypothesis(ctx context.Context, runID string, iteration int, a *automaton.Automaton) error {
	m.runIDs = append(m.runIDs, runID)
	m.hypotheses[iteration] = a
	return nil
}

func (m *memoryArchive) SaveFinal(ctx context.Context, runID string, a *automaton.Automaton) error {
	m.final = a
	return nil
}

// scriptedLearner proposes its hypotheses in order until one is accepted
type scriptedLearner struct {
	hypotheses      []learning.Hypothesis
	counterexamples []*learning.Query
}

func (l *scriptedLearner) Learn(ctx context.Context, vocabulary []string, resolver learning.QueryResolver, eq learning.EquivalenceOracle) (learning.Hypothesis, error) {
	for _, h := range l.hypotheses {
		query, err := eq.FindCounterexample(ctx, h)
		if err != nil {
			return nil, err
		}
		if query == nil {
			return h, nil
		}
		l.counterexamples = append(l.counterexamples, query)
	}
	return nil, errors.New("no hypothesis accepted")
}

var vocabulary = []string{"A", "B"}

// TestHappyPathFirstMostRecentFirst tests candidate order and consumption
func TestHappyPathFirstMostRecentFirst(t *testing.T) {
	resolver := &fakeResolver{truth: model(t, vocabulary, []string{"X", "Y"})}
	fallback := &staticOracle{}
	hpf := learning.NewHappyPathFirst(resolver, [][]string{{"A"}, {"B"}}, fallback, nil)

	query, err := hpf.FindCounterexample(context.Background(), model(t, vocabulary, []string{"W", "Z"}))
	require.NoError(t, err)
	require.NotNil(t, query)
	assert.Equal(t, []string{"B"}, query.Input)
	assert.Equal(t, []string{"Y"}, query.Output)
	assert.Equal(t, 1, hpf.Remaining())
	assert.Equal(t, 0, fallback.calls)

	query, err = hpf.FindCounterexample(context.Background(), model(t, vocabulary, []string{"W", "Y"}))
	require.NoError(t, err)
	require.NotNil(t, query)
	assert.Equal(t, []string{"A"}, query.Input)
	assert.Equal(t, 0, hpf.Remaining())
}

// TestHappyPathFirstSkipsErrors tests that failing candidates are skipped
func TestHappyPathFirstSkipsErrors(t *testing.T) {
	resolver := &fakeResolver{
		truth: model(t, vocabulary, []string{"X", "Y"}),
		errs:  map[string]error{"B": errors.New("target exploded")},
	}
	fallbackQuery := &learning.Query{Input: []string{"A", "A"}, Output: []string{"X", "X"}}
	fallback := &staticOracle{query: fallbackQuery}
	hpf := learning.NewHappyPathFirst(resolver, [][]string{{"A"}, {"C"}, {"B"}}, fallback, nil)

	query, err := hpf.FindCounterexample(context.Background(), model(t, vocabulary, []string{"X", "Z"}))
	require.NoError(t, err)
	assert.Same(t, fallbackQuery, query)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, [][]string{{"B"}, {"A"}}, resolver.resolved, "C cannot be played by the hypothesis")

	_, err = hpf.FindCounterexample(context.Background(), nil)
	assert.ErrorIs(t, err, learning.ErrNilHypothesis)
}

// TestHappyPathFirstCancelled tests that a cancelled context aborts the search
func TestHappyPathFirstCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resolver := &fakeResolver{
		truth: model(t, vocabulary, []string{"X", "Y"}),
		errs:  map[string]error{"A": context.Canceled},
	}
	hpf := learning.NewHappyPathFirst(resolver, [][]string{{"A"}}, &staticOracle{}, nil)
	_, err := hpf.FindCounterexample(ctx, model(t, vocabulary, []string{"X", "Y"}))
	assert.ErrorIs(t, err, context.Canceled)
}

// TestStoreHypotheses tests archival and pass-through
func TestStoreHypotheses(t *testing.T) {
	archive := newMemoryArchive()
	next := &staticOracle{}
	store := learning.NewStoreHypotheses(archive, "run-1", vocabulary, next, nil)

	for i := 0; i < 2; i++ {
		query, err := store.FindCounterexample(context.Background(), model(t, vocabulary, []string{"X", "Y"}))
		require.NoError(t, err)
		assert.Nil(t, query)
	}
	assert.Equal(t, 2, store.Iterations())
	assert.Equal(t, 2, next.calls)
	require.Contains(t, archive.hypotheses, 0)
	require.Contains(t, archive.hypotheses, 1)
	assert.Equal(t, "A B\n0, 0, A, X\n0, 0, B, Y", archive.hypotheses[1].String())
	assert.Equal(t, []string{"run-1", "run-1"}, archive.runIDs)
}

// TestRandomWalk tests that random walks find differences and accept equal models
func TestRandomWalk(t *testing.T) {
	resolver := &fakeResolver{truth: model(t, vocabulary, []string{"X", "Y"})}

	rw := learning.NewRandomWalk(resolver, vocabulary, 50, 0.2, 1, nil)
	query, err := rw.FindCounterexample(context.Background(), model(t, vocabulary, []string{"X", "Y"}))
	require.NoError(t, err)
	assert.Nil(t, query)
	assert.NotEmpty(t, resolver.resolved)

	rw = learning.NewRandomWalk(resolver, vocabulary, 50, 0.2, 1, nil)
	query, err = rw.FindCounterexample(context.Background(), model(t, vocabulary, []string{"W", "Z"}))
	require.NoError(t, err)
	require.NotNil(t, query)
	assert.Len(t, query.Output, len(query.Input))
}

// TestParseEquivalenceMethod tests option parsing
func TestParseEquivalenceMethod(t *testing.T) {
	m, err := learning.ParseEquivalenceMethod("RW:1000:0.1")
	require.NoError(t, err)
	assert.Equal(t, 1000, m.MaxSteps)
	assert.InDelta(t, 0.1, m.RestartProbability, 1e-9)
	assert.Equal(t, "RandomWalkMethod(1000, 0.1)", m.String())

	for _, bad := range []string{"WP:x", "RW:ten:0.1", "RW:10:2", "RW:0:0.5", "RW:10", "BDist:3"} {
		_, err := learning.ParseEquivalenceMethod(bad)
		assert.Error(t, err, bad)
		assert.NotErrorIs(t, err, learning.ErrExternalEquivalenceMethod, bad)
	}

	_, err = learning.ParseEquivalenceMethod("WP:5")
	assert.ErrorIs(t, err, learning.ErrExternalEquivalenceMethod)
	assert.Contains(t, err.Error(), "WPMethod(5)")
}

// TestSessionRun tests the whole chain around a scripted learner
func TestSessionRun(t *testing.T) {
	resolver := &fakeResolver{truth: model(t, vocabulary, []string{"X", "Y"})}
	archive := newMemoryArchive()
	learner := &scriptedLearner{hypotheses: []learning.Hypothesis{
		model(t, vocabulary, []string{"X", "Z"}),
		model(t, vocabulary, []string{"X", "Y"}),
	}}
	session, err := learning.NewSession(learning.SessionConfig{
		Vocabulary:       vocabulary,
		InterestingPaths: [][]string{{"A", "B"}},
		Method:           learning.EquivalenceMethod{MaxSteps: 20, RestartProbability: 0.5},
		Seed:             7,
	}, resolver, archive, learner, nil)
	require.NoError(t, err)
	_, err = uuid.Parse(session.RunID())
	require.NoError(t, err)

	result, err := session.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, learner.counterexamples, 1)
	assert.Equal(t, []string{"A", "B"}, learner.counterexamples[0].Input)
	assert.Equal(t, 2, result.Hypotheses)
	assert.Len(t, archive.hypotheses, 2)
	require.NotNil(t, archive.final)
	assert.True(t, archive.final.Equal(result.Automaton))
	assert.Equal(t, 1, result.States)
	assert.Equal(t, session.RunID(), result.RunID)
	assert.Equal(t, resolver.stats, result.Stats)
}

// TestNewSessionValidation tests required collaborators
func TestNewSessionValidation(t *testing.T) {
	method := learning.EquivalenceMethod{MaxSteps: 1}
	_, err := learning.NewSession(learning.SessionConfig{Method: method}, &fakeResolver{}, newMemoryArchive(), &scriptedLearner{}, nil)
	assert.Error(t, err)
	_, err = learning.NewSession(learning.SessionConfig{Vocabulary: vocabulary, Method: method}, &fakeResolver{}, nil, &scriptedLearner{}, nil)
	assert.Error(t, err)
	_, err = learning.NewSession(learning.SessionConfig{Vocabulary: vocabulary}, &fakeResolver{}, newMemoryArchive(), &scriptedLearner{}, nil)
	assert.Error(t, err)
}

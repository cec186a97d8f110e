/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: learning.go
Description: Contracts between the external learning algorithm, the knowledge base and the
equivalence oracles. Strategies share one contract and compose into a chain.
*/

package learning

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
)

// Query is an output query: an input word and the output word observed for it
type Query struct {
	Input  []string `json:"input"`
	Output []string `json:"output"`
}

func (q *Query) String() string {
	return "[" + strings.Join(q.Input, ", ") + "] => [" + strings.Join(q.Output, ", ") + "]"
}

// QueryResolver answers output queries. Target failures are part of the answer.
type QueryResolver interface {
	Resolve(ctx context.Context, input []string) ([]string, error)
}

// Hypothesis is a candidate model produced by the learner
type Hypothesis interface {
	automaton.LearnedMachine
	// PlayQuery returns the output the hypothesis predicts for input
	PlayQuery(input []string) ([]string, error)
}

// EquivalenceOracle looks for a query on which the hypothesis and the target disagree.
// A nil query accepts the hypothesis.
type EquivalenceOracle interface {
	FindCounterexample(ctx context.Context, hypothesis Hypothesis) (*Query, error)
}

// Learner is the external active learning algorithm
type Learner interface {
	Learn(ctx context.Context, vocabulary []string, resolver QueryResolver, oracle EquivalenceOracle) (Hypothesis, error)
}

// AutomatonHypothesis adapts an automaton to the hypothesis contract
type AutomatonHypothesis struct {
	*automaton.Automaton
}

// PlayQuery runs input from the initial state, joining the outputs of each step with "+"
func (h AutomatonHypothesis) PlayQuery(input []string) ([]string, error) {
	_, outputs, err := h.Run(input, 0)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(outputs))
	for i, o := range outputs {
		out[i] = strings.Join(o, "+")
	}
	return out, nil
}

// LearnedStates lists the automaton states in the learner representation
func (h AutomatonHypothesis) LearnedStates() []automaton.LearnedState {
	var states []automaton.LearnedState
	for _, state := range h.States() {
		ls := automaton.LearnedState{Name: strconv.Itoa(state)}
		for _, sym := range h.Symbols(state) {
			tr, _ := h.FollowTransition(state, sym)
			ls.Transitions = append(ls.Transitions, automaton.LearnedTransition{
				Label:  sym + " / " + strings.Join(tr.Outputs, "+"),
				Target: strconv.Itoa(tr.Dst),
			})
		}
		states = append(states, ls)
	}
	return states
}

// counterexample compares a prediction with an observation
func counterexample(input, predicted, observed []string) *Query {
	if slices.Equal(predicted, observed) {
		return nil
	}
	return &Query{Input: slices.Clone(input), Output: slices.Clone(observed)}
}

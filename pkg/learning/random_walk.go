/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: random_walk.go
Description: Random walk equivalence oracle and parsing of equivalence method options.
*/

package learning

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/kleascm/akaylee-tlsfsm/pkg/logging"
	"github.com/sirupsen/logrus"
)

// RandomWalk sends random words, restarting the word with a fixed probability after
// each step, and compares the target with the hypothesis at every restart
type RandomWalk struct {
	resolver           QueryResolver
	vocabulary         []string
	maxSteps           int
	restartProbability float64
	rng                *rand.Rand
	logger             *logrus.Logger
}

// NewRandomWalk creates a random walk oracle seeded with seed
func NewRandomWalk(resolver QueryResolver, vocabulary []string, maxSteps int, restartProbability float64, seed uint64, logger *logrus.Logger) *RandomWalk {
	return &RandomWalk{
		resolver:           resolver,
		vocabulary:         vocabulary,
		maxSteps:           maxSteps,
		restartProbability: restartProbability,
		rng:                rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger:             logging.OrDiscard(logger),
	}
}

// FindCounterexample walks at most maxSteps symbols in total
func (r *RandomWalk) FindCounterexample(ctx context.Context, hypothesis Hypothesis) (*Query, error) {
	if hypothesis == nil {
		return nil, ErrNilHypothesis
	}
	if len(r.vocabulary) == 0 {
		return nil, nil
	}

	var word []string
	for step := 1; step <= r.maxSteps; step++ {
		word = append(word, r.vocabulary[r.rng.IntN(len(r.vocabulary))])
		if step < r.maxSteps && r.rng.Float64() >= r.restartProbability {
			continue
		}

		predicted, err := hypothesis.PlayQuery(word)
		if err != nil {
			return nil, fmt.Errorf("hypothesis cannot play %v: %w", word, err)
		}
		observed, err := r.resolver.Resolve(ctx, word)
		if err != nil {
			return nil, err
		}
		if query := counterexample(word, predicted, observed); query != nil {
			logging.LogCounterexample(r.logger, word, predicted, observed)
			return query, nil
		}
		word = nil
	}
	return nil, nil
}

// EquivalenceMethod describes the fallback equivalence oracle chosen by the operator
type EquivalenceMethod struct {
	MaxSteps           int
	RestartProbability float64
}

func (m EquivalenceMethod) String() string {
	return fmt.Sprintf("RandomWalkMethod(%d, %g)", m.MaxSteps, m.RestartProbability)
}

// ErrExternalEquivalenceMethod is returned for methods that only the learner implements
var ErrExternalEquivalenceMethod = errors.New("equivalence method is provided by the learner")

// ParseEquivalenceMethod parses "RW:<steps>:<restart probability>". "WP:<states>" is
// recognised but rejected with ErrExternalEquivalenceMethod.
func ParseEquivalenceMethod(s string) (EquivalenceMethod, error) {
	fields := strings.Split(s, ":")
	if len(fields) == 2 && fields[0] == "WP" {
		states, err := strconv.Atoi(fields[1])
		if err != nil || states <= 0 {
			return EquivalenceMethod{}, fmt.Errorf("invalid W-method state bound %q", fields[1])
		}
		return EquivalenceMethod{}, fmt.Errorf("%w: WPMethod(%d)", ErrExternalEquivalenceMethod, states)
	}
	if len(fields) != 3 || fields[0] != "RW" {
		return EquivalenceMethod{}, fmt.Errorf("invalid equivalence method %q, expected RW:<steps>:<proba>", s)
	}
	steps, err := strconv.Atoi(fields[1])
	if err != nil || steps <= 0 {
		return EquivalenceMethod{}, fmt.Errorf("invalid random walk steps %q", fields[1])
	}
	proba, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || proba < 0 || proba > 1 {
		return EquivalenceMethod{}, fmt.Errorf("invalid restart probability %q", fields[2])
	}
	return EquivalenceMethod{MaxSteps: steps, RestartProbability: proba}, nil
}

// Build creates the oracle described by m
func (m EquivalenceMethod) Build(resolver QueryResolver, vocabulary []string, seed uint64, logger *logrus.Logger) EquivalenceOracle {
	return NewRandomWalk(resolver, vocabulary, m.MaxSteps, m.RestartProbability, seed, logger)
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: happy_path_first.go
Description: Counterexample search that first replays known interesting paths against
the target before delegating to a generic equivalence oracle.
*/

package learning

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/kleascm/akaylee-tlsfsm/pkg/logging"
	"github.com/sirupsen/logrus"
)

// ErrNilHypothesis is returned when an oracle is asked to check a nil hypothesis
var ErrNilHypothesis = errors.New("hypothesis must not be nil")

// HappyPathFirst consumes its candidate paths, most recently added first. Every
// candidate is tried once over the whole learning run.
type HappyPathFirst struct {
	resolver QueryResolver
	paths    [][]string
	next     EquivalenceOracle
	logger   *logrus.Logger
}

// NewHappyPathFirst creates the strategy over a copy of paths
func NewHappyPathFirst(resolver QueryResolver, paths [][]string, next EquivalenceOracle, logger *logrus.Logger) *HappyPathFirst {
	candidates := make([][]string, len(paths))
	for i, p := range paths {
		candidates[i] = slices.Clone(p)
	}
	return &HappyPathFirst{resolver: resolver, paths: candidates, next: next, logger: logging.OrDiscard(logger)}
}

// Remaining returns the number of candidates not tried yet
func (h *HappyPathFirst) Remaining() int {
	return len(h.paths)
}

// FindCounterexample tries the remaining candidates, then the next oracle
func (h *HappyPathFirst) FindCounterexample(ctx context.Context, hypothesis Hypothesis) (*Query, error) {
	if hypothesis == nil {
		return nil, ErrNilHypothesis
	}
	h.logger.Debug("Looking for a counterexample among interesting paths")

	for len(h.paths) > 0 {
		path := h.paths[len(h.paths)-1]
		h.paths = h.paths[:len(h.paths)-1]

		predicted, err := hypothesis.PlayQuery(path)
		if err != nil {
			h.logger.WithError(err).WithField("path", strings.Join(path, ", ")).Warn("Skipping interesting path")
			continue
		}
		observed, err := h.resolver.Resolve(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			h.logger.WithError(err).WithField("path", strings.Join(path, ", ")).Warn("Skipping interesting path")
			continue
		}
		if query := counterexample(path, predicted, observed); query != nil {
			logging.LogCounterexample(h.logger, path, predicted, observed)
			return query, nil
		}
	}

	if h.next == nil {
		return nil, nil
	}
	return h.next.FindCounterexample(ctx, hypothesis)
}

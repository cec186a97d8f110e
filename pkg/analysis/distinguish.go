/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: distinguish.go
Description: Distinguishing sequences between automata learned from different targets.
A lockstep depth-first walk collects the input sequences on which two automata answer
differently, and a greedy cover selects few sequences separating every pair of models.
*/

package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
)

var (
	// ErrDifferentInputVocabulary is returned when compared automata do not share a vocabulary
	ErrDifferentInputVocabulary = errors.New("automata have different input vocabularies")
	// ErrIndistinguishable is matched by IndistinguishableError
	ErrIndistinguishable = errors.New("automata cannot be distinguished within the depth bound")
)

// ModelPair identifies two automata by their index in the compared list
type ModelPair struct {
	First  int `json:"first" yaml:"first"`
	Second int `json:"second" yaml:"second"`
}

func (p ModelPair) String() string {
	return fmt.Sprintf("(%d, %d)", p.First, p.Second)
}

// IndistinguishableError lists the pairs left unresolved by the cover
type IndistinguishableError struct {
	Pairs []ModelPair
}

func (e *IndistinguishableError) Error() string {
	names := make([]string, len(e.Pairs))
	for i, p := range e.Pairs {
		names[i] = p.String()
	}
	return fmt.Sprintf("%v: %s", ErrIndistinguishable, strings.Join(names, ", "))
}

func (e *IndistinguishableError) Is(target error) bool {
	return target == ErrIndistinguishable
}

// ExtractDistinguishes walks a and b in lockstep from their initial states and returns
// every input sequence, no longer than max(states)-1 (at least 1), whose last symbol gets
// different outputs. A branch stops at the first difference, and is pruned when both
// automata stay in place.
func ExtractDistinguishes(ctx context.Context, a, b *automaton.Automaton) ([][]string, error) {
	vocabulary := a.Vocabulary()
	if !slices.Equal(vocabulary, b.Vocabulary()) {
		return nil, fmt.Errorf("%w: {%s} and {%s}", ErrDifferentInputVocabulary,
			strings.Join(vocabulary, ", "), strings.Join(b.Vocabulary(), ", "))
	}
	maxDepth := max(a.NumStates(), b.NumStates()) - 1
	if maxDepth < 1 {
		maxDepth = 1
	}

	var sequences [][]string
	var walk func(sequence []string, first, second int) error
	walk = func(sequence []string, first, second int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(sequence) >= maxDepth {
			return nil
		}
		// each symbol's subtree is explored before the next symbol is compared
		for _, sym := range vocabulary {
			t1, err := a.FollowTransition(first, sym)
			if err != nil {
				return err
			}
			t2, err := b.FollowTransition(second, sym)
			if err != nil {
				return err
			}
			next := append(slices.Clone(sequence), sym)
			if !slices.Equal(t1.Outputs, t2.Outputs) {
				sequences = append(sequences, next)
				continue
			}
			if t1.Dst != first || t2.Dst != second {
				if err := walk(next, t1.Dst, t2.Dst); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(nil, 0, 0); err != nil {
		return nil, err
	}
	return sequences, nil
}

// PairwiseDistinguishes holds the distinguishing sequences of one pair of automata
type PairwiseDistinguishes struct {
	Pair      ModelPair  `json:"pair" yaml:"pair"`
	Sequences [][]string `json:"sequences" yaml:"sequences"`
}

// ExtractPairwiseDistinguishes runs ExtractDistinguishes on every unordered pair and
// keeps the pairs with at least one distinguishing sequence
func ExtractPairwiseDistinguishes(ctx context.Context, automata []*automaton.Automaton) ([]PairwiseDistinguishes, error) {
	var results []PairwiseDistinguishes
	for i := range automata {
		for j := i + 1; j < len(automata); j++ {
			sequences, err := ExtractDistinguishes(ctx, automata[i], automata[j])
			if err != nil {
				return nil, fmt.Errorf("pair %s: %w", ModelPair{i, j}, err)
			}
			if len(sequences) > 0 {
				results = append(results, PairwiseDistinguishes{Pair: ModelPair{i, j}, Sequences: sequences})
			}
		}
	}
	return results, nil
}

// CoverDistinguishes greedily picks the sequence resolving the most unresolved pairs
// among count automata until every pair is resolved. Pairs that no sequence resolves
// are reported with an IndistinguishableError alongside the sequences selected so far.
func CoverDistinguishes(count int, pairwise []PairwiseDistinguishes) ([][]string, error) {
	unresolved := make(map[ModelPair]bool)
	for i := 0; i < count; i++ {
		for j := i + 1; j < count; j++ {
			unresolved[ModelPair{i, j}] = true
		}
	}

	var cover [][]string
	for len(unresolved) > 0 {
		var best []string
		bestCount := 0
		counts := make(map[string]int)
		for _, result := range pairwise {
			if !unresolved[result.Pair] {
				continue
			}
			seen := make(map[string]bool)
			for _, sequence := range result.Sequences {
				key := strings.Join(sequence, "\x1f")
				if seen[key] {
					continue
				}
				seen[key] = true
				counts[key]++
				if counts[key] > bestCount {
					best, bestCount = sequence, counts[key]
				}
			}
		}
		if best == nil {
			break
		}

		cover = append(cover, best)
		for _, result := range pairwise {
			if unresolved[result.Pair] && containsSequence(result.Sequences, best) {
				delete(unresolved, result.Pair)
			}
		}
	}

	if len(unresolved) > 0 {
		pairs := make([]ModelPair, 0, len(unresolved))
		for p := range unresolved {
			pairs = append(pairs, p)
		}
		slices.SortFunc(pairs, func(x, y ModelPair) int {
			if x.First != y.First {
				return x.First - y.First
			}
			return x.Second - y.Second
		})
		return cover, &IndistinguishableError{Pairs: pairs}
	}
	return cover, nil
}

func containsSequence(sequences [][]string, target []string) bool {
	return slices.ContainsFunc(sequences, func(s []string) bool {
		return slices.Equal(s, target)
	})
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: bdist.go
Description: Brute-force distinguishing bound. Every pair of states is probed with every
input word of increasing length until the two states answer differently.
*/

package automaton

import (
	"context"
	"fmt"
	"iter"
	"slices"
)

// StatePair is an unordered pair of states, First < Second
type StatePair struct {
	First  int `json:"first" yaml:"first"`
	Second int `json:"second" yaml:"second"`
}

func (p StatePair) String() string {
	return fmt.Sprintf("(%d, %d)", p.First, p.Second)
}

// BDistResult is the distinguishing bound and, for every pair needing exactly that
// many symbols, one witnessing input word
type BDistResult struct {
	BDist     int                    `json:"bdist" yaml:"bdist"`
	Witnesses map[StatePair][]string `json:"-" yaml:"-"`
}

// SortedPairs returns the witnessed pairs in ascending order
func (r *BDistResult) SortedPairs() []StatePair {
	pairs := make([]StatePair, 0, len(r.Witnesses))
	for p := range r.Witnesses {
		pairs = append(pairs, p)
	}
	slices.SortFunc(pairs, func(x, y StatePair) int {
		if x.First != y.First {
			return x.First - y.First
		}
		return x.Second - y.Second
	})
	return pairs
}

// cancelCheckInterval is the number of probed words between context checks
const cancelCheckInterval = 1024

// BDist computes the smallest b such that every pair of distinct states is told apart
// by some input word of length at most b. Words of length 1 to n-1 are tried in
// lexical order over the vocabulary. Pairs that no such word distinguishes do not
// contribute to the bound.
func (a *Automaton) BDist(ctx context.Context) (*BDistResult, error) {
	states := a.States()
	vocabulary := a.Vocabulary()
	result := &BDistResult{Witnesses: make(map[StatePair][]string)}
	probed := 0

	for i, first := range states {
		for _, second := range states[i+1:] {
			pair := StatePair{First: first, Second: second}
		lengths:
			for length := 1; length < len(states); length++ {
				for word := range words(vocabulary, length) {
					probed++
					if probed%cancelCheckInterval == 0 {
						if err := ctx.Err(); err != nil {
							return nil, err
						}
					}
					differ, err := a.answersDiffer(word, first, second)
					if err != nil {
						return nil, err
					}
					if !differ {
						continue
					}
					if result.BDist <= length {
						result.BDist = length
						result.Witnesses[pair] = slices.Clone(word)
					}
					break lengths
				}
			}
		}
	}

	for pair, word := range result.Witnesses {
		if len(word) != result.BDist {
			delete(result.Witnesses, pair)
		}
	}
	return result, nil
}

func (a *Automaton) answersDiffer(word []string, first, second int) (bool, error) {
	_, out1, err := a.Run(word, first)
	if err != nil {
		return false, err
	}
	_, out2, err := a.Run(word, second)
	if err != nil {
		return false, err
	}
	return !slices.EqualFunc(out1, out2, func(x, y []string) bool { return slices.Equal(x, y) }), nil
}

// words yields every word of the given length over vocabulary in lexical order.
// The yielded slice is reused between iterations.
func words(vocabulary []string, length int) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		if len(vocabulary) == 0 {
			return
		}
		indices := make([]int, length)
		word := make([]string, length)
		for {
			for i, idx := range indices {
				word[i] = vocabulary[idx]
			}
			if !yield(word) {
				return
			}
			pos := length - 1
			for pos >= 0 {
				indices[pos]++
				if indices[pos] < len(vocabulary) {
					break
				}
				indices[pos] = 0
				pos--
			}
			if pos < 0 {
				return
			}
		}
	}
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: transform.go
Description: Derived transforms over automata: vocabulary removal, input and output
renaming, and the state-merging minimization fixpoint.
*/

package automaton

import (
	"fmt"
	"strings"
)

// RemoveInputWord returns a reordered copy without symbol in its vocabulary or transitions
func (a *Automaton) RemoveInputWord(symbol string) (*Automaton, error) {
	if !a.vocabulary.Has(symbol) {
		return nil, &IncompleteInputVocabularyError{Symbol: symbol, Vocabulary: a.Vocabulary()}
	}
	vocabulary := a.vocabulary.Clone()
	delete(vocabulary, symbol)

	result := newFromSet(vocabulary)
	for state, transitions := range a.states {
		result.AddState(state)
		for sym, t := range transitions {
			if sym == symbol {
				continue
			}
			result.states[state][sym] = t.clone()
		}
	}
	return result.Reorder(), nil
}

// RenameInputVocabulary returns a copy whose input symbols are substituted per mapping.
// Two symbols renamed onto the same name collide and fail with a duplicate definition.
func (a *Automaton) RenameInputVocabulary(mapping map[string]string) (*Automaton, error) {
	rename := func(sym string) string {
		if renamed, ok := mapping[sym]; ok {
			return renamed
		}
		return sym
	}

	vocabulary := make([]string, 0, len(a.vocabulary))
	for sym := range a.vocabulary {
		vocabulary = append(vocabulary, rename(sym))
	}
	result := New(vocabulary)
	for _, state := range a.States() {
		result.AddState(state)
		for _, sym := range a.Symbols(state) {
			t := a.states[state][sym]
			if err := result.AddTransition(state, t.Dst, rename(sym), t.Outputs, t.Colors); err != nil {
				return nil, fmt.Errorf("failed to rename %q: %w", sym, err)
			}
		}
	}
	return result, nil
}

// RenameOutputVocabulary returns a copy whose output symbols are substituted per mapping
func (a *Automaton) RenameOutputVocabulary(mapping map[string]string) *Automaton {
	result := a.Clone()
	for _, transitions := range result.states {
		for sym, t := range transitions {
			for i, out := range t.Outputs {
				if renamed, ok := mapping[out]; ok {
					t.Outputs[i] = renamed
				}
			}
			transitions[sym] = t
		}
	}
	return result
}

// Minimize merges states with identical transition tables into the smallest state id
// of each group until no two states share a table. Mutates a and returns it.
func (a *Automaton) Minimize() *Automaton {
	for {
		groups := make(map[string][]int)
		var keys []string
		for _, state := range a.States() {
			key := a.tableKey(state)
			if _, seen := groups[key]; !seen {
				keys = append(keys, key)
			}
			groups[key] = append(groups[key], state)
		}

		redirect := make(map[int]int)
		for _, key := range keys {
			members := groups[key]
			for _, merged := range members[1:] {
				redirect[merged] = members[0]
			}
		}
		if len(redirect) == 0 {
			return a
		}

		for merged := range redirect {
			delete(a.states, merged)
		}
		for _, transitions := range a.states {
			for sym, t := range transitions {
				if representative, ok := redirect[t.Dst]; ok {
					t.Dst = representative
					transitions[sym] = t
				}
			}
		}
		a.hash = nil
	}
}

// tableKey serializes the transition table of a state, colors included
func (a *Automaton) tableKey(state int) string {
	var b strings.Builder
	for _, sym := range a.Symbols(state) {
		t := a.states[state][sym]
		colors := t.Colors.Sorted()
		fmt.Fprintf(&b, "%s\x00%d\x00%s\x00%s\n", sym, t.Dst, strings.Join(t.Outputs, "+"), strings.Join(colors, ","))
	}
	return b.String()
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: canonical.go
Description: Canonical numbering and textual serialization of automata. States are
renumbered by a breadth-first walk from the initial state with sink states numbered last,
which makes the serialization independent of the ids chosen by the learner.
*/

package automaton

import (
	"fmt"
	"strings"
)

// Reorder returns a copy whose states are renumbered breadth-first from state 0,
// visiting symbols in lexical order and numbering sink states last.
// States unreachable from state 0 are dropped.
func (a *Automaton) Reorder() *Automaton {
	return a.fromMapping(a.canonicalMapping())
}

// canonicalMapping maps original state ids to canonical ids
func (a *Automaton) canonicalMapping() map[int]int {
	mapping := make(map[int]int)
	if _, ok := a.states[0]; !ok {
		return mapping
	}

	toVisit := []int{0}
	var sinksToVisit []int
	processed := map[int]bool{0: true}
	next := 0

	for len(toVisit) > 0 {
		current := toVisit[0]
		toVisit = toVisit[1:]
		mapping[current] = next
		next++

		for _, sym := range a.Symbols(current) {
			dst := a.states[current][sym].Dst
			if processed[dst] {
				continue
			}
			processed[dst] = true
			if a.IsSinkState(dst) {
				sinksToVisit = append(sinksToVisit, dst)
			} else {
				toVisit = append(toVisit, dst)
			}
		}
	}

	for _, sink := range sinksToVisit {
		mapping[sink] = next
		next++
	}
	return mapping
}

func (a *Automaton) fromMapping(mapping map[int]int) *Automaton {
	result := newFromSet(a.vocabulary)
	for src, newSrc := range mapping {
		result.AddState(newSrc)
		for sym, t := range a.states[src] {
			moved := t.clone()
			moved.Dst = mapping[t.Dst]
			result.AddState(moved.Dst)
			result.states[newSrc][sym] = moved
		}
	}
	return result
}

// String renders the canonical text form: the sorted vocabulary on the first line,
// then one "src, dst, symbol, out1+out2" line per transition, states ascending and
// symbols in lexical order within a state.
func (a *Automaton) String() string {
	lines := []string{strings.Join(a.Vocabulary(), " ")}
	for _, state := range a.States() {
		for _, sym := range a.Symbols(state) {
			t := a.states[state][sym]
			lines = append(lines, fmt.Sprintf("%d, %d, %s, %s", state, t.Dst, sym, strings.Join(t.Outputs, "+")))
		}
	}
	return strings.Join(lines, "\n")
}

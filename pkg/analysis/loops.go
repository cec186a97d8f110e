/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: loops.go
Description: Detection of loops in the unencrypted part of a handshake.
*/

package analysis

import (
	"slices"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
)

type loopFrame struct {
	state   int
	path    automaton.Path
	symbols []string
	next    int
}

// FindLoops returns the simple paths from state 0 that never send a crypto message and
// whose last transition goes back to an earlier state of the path. Self-loops are not
// reported. Paths are enumerated depth first in lexical symbol order.
func FindLoops(a *automaton.Automaton, cryptoMessages []string) []automaton.Path {
	if !a.HasState(0) {
		return nil
	}
	allowed := func(state int) []string {
		return slices.DeleteFunc(a.Symbols(state), func(sym string) bool {
			return slices.Contains(cryptoMessages, sym)
		})
	}

	var loops []automaton.Path
	stack := []*loopFrame{{state: 0, symbols: allowed(0)}}
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		if frame.next >= len(frame.symbols) {
			stack = stack[:len(stack)-1]
			continue
		}
		sym := frame.symbols[frame.next]
		frame.next++

		t, err := a.FollowTransition(frame.state, sym)
		if err != nil || t.Dst == frame.state {
			continue
		}
		path := append(slices.Clip(frame.path), automaton.Step{State: frame.state, Symbol: sym})
		if path.Visits(t.Dst) {
			loops = append(loops, path)
			continue
		}
		stack = append(stack, &loopFrame{state: t.Dst, path: path, symbols: allowed(t.Dst)})
	}
	return loops
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: paths.go
Description: Path search over automata. Simple path enumeration towards a received message,
happy path extraction against an expected trace, and path coloring.
*/

package automaton

import (
	"iter"
)

// SpecStep is one step of an expected trace: the input sent and the outputs accepted.
// An empty Accept set accepts any output.
type SpecStep struct {
	Input  string `json:"input" yaml:"input"`
	Accept Set    `json:"accept" yaml:"accept"`
}

// PathSpec is an expected trace, typically a successful handshake
type PathSpec []SpecStep

// Inputs returns the input symbols of the trace
func (p PathSpec) Inputs() []string {
	out := make([]string, len(p))
	for i, step := range p {
		out[i] = step.Input
	}
	return out
}

type pathFrame struct {
	state   int
	path    Path
	symbols []string
	next    int
}

// PathsUntilOutput lazily enumerates the simple paths from state 0 whose last
// transition outputs target. A branch is never extended into a state already used
// as a source on the path, and stops at the first transition outputting target.
func (a *Automaton) PathsUntilOutput(target string) iter.Seq[Path] {
	return func(yield func(Path) bool) {
		if !a.HasState(0) {
			return
		}
		stack := []*pathFrame{{state: 0, symbols: a.Symbols(0)}}
		for len(stack) > 0 {
			frame := stack[len(stack)-1]
			if frame.next >= len(frame.symbols) {
				stack = stack[:len(stack)-1]
				continue
			}
			sym := frame.symbols[frame.next]
			frame.next++

			t := a.states[frame.state][sym]
			path := make(Path, len(frame.path), len(frame.path)+1)
			copy(path, frame.path)
			path = append(path, Step{State: frame.state, Symbol: sym})
			if path.Visits(t.Dst) {
				continue
			}
			if containsSymbol(t.Outputs, target) {
				if !yield(path) {
					return
				}
				continue
			}
			stack = append(stack, &pathFrame{state: t.Dst, path: path, symbols: a.Symbols(t.Dst)})
		}
	}
}

// ExtractHappyPath walks spec from state 0. It reports false when a step with a
// non-empty accepted set observes none of the accepted outputs.
func (a *Automaton) ExtractHappyPath(spec PathSpec) (Path, bool, error) {
	path := make(Path, 0, len(spec))
	state := 0
	for _, step := range spec {
		t, err := a.FollowTransition(state, step.Input)
		if err != nil {
			return nil, false, err
		}
		path = append(path, Step{State: state, Symbol: step.Input})
		if len(step.Accept) > 0 && !step.Accept.Intersects(t.Outputs) {
			return nil, false, nil
		}
		state = t.Dst
	}
	return path, true, nil
}

// ColorPath adds color to every transition along path, in place
func (a *Automaton) ColorPath(path Path, color string) error {
	for _, step := range path {
		if err := a.ColorTransition(step.State, step.Symbol, color); err != nil {
			return err
		}
	}
	return nil
}

// ColorTransition adds color to the transition (state, symbol). Colors do not
// contribute to the hash.
func (a *Automaton) ColorTransition(state int, symbol, color string) error {
	t, err := a.FollowTransition(state, symbol)
	if err != nil {
		return err
	}
	if t.Colors == nil {
		t.Colors = NewSet()
	}
	t.Colors.Add(color)
	a.states[state][symbol] = t
	return nil
}

func containsSymbol(symbols []string, target string) bool {
	for _, s := range symbols {
		if s == target {
			return true
		}
	}
	return false
}

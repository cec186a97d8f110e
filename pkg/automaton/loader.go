/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: loader.go
Description: Loading automata from their canonical text form and converting hypotheses
produced by an external learning algorithm into the automaton representation.
*/

package automaton

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Parse rebuilds an automaton from its canonical text form. Blank lines are ignored.
func Parse(content string) (*Automaton, error) {
	lines := strings.Split(content, "\n")
	a := New(strings.Fields(lines[0]))

	for i, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: line %d: expected 4 fields, got %d", ErrMalformedAutomaton, i+2, len(fields))
		}
		src, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: source state: %v", ErrMalformedAutomaton, i+2, err)
		}
		dst, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: destination state: %v", ErrMalformedAutomaton, i+2, err)
		}
		symbol := strings.TrimSpace(fields[2])
		if err := a.AddTransition(src, dst, symbol, SplitOutputs(fields[3]), nil); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
	}
	return a, nil
}

// Load reads and parses an automaton
func Load(r io.Reader) (*Automaton, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read automaton: %w", err)
	}
	return Parse(string(content))
}

// LoadFile reads and parses an automaton file
func LoadFile(path string) (*Automaton, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read automaton file: %w", err)
	}
	a, err := Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// SplitOutputs splits a "+"-joined output label, trimming symbols and dropping empty ones
func SplitOutputs(label string) []string {
	var outputs []string
	for _, m := range strings.Split(label, "+") {
		if m = strings.TrimSpace(m); m != "" {
			outputs = append(outputs, m)
		}
	}
	return outputs
}

// LearnedTransition is one edge of a learner hypothesis, labelled "input / out1+out2"
type LearnedTransition struct {
	Label  string
	Target string
}

// LearnedState is one state of a learner hypothesis. Names are decimal integers.
type LearnedState struct {
	Name        string
	Transitions []LearnedTransition
}

// LearnedMachine is the native hypothesis representation of a learning library
type LearnedMachine interface {
	LearnedStates() []LearnedState
}

// FromLearned converts a learner hypothesis into a reordered automaton
func FromLearned(vocabulary []string, machine LearnedMachine) (*Automaton, error) {
	a := New(vocabulary)
	for _, state := range machine.LearnedStates() {
		src, err := strconv.Atoi(strings.TrimSpace(state.Name))
		if err != nil {
			return nil, fmt.Errorf("invalid hypothesis state %q: %w", state.Name, err)
		}
		for _, t := range state.Transitions {
			dst, err := strconv.Atoi(strings.TrimSpace(t.Target))
			if err != nil {
				return nil, fmt.Errorf("invalid hypothesis state %q: %w", t.Target, err)
			}
			input, output, found := strings.Cut(t.Label, "/")
			if !found {
				return nil, fmt.Errorf("invalid hypothesis label %q", t.Label)
			}
			if err := a.AddTransition(src, dst, strings.TrimSpace(input), SplitOutputs(output), nil); err != nil {
				return nil, err
			}
		}
	}
	return a.Reorder(), nil
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: automaton.go
Description: Core Mealy machine representation for learned TLS state machines. States are
integer ids kept in an arena keyed by id, transitions are stored per (state, input symbol)
and carry the ordered output symbols plus a set of color labels used by the analysis and
rendering layers.
*/

package automaton

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
)

// Wildcard is the input symbol meaning "every vocabulary symbol not yet defined here"
const Wildcard = "*"

// Set is a set of strings, used for color labels and accepted outputs
type Set map[string]struct{}

// NewSet builds a set from the given members
func NewSet(members ...string) Set {
	s := make(Set, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Add inserts a member
func (s Set) Add(member string) {
	s[member] = struct{}{}
}

// Has reports whether member is in the set
func (s Set) Has(member string) bool {
	_, ok := s[member]
	return ok
}

// Sorted returns the members in lexical order
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy. A nil set clones to an empty one.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for m := range s {
		out[m] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold the same members
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for m := range s {
		if !other.Has(m) {
			return false
		}
	}
	return true
}

// Intersects reports whether any of the symbols is a member
func (s Set) Intersects(symbols []string) bool {
	for _, sym := range symbols {
		if s.Has(sym) {
			return true
		}
	}
	return false
}

// Transition is the outcome of sending one input symbol from a state
type Transition struct {
	Dst     int      // Destination state
	Outputs []string // Output symbols observed, in order
	Colors  Set      // Color labels attached by analysis
}

func (t Transition) clone() Transition {
	outputs := make([]string, len(t.Outputs))
	copy(outputs, t.Outputs)
	return Transition{Dst: t.Dst, Outputs: outputs, Colors: t.Colors.Clone()}
}

// Step is one (state, input symbol) pair of a walk through the automaton
type Step struct {
	State  int    `json:"state" yaml:"state"`
	Symbol string `json:"symbol" yaml:"symbol"`
}

// Path is an ordered walk through the automaton
type Path []Step

// Visits reports whether state appears as a source state on the path
func (p Path) Visits(state int) bool {
	for _, step := range p {
		if step.State == state {
			return true
		}
	}
	return false
}

// Symbols returns the input symbols sent along the path
func (p Path) Symbols() []string {
	out := make([]string, len(p))
	for i, step := range p {
		out[i] = step.Symbol
	}
	return out
}

// MessageWasNotSent reports whether msg is never sent along the path
func MessageWasNotSent(path Path, msg string) bool {
	for _, step := range path {
		if step.Symbol == msg {
			return false
		}
	}
	return true
}

// Automaton is a deterministic Mealy machine over a fixed input vocabulary.
// State 0 is the initial state. Not safe for concurrent mutation.
type Automaton struct {
	states     map[int]map[string]Transition
	vocabulary Set
	hash       *[md5.Size]byte
}

// New creates an empty automaton over the given input vocabulary
func New(vocabulary []string) *Automaton {
	return &Automaton{
		states:     make(map[int]map[string]Transition),
		vocabulary: NewSet(vocabulary...),
	}
}

func newFromSet(vocabulary Set) *Automaton {
	return &Automaton{
		states:     make(map[int]map[string]Transition),
		vocabulary: vocabulary.Clone(),
	}
}

// Vocabulary returns the sorted input vocabulary
func (a *Automaton) Vocabulary() []string {
	return a.vocabulary.Sorted()
}

// HasSymbol reports whether symbol belongs to the input vocabulary
func (a *Automaton) HasSymbol(symbol string) bool {
	return a.vocabulary.Has(symbol)
}

// States returns the state ids in ascending order
func (a *Automaton) States() []int {
	out := make([]int, 0, len(a.states))
	for s := range a.states {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

// NumStates returns the number of states
func (a *Automaton) NumStates() int {
	return len(a.states)
}

// HasState reports whether the state exists
func (a *Automaton) HasState(state int) bool {
	_, ok := a.states[state]
	return ok
}

// Symbols returns the input symbols defined at state, in lexical order
func (a *Automaton) Symbols(state int) []string {
	transitions := a.states[state]
	out := make([]string, 0, len(transitions))
	for sym := range transitions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// AddState ensures the state exists
func (a *Automaton) AddState(state int) {
	a.hash = nil
	if _, ok := a.states[state]; !ok {
		a.states[state] = make(map[string]Transition)
	}
}

// AddTransition defines the transition for (src, symbol). With the wildcard symbol
// every vocabulary symbol still undefined at src receives the same transition.
// On error the automaton is left untouched.
func (a *Automaton) AddTransition(src, dst int, symbol string, outputs []string, colors Set) error {
	if symbol != Wildcard && !a.vocabulary.Has(symbol) {
		return &IncompleteInputVocabularyError{Symbol: symbol, Vocabulary: a.Vocabulary()}
	}
	if symbol != Wildcard {
		if _, defined := a.states[src][symbol]; defined {
			return &MultipleDefinitionError{State: src, Symbol: symbol}
		}
	}

	a.AddState(src)
	a.AddState(dst)
	t := Transition{Dst: dst, Outputs: outputs, Colors: colors}
	if symbol != Wildcard {
		a.states[src][symbol] = t.clone()
		return nil
	}
	for word := range a.vocabulary {
		if _, defined := a.states[src][word]; !defined {
			a.states[src][word] = t.clone()
		}
	}
	return nil
}

// FollowTransition returns the transition taken when symbol is sent from state
func (a *Automaton) FollowTransition(state int, symbol string) (Transition, error) {
	transitions, ok := a.states[state]
	if !ok {
		return Transition{}, &UndefinedTransitionError{State: state, Symbol: symbol}
	}
	t, ok := transitions[symbol]
	if !ok {
		return Transition{}, &UndefinedTransitionError{State: state, Symbol: symbol}
	}
	return t, nil
}

// Run folds FollowTransition over symbols starting from initial, returning the
// final state and the outputs of every step
func (a *Automaton) Run(symbols []string, initial int) (int, [][]string, error) {
	current := initial
	outputs := make([][]string, 0, len(symbols))
	for _, sym := range symbols {
		t, err := a.FollowTransition(current, sym)
		if err != nil {
			return current, outputs, err
		}
		current = t.Dst
		outputs = append(outputs, t.Outputs)
	}
	return current, outputs, nil
}

// IsSinkState reports whether every transition out of state loops back to it
func (a *Automaton) IsSinkState(state int) bool {
	for _, t := range a.states[state] {
		if t.Dst != state {
			return false
		}
	}
	return true
}

// ContainsTransitionWithReceivedMsg reports whether any transition outputs msg
func (a *Automaton) ContainsTransitionWithReceivedMsg(msg string) bool {
	for _, transitions := range a.states {
		for _, t := range transitions {
			for _, out := range t.Outputs {
				if out == msg {
					return true
				}
			}
		}
	}
	return false
}

// Hash returns the MD5 digest of the canonical serialization of the reordered
// automaton. The value is cached until the next mutation.
func (a *Automaton) Hash() [md5.Size]byte {
	if a.hash == nil {
		sum := md5.Sum([]byte(a.Reorder().String()))
		a.hash = &sum
	}
	return *a.hash
}

// HashHex returns Hash as a hex string
func (a *Automaton) HashHex() string {
	sum := a.Hash()
	return hex.EncodeToString(sum[:])
}

// Equal reports whether both automata have the same canonical hash
func (a *Automaton) Equal(other *Automaton) bool {
	return a.Hash() == other.Hash()
}

// Clone returns a deep copy
func (a *Automaton) Clone() *Automaton {
	result := newFromSet(a.vocabulary)
	for state, transitions := range a.states {
		result.states[state] = make(map[string]Transition, len(transitions))
		for sym, t := range transitions {
			result.states[state][sym] = t.clone()
		}
	}
	return result
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: automaton_test.go
Description: Unit tests for automaton construction, canonical ordering, hashing,
serialization round trips and the derived transforms.
*/

package automaton_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildHandshake builds a small handshake automaton using the given state ids for
// the initial, intermediate, established and closed states
func buildHandshake(t *testing.T, initial, middle, established, closed int) *automaton.Automaton {
	t.Helper()
	a := automaton.New([]string{"A", "B", "C"})
	require.NoError(t, a.AddTransition(initial, middle, "A", []string{"X"}, nil))
	require.NoError(t, a.AddTransition(initial, closed, "*", []string{"EOF"}, nil))
	require.NoError(t, a.AddTransition(middle, established, "B", []string{"Z"}, nil))
	require.NoError(t, a.AddTransition(middle, closed, "*", []string{"EOF"}, nil))
	require.NoError(t, a.AddTransition(established, established, "*", []string{"Y"}, nil))
	require.NoError(t, a.AddTransition(closed, closed, "*", []string{"EOF"}, nil))
	return a
}

const handshakeCanonical = `A B C
0, 1, A, X
0, 2, B, EOF
0, 2, C, EOF
1, 2, A, EOF
1, 3, B, Z
1, 2, C, EOF
2, 2, A, EOF
2, 2, B, EOF
2, 2, C, EOF
3, 3, A, Y
3, 3, B, Y
3, 3, C, Y`

// TestReorderNumbersSinksLast tests the breadth-first canonical numbering
func TestReorderNumbersSinksLast(t *testing.T) {
	a := buildHandshake(t, 0, 1, 2, 3)
	assert.Equal(t, handshakeCanonical, a.Reorder().String())
}

// TestHashIgnoresStateNumbering tests that renumbered automata hash identically
func TestHashIgnoresStateNumbering(t *testing.T) {
	a := buildHandshake(t, 0, 1, 2, 3)
	b := buildHandshake(t, 0, 7, 5, 9)

	assert.Equal(t, a.Reorder().Hash(), b.Reorder().Hash())
	assert.True(t, a.Equal(b))
	assert.Len(t, a.HashHex(), 32)

	c := buildHandshake(t, 0, 1, 2, 3)
	require.NoError(t, c.AddTransition(4, 4, "*", nil, nil))
	assert.True(t, a.Equal(c), "unreachable states do not change the canonical form")
}

// TestSerializationRoundTrip tests parse(serialize(reorder(A)))
func TestSerializationRoundTrip(t *testing.T) {
	reordered := buildHandshake(t, 0, 4, 8, 2).Reorder()
	text := reordered.String()

	parsed, err := automaton.Parse(text)
	require.NoError(t, err)
	assert.Equal(t, reordered.Hash(), parsed.Hash())
	assert.Equal(t, text, parsed.String())

	withBlanks, err := automaton.Parse("\n" + strings.ReplaceAll(text, "\n", "\n\n") + "\n")
	require.Error(t, err, "the vocabulary must be on the first line")
	assert.Nil(t, withBlanks)

	withBlanks, err = automaton.Parse(strings.ReplaceAll(text, "\n", "\n\n") + "\n")
	require.NoError(t, err)
	assert.Equal(t, text, withBlanks.String())
}

// TestParseEmptyOutputs tests transitions without outputs
func TestParseEmptyOutputs(t *testing.T) {
	a, err := automaton.Parse("A\n0, 0, A, \n")
	require.NoError(t, err)

	tr, err := a.FollowTransition(0, "A")
	require.NoError(t, err)
	assert.Empty(t, tr.Outputs)
	assert.Equal(t, "A\n0, 0, A, ", a.String())
}

// TestParseErrors tests malformed automaton text
func TestParseErrors(t *testing.T) {
	_, err := automaton.Parse("A B\n0, 1, A")
	assert.ErrorIs(t, err, automaton.ErrMalformedAutomaton)

	_, err = automaton.Parse("A B\nzero, 1, A, X")
	assert.ErrorIs(t, err, automaton.ErrMalformedAutomaton)

	_, err = automaton.Parse("A B\n0, 1, C, X")
	assert.ErrorIs(t, err, automaton.ErrIncompleteInputVocabulary)

	_, err = automaton.Parse("A B\n0, 1, A, X\n0, 0, A, Y")
	assert.ErrorIs(t, err, automaton.ErrMultipleDefinition)
}

// TestLoadFile tests reading an automaton from disk
func TestLoadFile(t *testing.T) {
	_, err := automaton.LoadFile(t.TempDir() + "/missing.automaton")
	assert.Error(t, err)

	a, err := automaton.Load(strings.NewReader(handshakeCanonical))
	require.NoError(t, err)
	assert.Equal(t, 4, a.NumStates())
}

// TestAddTransitionDuplicate tests that a second definition fails without mutation
func TestAddTransitionDuplicate(t *testing.T) {
	a := automaton.New([]string{"A", "B"})
	require.NoError(t, a.AddTransition(0, 1, "A", []string{"X"}, nil))
	before := a.String()

	err := a.AddTransition(0, 2, "A", []string{"Y"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, automaton.ErrMultipleDefinition)

	var dup *automaton.MultipleDefinitionError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, 0, dup.State)
	assert.Equal(t, "A", dup.Symbol)

	assert.Equal(t, before, a.String())
	assert.False(t, a.HasState(2))
}

// TestAddTransitionOutsideVocabulary tests that unknown symbols create nothing
func TestAddTransitionOutsideVocabulary(t *testing.T) {
	a := automaton.New([]string{"A"})
	err := a.AddTransition(0, 1, "B", nil, nil)
	assert.ErrorIs(t, err, automaton.ErrIncompleteInputVocabulary)
	assert.Equal(t, 0, a.NumStates())
}

// TestWildcardKeepsExplicitTransitions tests wildcard filling
func TestWildcardKeepsExplicitTransitions(t *testing.T) {
	a := automaton.New([]string{"A", "B", "C"})
	require.NoError(t, a.AddTransition(0, 1, "A", []string{"X"}, nil))
	require.NoError(t, a.AddTransition(0, 2, "*", []string{"W"}, automaton.NewSet("grey")))
	require.NoError(t, a.AddTransition(0, 3, "*", []string{"V"}, nil), "wildcard never reports duplicates")

	tr, err := a.FollowTransition(0, "A")
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Dst)

	for _, sym := range []string{"B", "C"} {
		tr, err := a.FollowTransition(0, sym)
		require.NoError(t, err)
		assert.Equal(t, 2, tr.Dst)
		assert.Equal(t, []string{"W"}, tr.Outputs)
		assert.True(t, tr.Colors.Has("grey"))
	}

	require.NoError(t, a.ColorPath(automaton.Path{{State: 0, Symbol: "B"}}, "red"))
	tr, err = a.FollowTransition(0, "C")
	require.NoError(t, err)
	assert.False(t, tr.Colors.Has("red"), "wildcard transitions do not share colors")
}

// TestRun tests output folding and undefined transitions
func TestRun(t *testing.T) {
	a := buildHandshake(t, 0, 1, 2, 3)

	final, outputs, err := a.Run([]string{"A", "B", "C"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, final)
	assert.Equal(t, [][]string{{"X"}, {"Z"}, {"Y"}}, outputs)

	_, _, err = a.Run([]string{"A"}, 42)
	assert.ErrorIs(t, err, automaton.ErrUndefinedTransition)
}

// TestIsSinkState tests sink detection
func TestIsSinkState(t *testing.T) {
	a := buildHandshake(t, 0, 1, 2, 3)
	assert.False(t, a.IsSinkState(0))
	assert.False(t, a.IsSinkState(1))
	assert.True(t, a.IsSinkState(2))
	assert.True(t, a.IsSinkState(3))
}

// TestContainsTransitionWithReceivedMsg tests output lookup
func TestContainsTransitionWithReceivedMsg(t *testing.T) {
	a := buildHandshake(t, 0, 1, 2, 3)
	assert.True(t, a.ContainsTransitionWithReceivedMsg("Z"))
	assert.False(t, a.ContainsTransitionWithReceivedMsg("Fin"))
}

// TestMinimize tests the merging fixpoint and idempotence
func TestMinimize(t *testing.T) {
	a := automaton.New([]string{"A"})
	require.NoError(t, a.AddTransition(0, 1, "A", []string{"X"}, nil))
	require.NoError(t, a.AddTransition(1, 2, "A", []string{"Y"}, nil))
	require.NoError(t, a.AddTransition(2, 3, "A", []string{"Y"}, nil))
	require.NoError(t, a.AddTransition(3, 3, "A", []string{"Y"}, nil))
	hashBefore := a.Hash()

	assert.Same(t, a, a.Minimize())
	assert.Equal(t, 2, a.NumStates())
	assert.Equal(t, "A\n0, 1, A, X\n1, 1, A, Y", a.String())
	assert.NotEqual(t, hashBefore, a.Hash())

	minimal := a.String()
	a.Minimize()
	assert.Equal(t, minimal, a.String())
}

// TestMinimizeKeepsDistinctColors tests that colors take part in table identity
func TestMinimizeKeepsDistinctColors(t *testing.T) {
	a := automaton.New([]string{"A"})
	require.NoError(t, a.AddTransition(0, 1, "A", []string{"X"}, nil))
	require.NoError(t, a.AddTransition(1, 2, "A", []string{"Y"}, automaton.NewSet("red")))
	require.NoError(t, a.AddTransition(2, 2, "A", []string{"Y"}, nil))

	a.Minimize()
	assert.Equal(t, 3, a.NumStates())
}

// TestRemoveInputWord tests vocabulary removal
func TestRemoveInputWord(t *testing.T) {
	a := buildHandshake(t, 0, 1, 2, 3)

	removed, err := a.RemoveInputWord("C")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, removed.Vocabulary())
	assert.False(t, removed.HasSymbol("C"))
	_, err = removed.FollowTransition(0, "C")
	assert.ErrorIs(t, err, automaton.ErrUndefinedTransition)
	assert.Equal(t, []string{"A", "B", "C"}, a.Vocabulary())

	_, err = a.RemoveInputWord("D")
	assert.ErrorIs(t, err, automaton.ErrIncompleteInputVocabulary)
}

// TestRenameVocabularies tests input and output renaming
func TestRenameVocabularies(t *testing.T) {
	a := buildHandshake(t, 0, 1, 2, 3)

	renamed, err := a.RenameInputVocabulary(map[string]string{"A": "ClientHello"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "ClientHello"}, renamed.Vocabulary())
	tr, err := renamed.FollowTransition(0, "ClientHello")
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Dst)

	_, err = a.RenameInputVocabulary(map[string]string{"A": "B"})
	assert.ErrorIs(t, err, automaton.ErrMultipleDefinition)

	outputs := a.RenameOutputVocabulary(map[string]string{"X": "ServerHello"})
	tr, err = outputs.FollowTransition(0, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"ServerHello"}, tr.Outputs)

	tr, err = a.FollowTransition(0, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, tr.Outputs, "renaming returns a copy")
}

type fakeMachine []automaton.LearnedState

func (m fakeMachine) LearnedStates() []automaton.LearnedState { return m }

// TestFromLearned tests hypothesis conversion and label splitting
func TestFromLearned(t *testing.T) {
	machine := fakeMachine{
		{Name: "3", Transitions: []automaton.LearnedTransition{
			{Label: "A / X + ", Target: "3"},
			{Label: "B / ", Target: "0"},
		}},
		{Name: "0", Transitions: []automaton.LearnedTransition{
			{Label: "A / X+Y", Target: "3"},
			{Label: "B / EOF", Target: "0"},
		}},
	}

	a, err := automaton.FromLearned([]string{"A", "B"}, machine)
	require.NoError(t, err)
	assert.Equal(t, "A B\n0, 1, A, X+Y\n0, 0, B, EOF\n1, 1, A, X\n1, 0, B, ", a.String())

	_, err = automaton.FromLearned([]string{"A"}, fakeMachine{{Name: "0", Transitions: []automaton.LearnedTransition{{Label: "A X", Target: "0"}}}})
	assert.Error(t, err)
}

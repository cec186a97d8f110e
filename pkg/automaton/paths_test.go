/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: paths_test.go
Description: Tests for path enumeration, happy path extraction, coloring, dot rendering
and the distinguishing bound.
*/

package automaton_test

import (
	"context"
	"slices"
	"testing"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPathsUntilOutput tests simple path enumeration order and termination
func TestPathsUntilOutput(t *testing.T) {
	a := buildHandshake(t, 0, 1, 2, 3)

	paths := slices.Collect(a.PathsUntilOutput("Z"))
	assert.Equal(t, []automaton.Path{{{State: 0, Symbol: "A"}, {State: 1, Symbol: "B"}}}, paths)

	paths = slices.Collect(a.PathsUntilOutput("EOF"))
	assert.Equal(t, []automaton.Path{
		{{State: 0, Symbol: "A"}, {State: 1, Symbol: "A"}},
		{{State: 0, Symbol: "A"}, {State: 1, Symbol: "C"}},
		{{State: 0, Symbol: "B"}},
		{{State: 0, Symbol: "C"}},
	}, paths)

	assert.Empty(t, slices.Collect(a.PathsUntilOutput("Y")), "self loops never extend a path")
}

// TestPathsUntilOutputStopsEarly tests that the enumeration honours early exit
func TestPathsUntilOutputStopsEarly(t *testing.T) {
	a := buildHandshake(t, 0, 1, 2, 3)
	count := 0
	for range a.PathsUntilOutput("EOF") {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func twoStepAutomaton(t *testing.T) *automaton.Automaton {
	t.Helper()
	a := automaton.New([]string{"A", "B"})
	require.NoError(t, a.AddTransition(0, 1, "A", []string{"X"}, nil))
	require.NoError(t, a.AddTransition(1, 2, "B", []string{"Z"}, nil))
	return a
}

// TestExtractHappyPath tests matching against expected traces
func TestExtractHappyPath(t *testing.T) {
	a := twoStepAutomaton(t)

	_, ok, err := a.ExtractHappyPath(automaton.PathSpec{
		{Input: "A", Accept: automaton.NewSet("X")},
		{Input: "B", Accept: automaton.NewSet("Y")},
	})
	require.NoError(t, err)
	assert.False(t, ok)

	path, ok, err := a.ExtractHappyPath(automaton.PathSpec{
		{Input: "A", Accept: automaton.NewSet()},
		{Input: "B", Accept: automaton.NewSet("Z")},
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, automaton.Path{{State: 0, Symbol: "A"}, {State: 1, Symbol: "B"}}, path)

	_, _, err = a.ExtractHappyPath(automaton.PathSpec{{Input: "B"}})
	assert.ErrorIs(t, err, automaton.ErrUndefinedTransition)
}

// TestColorPath tests in-place coloring
func TestColorPath(t *testing.T) {
	a := twoStepAutomaton(t)
	hash := a.Hash()
	path := automaton.Path{{State: 0, Symbol: "A"}, {State: 1, Symbol: "B"}}

	require.NoError(t, a.ColorPath(path, "green"))
	for _, step := range path {
		tr, err := a.FollowTransition(step.State, step.Symbol)
		require.NoError(t, err)
		assert.True(t, tr.Colors.Has("green"))
	}
	assert.Equal(t, hash, a.Hash(), "colors are not part of the canonical form")

	assert.Error(t, a.ColorPath(automaton.Path{{State: 2, Symbol: "A"}}, "green"))
}

// TestDot tests state shapes, edge merging and star collapsing
func TestDot(t *testing.T) {
	a := buildHandshake(t, 0, 1, 2, 3)

	plain := a.Dot(nil)
	assert.Contains(t, plain, "digraph {\n")
	assert.Contains(t, plain, `"0" [shape=doubleoctagon label=0];`)
	assert.Contains(t, plain, `"1" [shape=ellipse label=1];`)
	assert.Contains(t, plain, `"3" [shape=rectangle label=3];`)
	assert.Contains(t, plain, `"0" -> "3" [label="B-C / EOF"];`)
	assert.Contains(t, plain, `"2" -> "2" [label="A-B-C / Y"];`)

	starred := a.Dot(automaton.UseStar)
	assert.Contains(t, starred, `"0" -> "1" [label="A / X"];`)
	assert.Contains(t, starred, `"0" -> "3" [label="* / EOF"];`)
	assert.NotContains(t, starred, "B-C")
}

// TestDotColors tests colored edges and the green preference policy
func TestDotColors(t *testing.T) {
	a := buildHandshake(t, 0, 1, 2, 3)
	require.NoError(t, a.ColorPath(automaton.Path{{State: 0, Symbol: "A"}}, "green"))
	require.NoError(t, a.ColorPath(automaton.Path{{State: 0, Symbol: "A"}}, "red"))

	out := a.Dot(automaton.UseStar)
	assert.Contains(t, out, `"0" -> "1" [label="A / X", color="green", fontcolor="green"];`)
	assert.Contains(t, out, `"0" -> "1" [label="A / X", color="red", fontcolor="red"];`)

	out = a.Dot(automaton.UseStarAndPreferGreen)
	assert.Contains(t, out, `"0" -> "1" [label="A / X", color="green", fontcolor="green"];`)
	assert.NotContains(t, out, `color="red"`)
}

// TestBDist tests the distinguishing bound on a two state automaton
func TestBDist(t *testing.T) {
	a := automaton.New([]string{"A", "B"})
	require.NoError(t, a.AddTransition(0, 0, "A", []string{"X"}, nil))
	require.NoError(t, a.AddTransition(0, 1, "B", []string{"Z"}, nil))
	require.NoError(t, a.AddTransition(1, 1, "A", []string{"Y"}, nil))
	require.NoError(t, a.AddTransition(1, 0, "B", []string{"Z"}, nil))

	result, err := a.BDist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.BDist)
	assert.Equal(t, map[automaton.StatePair][]string{{First: 0, Second: 1}: {"A"}}, result.Witnesses)
	assert.Equal(t, []automaton.StatePair{{First: 0, Second: 1}}, result.SortedPairs())
}

// TestBDistLongerWitness tests that only pairs at the bound keep their witness
func TestBDistLongerWitness(t *testing.T) {
	a := automaton.New([]string{"A"})
	require.NoError(t, a.AddTransition(0, 1, "A", []string{"O"}, nil))
	require.NoError(t, a.AddTransition(1, 2, "A", []string{"O"}, nil))
	require.NoError(t, a.AddTransition(2, 2, "A", []string{"P"}, nil))

	result, err := a.BDist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.BDist)
	assert.Equal(t, map[automaton.StatePair][]string{{First: 0, Second: 1}: {"A", "A"}}, result.Witnesses)
}

// TestBDistCancelled tests cooperative cancellation of the brute force search
func TestBDistCancelled(t *testing.T) {
	vocabulary := []string{"A", "B", "C", "D"}
	a := automaton.New(vocabulary)
	for state := 0; state < 8; state++ {
		for _, sym := range vocabulary {
			require.NoError(t, a.AddTransition(state, (state+1)%8, sym, []string{"O"}, nil))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.BDist(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: dot.go
Description: Graphviz rendering of automata. Transitions sharing destination, output
label and color are merged into one edge, and the largest starrable group of a state may
be collapsed into a single "*" edge.
*/

package automaton

import (
	"fmt"
	"strings"
)

// DotPolicy maps the colors of a transition to the colors to draw and whether the
// edge may be collapsed into the star edge
type DotPolicy func(colors Set) (Set, bool)

// UseStar makes every uncolored transition starrable
func UseStar(colors Set) (Set, bool) {
	return colors, len(colors) == 0
}

// UseStarAndPreferGreen draws green transitions in green only and never stars them
func UseStarAndPreferGreen(colors Set) (Set, bool) {
	if colors.Has("green") {
		return NewSet("green"), false
	}
	return colors, len(colors) == 0
}

// labelSlot marks where the merged input symbols go in an edge line
const labelSlot = "\x00"

// edgeGroup collects the input symbols merged into one edge line
type edgeGroup struct {
	line      string
	symbols   []string
	starrable bool
}

// Dot renders the automaton in the Graphviz dot language. A nil policy disables stars.
func (a *Automaton) Dot(policy DotPolicy) string {
	var states, edges []string
	for _, state := range a.States() {
		states = append(states, a.dotState(state))
		edges = append(edges, a.dotEdges(state, policy)...)
	}
	return "digraph {\n" + strings.Join(append(states, edges...), "\n") + "\n}\n"
}

func (a *Automaton) dotState(state int) string {
	shape := "ellipse"
	switch {
	case state == 0:
		shape = "doubleoctagon"
	case a.IsSinkState(state):
		shape = "rectangle"
	}
	return fmt.Sprintf(`"%d" [shape=%s label=%d];`, state, shape, state)
}

func (a *Automaton) dotEdges(state int, policy DotPolicy) []string {
	var groups []*edgeGroup
	byLine := make(map[string]*edgeGroup)

	for _, sym := range a.Symbols(state) {
		t := a.states[state][sym]
		colors, starrable := t.Colors, false
		if policy != nil {
			colors, starrable = policy(t.Colors)
		}

		params := fmt.Sprintf(`label="%s / %s"`, labelSlot, strings.Join(t.Outputs, "+"))
		var lines []string
		if len(colors) == 0 {
			lines = []string{fmt.Sprintf(`"%d" -> "%d" [%s];`, state, t.Dst, params)}
		}
		for _, color := range colors.Sorted() {
			lines = append(lines, fmt.Sprintf(`"%d" -> "%d" [%s, color="%s", fontcolor="%s"];`, state, t.Dst, params, color, color))
		}

		for _, line := range lines {
			group, ok := byLine[line]
			if !ok {
				group = &edgeGroup{line: line}
				byLine[line] = group
				groups = append(groups, group)
			}
			group.symbols = append(group.symbols, sym)
			group.starrable = group.starrable || starrable
		}
	}

	var star *edgeGroup
	for _, group := range groups {
		if group.starrable && (star == nil || len(group.symbols) > len(star.symbols)) {
			star = group
		}
	}
	if star != nil && len(star.symbols) <= 1 {
		star = nil
	}

	var out []string
	for _, group := range groups {
		if group == star {
			continue
		}
		out = append(out, strings.Replace(group.line, labelSlot, strings.Join(group.symbols, "-"), 1))
	}
	if star != nil {
		out = append(out, strings.Replace(star.line, labelSlot, Wildcard, 1))
	}
	return out
}

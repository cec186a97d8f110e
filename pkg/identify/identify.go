/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: identify.go
Description: Identification of a target against an identification tree. The tree is
descended by sending inputs to the target and following its answers; at each leaf the
tree is pruned to the models found there and condensed, until a single group remains.
*/

package identify

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/kleascm/akaylee-tlsfsm/pkg/store"
)

var (
	// ErrEmptyTree is returned when identifying against a tree without nodes
	ErrEmptyTree = errors.New("identification tree is empty")
	// ErrUnknownSelector is returned for an unregistered selector name
	ErrUnknownSelector = errors.New("unknown input selector")
	// ErrUnknownWeight is returned for an unregistered weight name
	ErrUnknownWeight = errors.New("unknown model weight")
)

// WeightFunc weighs a model by the implementation versions it was learned from
type WeightFunc func(versions []store.Version) float64

// EqualWeight gives every model the same weight
func EqualWeight([]store.Version) float64 { return 1 }

// CountWeight weighs a model by its number of implementation versions
func CountWeight(versions []store.Version) float64 { return float64(len(versions)) }

// Selector picks the input child of node to send next
type Selector func(t *Tree, node *Node, weight WeightFunc) *Node

// FirstSelector always picks the first input
func FirstSelector(t *Tree, node *Node, weight WeightFunc) *Node {
	return node.children[0]
}

// GiniSelector picks the input whose outputs split the weight of the models below
// node with the highest Gini impurity
func GiniSelector(t *Tree, node *Node, weight WeightFunc) *Node {
	total := t.weight(node, weight)
	if total == 0 {
		return node.children[0]
	}
	var best *Node
	bestMetric := 0.0
	for _, input := range node.children {
		metric := 1.0
		for _, output := range input.children {
			share := t.weight(output, weight) / total
			metric -= share * share
		}
		if best == nil || metric > bestMetric {
			best, bestMetric = input, metric
		}
	}
	return best
}

func (t *Tree) weight(n *Node, weight WeightFunc) float64 {
	sum := 0.0
	for m := range subtreeModels(n) {
		sum += weight(t.Versions[m])
	}
	return sum
}

var (
	selectors = map[string]Selector{"first": FirstSelector, "gini": GiniSelector}
	weights   = map[string]WeightFunc{"equal": EqualWeight, "count": CountWeight}
)

// LookupSelector returns a selector by name ("first", "gini")
func LookupSelector(name string) (Selector, error) {
	s, ok := selectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSelector, name)
	}
	return s, nil
}

// LookupWeight returns a weight function by name ("equal", "count")
func LookupWeight(name string) (WeightFunc, error) {
	w, ok := weights[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWeight, name)
	}
	return w, nil
}

// SelectorNames lists the registered selectors
func SelectorNames() []string { return slices.Sorted(maps.Keys(selectors)) }

// Connector sends inputs to the target being identified
type Connector interface {
	Send(ctx context.Context, input string) (string, error)
	Reset(ctx context.Context) error
	Close() error
}

// Descent sends inputs chosen by selector until the target's answers reach a leaf.
// It reports false when an answer matches no branch of the tree.
func Descent(ctx context.Context, t *Tree, connector Connector, selector Selector, weight WeightFunc) (*Node, bool, error) {
	if t.Empty() {
		return nil, false, ErrEmptyTree
	}
	current := t.root
	for {
		if current.IsLeaf() {
			return current, true, nil
		}
		input := selector(t, current, weight)
		response, err := connector.Send(ctx, input.Label)
		if err != nil {
			return nil, false, err
		}
		next, ok := input.Child(response)
		if !ok {
			return nil, false, nil
		}
		if next.IsLeaf() {
			return next, true, nil
		}
		current = next
	}
}

// Identify descends t, prunes it to the models of the reached leaf and condenses it,
// resetting the target between descents, until nothing is left to tell apart. It
// returns the models the target may be, or false when its behaviour matches none.
// The connector is closed on return; t is modified.
func Identify(ctx context.Context, t *Tree, connector Connector, selector Selector, weight WeightFunc) ([]string, bool, error) {
	defer func() { _ = connector.Close() }()

	for {
		leaf, found, err := Descent(ctx, t, connector, selector, weight)
		if err != nil || !found {
			return nil, false, err
		}

		candidates := leaf.models.Clone()
		others := automaton.NewSet()
		for m := range t.Models() {
			if !candidates.Has(m) {
				others.Add(m)
			}
		}
		before := t.Len()
		t.PruneModels(others)
		t.Condense()
		if t.Empty() || t.Len() == before {
			return candidates.Sorted(), true, nil
		}

		if err := connector.Reset(ctx); err != nil {
			return nil, false, err
		}
	}
}

// BenchmarkConnector answers like the target model would, by following the branches
// of the tree leading to it. Messages records every input, output and reset.
type BenchmarkConnector struct {
	target   string
	tree     *Tree
	current  *Node
	Messages []string
}

// NewBenchmarkConnector simulates target inside tree
func NewBenchmarkConnector(target string, tree *Tree) *BenchmarkConnector {
	return &BenchmarkConnector{target: target, tree: tree, current: tree.root}
}

func (b *BenchmarkConnector) Send(ctx context.Context, input string) (string, error) {
	b.Messages = append(b.Messages, input)
	if b.current == nil {
		return "", fmt.Errorf("benchmark target %s left the tree", b.target)
	}
	sent, ok := b.current.Child(input)
	if !ok {
		return "", fmt.Errorf("benchmark target %s: no input %q here", b.target, input)
	}
	for _, output := range sent.children {
		if subtreeModels(output).Has(b.target) {
			b.Messages = append(b.Messages, output.Label)
			b.current = output
			return output.Label, nil
		}
	}
	return "", fmt.Errorf("benchmark target %s: no branch for %q", b.target, input)
}

func (b *BenchmarkConnector) Reset(ctx context.Context) error {
	b.Messages = append(b.Messages, "RESET", "")
	b.current = b.tree.root
	return nil
}

func (b *BenchmarkConnector) Close() error { return nil }

// Inputs returns the number of inputs sent, resets included
func (b *BenchmarkConnector) Inputs() int { return len(b.Messages) / 2 }

// Resets returns the number of resets
func (b *BenchmarkConnector) Resets() int {
	count := 0
	for _, m := range b.Messages {
		if m == "RESET" {
			count++
		}
	}
	return count
}

// BenchmarkResult is the cost of identifying one model
type BenchmarkResult struct {
	Model      string   `json:"model" yaml:"model"`
	Weight     float64  `json:"weight" yaml:"weight"`
	Inputs     int      `json:"inputs" yaml:"inputs"`
	Resets     int      `json:"resets" yaml:"resets"`
	Identified []string `json:"identified" yaml:"identified"`
}

// Benchmark identifies every model of t against a simulation of itself
func Benchmark(ctx context.Context, t *Tree, selector Selector, weight WeightFunc) ([]BenchmarkResult, error) {
	var results []BenchmarkResult
	for _, model := range t.Models().Sorted() {
		tree := t.Clone()
		connector := NewBenchmarkConnector(model, tree)
		identified, _, err := Identify(ctx, tree, connector, selector, weight)
		if err != nil {
			return nil, fmt.Errorf("benchmark %s: %w", model, err)
		}
		results = append(results, BenchmarkResult{
			Model:      model,
			Weight:     weight(t.Versions[model]),
			Inputs:     connector.Inputs(),
			Resets:     connector.Resets(),
			Identified: identified,
		})
	}
	return results, nil
}

// Resolver answers input words with one output label per input
type Resolver interface {
	Resolve(ctx context.Context, input []string) ([]string, error)
}

// ResolverConnector drives a live target through a resolver, replaying the inputs
// sent since the last reset on every Send
type ResolverConnector struct {
	resolver Resolver
	sent     []string
}

// NewResolverConnector wraps a resolver, typically the knowledge base of a target
func NewResolverConnector(resolver Resolver) *ResolverConnector {
	return &ResolverConnector{resolver: resolver}
}

func (r *ResolverConnector) Send(ctx context.Context, input string) (string, error) {
	r.sent = append(r.sent, input)
	outputs, err := r.resolver.Resolve(ctx, r.sent)
	if err != nil {
		return "", err
	}
	if len(outputs) != len(r.sent) {
		return "", fmt.Errorf("resolver answered %d outputs to %d inputs", len(outputs), len(r.sent))
	}
	return outputs[len(outputs)-1], nil
}

func (r *ResolverConnector) Reset(ctx context.Context) error {
	r.sent = nil
	return nil
}

func (r *ResolverConnector) Close() error { return nil }

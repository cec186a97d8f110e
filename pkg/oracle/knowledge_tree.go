/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: knowledge_tree.go
Description: Prefix tree caching every observed (input word, output word) pair. Each node
holds the output observed for the last input symbol of its prefix, so any prefix of a
known word is known as well.
*/

package oracle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLengthMismatch is returned when input and output words differ in length
	ErrLengthMismatch = errors.New("input and output words differ in length")
	// ErrInconsistentObservation is matched by ConflictError
	ErrInconsistentObservation = errors.New("inconsistent observation")
)

// ConflictError reports a cached output contradicting a new observation
type ConflictError struct {
	Input    []string
	Position int
	Cached   string
	Observed string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: input [%s] position %d: cached %q, observed %q",
		ErrInconsistentObservation, strings.Join(e.Input, ", "), e.Position, e.Cached, e.Observed)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrInconsistentObservation
}

type treeNode struct {
	output   string
	children map[string]*treeNode
}

func newTreeNode(output string) *treeNode {
	return &treeNode{output: output, children: make(map[string]*treeNode)}
}

// KnowledgeTree is the cache of observations of one learning run. Not safe for
// concurrent use.
type KnowledgeTree struct {
	root  *treeNode
	nodes int
}

// NewKnowledgeTree creates an empty tree
func NewKnowledgeTree() *KnowledgeTree {
	return &KnowledgeTree{root: newTreeNode("")}
}

// Add records an observation. A conflict with a cached output leaves the tree unchanged.
func (k *KnowledgeTree) Add(input, output []string) error {
	if len(input) != len(output) {
		return fmt.Errorf("%w: %d inputs, %d outputs", ErrLengthMismatch, len(input), len(output))
	}

	current := k.root
	for i, sym := range input {
		child, ok := current.children[sym]
		if !ok {
			break
		}
		if child.output != output[i] {
			return &ConflictError{Input: input, Position: i, Cached: child.output, Observed: output[i]}
		}
		current = child
	}

	current = k.root
	for i, sym := range input {
		child, ok := current.children[sym]
		if !ok {
			child = newTreeNode(output[i])
			current.children[sym] = child
			k.nodes++
		}
		current = child
	}
	return nil
}

// Lookup returns the cached output of the whole input word
func (k *KnowledgeTree) Lookup(input []string) ([]string, bool) {
	output := make([]string, 0, len(input))
	current := k.root
	for _, sym := range input {
		child, ok := current.children[sym]
		if !ok {
			return nil, false
		}
		output = append(output, child.output)
		current = child
	}
	return output, true
}

// Len returns the number of cached (prefix, output) nodes
func (k *KnowledgeTree) Len() int {
	return k.nodes
}

// ExpectedOutput derives output hints for input from the longest cached strict prefix.
// A cached prefix ending in EOF is padded with EOF up to the length of input, since a
// closed connection stays closed.
func (k *KnowledgeTree) ExpectedOutput(input []string) []string {
	for n := len(input) - 1; n > 0; n-- {
		output, ok := k.Lookup(input[:n])
		if !ok {
			continue
		}
		if output[len(output)-1] == EOF {
			return fill(output, EOF, len(input))
		}
		return output
	}
	return nil
}

// fill pads prefix with symbol up to length
func fill(prefix []string, symbol string, length int) []string {
	out := make([]string, len(prefix), max(length, len(prefix)))
	copy(out, prefix)
	for len(out) < length {
		out = append(out, symbol)
	}
	return out
}

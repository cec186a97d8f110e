/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: errors.go
Description: Structural errors raised by automaton construction and traversal. Each error
type matches a sentinel through errors.Is so callers can branch on the failure class
without inspecting the details.
*/

package automaton

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncompleteInputVocabulary is matched by IncompleteInputVocabularyError
	ErrIncompleteInputVocabulary = errors.New("symbol not in input vocabulary")
	// ErrMultipleDefinition is matched by MultipleDefinitionError
	ErrMultipleDefinition = errors.New("multiple definition for a transition")
	// ErrUndefinedTransition is matched by UndefinedTransitionError
	ErrUndefinedTransition = errors.New("undefined transition")
	// ErrMalformedAutomaton is returned when the textual form cannot be parsed
	ErrMalformedAutomaton = errors.New("malformed automaton")
)

// IncompleteInputVocabularyError reports a transition on a symbol outside the vocabulary
type IncompleteInputVocabularyError struct {
	Symbol     string
	Vocabulary []string
}

func (e *IncompleteInputVocabularyError) Error() string {
	return fmt.Sprintf("%v: %q not in {%s}", ErrIncompleteInputVocabulary, e.Symbol, strings.Join(e.Vocabulary, ", "))
}

func (e *IncompleteInputVocabularyError) Is(target error) bool {
	return target == ErrIncompleteInputVocabulary
}

// MultipleDefinitionError reports a second definition for (State, Symbol)
type MultipleDefinitionError struct {
	State  int
	Symbol string
}

func (e *MultipleDefinitionError) Error() string {
	return fmt.Sprintf("%v: state %d, symbol %q", ErrMultipleDefinition, e.State, e.Symbol)
}

func (e *MultipleDefinitionError) Is(target error) bool {
	return target == ErrMultipleDefinition
}

// UndefinedTransitionError reports a lookup of a missing state or symbol
type UndefinedTransitionError struct {
	State  int
	Symbol string
}

func (e *UndefinedTransitionError) Error() string {
	return fmt.Sprintf("%v: state %d, symbol %q", ErrUndefinedTransition, e.State, e.Symbol)
}

func (e *UndefinedTransitionError) Is(target error) bool {
	return target == ErrUndefinedTransition
}

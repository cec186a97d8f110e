/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: knowledge_base.go
Description: Active knowledge base answering output queries against a live target. Every
query restarts the target, replays the input word through the concretizer and classifies
transport failures into sentinel output symbols. Observations are cached in a knowledge
tree for the lifetime of the learning run.
*/

package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kleascm/akaylee-tlsfsm/pkg/logging"
	"github.com/sirupsen/logrus"
)

// ErrNotStarted is returned when querying a knowledge base that is not started
var ErrNotStarted = errors.New("knowledge base not started")

// Stats counts queries answered by a knowledge base
type Stats struct {
	Queries          int `json:"n_queries" yaml:"n_queries"`
	SubmittedQueries int `json:"n_submitted_queries" yaml:"n_submitted_queries"`
	Letters          int `json:"n_letters" yaml:"n_letters"`
	SubmittedLetters int `json:"n_submitted_letters" yaml:"n_submitted_letters"`
}

// KnowledgeBase answers queries for one learning run. Queries are strictly
// sequential; it is not safe for concurrent use.
type KnowledgeBase struct {
	opts        Options
	concretizer Concretizer
	trigger     Trigger
	logger      *logrus.Logger

	tree    *KnowledgeTree
	broken  bool
	started bool
	stats   Stats
}

// NewKnowledgeBase creates a knowledge base. trigger may be nil when the target
// connects on its own.
func NewKnowledgeBase(opts Options, concretizer Concretizer, trigger Trigger, logger *logrus.Logger) (*KnowledgeBase, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid oracle options: %w", err)
	}
	if concretizer == nil {
		return nil, fmt.Errorf("concretizer must not be nil")
	}
	return &KnowledgeBase{
		opts:        opts,
		concretizer: concretizer,
		trigger:     trigger,
		logger:      logging.OrDiscard(logger),
		tree:        NewKnowledgeTree(),
	}, nil
}

// Start opens the trigger channel and the local side of the target connection
func (kb *KnowledgeBase) Start(ctx context.Context) error {
	if kb.trigger != nil {
		if err := kb.trigger.Open(ctx); err != nil {
			return fmt.Errorf("failed to open trigger: %w", err)
		}
	}
	if err := kb.concretizer.Open(ctx); err != nil {
		if kb.trigger != nil {
			kb.trigger.Close()
		}
		return fmt.Errorf("failed to open concretizer: %w", err)
	}
	kb.started = true
	kb.logger.WithField("local", kb.opts.LocalEndpoint.String()).Info("Knowledge base started")
	return nil
}

// Stop releases the trigger channel and the local side
func (kb *KnowledgeBase) Stop() error {
	if !kb.started {
		return nil
	}
	kb.started = false
	var errs []error
	errs = append(errs, kb.concretizer.Close())
	if kb.trigger != nil {
		errs = append(errs, kb.trigger.Close())
	}
	return errors.Join(errs...)
}

// Broken reports whether the target failed to connect once
func (kb *KnowledgeBase) Broken() bool {
	return kb.broken
}

// Stats returns the query counters
func (kb *KnowledgeBase) Stats() Stats {
	return kb.stats
}

// Tree returns the observation cache
func (kb *KnowledgeBase) Tree() *KnowledgeTree {
	return kb.tree
}

// Resolve answers a query from the cache, or from the target when the whole word is
// unknown. Target failures are part of the answer; errors only report a cancelled
// context or a knowledge base that is not started.
func (kb *KnowledgeBase) Resolve(ctx context.Context, input []string) ([]string, error) {
	kb.stats.Queries++
	kb.stats.Letters += len(input)

	if output, ok := kb.tree.Lookup(input); ok {
		logging.LogQuery(kb.logger, input, output, true)
		return output, nil
	}

	output, err := kb.Execute(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := kb.tree.Add(input, output); err != nil {
		kb.logger.WithError(err).Warn("Target answered inconsistently, keeping the first observation")
	}
	logging.LogQuery(kb.logger, input, output, false)
	return output, nil
}

// Execute submits the word to the target without consulting the full-word cache
func (kb *KnowledgeBase) Execute(ctx context.Context, input []string) ([]string, error) {
	if !kb.started {
		return nil, ErrNotStarted
	}
	kb.stats.SubmittedQueries++
	kb.stats.SubmittedLetters += len(input)

	output := kb.SubmitWord(ctx, input)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return output, nil
}

// SubmitWord restarts the target and exchanges the whole word with it. The answer
// always has the length of input, and the target connection is dropped on return.
func (kb *KnowledgeBase) SubmitWord(ctx context.Context, input []string) []string {
	n := len(input)
	if kb.broken {
		return fill(nil, NoConnection, n)
	}

	expected := kb.tree.ExpectedOutput(input)
	if len(expected) == n {
		return expected
	}

	if kb.trigger != nil {
		if err := kb.trigger.Fire(ctx, kb.opts.LocalEndpoint); err != nil {
			kb.logger.WithError(err).Warn("Failed to trigger target")
		}
	}
	if err := kb.concretizer.Accept(ctx, kb.opts.AcceptTimeout()); err != nil {
		if ctx.Err() == nil {
			kb.broken = true
			kb.logger.WithError(err).Error("Target did not connect, marking the session as broken")
		}
		return fill(nil, NoConnection, n)
	}
	defer kb.disconnect()

	output := make([]string, 0, n)
	for i, symbol := range input {
		hint, hasHint := "", i < len(expected)
		if hasHint {
			hint = expected[i]
		}
		out := kb.sendAndReceive(ctx, symbol, hint, hasHint)
		if kb.opts.Verbose {
			kb.logger.WithFields(logrus.Fields{"sent": symbol, "received": out}).Debug("Exchange")
		}
		output = append(output, out)
		if out == EOF {
			return fill(output, EOF, n)
		}
	}
	return output
}

func (kb *KnowledgeBase) disconnect() {
	if err := kb.concretizer.Disconnect(); err != nil {
		kb.logger.WithError(err).Debug("Failed to drop target connection")
	}
}

func (kb *KnowledgeBase) sendAndReceive(ctx context.Context, symbol, hint string, hasHint bool) string {
	if err := kb.concretizer.Send(ctx, symbol); err != nil {
		if IsConnectionLost(err) {
			return EOF
		}
		return EmissionError
	}

	timeout := kb.opts.Timeout
	if hasHint && hint == NoResponse {
		if kb.opts.ExpectedMinimalTimeout <= 0 {
			return NoResponse
		}
		timeout = kb.opts.ExpectedMinimalTimeout
	}

	response, err := kb.concretizer.ReadNext(ctx, timeout)
	if err != nil {
		if IsConnectionLost(err) {
			return EOF
		}
		return ReceptionError
	}
	if len(response) == 0 {
		return NoResponse
	}

	for !hasHint || hint != strings.Join(response, "+") {
		next, err := kb.concretizer.ReadNext(ctx, kb.opts.Timeout)
		if err != nil && !IsConnectionLost(err) {
			return ReceptionError
		}
		if len(next) == 0 {
			break
		}
		response = append(response, next...)
	}
	return strings.Join(response, "+")
}

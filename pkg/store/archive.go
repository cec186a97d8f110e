/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: archive.go
Description: Hypothesis archives. FileArchive writes each hypothesis of a run next to its
dot rendering; Multi fans saves out to several archives.
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/kleascm/akaylee-tlsfsm/pkg/logging"
	"github.com/sirupsen/logrus"
)

// Archive receives the hypotheses and the final automaton of learning runs
type Archive interface {
	SaveHypothesis(ctx context.Context, runID string, iteration int, a *automaton.Automaton) error
	SaveFinal(ctx context.Context, runID string, a *automaton.Automaton) error
}

// FileArchive writes hypothesis-<n>.automaton, hypothesis-<n>.dot, final.automaton
// and final.dot into a directory
type FileArchive struct {
	dir    string
	logger *logrus.Logger
}

// NewFileArchive creates the output directory if needed
func NewFileArchive(dir string, logger *logrus.Logger) (*FileArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileArchive{dir: dir, logger: logging.OrDiscard(logger)}, nil
}

// Dir returns the output directory
func (f *FileArchive) Dir() string { return f.dir }

func (f *FileArchive) SaveHypothesis(ctx context.Context, runID string, iteration int, a *automaton.Automaton) error {
	return f.write(fmt.Sprintf("hypothesis-%d", iteration), runID, a)
}

func (f *FileArchive) SaveFinal(ctx context.Context, runID string, a *automaton.Automaton) error {
	return f.write("final", runID, a)
}

func (f *FileArchive) write(base, runID string, a *automaton.Automaton) error {
	reordered := a.Reorder()
	path := filepath.Join(f.dir, base+".automaton")
	if err := os.WriteFile(path, []byte(reordered.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	dotPath := filepath.Join(f.dir, base+".dot")
	if err := os.WriteFile(dotPath, []byte(reordered.Dot(automaton.UseStar)), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dotPath, err)
	}
	f.logger.WithFields(logrus.Fields{"run_id": runID, "file": path}).Debug("Automaton written")
	return nil
}

// Multi saves to every archive, in order, and joins their errors
type Multi []Archive

func (m Multi) SaveHypothesis(ctx context.Context, runID string, iteration int, a *automaton.Automaton) error {
	var errs []error
	for _, archive := range m {
		errs = append(errs, archive.SaveHypothesis(ctx, runID, iteration, a))
	}
	return errors.Join(errs...)
}

func (m Multi) SaveFinal(ctx context.Context, runID string, a *automaton.Automaton) error {
	var errs []error
	for _, archive := range m {
		errs = append(errs, archive.SaveFinal(ctx, runID, a))
	}
	return errors.Join(errs...)
}

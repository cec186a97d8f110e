/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report.go
Description: Security analysis of a learned automaton against a profile: renaming to
short message names, happy path and security coloring, cleanup of closing transitions,
dot rendering and summary metrics.
*/

package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"gopkg.in/yaml.v3"
)

// Witness is a word telling two states apart
type Witness struct {
	Pair     automaton.StatePair `json:"pair" yaml:"pair"`
	Sequence []string            `json:"sequence" yaml:"sequence"`
}

// Report summarizes the analysis of one automaton
type Report struct {
	Profile         string    `json:"profile" yaml:"profile"`
	OriginalHash    string    `json:"original_hash" yaml:"original_hash"`
	ProcessedHash   string    `json:"processed_hash" yaml:"processed_hash"`
	Working         bool      `json:"working" yaml:"working"`
	States          int       `json:"n_states" yaml:"n_states"`
	HappyPaths      int       `json:"n_happy_paths" yaml:"n_happy_paths"`
	BDist           int       `json:"bdist" yaml:"bdist"`
	BDistWitnesses  []Witness `json:"bdist_witnesses" yaml:"bdist_witnesses"`
	SecurityResults []string  `json:"security_results" yaml:"security_results"`

	Automaton *automaton.Automaton `json:"-" yaml:"-"`
	Dot       string               `json:"-" yaml:"-"`
}

// Analyze runs the profile on a copy of a. The processed automaton, with short names
// and colors, is returned in the report.
func Analyze(ctx context.Context, a *automaton.Automaton, profile *Profile) (*Report, error) {
	report := &Report{Profile: profile.Name, OriginalHash: a.HashHex()}

	processed, err := a.RenameInputVocabulary(profile.InputMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to rename input vocabulary: %w", err)
	}
	processed = processed.RenameOutputVocabulary(profile.OutputMapping)

	for _, spec := range profile.HappyPaths {
		if !hasInputs(processed, spec) {
			continue
		}
		path, found, err := processed.ExtractHappyPath(spec)
		if err != nil {
			return nil, fmt.Errorf("happy path %s: %w", strings.Join(spec.Inputs(), ","), err)
		}
		if !found {
			continue
		}
		if err := processed.ColorPath(path, ColorGreen); err != nil {
			return nil, err
		}
		report.HappyPaths++
	}

	for _, test := range profile.SecurityTests {
		finding, found, err := test(processed)
		if err != nil {
			return nil, fmt.Errorf("security test failed: %w", err)
		}
		if found {
			report.SecurityResults = append(report.SecurityResults, finding)
		}
	}

	if err := CleanupUninterestingTransitions(processed); err != nil {
		return nil, err
	}
	report.Dot = processed.Dot(profile.ColorPolicy)

	if profile.Working != nil {
		report.Working = profile.Working(processed)
	}
	report.ProcessedHash = processed.HashHex()
	report.States = processed.NumStates()

	bdist, err := processed.BDist(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute bdist: %w", err)
	}
	report.BDist = bdist.BDist
	for _, pair := range bdist.SortedPairs() {
		report.BDistWitnesses = append(report.BDistWitnesses, Witness{Pair: pair, Sequence: bdist.Witnesses[pair]})
	}
	report.Automaton = processed
	return report, nil
}

func hasInputs(a *automaton.Automaton, spec automaton.PathSpec) bool {
	for _, input := range spec.Inputs() {
		if !a.HasSymbol(input) {
			return false
		}
	}
	return true
}

// Write renders the report as text, json or yaml
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(r)
	case "", "text":
		_, err := fmt.Fprintf(w,
			"Original automaton hash = %s\nProcessed automaton hash = %s\nThe implementation seems to be working? %t\nNb States = %d\nBDist for this state machine = %d\nSecurity results = %s\n",
			r.OriginalHash, r.ProcessedHash, r.Working, r.States, r.BDist, strings.Join(r.SecurityResults, "\n   "))
		return err
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

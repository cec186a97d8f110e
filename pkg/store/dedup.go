/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: dedup.go
Description: Deduplication of a directory of learned automata laid out as
<implementation>/<version>/<protocol>/final.automaton.
*/

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/kleascm/akaylee-tlsfsm/pkg/logging"
	"github.com/sirupsen/logrus"
)

// FinalAutomatonFile is the name of the automaton file of a learning result
const FinalAutomatonFile = "final.automaton"

// Group is a set of implementation versions sharing one automaton
type Group struct {
	Hash      string               `json:"hash" yaml:"hash"`
	Versions  []Version            `json:"versions" yaml:"versions"`
	Automaton *automaton.Automaton `json:"-" yaml:"-"`
}

// Dedup maps each protocol to its groups of identical automata, in discovery order
type Dedup map[string][]*Group

// Protocols returns the protocols in lexical order
func (d Dedup) Protocols() []string {
	out := make([]string, 0, len(d))
	for p := range d {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// DedupDirectory walks root and groups identical automata by protocol. Implementation
// directories not matching include are skipped; an empty include matches everything.
// Version directories without a readable automaton are skipped.
func DedupDirectory(root, include string, logger *logrus.Logger) (Dedup, error) {
	var filter glob.Glob
	if include != "" {
		g, err := glob.Compile(include)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", include, err)
		}
		filter = g
	}

	log := logging.OrDiscard(logger)
	implementations, err := subdirectories(root)
	if err != nil {
		return nil, err
	}

	result := make(Dedup)
	byHash := make(map[string]*Group)
	for _, implementation := range implementations {
		if filter != nil && !filter.Match(implementation) {
			continue
		}
		versions, err := subdirectories(filepath.Join(root, implementation))
		if err != nil {
			return nil, err
		}
		for _, version := range versions {
			protocols, err := subdirectories(filepath.Join(root, implementation, version))
			if err != nil {
				return nil, err
			}
			for _, protocol := range protocols {
				path := filepath.Join(root, implementation, version, protocol, FinalAutomatonFile)
				a, err := automaton.LoadFile(path)
				if err != nil {
					log.WithError(err).WithField("file", path).Debug("Skipping learning result")
					continue
				}
				key := protocol + "/" + a.HashHex()
				group, ok := byHash[key]
				if !ok {
					group = &Group{Hash: a.HashHex(), Automaton: a}
					byHash[key] = group
					result[protocol] = append(result[protocol], group)
				}
				group.Versions = append(group.Versions, Version{Implementation: implementation, Version: version})
			}
		}
	}
	return result, nil
}

// Import registers every group of d into the model catalogue
func Import(ctx context.Context, s *SQLiteStore, d Dedup) error {
	for _, protocol := range d.Protocols() {
		for _, group := range d[protocol] {
			for _, v := range group.Versions {
				if _, err := s.PutModel(ctx, protocol, group.Automaton, v.Implementation, v.Version); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func subdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

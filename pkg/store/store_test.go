/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: store_test.go
Description: Tests for the SQLite store, the file archive and directory deduplication.
*/

package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/kleascm/akaylee-tlsfsm/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// machine builds a two state automaton whose second answer to A is last
func machine(t *testing.T, last string) *automaton.Automaton {
	t.Helper()
	a := automaton.New([]string{"A", "B"})
	require.NoError(t, a.AddTransition(0, 1, "A", []string{"X"}, nil))
	require.NoError(t, a.AddTransition(0, 0, "B", []string{"Y"}, nil))
	require.NoError(t, a.AddTransition(1, 1, "*", []string{last}, nil))
	return a
}

func openStore(t *testing.T, path string) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLite(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestSQLiteHypotheses tests hypothesis and final automaton storage
func TestSQLiteHypotheses(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "db", "tlsfsm.db"))

	first, second := machine(t, "EOF"), machine(t, "Z")
	require.NoError(t, s.SaveHypothesis(ctx, "run", 1, second))
	require.NoError(t, s.SaveHypothesis(ctx, "run", 0, second))
	require.NoError(t, s.SaveHypothesis(ctx, "run", 0, first))
	require.NoError(t, s.SaveHypothesis(ctx, "other", 0, second))

	hypotheses, err := s.Hypotheses(ctx, "run")
	require.NoError(t, err)
	require.Len(t, hypotheses, 2)
	assert.True(t, hypotheses[0].Equal(first))
	assert.True(t, hypotheses[1].Equal(second))

	_, found, err := s.Final(ctx, "run")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveFinal(ctx, "run", second))
	final, found, err := s.Final(ctx, "run")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, second.HashHex(), final.HashHex())
}

// TestSQLiteModels tests deduplicated model registration
func TestSQLiteModels(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tlsfsm.db")
	s := openStore(t, path)

	a, b := machine(t, "EOF"), machine(t, "Z")
	name, err := s.PutModel(ctx, "tls12", a, "openssl", "1.1.1")
	require.NoError(t, err)
	assert.Equal(t, "model-1", name)
	name, err = s.PutModel(ctx, "tls12", a.Reorder(), "openssl", "3.0.0")
	require.NoError(t, err)
	assert.Equal(t, "model-1", name)
	name, err = s.PutModel(ctx, "tls12", b, "mbedtls", "2.7.0")
	require.NoError(t, err)
	assert.Equal(t, "model-2", name)
	_, err = s.PutModel(ctx, "tls12", a, "openssl", "1.1.1")
	require.NoError(t, err)
	name, err = s.PutModel(ctx, "tls13", b, "mbedtls", "3.0.0")
	require.NoError(t, err)
	assert.Equal(t, "model-1", name)

	require.NoError(t, s.Close())
	s = openStore(t, path)

	models, err := s.Models(ctx, "tls12")
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "model-1", models[0].Name)
	assert.Equal(t, a.HashHex(), models[0].Hash)
	assert.True(t, models[0].Automaton.Equal(a))
	assert.Equal(t, []store.Version{{Implementation: "openssl", Version: "1.1.1"}, {Implementation: "openssl", Version: "3.0.0"}}, models[0].Versions)
	assert.Equal(t, []store.Version{{Implementation: "mbedtls", Version: "2.7.0"}}, models[1].Versions)

	protocols, err := s.Protocols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tls12", "tls13"}, protocols)

	models, err = s.Models(ctx, "dtls")
	require.NoError(t, err)
	assert.Empty(t, models)
}

// TestFileArchive tests the files written for a run
func TestFileArchive(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "out")
	archive, err := store.NewFileArchive(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, archive.Dir())

	a := machine(t, "EOF")
	require.NoError(t, archive.SaveHypothesis(ctx, "run", 3, a))
	require.NoError(t, archive.SaveFinal(ctx, "run", a))

	for _, name := range []string{"hypothesis-3.automaton", "hypothesis-3.dot", "final.automaton", "final.dot"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	loaded, err := automaton.LoadFile(filepath.Join(dir, "final.automaton"))
	require.NoError(t, err)
	assert.True(t, loaded.Equal(a))
	dot, err := os.ReadFile(filepath.Join(dir, "hypothesis-3.dot"))
	require.NoError(t, err)
	assert.Contains(t, string(dot), "digraph")
}

type failingArchive struct{}

func (failingArchive) SaveHypothesis(context.Context, string, int, *automaton.Automaton) error {
	return errors.New("disk full")
}

func (failingArchive) SaveFinal(context.Context, string, *automaton.Automaton) error {
	return errors.New("disk full")
}

// TestMultiArchive tests that every archive is attempted
func TestMultiArchive(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "tlsfsm.db"))
	multi := store.Multi{failingArchive{}, s}

	err := multi.SaveHypothesis(ctx, "run", 0, machine(t, "EOF"))
	assert.ErrorContains(t, err, "disk full")
	hypotheses, err := s.Hypotheses(ctx, "run")
	require.NoError(t, err)
	assert.Len(t, hypotheses, 1)

	assert.NoError(t, store.Multi{s}.SaveFinal(ctx, "run", machine(t, "EOF")))
}

func writeResult(t *testing.T, root, implementation, version, protocol string, a *automaton.Automaton) {
	t.Helper()
	dir := filepath.Join(root, implementation, version, protocol)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if a != nil {
		require.NoError(t, os.WriteFile(filepath.Join(dir, store.FinalAutomatonFile), []byte(a.String()), 0o644))
	}
}

// TestDedupDirectory tests grouping, filtering and catalogue import
func TestDedupDirectory(t *testing.T) {
	root := t.TempDir()
	a, b := machine(t, "EOF"), machine(t, "Z")
	writeResult(t, root, "openssl", "1.1.1", "tls12", a)
	writeResult(t, root, "openssl", "3.0.0", "tls12", a)
	writeResult(t, root, "mbedtls", "2.7.0", "tls12", b)
	writeResult(t, root, "mbedtls", "2.7.0", "tls13", a)
	writeResult(t, root, "mbedtls", "broken", "tls12", nil)

	dedup, err := store.DedupDirectory(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"tls12", "tls13"}, dedup.Protocols())
	require.Len(t, dedup["tls12"], 2)
	assert.Equal(t, b.HashHex(), dedup["tls12"][0].Hash)
	assert.Equal(t, []store.Version{{Implementation: "openssl", Version: "1.1.1"}, {Implementation: "openssl", Version: "3.0.0"}}, dedup["tls12"][1].Versions)

	filtered, err := store.DedupDirectory(root, "open*", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"tls12"}, filtered.Protocols())
	assert.Len(t, filtered["tls12"], 1)

	_, err = store.DedupDirectory(root, "[", nil)
	assert.Error(t, err)

	s := openStore(t, filepath.Join(t.TempDir(), "tlsfsm.db"))
	require.NoError(t, store.Import(context.Background(), s, dedup))
	models, err := s.Models(context.Background(), "tls12")
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "model-1", models[0].Name)
	assert.Equal(t, b.HashHex(), models[0].Hash)
}

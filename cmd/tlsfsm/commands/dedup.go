/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: dedup.go
Description: Model catalogue commands. Dedup groups the final automata of a results
directory by protocol and hash and imports them into the SQLite catalogue; history lists
the hypotheses archived for one learning run.
*/

package commands

import (
	"fmt"

	"github.com/kleascm/akaylee-tlsfsm/pkg/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RunDedup imports a results directory laid out as implementation/version/protocol/
func RunDedup(cmd *cobra.Command, args []string) error {
	fmt.Println("🗂️  tlsfsm - Model Deduplication")
	fmt.Println("================================")
	fmt.Println()

	logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.GetLogger()

	dedup, err := store.DedupDirectory(args[0], viper.GetString("dedup.include"), log)
	if err != nil {
		return err
	}

	for _, protocol := range dedup.Protocols() {
		groups := dedup[protocol]
		fmt.Printf("📁 %s: %d distinct automata\n", protocol, len(groups))
		for _, group := range groups {
			fmt.Printf("   %s (%d states)\n", group.Hash, group.Automaton.NumStates())
			for _, v := range group.Versions {
				fmt.Printf("      - %s\n", v)
			}
		}
	}

	dbPath := viper.GetString("db")
	if dbPath == "" {
		return nil
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	s, err := store.OpenSQLite(dbPath, log)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := store.Import(ctx, s, dedup); err != nil {
		return fmt.Errorf("failed to import models: %w", err)
	}
	fmt.Println()
	fmt.Printf("✨ Models imported into %s\n", dbPath)
	return nil
}

// RunHistory lists the hypotheses archived for a learning run
func RunHistory(cmd *cobra.Command, args []string) error {
	logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.GetLogger()

	if viper.GetString("db") == "" {
		return fmt.Errorf("no --db given")
	}
	s, err := store.OpenSQLite(viper.GetString("db"), log)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext(log)
	defer cancel()

	runID := args[0]
	hypotheses, err := s.Hypotheses(ctx, runID)
	if err != nil {
		return err
	}
	for i, h := range hypotheses {
		fmt.Printf("Hypothesis %d: %d states, hash %s\n", i+1, h.NumStates(), h.HashHex())
	}

	final, found, err := s.Final(ctx, runID)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("No final automaton recorded for run %s\n", runID)
		return nil
	}
	fmt.Printf("Final automaton: %d states, hash %s\n", final.NumStates(), final.HashHex())
	if output := viper.GetString("history.output"); output != "" {
		return writeOutput(output, final.String())
	}
	return nil
}

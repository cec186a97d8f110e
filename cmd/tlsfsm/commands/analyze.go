/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: analyze.go
Description: Offline commands working on learned automata: security analysis with a
profile, dot rendering, distinguishing bound computation and minimization.
*/

package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/kleascm/akaylee-tlsfsm/pkg/analysis"
	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/kleascm/akaylee-tlsfsm/pkg/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RunAnalyze analyzes one automaton with a security profile
func RunAnalyze(cmd *cobra.Command, args []string) error {
	logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.GetLogger()

	a, err := automaton.LoadFile(args[0])
	if err != nil {
		return err
	}

	profileName := viper.GetString("analyze.profile")
	if profileName == "" && viper.GetString("scenario") != "" {
		material, err := loadCryptoMaterial()
		if err != nil {
			return err
		}
		s, err := loadScenario(material)
		if err != nil {
			return err
		}
		profileName = s.Profile()
	}
	profile, err := analysis.LookupProfile(profileName)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(analysis.ProfileNames(), ", "))
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	report, err := analysis.Analyze(ctx, a, profile)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	log.WithField("profile", profile.Name).WithField("hash", report.OriginalHash).Info("Automaton analyzed")

	if err := report.Write(os.Stdout, viper.GetString("analyze.format")); err != nil {
		return err
	}

	if dotPath := viper.GetString("analyze.dot_output"); dotPath != "" {
		if err := writeOutput(dotPath, report.Dot); err != nil {
			return err
		}
	}
	if processedPath := viper.GetString("analyze.processed_output"); processedPath != "" {
		if err := writeOutput(processedPath, report.Automaton.String()); err != nil {
			return err
		}
	}
	if reportDir := viper.GetString("analyze.report_dir"); reportDir != "" {
		format := viper.GetString("analyze.format")
		if format != "json" && format != "yaml" {
			format = "json"
		}
		path, err := utils.WriteReport(reportDir, "analyze", profile.Name, format, report)
		if err != nil {
			return err
		}
		log.WithField("path", path).Info("Analysis report written")
	}
	return nil
}

// RunDot renders an automaton in the dot language
func RunDot(cmd *cobra.Command, args []string) error {
	a, err := automaton.LoadFile(args[0])
	if err != nil {
		return err
	}

	policy := automaton.UseStar
	if viper.GetBool("dot.prefer_green") {
		policy = automaton.UseStarAndPreferGreen
	}
	if viper.GetBool("dot.reorder") {
		a = a.Reorder()
	}
	return writeOutput(viper.GetString("dot.output"), a.Dot(policy))
}

// RunBDist prints the distinguishing bound of an automaton and its witnesses
func RunBDist(cmd *cobra.Command, args []string) error {
	logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	a, err := automaton.LoadFile(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger.GetLogger())
	defer cancel()

	result, err := a.BDist(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("BDist for this state machine = %d\n", result.BDist)
	if viper.GetBool("bdist.witnesses") {
		for _, pair := range result.SortedPairs() {
			fmt.Printf("  %s: %s\n", pair, strings.Join(result.Witnesses[pair], " "))
		}
	}
	return nil
}

// RunMinimize merges equivalent states and prints the canonical form
func RunMinimize(cmd *cobra.Command, args []string) error {
	a, err := automaton.LoadFile(args[0])
	if err != nil {
		return err
	}

	for _, word := range viper.GetStringSlice("minimize.remove_input") {
		if a, err = a.RemoveInputWord(word); err != nil {
			return err
		}
	}
	minimized := a.Minimize().Reorder()
	if minimized.NumStates() != a.NumStates() {
		fmt.Fprintf(os.Stderr, "Merged %d states into %d\n", a.NumStates(), minimized.NumStates())
	}
	return writeOutput(viper.GetString("minimize.output"), minimized.String())
}

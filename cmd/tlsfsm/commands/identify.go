/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: identify.go
Description: Identify command. Builds the identification tree of a protocol from the model
catalogue, then either benchmarks how many messages each model needs to be recognized or
identifies a live target through the knowledge base.
*/

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/kleascm/akaylee-tlsfsm/pkg/identify"
	"github.com/kleascm/akaylee-tlsfsm/pkg/store"
	"github.com/kleascm/akaylee-tlsfsm/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RunIdentify benchmarks the catalogue of a protocol, or identifies a live target with --live
func RunIdentify(cmd *cobra.Command, args []string) error {
	fmt.Println("🔎 tlsfsm - Implementation Identification")
	fmt.Println("=========================================")
	fmt.Println()

	logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.GetLogger()

	selector, err := identify.LookupSelector(viper.GetString("identify.selector"))
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(identify.SelectorNames(), ", "))
	}
	weight, err := identify.LookupWeight(viper.GetString("identify.weight"))
	if err != nil {
		return err
	}

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

	protocol := viper.GetString("identify.protocol")
	catalog := identify.NewCatalog(s, viper.GetInt("identify.max_depth"))
	tree, err := catalog.Tree(ctx, protocol)
	if err != nil {
		return err
	}
	fmt.Printf("🌳 %s: %d models, %d nodes after condensing\n", protocol, len(tree.Models()), tree.Len())

	if dotPath := viper.GetString("identify.tree_dot"); dotPath != "" {
		if err := writeOutput(dotPath, tree.Dot()); err != nil {
			return err
		}
	}

	if viper.GetBool("identify.live") {
		return identifyLive(ctx, log, tree, selector, weight)
	}

	results, err := identify.Benchmark(ctx, tree, selector, weight)
	if err != nil {
		return err
	}

	totalInputs, totalResets := 0, 0
	for _, r := range results {
		fmt.Printf("   %-12s inputs=%-4d resets=%-3d identified=%s\n", r.Model, r.Inputs, r.Resets, strings.Join(r.Identified, ","))
		totalInputs += r.Inputs
		totalResets += r.Resets
	}
	if len(results) > 0 {
		fmt.Println()
		fmt.Printf("📊 Average: %.2f inputs, %.2f resets per model\n",
			float64(totalInputs)/float64(len(results)), float64(totalResets)/float64(len(results)))
	}

	if reportDir := viper.GetString("identify.report_dir"); reportDir != "" {
		path, err := utils.WriteReport(reportDir, "identify", protocol, viper.GetString("identify.format"), results)
		if err != nil {
			return err
		}
		log.WithField("path", path).Info("Benchmark report written")
	}
	return nil
}

// identifyLive descends the tree with the answers of the target behind the knowledge base
func identifyLive(ctx context.Context, log *logrus.Logger, tree *identify.Tree, selector identify.Selector, weight identify.WeightFunc) error {
	kb, err := startKnowledgeBase(ctx, log)
	if err != nil {
		return err
	}
	defer kb.Stop()

	models, found, err := identify.Identify(ctx, tree, identify.NewResolverConnector(kb), selector, weight)
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("❓ The target matches no known model")
		return nil
	}

	fmt.Println("✅ Candidate models:")
	for _, model := range models {
		var versions []string
		for _, v := range tree.Versions[model] {
			versions = append(versions, v.String())
		}
		fmt.Printf("   %s: %s\n", model, strings.Join(versions, ", "))
	}
	stats := kb.Stats()
	fmt.Printf("📊 %d queries, %d letters sent to the target\n", stats.SubmittedQueries, stats.SubmittedLetters)
	return nil
}

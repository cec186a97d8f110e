/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: query.go
Description: Query command. Sends one message sequence to a live target through the
knowledge base and prints the output observed for every message, optionally repeating
the exchange to spot nondeterministic answers.
*/

package commands

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RunQuery sends the message sequence given as arguments to the target
func RunQuery(cmd *cobra.Command, args []string) error {
	logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.GetLogger()

	if viper.GetString("scenario") != "" {
		material, err := loadCryptoMaterial()
		if err != nil {
			return err
		}
		s, err := loadScenario(material)
		if err != nil {
			return err
		}
		for _, msg := range args {
			if !s.HasSymbol(msg) {
				return fmt.Errorf("message %q is not in the input vocabulary of %s", msg, s.Name)
			}
		}
	}

	loops := viper.GetInt("query.loops")
	if loops < 1 {
		loops = 1
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	kb, err := startKnowledgeBase(ctx, log)
	if err != nil {
		return err
	}
	defer kb.Stop()

	answers := make(map[string]int)
	for i := 0; i < loops; i++ {
		output, err := kb.Execute(ctx, args)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		if loops > 1 {
			fmt.Printf("Run %d:\n", i+1)
		}
		for j, msg := range args {
			fmt.Printf("  %s -> %s\n", msg, output[j])
		}
		answers[strings.Join(output, " | ")]++
	}

	if loops > 1 {
		fmt.Println()
		fmt.Printf("📊 %d distinct answers over %d runs\n", len(answers), loops)
		if len(answers) > 1 {
			fmt.Println("⚠️  The target answered the same sequence differently")
		}
	}

	stats := kb.Stats()
	log.WithFields(logrus.Fields{
		"submitted_queries": stats.SubmittedQueries,
		"submitted_letters": stats.SubmittedLetters,
	}).Info("Query finished")
	return nil
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: distinguish.go
Description: Distinguish command. Extracts the input sequences telling learned automata
apart and selects a small set covering every pair.
*/

package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kleascm/akaylee-tlsfsm/pkg/analysis"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RunDistinguish prints a set of sequences telling apart every pair among the first
// count automata, and with --all every distinguishing sequence found
func RunDistinguish(cmd *cobra.Command, args []string) error {
	logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	automata, err := loadAutomata(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger.GetLogger())
	defer cancel()

	pairwise, err := analysis.ExtractPairwiseDistinguishes(ctx, automata)
	if err != nil {
		return err
	}

	if viper.GetBool("distinguish.all") {
		for _, p := range pairwise {
			fmt.Printf("%s vs %s: %d sequences\n", args[p.Pair.First], args[p.Pair.Second], len(p.Sequences))
			for _, seq := range p.Sequences {
				fmt.Printf("  %s\n", strings.Join(seq, " "))
			}
		}
		fmt.Println()
	}

	count := viper.GetInt("distinguish.count")
	if count <= 0 || count > len(automata) {
		count = len(automata)
	}
	cover, err := analysis.CoverDistinguishes(count, pairwise)
	var indistinguishable *analysis.IndistinguishableError
	if errors.As(err, &indistinguishable) {
		for _, pair := range indistinguishable.Pairs {
			fmt.Printf("⚠️  %s and %s cannot be told apart\n", args[pair.First], args[pair.Second])
		}
	} else if err != nil {
		return err
	}

	fmt.Printf("Distinguishing sequences (%d):\n", len(cover))
	for _, seq := range cover {
		fmt.Printf("  %s\n", strings.Join(seq, " "))
	}
	return err
}

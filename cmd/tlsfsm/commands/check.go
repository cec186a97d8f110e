/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: check.go
Description: Self-check command. Validates the scenario, the crypto material files, the
oracle endpoints and the model catalogue before a learning or identification run.
*/

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/kleascm/akaylee-tlsfsm/pkg/analysis"
	"github.com/kleascm/akaylee-tlsfsm/pkg/scenario"
	"github.com/kleascm/akaylee-tlsfsm/pkg/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// endpointCheckTimeout bounds host name resolution during the self-check
const endpointCheckTimeout = 5 * time.Second

// PerformSelfCheck validates the configuration of a run
func PerformSelfCheck(cmd *cobra.Command, args []string) error {
	fmt.Println("🔍 tlsfsm - Configuration Self-Check")
	fmt.Println("====================================")
	fmt.Println()

	logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	var material *scenario.CryptoMaterial
	checks := []struct {
		name     string
		function func() error
	}{
		{"Crypto Material", func() error {
			m, err := loadCryptoMaterial()
			if err != nil {
				return err
			}
			material = m
			return m.Check()
		}},
		{"Scenario", func() error {
			if material == nil {
				material = scenario.NewCryptoMaterial()
			}
			return checkScenario(material)
		}},
		{"Oracle Endpoints", checkEndpoints},
	}
	if viper.GetString("db") != "" {
		checks = append(checks, struct {
			name     string
			function func() error
		}{"Model Catalogue", checkCatalogue})
	}

	passed := 0
	total := len(checks)

	for _, check := range checks {
		fmt.Printf("🔍 %s... ", check.name)
		if err := check.function(); err != nil {
			fmt.Printf("❌ FAILED: %v\n", err)
		} else {
			fmt.Println("✅ PASSED")
			passed++
		}
	}

	fmt.Println()
	fmt.Printf("📊 Results: %d/%d checks passed\n", passed, total)

	if passed == total {
		fmt.Println("✨ All checks passed! Ready to learn.")
		return nil
	}
	fmt.Println("⚠️  Some checks failed. Please address the issues before learning.")
	return fmt.Errorf("%d/%d checks failed", total-passed, total)
}

// checkScenario parses the scenario and makes sure an analysis profile exists for it
func checkScenario(material *scenario.CryptoMaterial) error {
	s, err := loadScenario(material)
	if err != nil {
		return err
	}
	if _, err := analysis.LookupProfile(s.Profile()); err != nil {
		fmt.Printf("(no analysis profile for %s) ", s.Profile())
	}
	return nil
}

func checkEndpoints() error {
	opts, err := oracleOptions()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), endpointCheckTimeout)
	defer cancel()

	if !opts.LocalEndpoint.Check(ctx) {
		return fmt.Errorf("cannot resolve local endpoint %s", opts.LocalEndpoint)
	}
	if opts.TriggerEndpoint != nil && !opts.TriggerEndpoint.Check(ctx) {
		return fmt.Errorf("cannot resolve trigger endpoint %s", opts.TriggerEndpoint)
	}
	return nil
}

func checkCatalogue() error {
	s, err := store.OpenSQLite(viper.GetString("db"), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	protocols, err := s.Protocols(context.Background())
	if err != nil {
		return err
	}
	if len(protocols) == 0 {
		return fmt.Errorf("the catalogue holds no models")
	}
	return nil
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared utilities for the tlsfsm commands. Provides configuration loading,
logger setup and the loaders for automata, scenarios, crypto material and oracle
options used across the command implementations.
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/kleascm/akaylee-tlsfsm/pkg/logging"
	"github.com/kleascm/akaylee-tlsfsm/pkg/oracle"
	"github.com/kleascm/akaylee-tlsfsm/pkg/scenario"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// LoadConfig loads configuration from files and environment
func LoadConfig() error {
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.SetEnvPrefix("TLSFSM")
	viper.AutomaticEnv()

	return nil
}

// SetupLogging builds the logger described by the log_* settings. The returned
// logger must be closed by the caller.
func SetupLogging() (*logging.Logger, error) {
	config := logging.DefaultLoggerConfig()
	config.Level = logging.LogLevel(viper.GetString("log_level"))
	config.Format = logging.LogFormat(viper.GetString("log_format"))
	config.OutputDir = viper.GetString("log_dir")
	if maxFiles := viper.GetInt("log_max_files"); maxFiles > 0 {
		config.MaxFiles = maxFiles
	}
	if viper.GetBool("json_logs") {
		config.Format = logging.LogFormatJSON
	}

	logger, err := logging.NewLogger(config)
	if err != nil {
		return nil, fmt.Errorf("invalid logging settings: %w", err)
	}
	return logger, nil
}

// setup runs LoadConfig and SetupLogging, the common prologue of every command
func setup() (*logging.Logger, error) {
	if err := LoadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := SetupLogging()
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(logger *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			logger.Warn("Received shutdown signal, stopping")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// loadAutomata loads every automaton file given on the command line
func loadAutomata(paths []string) ([]*automaton.Automaton, error) {
	automata := make([]*automaton.Automaton, 0, len(paths))
	for _, path := range paths {
		a, err := automaton.LoadFile(path)
		if err != nil {
			return nil, err
		}
		automata = append(automata, a)
	}
	return automata, nil
}

// loadCryptoMaterial registers the crypto_material lines
func loadCryptoMaterial() (*scenario.CryptoMaterial, error) {
	material := scenario.NewCryptoMaterial()
	for _, line := range viper.GetStringSlice("crypto_material") {
		if err := material.Add(line); err != nil {
			return nil, err
		}
	}
	return material, nil
}

// loadScenario reads the scenario file, expanding placeholders with the crypto material
func loadScenario(material *scenario.CryptoMaterial) (*scenario.Scenario, error) {
	path := viper.GetString("scenario")
	if path == "" {
		return nil, fmt.Errorf("no scenario file given")
	}
	return scenario.LoadFile(path, material.Names())
}

// oracleOptions builds the knowledge base options from the local, trigger and timeout settings
func oracleOptions() (oracle.Options, error) {
	opts := oracle.DefaultOptions()
	if local := viper.GetString("local_endpoint"); local != "" {
		endpoint, err := scenario.ParseEndpoint(local)
		if err != nil {
			return opts, err
		}
		opts.LocalEndpoint = endpoint
	}
	if trigger := viper.GetString("trigger_endpoint"); trigger != "" {
		endpoint, err := scenario.ParseEndpoint(trigger)
		if err != nil {
			return opts, err
		}
		opts.TriggerEndpoint = &endpoint
	}
	if timeout := viper.GetDuration("timeout"); timeout > 0 {
		opts.Timeout = timeout
	}
	opts.ExpectedMinimalTimeout = viper.GetDuration("expected_minimal_timeout")
	opts.Verbose = viper.GetBool("verbose")
	return opts, opts.Validate()
}

// startKnowledgeBase wires the line concretizer and the optional TCP trigger into a
// started knowledge base
func startKnowledgeBase(ctx context.Context, logger *logrus.Logger) (*oracle.KnowledgeBase, error) {
	opts, err := oracleOptions()
	if err != nil {
		return nil, fmt.Errorf("invalid oracle options: %w", err)
	}

	var trigger oracle.Trigger
	if opts.TriggerEndpoint != nil {
		trigger = oracle.NewTCPTrigger(*opts.TriggerEndpoint, opts.Timeout)
	}
	kb, err := oracle.NewKnowledgeBase(opts, oracle.NewLineConcretizer(opts.LocalEndpoint, logger), trigger, logger)
	if err != nil {
		return nil, err
	}
	if err := kb.Start(ctx); err != nil {
		return nil, err
	}
	if opts.TriggerEndpoint == nil {
		fmt.Printf("⏳ Waiting for the target to connect to %s\n", opts.LocalEndpoint)
	}
	return kb, nil
}

// writeOutput writes content to path, or to stdout when path is empty
func writeOutput(path, content string) error {
	if path == "" {
		fmt.Println(content)
		return nil
	}
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

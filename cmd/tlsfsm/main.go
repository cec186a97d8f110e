/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Main command-line interface for tlsfsm, the TLS state machine toolkit.
Provides live querying of targets, security analysis and rendering of learned automata,
model deduplication and implementation identification, with viper-backed configuration.
*/

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kleascm/akaylee-tlsfsm/cmd/tlsfsm/commands"
	"github.com/kleascm/akaylee-tlsfsm/pkg/identify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Configuration
	configFile string
	logLevel   string
	jsonLogs   bool

	// Logging configuration
	logDir      string
	logFormat   string
	logMaxFiles int

	// Inference setup
	scenarioFile   string
	cryptoMaterial []string
	dbPath         string

	// Oracle configuration
	localEndpoint          string
	triggerEndpoint        string
	timeout                time.Duration
	expectedMinimalTimeout time.Duration
	verbose                bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tlsfsm",
		Short: "tlsfsm - TLS state machine inference and analysis toolkit",
		Long: `tlsfsm drives TLS implementations through message sequences, analyzes the
Mealy machines learned from them for security issues, and identifies unknown
implementations against a catalogue of previously learned models.`,
		Version: "1.0.0",
	}

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Use JSON log format")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "./logs", "Log output directory (empty disables log files)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "custom", "Log format (text, json, custom)")
	rootCmd.PersistentFlags().IntVar(&logMaxFiles, "log-max-files", 10, "Maximum number of log files to keep")

	rootCmd.PersistentFlags().StringVar(&scenarioFile, "scenario", "", "Scenario file (INI)")
	rootCmd.PersistentFlags().StringSliceVar(&cryptoMaterial, "crypto-material", []string{}, "Crypto material (name:cert:key[:DEFAULT])")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite model catalogue and hypothesis archive")

	rootCmd.PersistentFlags().StringVar(&localEndpoint, "local", "127.0.0.1:4433", "Local endpoint the target connects to")
	rootCmd.PersistentFlags().StringVar(&triggerEndpoint, "trigger", "", "Trigger endpoint restarting the target")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Second, "Network timeout")
	rootCmd.PersistentFlags().DurationVar(&expectedMinimalTimeout, "expected-minimal-timeout", 0, "Minimal wait when an output is expected")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log every message exchanged with the target")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("json_logs", rootCmd.PersistentFlags().Lookup("json-logs"))
	viper.BindPFlag("log_dir", rootCmd.PersistentFlags().Lookup("log-dir"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log_max_files", rootCmd.PersistentFlags().Lookup("log-max-files"))
	viper.BindPFlag("scenario", rootCmd.PersistentFlags().Lookup("scenario"))
	viper.BindPFlag("crypto_material", rootCmd.PersistentFlags().Lookup("crypto-material"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("local_endpoint", rootCmd.PersistentFlags().Lookup("local"))
	viper.BindPFlag("trigger_endpoint", rootCmd.PersistentFlags().Lookup("trigger"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("expected_minimal_timeout", rootCmd.PersistentFlags().Lookup("expected-minimal-timeout"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add query command
	queryCmd := &cobra.Command{
		Use:   "query MSG...",
		Short: "Send a message sequence to a live target",
		Long: `Send a message sequence to the target connected to the local endpoint and print
the output observed after every message. With --loops the sequence is replayed to
detect targets answering nondeterministically.`,
		Args: cobra.MinimumNArgs(1),
		RunE: commands.RunQuery,
	}
	queryCmd.Flags().Int("loops", 1, "Number of times the sequence is sent")
	viper.BindPFlag("query.loops", queryCmd.Flags().Lookup("loops"))

	// Add analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze AUTOMATON",
		Short: "Run the security analysis of a learned automaton",
		Long: `Rename the automaton vocabulary with an analysis profile, extract the happy
paths, run the security tests (pre-CCS loops, authentication bypass) and report
the hashes, state count and distinguishing bound.`,
		Args: cobra.ExactArgs(1),
		RunE: commands.RunAnalyze,
	}
	analyzeCmd.Flags().String("profile", "", "Analysis profile (defaults to the scenario role and version)")
	analyzeCmd.Flags().String("format", "text", "Report format (text, json, yaml)")
	analyzeCmd.Flags().String("dot", "", "Write the colored dot rendering to this file")
	analyzeCmd.Flags().String("processed", "", "Write the processed automaton to this file")
	analyzeCmd.Flags().String("report-dir", "", "Also save a timestamped report in this directory")

	viper.BindPFlag("analyze.profile", analyzeCmd.Flags().Lookup("profile"))
	viper.BindPFlag("analyze.format", analyzeCmd.Flags().Lookup("format"))
	viper.BindPFlag("analyze.dot_output", analyzeCmd.Flags().Lookup("dot"))
	viper.BindPFlag("analyze.processed_output", analyzeCmd.Flags().Lookup("processed"))
	viper.BindPFlag("analyze.report_dir", analyzeCmd.Flags().Lookup("report-dir"))

	// Add dot command
	dotCmd := &cobra.Command{
		Use:   "dot AUTOMATON",
		Short: "Render an automaton in the dot language",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.RunDot,
	}
	dotCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	dotCmd.Flags().Bool("prefer-green", false, "Keep green transitions apart from starred ones")
	dotCmd.Flags().Bool("reorder", false, "Renumber states canonically first")
	viper.BindPFlag("dot.output", dotCmd.Flags().Lookup("output"))
	viper.BindPFlag("dot.prefer_green", dotCmd.Flags().Lookup("prefer-green"))
	viper.BindPFlag("dot.reorder", dotCmd.Flags().Lookup("reorder"))

	// Add bdist command
	bdistCmd := &cobra.Command{
		Use:   "bdist AUTOMATON",
		Short: "Compute the distinguishing bound of an automaton",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.RunBDist,
	}
	bdistCmd.Flags().Bool("witnesses", false, "Print one witness word per pair needing the bound")
	viper.BindPFlag("bdist.witnesses", bdistCmd.Flags().Lookup("witnesses"))

	// Add minimize command
	minimizeCmd := &cobra.Command{
		Use:   "minimize AUTOMATON",
		Short: "Merge equivalent states of an automaton",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.RunMinimize,
	}
	minimizeCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	minimizeCmd.Flags().StringSlice("remove-input", []string{}, "Input symbols to drop before minimizing")
	viper.BindPFlag("minimize.output", minimizeCmd.Flags().Lookup("output"))
	viper.BindPFlag("minimize.remove_input", minimizeCmd.Flags().Lookup("remove-input"))

	// Add distinguish command
	distinguishCmd := &cobra.Command{
		Use:   "distinguish AUTOMATON AUTOMATON...",
		Short: "Find input sequences telling automata apart",
		Long: `Walk every pair of automata in lockstep to collect the sequences on which they
answer differently, then greedily select a small set of sequences resolving
every pair.`,
		Args: cobra.MinimumNArgs(2),
		RunE: commands.RunDistinguish,
	}
	distinguishCmd.Flags().Int("count", 0, "Only cover pairs among the first count automata (0 = all)")
	distinguishCmd.Flags().Bool("all", false, "Print every distinguishing sequence per pair")
	viper.BindPFlag("distinguish.count", distinguishCmd.Flags().Lookup("count"))
	viper.BindPFlag("distinguish.all", distinguishCmd.Flags().Lookup("all"))

	// Add dedup command
	dedupCmd := &cobra.Command{
		Use:   "dedup RESULTS_DIR",
		Short: "Group identical learned automata and import them into the catalogue",
		Long: `Walk RESULTS_DIR/<implementation>/<version>/<protocol>/final.automaton, group the
automata sharing a hash per protocol, and import the groups into --db.`,
		Args: cobra.ExactArgs(1),
		RunE: commands.RunDedup,
	}
	dedupCmd.Flags().String("include", "", "Glob filtering implementation names")
	viper.BindPFlag("dedup.include", dedupCmd.Flags().Lookup("include"))

	// Add history command
	historyCmd := &cobra.Command{
		Use:   "history RUN_ID",
		Short: "List the hypotheses archived for a learning run",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.RunHistory,
	}
	historyCmd.Flags().StringP("output", "o", "", "Write the final automaton to this file")
	viper.BindPFlag("history.output", historyCmd.Flags().Lookup("output"))

	// Add identify command
	identifyCmd := &cobra.Command{
		Use:   "identify",
		Short: "Identify implementations against the model catalogue",
		Long: `Build the identification tree of a protocol from the catalogue. By default every
model is identified against a simulation of itself to measure the messages and
resets needed; with --live the target behind the local endpoint is identified.`,
		RunE: commands.RunIdentify,
	}
	identifyCmd.Flags().String("protocol", "", "Protocol of the models (required)")
	identifyCmd.Flags().String("selector", "first", fmt.Sprintf("Branch selector (%v)", identify.SelectorNames()))
	identifyCmd.Flags().String("weight", "count", "Model weight (equal, count)")
	identifyCmd.Flags().Int("max-depth", identify.DefaultMaxDepth, "Maximum unfolding depth")
	identifyCmd.Flags().Bool("live", false, "Identify the live target")
	identifyCmd.Flags().String("tree-dot", "", "Write the identification tree in dot to this file")
	identifyCmd.Flags().String("report-dir", "", "Save a timestamped benchmark report in this directory")
	identifyCmd.Flags().String("format", "json", "Benchmark report format (json, yaml)")
	identifyCmd.MarkFlagRequired("protocol")

	viper.BindPFlag("identify.protocol", identifyCmd.Flags().Lookup("protocol"))
	viper.BindPFlag("identify.selector", identifyCmd.Flags().Lookup("selector"))
	viper.BindPFlag("identify.weight", identifyCmd.Flags().Lookup("weight"))
	viper.BindPFlag("identify.max_depth", identifyCmd.Flags().Lookup("max-depth"))
	viper.BindPFlag("identify.live", identifyCmd.Flags().Lookup("live"))
	viper.BindPFlag("identify.tree_dot", identifyCmd.Flags().Lookup("tree-dot"))
	viper.BindPFlag("identify.report_dir", identifyCmd.Flags().Lookup("report-dir"))
	viper.BindPFlag("identify.format", identifyCmd.Flags().Lookup("format"))

	// Add check command
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the scenario, crypto material and endpoints",
		RunE:  commands.PerformSelfCheck,
	}

	// Add commands to root
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(dotCmd)
	rootCmd.AddCommand(bdistCmd)
	rootCmd.AddCommand(minimizeCmd)
	rootCmd.AddCommand(distinguishCmd)
	rootCmd.AddCommand(dedupCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(identifyCmd)
	rootCmd.AddCommand(checkCmd)

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

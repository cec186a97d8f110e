/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logger.go
Description: Logging system for the TLS state machine tools. Provides structured logging
with timestamped files and text, JSON or custom formats, plus helpers logging learning
events (queries, counterexamples, hypotheses) with consistent field names.
*/

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warn"
	LogLevelError   LogLevel = "error"
)

// LogFormat represents the logging format
type LogFormat string

const (
	LogFormatJSON   LogFormat = "json"
	LogFormatText   LogFormat = "text"
	LogFormatCustom LogFormat = "custom"
)

// filePrefix names every log file written by the logger
const filePrefix = "tlsfsm_"

// LoggerConfig holds the configuration for the logger
type LoggerConfig struct {
	Level     LogLevel  `json:"level" mapstructure:"level"`
	Format    LogFormat `json:"format" mapstructure:"format"`
	OutputDir string    `json:"output_dir" mapstructure:"output_dir"` // empty disables the log file
	MaxFiles  int       `json:"max_files" mapstructure:"max_files"`
	Timestamp bool      `json:"timestamp" mapstructure:"timestamp"`
	Caller    bool      `json:"caller" mapstructure:"caller"`
	Colors    bool      `json:"colors" mapstructure:"colors"`
	Console   io.Writer `json:"-" mapstructure:"-"` // defaults to stderr
}

// DefaultLoggerConfig logs info and above to stderr in the custom format
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:     LogLevelInfo,
		Format:    LogFormatCustom,
		MaxFiles:  10,
		Timestamp: true,
		Colors:    true,
	}
}

// Validate checks the LoggerConfig for invalid or missing values.
// Returns an error if the config is invalid, or nil if valid.
func (c *LoggerConfig) Validate() error {
	if c.OutputDir != "" && c.MaxFiles <= 0 {
		return fmt.Errorf("max_files must be positive")
	}
	switch c.Format {
	case LogFormatJSON, LogFormatText, LogFormatCustom:
		// ok
	default:
		return fmt.Errorf("unsupported log format: %s", c.Format)
	}
	switch c.Level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		// ok
	default:
		return fmt.Errorf("unsupported log level: %s", c.Level)
	}
	return nil
}

// Logger owns a logrus logger and its log file
type Logger struct {
	config     *LoggerConfig
	logger     *logrus.Logger
	fileHandle *os.File
	filePath   string
	startTime  time.Time
}

// NewLogger creates a new logger instance
func NewLogger(config *LoggerConfig) (*Logger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger config: %w", err)
	}

	l := &Logger{
		config:    config,
		logger:    logrus.New(),
		startTime: time.Now(),
	}
	if err := l.setup(); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}
	return l, nil
}

// setup configures the logger with the given configuration
func (l *Logger) setup() error {
	level, err := logrus.ParseLevel(string(l.config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.logger.SetLevel(level)
	l.logger.SetReportCaller(l.config.Caller)

	if err := l.setFormatter(); err != nil {
		return err
	}

	console := l.config.Console
	if console == nil {
		console = os.Stderr
	}
	l.logger.SetOutput(console)
	return l.setupFileOutput(console)
}

// setFormatter configures the log formatter
func (l *Logger) setFormatter() error {
	callerPrettyfier := func(f *runtime.Frame) (string, string) {
		return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}

	switch l.config.Format {
	case LogFormatJSON:
		l.logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: callerPrettyfier,
		})
	case LogFormatText:
		l.logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    l.config.Timestamp,
			TimestampFormat:  time.RFC3339,
			ForceColors:      l.config.Colors,
			DisableColors:    !l.config.Colors,
			CallerPrettyfier: callerPrettyfier,
		})
	case LogFormatCustom:
		l.logger.SetFormatter(&LearnerFormatter{CustomFormatter: CustomFormatter{
			Timestamp: l.config.Timestamp,
			Caller:    l.config.Caller,
			Colors:    l.config.Colors,
		}})
	default:
		return fmt.Errorf("unsupported log format: %s", l.config.Format)
	}
	return nil
}

// setupFileOutput mirrors the console output into a timestamped file
func (l *Logger) setupFileOutput(console io.Writer) error {
	if l.config.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(l.config.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// tlsfsm_2024-06-11_01-30-00.log
	timestamp := l.startTime.Format("2006-01-02_15-04-05")
	l.filePath = filepath.Join(l.config.OutputDir, fmt.Sprintf("%s%s.log", filePrefix, timestamp))

	file, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	l.fileHandle = file
	l.logger.SetOutput(io.MultiWriter(console, file))

	l.logger.WithFields(logrus.Fields{
		"start_time": l.startTime.Format(time.RFC3339),
		"log_file":   l.filePath,
		"level":      l.config.Level,
		"format":     l.config.Format,
	}).Debug("Logging initialized")
	return nil
}

// cleanup removes the oldest log files beyond MaxFiles
func (l *Logger) cleanup() error {
	if l.config.OutputDir == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(l.config.OutputDir, filePrefix+"*.log"))
	if err != nil {
		return err
	}
	if len(files) <= l.config.MaxFiles {
		return nil
	}

	// timestamped names sort oldest first
	sort.Strings(files)
	var errs []string
	for _, file := range files[:len(files)-l.config.MaxFiles] {
		if err := os.Remove(file); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to remove old log files: %s", strings.Join(errs, "; "))
	}
	return nil
}

// FilePath returns the current log file, or "" when logging to the console only
func (l *Logger) FilePath() string {
	return l.filePath
}

// GetLogger returns the underlying logrus logger
func (l *Logger) GetLogger() *logrus.Logger {
	return l.logger
}

// Close closes the log file and removes old ones
func (l *Logger) Close() error {
	if l.fileHandle != nil {
		l.logger.SetOutput(io.Discard)
		l.fileHandle.Close()
		l.fileHandle = nil
	}
	if err := l.cleanup(); err != nil {
		return fmt.Errorf("failed to cleanup log files: %w", err)
	}
	return nil
}

// OrDiscard returns logger, or a logger dropping everything when logger is nil
func OrDiscard(logger *logrus.Logger) *logrus.Logger {
	if logger != nil {
		return logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}

// Learning-specific logging helpers

// LogQuery logs an answered output query
func LogQuery(l logrus.FieldLogger, input, output []string, cached bool) {
	l.WithFields(logrus.Fields{
		"input":  strings.Join(input, ", "),
		"output": strings.Join(output, ", "),
		"cached": cached,
	}).Debug("Query answered")
}

// LogCounterexample logs a query on which the hypothesis and the target disagree
func LogCounterexample(l logrus.FieldLogger, input, expected, observed []string) {
	l.WithFields(logrus.Fields{
		"input":    strings.Join(input, ", "),
		"expected": strings.Join(expected, ", "),
		"observed": strings.Join(observed, ", "),
	}).Info("Counterexample found")
}

// LogHypothesis logs a hypothesis submitted to the equivalence oracle
func LogHypothesis(l logrus.FieldLogger, iteration, states int, hash string) {
	l.WithFields(logrus.Fields{
		"iteration": iteration,
		"states":    states,
		"hash":      hash,
	}).Info("Hypothesis received")
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: formatter.go
Description: Custom log formatters. CustomFormatter renders compact colored lines with
sorted fields, LearnerFormatter adds a short tag for learning events.
*/

package logging

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// CustomFormatter provides compact, structured logging output
type CustomFormatter struct {
	Timestamp bool
	Caller    bool
	Colors    bool
}

// Format formats a log entry
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return f.format(entry, ""), nil
}

func (f *CustomFormatter) format(entry *logrus.Entry, tag string) []byte {
	var output strings.Builder

	if f.Timestamp {
		f.write(&output, 36, entry.Time.Format("2006-01-02 15:04:05.000")) // Cyan
	}
	f.write(&output, f.getLevelColor(entry.Level), strings.ToUpper(entry.Level.String()))
	if tag != "" {
		f.write(&output, 35, "["+tag+"]") // Magenta
	}
	if f.Caller && entry.HasCaller() {
		f.write(&output, 33, fmt.Sprintf("[%s:%d]", entry.Caller.File, entry.Caller.Line)) // Yellow
	}

	output.WriteString(entry.Message)
	if len(entry.Data) > 0 {
		output.WriteString(" ")
		output.WriteString(f.formatFields(entry.Data))
	}
	output.WriteString("\n")
	return []byte(output.String())
}

func (f *CustomFormatter) write(b *strings.Builder, color int, s string) {
	if f.Colors {
		fmt.Fprintf(b, "\033[%dm%s\033[0m ", color, s)
	} else {
		b.WriteString(s + " ")
	}
}

// getLevelColor returns the ANSI color code for a log level
func (f *CustomFormatter) getLevelColor(level logrus.Level) int {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return 37 // White
	case logrus.InfoLevel:
		return 32 // Green
	case logrus.WarnLevel:
		return 33 // Yellow
	case logrus.ErrorLevel:
		return 31 // Red
	default:
		return 35 // Magenta
	}
}

// formatFields formats structured fields in key order
func (f *CustomFormatter) formatFields(fields logrus.Fields) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := f.formatValue(fields[key])
		if f.Colors {
			parts = append(parts, fmt.Sprintf("\033[34m%s\033[0m=\033[32m%s\033[0m", key, value)) // Blue key, Green value
		} else {
			parts = append(parts, fmt.Sprintf("%s=%s", key, value))
		}
	}
	return strings.Join(parts, " ")
}

// formatValue formats a field value appropriately
func (f *CustomFormatter) formatValue(value interface{}) string {
	switch v := value.(type) {
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format("15:04:05.000")
	case error:
		return v.Error()
	case string:
		if strings.ContainsAny(v, " \t") {
			return fmt.Sprintf("%q", v)
		}
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// LearnerFormatter tags learning events
type LearnerFormatter struct {
	CustomFormatter
}

// Format formats a log entry with its learning event tag
func (f *LearnerFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return f.format(entry, learnerTag(entry.Message)), nil
}

// learnerTag returns a tag based on the log message
func learnerTag(message string) string {
	switch {
	case strings.HasPrefix(message, "Query"):
		return "QUERY"
	case strings.HasPrefix(message, "Counterexample"):
		return "CEX"
	case strings.HasPrefix(message, "Hypothesis"):
		return "HYPOTHESIS"
	case strings.HasPrefix(message, "Knowledge base"), strings.HasPrefix(message, "Target"):
		return "TARGET"
	default:
		return ""
	}
}

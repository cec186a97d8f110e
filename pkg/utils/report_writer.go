/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report_writer.go
Description: Utility for writing analysis and benchmark results to a results directory.
Handles timestamped, kind-specific subdirectory naming and JSON or YAML encoding.
*/

package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// WriteReport writes result under dir/kind with a timestamped name and returns the file path.
// Format is "json" or "yaml".
func WriteReport(dir, kind, name, format string, result any) (string, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case "json":
		data, err = json.MarshalIndent(result, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(result)
	default:
		return "", fmt.Errorf("unsupported report format: %s", format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	reportDir := filepath.Join(dir, kind)
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	// 2024-06-11_01-30-00_analyze_client.tls12.json
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filePath := filepath.Join(reportDir, fmt.Sprintf("%s_%s_%s.%s", timestamp, kind, name, format))

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return filePath, nil
}

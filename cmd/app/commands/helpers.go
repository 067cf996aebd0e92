// Package commands implements the casevault CLI commands. Each Run function
// takes its dependencies as interfaces and writes its report to writer, in
// text or JSON.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/allisson/casevault/internal/app"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// Formats lists the accepted values of the --format flag.
var Formats = []string{formatText, formatJSON}

// CloseContainer shuts the container down, logging instead of failing.
func CloseContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("container shutdown failed", slog.Any("error", err))
	}
}

func validateFormat(format string) error {
	if !slices.Contains(Formats, format) {
		return fmt.Errorf("invalid format: %s (valid options: text, json)", format)
	}
	return nil
}

func writeJSON(writer io.Writer, v any) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to output JSON: %w", err)
	}
	return nil
}

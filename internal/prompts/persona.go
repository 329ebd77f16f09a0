// Package prompts provides the assistant's system persona.
package prompts

import (
	"log/slog"
	"os"
	"strings"
)

// defaultPersona is used when no persona file is configured or the
// configured file cannot be read.
const defaultPersona = "You are Anne, a friendly assistant who remembers past conversations."

// Default returns the built-in persona text.
func Default() string {
	return defaultPersona
}

// Load reads the persona from a file. It is called once at startup;
// the persona is immutable for the process lifetime. A missing or
// empty file falls back to the default persona with a warning rather
// than failing startup.
func Load(path string, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return defaultPersona
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("persona file unreadable, using default persona",
			"path", path,
			"error", err,
		)
		return defaultPersona
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		logger.Warn("persona file empty, using default persona", "path", path)
		return defaultPersona
	}
	return text
}

// Package errors enriches marklet's fatal startup errors with actionable
// suggestions. Only startup failures use this: request-time failures are
// fully recovered inside the HTTP handlers and never surface as process
// errors.
package errors

import (
	"fmt"
	"strings"
)

// Suggestion is one actionable fix for an error, optionally with a command
// the user can run.
type Suggestion struct {
	Title       string
	Description string
	Command     string
}

// EnhancedError wraps a fatal error with suggestions.
type EnhancedError struct {
	Title         string
	OriginalError error
	Suggestions   []Suggestion
}

// Error implements the error interface.
func (e *EnhancedError) Error() string {
	var b strings.Builder

	b.WriteString(e.Title)
	if e.OriginalError != nil {
		fmt.Fprintf(&b, ": %v", e.OriginalError)
	}

	for _, s := range e.Suggestions {
		fmt.Fprintf(&b, "\n  - %s", s.Title)
		if s.Description != "" {
			fmt.Fprintf(&b, ": %s", s.Description)
		}
		if s.Command != "" {
			fmt.Fprintf(&b, "\n    $ %s", s.Command)
		}
	}

	return b.String()
}

// Unwrap returns the original error.
func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// NewEnhancedError creates an enhanced error with suggestions.
func NewEnhancedError(title string, originalError error, suggestions []Suggestion) *EnhancedError {
	return &EnhancedError{
		Title:         title,
		OriginalError: originalError,
		Suggestions:   suggestions,
	}
}

// PortConflictSuggestions generates fixes for a default port occupied with
// fallback disabled.
func PortConflictSuggestions(port int) []Suggestion {
	return []Suggestion{
		{
			Title:       "Find the process using the port",
			Description: fmt.Sprintf("another process is already bound to port %d", port),
			Command:     fmt.Sprintf("lsof -i :%d", port),
		},
		{
			Title:   "Serve on a different port",
			Command: fmt.Sprintf("marklet serve --port %d", port+1),
		},
		{
			Title:       "Enable port fallback",
			Description: "let marklet probe subsequent ports automatically",
			Command:     "marklet serve --fallback-port",
		},
	}
}

// FallbackExhaustedSuggestions generates fixes for an exhausted fallback
// scan.
func FallbackExhaustedSuggestions(firstPort, attempts int) []Suggestion {
	return []Suggestion{
		{
			Title: "Inspect what occupies the probed range",
			Description: fmt.Sprintf("ports %d-%d are all in use",
				firstPort, firstPort+attempts-1),
			Command: "lsof -i tcp -P -n | grep LISTEN",
		},
		{
			Title:   "Serve from a different base port",
			Command: fmt.Sprintf("marklet serve --port %d", firstPort+1000),
		},
	}
}

// ConfigSuggestions generates fixes for configuration load failures.
func ConfigSuggestions(configPath string) []Suggestion {
	if configPath == "" {
		configPath = ".marklet.yml"
	}
	return []Suggestion{
		{
			Title:       "Check the configuration file syntax",
			Description: "the file must be valid YAML",
			Command:     "cat " + configPath,
		},
		{
			Title:       "Check environment overrides",
			Description: "MARKLET_* variables take precedence over the file",
			Command:     "env | grep '^MARKLET_'",
		},
	}
}

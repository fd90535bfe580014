// Package config loads command configuration from the environment and
// provides the fatal-exit helper shared by entry points.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from environment variables using its `env` tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Exitf writes a formatted message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	exitf(os.Stderr, os.Exit, format, args...)
}

func exitf(w io.Writer, exit func(int), format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
	exit(1)
}

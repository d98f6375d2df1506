// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the register and login request JSON Schemas.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/holomush/aptitude/internal/auth"
)

var payloads = []string{"register", "login"}

func main() {
	if err := run("schemas"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	for _, name := range payloads {
		schema, err := auth.GenerateSchema(name)
		if err != nil {
			return fmt.Errorf("generating %s schema: %w", name, err)
		}

		outPath := filepath.Join(dir, name+".schema.json")
		if err := os.WriteFile(outPath, schema, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
	return nil
}

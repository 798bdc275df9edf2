// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Command gen-schema writes the JSON Schema of every API request body to
// schemas/<name>.schema.json.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/httpapi"
)

func main() {
	outDir := flag.String("out", "schemas", "output directory")
	flag.Parse()

	written, err := generate(*outDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schemas: %v\n", err)
		os.Exit(1)
	}
	for _, path := range written {
		fmt.Printf("Generated %s\n", path)
	}
}

// generate writes one file per request schema and returns their paths.
func generate(outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, oops.Code("SCHEMA_WRITE_FAILED").With("dir", outDir).Wrap(err)
	}

	var written []string
	for _, name := range httpapi.SchemaNames() {
		schema, err := httpapi.GenerateSchema(name)
		if err != nil {
			return written, err
		}
		outPath := filepath.Join(outDir, name+".schema.json")
		if err := os.WriteFile(outPath, append(schema, '\n'), 0o600); err != nil {
			return written, oops.Code("SCHEMA_WRITE_FAILED").With("path", outPath).Wrap(err)
		}
		written = append(written, outPath)
	}
	return written, nil
}

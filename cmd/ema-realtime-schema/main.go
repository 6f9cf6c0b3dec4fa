// Command ema-realtime-schema writes JSON schemas of the realtime wire
// format, one file per frame direction.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/koscakluka/ema-realtime/core/messages"
)

func main() {
	outDir := flag.String("out", "./schemas", "Output directory for schemas")
	flag.Parse()

	written, err := writeSchemas(*outDir)
	if err != nil {
		log.Fatalf("failed to export schemas: %v", err)
	}
	for _, path := range written {
		log.Printf("generated %s", path)
	}
}

func writeSchemas(outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	schemas := messages.Schemas()
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	written := make([]string, 0, len(names))
	for _, name := range names {
		data, err := json.MarshalIndent(schemas[name], "", "  ")
		if err != nil {
			return written, fmt.Errorf("failed to marshal %s schema: %w", name, err)
		}

		path := filepath.Join(outDir, name+".v1.json")
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s schema: %w", name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

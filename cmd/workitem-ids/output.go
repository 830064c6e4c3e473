package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func writeJSONLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return withCode(exitDB, fmt.Errorf("json encode: %w", err))
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return withCode(exitDB, fmt.Errorf("mkdir %s: %w", dir, err))
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return withCode(exitDB, fmt.Errorf("json marshal: %w", err))
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return withCode(exitDB, fmt.Errorf("write %s: %w", path, err))
	}
	return nil
}

// writeReport creates path and hands it to render.
func writeReport(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return withCode(exitDB, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err))
	}
	f, err := os.Create(path)
	if err != nil {
		return withCode(exitDB, fmt.Errorf("create %s: %w", path, err))
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return withCode(exitDB, fmt.Errorf("render %s: %w", path, err))
	}
	if err := f.Close(); err != nil {
		return withCode(exitDB, fmt.Errorf("close %s: %w", path, err))
	}
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/slr-engine/internal/ledger"
	"github.com/pdiddy/slr-engine/internal/search"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// Result file names inside the results directory.
const (
	MetadataFile = "metadata.txt"

	// RecordsDir holds one YAML sidecar per fetched record.
	RecordsDir = "records"
)

// PrepareWorkspace creates the working folders, clearing them first when
// ws.Clear is set, then copies manual uploads into the PDF folder. The
// ledger database in the results folder survives a clear. It returns the
// number of uploads copied.
func PrepareWorkspace(ws types.WorkspaceConfig) (int, error) {
	dirs := []string{ws.PDFDir, ws.TXTDir, ws.SummariesDir, ws.ResultsDir}
	if ws.Clear {
		for _, dir := range dirs {
			if err := clearDir(dir, ledger.DBFile); err != nil {
				return 0, fmt.Errorf("clearing %s: %w", dir, err)
			}
		}
	}
	for _, dir := range append(dirs, filepath.Join(ws.ResultsDir, RecordsDir)) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	if ws.ManualDir == "" {
		return 0, nil
	}
	n, err := search.CopyUploads(ws.ManualDir, ws.PDFDir)
	if err != nil && !os.IsNotExist(err) {
		return n, fmt.Errorf("copying manual uploads: %w", err)
	}
	return n, nil
}

// clearDir removes every entry of dir except files whose name starts with
// keepPrefix. A missing dir is not an error.
func clearDir(dir, keepPrefix string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if keepPrefix != "" && !e.IsDir() && strings.HasPrefix(e.Name(), keepPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

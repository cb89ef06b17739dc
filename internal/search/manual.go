// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/acquire"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// ManualSource treats PDFs in the working folder that no API source
// fetched as manual uploads.
type ManualSource struct {
	Log zerolog.Logger
}

// Name returns the source identifier.
func (m *ManualSource) Name() types.Source { return types.SourceManual }

// Scan returns a record for every PDF in dir whose stem is not already a
// seen primary ID. A file whose title (its stem with underscores read as
// spaces) matches an already fetched title exactly is treated as a
// duplicate upload.
func (m *ManualSource) Scan(dir string, seen *SeenSet) []types.PaperRecord {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.Log.Warn().Err(err).Str("dir", dir).Msg("reading manual upload folder")
		}
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []types.PaperRecord
	for _, name := range names {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if seen.Has(stem) {
			continue
		}
		rec := types.PaperRecord{
			Source:    types.SourceManual,
			PrimaryID: acquire.ManualPrimaryID(stem),
			Title:     strings.TrimSpace(strings.ReplaceAll(stem, "_", " ")),
			PDFPath:   filepath.Join(dir, name),
		}
		if seen.Has(rec.PrimaryID) {
			continue
		}
		if seen.HasTitle(rec.Title) {
			m.Log.Info().Str("file", name).Msg("manual upload matches an already fetched title, skipping")
			continue
		}
		seen.Add(rec)
		out = append(out, rec)
	}
	return out
}

// CopyUploads copies every PDF in src into dst and returns the number
// copied. It is used after the start-of-run clear.
func CopyUploads(src, dst string) (int, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			return n, err
		}
		if err := os.WriteFile(filepath.Join(dst, e.Name()), data, 0o644); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

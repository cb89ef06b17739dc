// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/slr-engine/pkg/types"
)

const (
	metadataHeader = "ArXiv Paper Metadata"
	metadataRule   = "=============================="
	notAvailable   = "N/A"
)

// MetadataLog appends one block per fetched record to metadata.txt.
type MetadataLog struct {
	path string
	mu   sync.Mutex
}

// CreateMetadataLog truncates path and writes the log header.
func CreateMetadataLog(path string) (*MetadataLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating metadata directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(metadataHeader+"\n"+metadataRule+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("writing metadata header: %w", err)
	}
	return &MetadataLog{path: path}, nil
}

// OpenMetadataLog appends to an existing log, creating it with a header
// when missing.
func OpenMetadataLog(path string) (*MetadataLog, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return CreateMetadataLog(path)
	}
	return &MetadataLog{path: path}, nil
}

// Path returns the log file location.
func (l *MetadataLog) Path() string { return l.path }

// Append writes the Title/Authors/DOI/URL/Journal Reference block for p.
func (l *MetadataLog) Append(p types.PaperRecord) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening metadata log: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "Title: %s\nAuthors: %s\nDOI: %s\nURL: %s\nJournal Reference: %s\n%s\n",
		p.Title, strings.Join(p.Authors, ", "), orNA(p.DOI), orNA(p.URL), orNA(p.JournalRef), metadataRule)
	if err != nil {
		return fmt.Errorf("appending metadata: %w", err)
	}
	return nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

// WriteSidecar stores p as YAML at path so later stages can recover
// record metadata from the workspace alone.
func WriteSidecar(path string, p types.PaperRecord) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating sidecar directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSidecar reads a record written by WriteSidecar.
func ReadSidecar(path string) (types.PaperRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.PaperRecord{}, err
	}
	var p types.PaperRecord
	if err := yaml.Unmarshal(data, &p); err != nil {
		return types.PaperRecord{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return p, nil
}

// AbstractFileName returns "<scopusID>_<first 50 chars of sanitized title>.txt".
func AbstractFileName(scopusID, title string) string {
	t := Sanitize(title)
	if r := []rune(t); len(r) > 50 {
		t = string(r[:50])
	}
	return scopusID + "_" + t + ".txt"
}

// WriteAbstract saves the abstract fallback text for a record that has no
// full text. It writes nothing and returns "" when abstract is empty.
func WriteAbstract(dir, scopusID string, p types.PaperRecord) (string, error) {
	if strings.TrimSpace(p.Abstract) == "" {
		return "", nil
	}
	authors := strings.Join(p.Authors, ", ")
	if authors == "" {
		authors = notAvailable
	}
	year := notAvailable
	if p.PublishedYear > 0 {
		year = strconv.Itoa(p.PublishedYear)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	fmt.Fprintf(&b, "Authors: %s\n", authors)
	fmt.Fprintf(&b, "Year: %s\n", year)
	b.WriteString("\n--- ABSTRACT ---\n\n")
	b.WriteString(strings.TrimSpace(p.Abstract))

	path := filepath.Join(dir, AbstractFileName(scopusID, p.Title))
	if err := writeAtomic(path, strings.NewReader(b.String())); err != nil {
		return "", fmt.Errorf("writing abstract: %w", err)
	}
	return path, nil
}

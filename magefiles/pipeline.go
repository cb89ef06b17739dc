//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Pipeline groups targets that run pipeline stages through the built binary.
type Pipeline mg.Namespace

func slrEngine(args ...string) error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), args...)
}

// Run drafts a review for the subject in $SUBJECT.
func (Pipeline) Run() error {
	subject := os.Getenv("SUBJECT")
	if subject == "" {
		return fmt.Errorf("set SUBJECT to the research subject")
	}
	return slrEngine("run", "--subject", subject)
}

// Fetch fetches one round of papers for the query in $QUERY.
func (Pipeline) Fetch() error {
	query := os.Getenv("QUERY")
	if query == "" {
		return fmt.Errorf("set QUERY to the search query")
	}
	return slrEngine("fetch", "--query", query)
}

// Convert extracts text from every PDF in pdf_papers/.
func (Pipeline) Convert() error {
	return slrEngine("convert")
}

// Summarize screens txt_papers/ against $SUBJECT.
func (Pipeline) Summarize() error {
	subject := os.Getenv("SUBJECT")
	if subject == "" {
		return fmt.Errorf("set SUBJECT to the research subject")
	}
	return slrEngine("summarize", "--subject", subject)
}

// Serve starts the HTTP form surface.
func (Pipeline) Serve() error {
	return slrEngine("serve")
}

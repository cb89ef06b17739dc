// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package critique

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/slr-engine/pkg/types"
)

// ReportFile is the cycle report's file name in the results directory.
const ReportFile = "refinement_cycle_report.md"

// Cycle is one refinement cycle as recorded in the report. Report is nil
// for the final cycle, which is not critiqued.
type Cycle struct {
	Number       int                   `yaml:"cycle"`
	DocumentPath string                `yaml:"document"`
	Report       *types.CritiqueReport `yaml:"critique,omitempty"`
	Stopped      bool                  `yaml:"stopped_early,omitempty"`
	Err          string                `yaml:"error,omitempty"`
}

// WriteReport renders cycles as Markdown to w. Each cycle gets a heading,
// a short human summary, and its critique as a YAML block.
func WriteReport(w io.Writer, subject string, cycles []Cycle) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Refinement Cycle Report: %s\n\n", subject)
	fmt.Fprintf(&b, "%d cycle(s) run.\n", len(cycles))

	for _, c := range cycles {
		fmt.Fprintf(&b, "\n## Cycle %d\n\n", c.Number)
		fmt.Fprintf(&b, "Document: `%s`\n\n", filepath.Base(c.DocumentPath))
		switch {
		case c.Err != "":
			fmt.Fprintf(&b, "Critique failed: %s\n\n", c.Err)
		case c.Report == nil:
			b.WriteString("Final draft, not critiqued.\n\n")
		default:
			r := c.Report
			fmt.Fprintf(&b, "- Rating: %s\n", orNone(r.Rating))
			fmt.Fprintf(&b, "- New issues: %d\n", len(r.NewIssues))
			fmt.Fprintf(&b, "- Suggestions: %d\n", r.SuggestionCount())
			if c.Stopped {
				b.WriteString("- Refinement stopped: no open issues and the rating met the threshold.\n")
			}
			b.WriteString("\n")
		}

		data, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("encoding cycle %d: %w", c.Number, err)
		}
		b.WriteString("```yaml\n")
		b.Write(data)
		b.WriteString("```\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// SaveReport writes the report to dir/ReportFile, replacing any earlier
// version, and returns its path.
func SaveReport(dir, subject string, cycles []Cycle) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}
	path := filepath.Join(dir, ReportFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WriteReport(f, subject, cycles); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// Export formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// ExportRun is a run with the papers it screened.
type ExportRun struct {
	Run    `json:",inline" yaml:",inline"`
	Papers []Paper `json:"papers" yaml:"papers"`
}

const exportLimit = 100000

// Export writes runs and their papers to w as YAML or JSON. A non-empty
// runID exports that run only.
func (s *Store) Export(ctx context.Context, w io.Writer, format, runID string) error {
	runs, err := s.exportRuns(ctx, runID)
	if err != nil {
		return err
	}

	switch format {
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(runs); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(runs); err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown export format %q", format)
}

func (s *Store) exportRuns(ctx context.Context, runID string) ([]ExportRun, error) {
	var runs []Run
	if runID != "" {
		r, err := s.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		runs = []Run{r}
	} else {
		var err error
		if runs, err = s.Runs(ctx, exportLimit); err != nil {
			return nil, fmt.Errorf("querying for export: %w", err)
		}
	}

	out := make([]ExportRun, len(runs))
	for i, r := range runs {
		papers, err := s.Papers(ctx, QueryOptions{RunID: r.ID, MaxResults: exportLimit})
		if err != nil {
			return nil, fmt.Errorf("querying papers for export: %w", err)
		}
		out[i] = ExportRun{Run: r, Papers: papers}
	}
	return out, nil
}

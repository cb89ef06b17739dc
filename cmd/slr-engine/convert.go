// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/slr-engine/internal/container"
	"github.com/pdiddy/slr-engine/internal/convert"
	"github.com/pdiddy/slr-engine/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert PDF files to plain text",
	Long: `Convert extracts text from every PDF in the PDF folder into the text
folder. PDFs that already have a non-empty text file are skipped.

Backends: auto reads the PDF text layer and falls back to page OCR
(pdftoppm and tesseract, natively or from --ocr-image); pdf reads the text
layer only; ocr renders and recognizes every page; image pipes each PDF
through a container image such as markitdown, which receives the PDF
folder mounted at /work.`,
	RunE: runConvert,
}

var convertFlags = flagKeys{
	"ocr-image": "convert.ocr_image",
	"dpi":       "convert.dpi",
	"language":  "convert.language",
}

func init() {
	d := types.DefaultPipelineConfig().Convert
	f := convertCmd.Flags()
	f.String("backend", "auto", "conversion backend: auto, pdf, ocr, or image")
	f.String("image", convert.DefaultTextImage, "container image for the image backend")
	f.String("ocr-image", d.OCRImage, "container image providing pdftoppm and tesseract")
	f.Int("dpi", d.DPI, "OCR render resolution")
	f.String("language", d.Language, "tesseract language")
	addWorkspaceFlags(f)

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, workspaceFlags, convertFlags)
	if err != nil {
		return err
	}
	backend, _ := cmd.Flags().GetString("backend")
	image, _ := cmd.Flags().GetString("image")

	ex, err := convertBackend(backend, image, cfg.Convert)
	if err != nil {
		return err
	}

	res := convert.ConvertFolder(context.Background(), ex, cfg.Workspace.PDFDir, cfg.Workspace.TXTDir, logger, os.Stdout)
	if res.HasFailures() {
		return fmt.Errorf("%d PDF(s) failed conversion", res.Failed)
	}
	return nil
}

func convertBackend(backend, image string, cfg types.ConvertConfig) (convert.Extractor, error) {
	switch backend {
	case "auto", "":
		cfg.OCR = true
		return newExtractor(cfg, logger), nil
	case "pdf":
		return convert.NewPDFExtractor(logger), nil
	case "ocr":
		tools, err := container.DetectToolchain(convert.OCRTools, cfg.OCRImage)
		if err != nil {
			return nil, err
		}
		return convert.NewOCRExtractor(tools, cfg.DPI, cfg.Language, logger), nil
	case "image":
		rt, err := container.DetectRuntime()
		if err != nil {
			return nil, err
		}
		return convert.NewImageExtractor(rt, image)
	}
	return nil, fmt.Errorf("unknown backend %q: use auto, pdf, ocr, or image", backend)
}

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pkg/errors"

	"github.com/m3n3sx/faktulove-ocr/internal/document"
	"github.com/m3n3sx/faktulove-ocr/internal/errdefs"
)

// Preprocessor turns one input document into one or more page documents
// ready for recognition. Preprocessing failure is recoverable: the
// orchestrator can fall back to the unmodified input.
type Preprocessor interface {
	Preprocess(ctx context.Context, doc document.Document) ([]document.Document, error)
}

// Passthrough hands the document through unchanged. Default for single-page
// image inputs.
type Passthrough struct{}

func (Passthrough) Preprocess(_ context.Context, doc document.Document) ([]document.Document, error) {
	return []document.Document{doc}, nil
}

// PDFSplitter splits a PDF payload into single-page PDF documents so each
// page is recognized independently. Non-PDF inputs pass through unchanged.
type PDFSplitter struct{}

func (PDFSplitter) Preprocess(ctx context.Context, doc document.Document) ([]document.Document, error) {
	if doc.MimeType != document.MimePDF {
		return []document.Document{doc}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, errdefs.NewTimeoutError("preprocess cancelled: %v", err)
	}

	tempDir, err := os.MkdirTemp("", "ocr-split-*")
	if err != nil {
		return nil, errdefs.NewProcessingError("create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(sourcePath, doc.Data, 0o600); err != nil {
		return nil, errdefs.NewProcessingError("write source pdf: %v", err)
	}

	outDir := filepath.Join(tempDir, "pages")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return nil, errdefs.NewProcessingError("create pages dir: %v", err)
	}
	if err := api.SplitFile(sourcePath, outDir, 1, nil); err != nil {
		return nil, errdefs.NewProcessingError("split pdf: %v", errors.Wrap(err, "pdfcpu"))
	}

	pages, err := readPages(outDir, "source")
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, errdefs.NewProcessingError("pdf split produced no pages")
	}
	return pages, nil
}

// readPages collects the split output in page order. pdfcpu names each page
// <base>_<n>.pdf with n starting at 1.
func readPages(dir, base string) ([]document.Document, error) {
	var pages []document.Document
	for n := 1; ; n++ {
		name := filepath.Join(dir, fmt.Sprintf("%s_%d.pdf", base, n))
		data, err := os.ReadFile(name)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return nil, errdefs.NewProcessingError("read page file: %v", err)
		}
		pages = append(pages, document.New(data, document.MimePDF))
	}
	return pages, nil
}

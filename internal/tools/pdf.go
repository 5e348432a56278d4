package tools

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/toolscheap/toolscheap/internal/apperror"
)

// pdfConf returns a configuration with validation relaxed, since documents
// from consumer scanners are frequently not strictly conformant.
func pdfConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// MergePDFs concatenates the given documents in order into one PDF.
func MergePDFs(inputs [][]byte) ([]byte, error) {
	if len(inputs) < 2 {
		return nil, apperror.WithMessage(apperror.ErrBadRequest, "pdf merge needs at least two files")
	}

	readers := make([]io.ReadSeeker, len(inputs))
	for i, data := range inputs {
		readers[i] = bytes.NewReader(data)
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, pdfConf()); err != nil {
		return nil, apperror.Wrap(fmt.Errorf("merge pdfs: %w", err),
			apperror.WithMessage(apperror.ErrBadRequest, "one of the files is not a readable PDF"))
	}
	return out.Bytes(), nil
}

// ExtractPDFPages produces a new PDF containing only the selected pages.
// pages uses pdfcpu selection syntax, e.g. "1-3,7".
func ExtractPDFPages(input []byte, pages string) ([]byte, error) {
	selection := parsePageSelection(pages)
	if len(selection) == 0 {
		return nil, apperror.WithMessage(apperror.ErrBadRequest, "no pages selected")
	}

	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(input), &out, selection, pdfConf()); err != nil {
		return nil, apperror.Wrap(fmt.Errorf("extract pdf pages %q: %w", pages, err),
			apperror.WithMessage(apperror.ErrBadRequest, "could not extract those pages; check the file and page range"))
	}
	return out.Bytes(), nil
}

func parsePageSelection(pages string) []string {
	var selection []string
	for _, part := range strings.Split(pages, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			selection = append(selection, part)
		}
	}
	return selection
}

package tools

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/toolscheap/toolscheap/internal/apperror"
)

// ExcelCleanOptions selects which cleanup passes run over a workbook.
type ExcelCleanOptions struct {
	DropEmptyRows    bool
	TrimWhitespace   bool
	RemoveDuplicates bool
}

// CleanWorkbook rewrites every sheet with the requested cleanup passes
// applied: trimming cell whitespace, dropping rows with no content, and
// removing exact duplicate rows (first occurrence wins). Formatting is not
// preserved; the output carries values only.
func CleanWorkbook(input []byte, opts ExcelCleanOptions) ([]byte, error) {
	src, err := excelize.OpenReader(bytes.NewReader(input))
	if err != nil {
		return nil, apperror.Wrap(fmt.Errorf("open workbook: %w", err),
			apperror.WithMessage(apperror.ErrBadRequest, "the file is not a readable Excel workbook"))
	}
	defer func() { _ = src.Close() }()

	dst := excelize.NewFile()
	defer func() { _ = dst.Close() }()

	for i, sheet := range src.GetSheetList() {
		rows, err := src.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		rows = cleanRows(rows, opts)

		if i == 0 {
			// Rename the default sheet rather than leaving an empty one.
			if err := dst.SetSheetName("Sheet1", sheet); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := dst.NewSheet(sheet); err != nil {
				return nil, fmt.Errorf("create sheet %q: %w", sheet, err)
			}
		}

		for rowIdx, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, rowIdx+1)
			if err != nil {
				return nil, fmt.Errorf("cell name for row %d: %w", rowIdx+1, err)
			}
			values := make([]any, len(row))
			for c, v := range row {
				values[c] = v
			}
			if err := dst.SetSheetRow(sheet, cell, &values); err != nil {
				return nil, fmt.Errorf("write row %d of %q: %w", rowIdx+1, sheet, err)
			}
		}
	}

	buf, err := dst.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func cleanRows(rows [][]string, opts ExcelCleanOptions) [][]string {
	out := make([][]string, 0, len(rows))
	seen := make(map[string]struct{})

	for _, row := range rows {
		if opts.TrimWhitespace {
			for c, v := range row {
				row[c] = strings.TrimSpace(v)
			}
		}
		if opts.DropEmptyRows && rowEmpty(row) {
			continue
		}
		if opts.RemoveDuplicates {
			key := strings.Join(row, "\x1f")
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, row)
	}
	return out
}

func rowEmpty(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/toolscheap/toolscheap/internal/apperror"
)

// JSONFormatOptions controls the formatter. Indent is ignored when Minify
// is set.
type JSONFormatOptions struct {
	Minify   bool   `json:"minify,omitempty"`
	Indent   int    `json:"indent,omitempty"`
	SortKeys bool   `json:"sortKeys,omitempty"`
	Prefix   string `json:"-"`
}

// FormatJSON pretty-prints or minifies a JSON document. Invalid JSON is a
// validation error, never a server fault.
func FormatJSON(input []byte, opts JSONFormatOptions) ([]byte, error) {
	if !json.Valid(input) {
		return nil, apperror.WithMessage(apperror.ErrBadRequest, "input is not valid JSON")
	}

	if opts.SortKeys {
		// Round-tripping through interface{} sorts object keys, since
		// encoding/json marshals maps in key order.
		var v any
		if err := json.Unmarshal(input, &v); err != nil {
			return nil, apperror.WithMessage(apperror.ErrBadRequest, "input is not valid JSON")
		}
		sorted, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("re-marshal json: %w", err)
		}
		input = sorted
	}

	var out bytes.Buffer
	if opts.Minify {
		if err := json.Compact(&out, input); err != nil {
			return nil, apperror.WithMessage(apperror.ErrBadRequest, "input is not valid JSON")
		}
		return out.Bytes(), nil
	}

	indent := opts.Indent
	if indent <= 0 || indent > 8 {
		indent = 2
	}
	if err := json.Indent(&out, input, opts.Prefix, spaces(indent)); err != nil {
		return nil, apperror.WithMessage(apperror.ErrBadRequest, "input is not valid JSON")
	}
	return out.Bytes(), nil
}

func spaces(n int) string {
	const pad = "        "
	return pad[:n]
}

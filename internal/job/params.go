package job

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Tool parameters travel as a JSON envelope: {"tool": "...", "options": {...}}.
// The envelope is stored verbatim on the job row so a worker can decode the
// exact options the client submitted, and so the schema of one tool can evolve
// without touching the others.

var ErrParamsMismatch = errors.New("job: params do not match tool type")

// VideoCompressParams controls the ffmpeg transcode. When Bitrate is set it
// takes precedence and CRF is ignored. Width/Height of 0 keep the source
// dimension; setting only one scales the other to preserve aspect ratio.
type VideoCompressParams struct {
	CRF     int    `json:"crf,omitempty"`
	Bitrate string `json:"bitrate,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Preset  string `json:"preset,omitempty"`
}

const (
	DefaultCRF = 23
	MinCRF     = 18
	MaxCRF     = 28

	DefaultPreset = "medium"
)

// Normalize fills defaults and clamps CRF into the supported quality range.
func (p *VideoCompressParams) Normalize() {
	if p.CRF == 0 {
		p.CRF = DefaultCRF
	}
	if p.CRF < MinCRF {
		p.CRF = MinCRF
	}
	if p.CRF > MaxCRF {
		p.CRF = MaxCRF
	}
	if p.Preset == "" {
		p.Preset = DefaultPreset
	}
	if p.Width < 0 {
		p.Width = 0
	}
	if p.Height < 0 {
		p.Height = 0
	}
}

// ImageCompressParams controls lossy image recompression.
type ImageCompressParams struct {
	Quality  int `json:"quality,omitempty"`
	MaxWidth int `json:"maxWidth,omitempty"`
}

func (p *ImageCompressParams) Normalize() {
	if p.Quality <= 0 || p.Quality > 100 {
		p.Quality = 80
	}
	if p.MaxWidth < 0 {
		p.MaxWidth = 0
	}
}

// PdfMergeParams lists the additional input files to append after the
// primary input, in order.
type PdfMergeParams struct {
	ExtraFileKeys []string `json:"extraFileKeys,omitempty"`
}

// PdfSplitParams selects the page ranges to extract, e.g. "1-3,7".
type PdfSplitParams struct {
	Pages string `json:"pages,omitempty"`
}

// ExcelCleanParams selects which cleanup passes to run on a workbook.
type ExcelCleanParams struct {
	DropEmptyRows    bool `json:"dropEmptyRows"`
	TrimWhitespace   bool `json:"trimWhitespace"`
	RemoveDuplicates bool `json:"removeDuplicates"`
}

func (p *ExcelCleanParams) Normalize() {
	if !p.DropEmptyRows && !p.TrimWhitespace && !p.RemoveDuplicates {
		p.DropEmptyRows = true
		p.TrimWhitespace = true
	}
}

// AiSummarizeParams controls summary generation.
type AiSummarizeParams struct {
	MaxWords int    `json:"maxWords,omitempty"`
	Language string `json:"language,omitempty"`
}

func (p *AiSummarizeParams) Normalize() {
	if p.MaxWords <= 0 {
		p.MaxWords = 300
	}
	if p.Language == "" {
		p.Language = "en"
	}
}

type envelope struct {
	Tool    ToolType        `json:"tool"`
	Options json.RawMessage `json:"options,omitempty"`
}

// EncodeParams wraps tool options in the storage envelope. options may be nil
// for tools that take none.
func EncodeParams(tool ToolType, options any) ([]byte, error) {
	if !ValidTool(tool) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTool, tool)
	}
	env := envelope{Tool: tool}
	if options != nil {
		raw, err := json.Marshal(options)
		if err != nil {
			return nil, fmt.Errorf("encode %s options: %w", tool, err)
		}
		env.Options = raw
	}
	return json.Marshal(env)
}

// DecodeParams unmarshals the envelope into dst after checking the tool tag
// matches what the caller expects. A missing options object leaves dst at
// its zero value so Normalize can apply defaults.
func DecodeParams(data []byte, tool ToolType, dst any) error {
	if len(data) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode params envelope: %w", err)
	}
	if env.Tool != tool {
		return fmt.Errorf("%w: have %q, want %q", ErrParamsMismatch, env.Tool, tool)
	}
	if len(env.Options) == 0 || dst == nil {
		return nil
	}
	if err := json.Unmarshal(env.Options, dst); err != nil {
		return fmt.Errorf("decode %s options: %w", tool, err)
	}
	return nil
}

// ParamsTool reads just the tool tag from an encoded envelope.
func ParamsTool(data []byte) (ToolType, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode params envelope: %w", err)
	}
	return env.Tool, nil
}

package api

import (
	"path/filepath"
	"strings"

	"github.com/toolscheap/toolscheap/internal/apperror"
	"github.com/toolscheap/toolscheap/internal/job"
)

// toolExtensions is the per-tool upload allowlist. The worker trusts its
// input, so the gate lives here at the edge.
var toolExtensions = map[job.ToolType][]string{
	job.ToolPdfMerge:              {".pdf"},
	job.ToolPdfSplit:              {".pdf"},
	job.ToolImageCompress:         {".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".webp"},
	job.ToolImageRemoveBackground: {".jpg", ".jpeg", ".png", ".webp"},
	job.ToolDocToPdf:              {".doc", ".docx", ".odt", ".rtf", ".txt", ".ppt", ".pptx"},
	job.ToolExcelClean:            {".xlsx", ".xlsm"},
	job.ToolAiSummarize:           {".pdf", ".txt", ".md"},
	job.ToolJsonFormat:            {".json", ".txt"},
	job.ToolVideoCompress:         {".mp4", ".mov", ".avi", ".mkv", ".webm", ".mpeg", ".mpg"},
}

// blockedExtensions are never accepted regardless of tool, to keep
// executables out of storage entirely.
var blockedExtensions = map[string]bool{
	".exe": true,
	".bat": true,
	".cmd": true,
	".com": true,
	".msi": true,
	".scr": true,
	".sh":  true,
	".ps1": true,
	".vbs": true,
	".js":  true,
	".jar": true,
	".php": true,
	".dll": true,
	".so":  true,
}

// ValidateUpload checks a filename against the tool's allowlist.
func ValidateUpload(tool job.ToolType, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return apperror.WithMessage(apperror.ErrInvalidFileType, "file has no extension")
	}
	if blockedExtensions[ext] {
		return apperror.WithMessage(apperror.ErrInvalidFileType, "file type not allowed")
	}

	allowed, ok := toolExtensions[tool]
	if !ok {
		return nil
	}
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return apperror.WithMessage(apperror.ErrInvalidFileType,
		"unsupported file type "+ext+" for tool "+string(tool))
}

package ingestion

import (
	"path/filepath"
	"strings"
)

// Format identifies the extraction strategy for an uploaded file.
type Format string

const (
	// FormatUnknown marks a file whose extension is not supported.
	FormatUnknown Format = ""
	// FormatPDF is a PDF document.
	FormatPDF Format = "pdf"
	// FormatDOCX is an Office Open XML word-processing document.
	FormatDOCX Format = "docx"
	// FormatText is any plain-text file (markdown, txt, csv, logs).
	FormatText Format = "text"
)

// Structured reports whether the format needs a document parser rather than
// a plain-text decoder.
func (f Format) Structured() bool {
	return f == FormatPDF || f == FormatDOCX
}

// extensionFormats maps a lower-cased file extension to its format.
var extensionFormats = map[string]Format{
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatText,
	".markdown": FormatText,
	".rst":      FormatText,
	".csv":      FormatText,
	".log":      FormatText,
}

// Metadata holds what can be inferred about an upload from its name alone.
type Metadata struct {
	// Format is the extraction strategy. FormatUnknown if unsupported.
	Format Format
	// Title is a human-readable document title derived from the filename.
	Title string
}

// InferMetadata inspects filename and returns its format and a display
// title. Unknown extensions yield FormatUnknown; the caller decides whether
// that is an error.
func InferMetadata(filename string) Metadata {
	base := filepath.Base(strings.TrimSpace(filename))
	ext := strings.ToLower(filepath.Ext(base))

	title := strings.TrimSuffix(base, filepath.Ext(base))
	title = strings.NewReplacer("_", " ", "-", " ").Replace(title)
	title = strings.Join(strings.Fields(title), " ")
	if title == "" || title == "." {
		title = base
	}

	return Metadata{
		Format: extensionFormats[ext],
		Title:  title,
	}
}

// SupportedExtensions returns the accepted file extensions, for help text
// and upload form hints.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".txt", ".md", ".markdown", ".text", ".rst", ".csv", ".log"}
}

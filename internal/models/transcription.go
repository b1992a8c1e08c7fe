package models

import (
	"io"
	"strings"
)

type OutputFormat string

const (
	FormatText     OutputFormat = "text"
	FormatSubtitle OutputFormat = "subtitle"

	// DefaultRequestedFormat is used when the client sends no format field.
	DefaultRequestedFormat = "txt"
	DefaultFilename        = "unknown"
)

// ParseOutputFormat maps the client-facing format value. "txt" selects plain
// text; any other value selects subtitles.
func ParseOutputFormat(requested string) OutputFormat {
	if strings.TrimSpace(requested) == "" || strings.EqualFold(strings.TrimSpace(requested), DefaultRequestedFormat) {
		return FormatText
	}
	return FormatSubtitle
}

// TranscriptionRequest lives for one orchestrated call and is never persisted.
type TranscriptionRequest struct {
	Credential      string
	Filename        string
	RequestedFormat string
	Audio           io.Reader
}

func (r TranscriptionRequest) Format() OutputFormat { return ParseOutputFormat(r.RequestedFormat) }

// TranscriptionResult is what the orchestrator hands back to the transport.
type TranscriptionResult struct {
	Format OutputFormat
	Text   string

	// Subtitle output, set when Format is FormatSubtitle.
	Subtitle         []byte
	SubtitleFilename string
}

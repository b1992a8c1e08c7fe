package stt

import (
	"context"

	"github.com/yoockh/yoscribe/internal/models"
	"github.com/yoockh/yoscribe/internal/utils"
)

type Provider interface {
	// Transcribe makes exactly one provider call. Failures are returned as
	// utils.CodeProviderFailure errors carrying the provider's message.
	Transcribe(ctx context.Context, req Request) (*Result, error)
	Close() error
}

type Request struct {
	AudioPath string
	Format    models.OutputFormat
	Language  string // e.g. "zh", "en"
}

type Result struct {
	Format models.OutputFormat
	// Content is plain text for FormatText and SRT for FormatSubtitle.
	Content string
}

func failure(op, message string, err error) error {
	if message == "" && err != nil {
		message = err.Error()
	}
	return utils.E(utils.CodeProviderFailure, op, message, err)
}

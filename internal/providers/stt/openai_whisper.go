package stt

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/yoockh/yoscribe/internal/models"
)

const defaultWhisperTimeout = 5 * time.Minute

type OpenAIWhisperConfig struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible endpoints
	Model   string
	Timeout time.Duration
}

type OpenAIWhisper struct {
	c     *openai.Client
	model string
}

func NewOpenAIWhisper(cfg OpenAIWhisperConfig) *OpenAIWhisper {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultWhisperTimeout
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIWhisper{c: openai.NewClientWithConfig(oc), model: model}
}

func (w *OpenAIWhisper) Close() error { return nil }

func (w *OpenAIWhisper) Transcribe(ctx context.Context, req Request) (*Result, error) {
	const op = "OpenAIWhisper.Transcribe"

	if req.AudioPath == "" {
		return nil, failure(op, "audio path is required", nil)
	}

	format := openai.AudioResponseFormatText
	if req.Format == models.FormatSubtitle {
		format = openai.AudioResponseFormatSRT
	}

	resp, err := w.c.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: req.AudioPath,
		Language: req.Language,
		Format:   format,
	})
	if err != nil {
		return nil, failure(op, providerMessage(err), err)
	}

	return &Result{Format: req.Format, Content: resp.Text}, nil
}

// providerMessage extracts the message the API returned, falling back to the
// transport error text.
func providerMessage(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

var _ Provider = (*OpenAIWhisper)(nil)

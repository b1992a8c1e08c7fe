package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoscribe/internal/models"
	"github.com/yoockh/yoscribe/internal/providers/stt"
	"github.com/yoockh/yoscribe/internal/storage"
	"github.com/yoockh/yoscribe/internal/utils"
)

const (
	defaultAudioSuffix = ".mp3"
	subtitleSuffix     = ".srt"
)

var audioSuffixes = map[string]bool{
	".mp3": true, ".mp4": true, ".mpeg": true, ".mpga": true, ".m4a": true,
	".wav": true, ".webm": true, ".ogg": true, ".oga": true, ".flac": true,
}

type TranscriptionService interface {
	Transcribe(ctx context.Context, req models.TranscriptionRequest) (*models.TranscriptionResult, error)
}

// AuditAppender is the write side of the audit log.
type AuditAppender interface {
	Append(ctx context.Context, e models.AuditEntry) error
}

type transcriptionService struct {
	auth      AuthService
	artifacts storage.Artifacts
	provider  stt.Provider
	audit     AuditAppender
	language  string
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewTranscriptionService(auth AuthService, artifacts storage.Artifacts, provider stt.Provider, audit AuditAppender, language string, log logrus.FieldLogger) TranscriptionService {
	return &transcriptionService{
		auth:      auth,
		artifacts: artifacts,
		provider:  provider,
		audit:     audit,
		language:  language,
		log:       log,
		now:       time.Now,
	}
}

// Transcribe runs one request through authenticate, store, transcribe, log
// and release. Once the credential is accepted, exactly one audit entry is
// written and every artifact is removed, on every return path.
func (s *transcriptionService) Transcribe(ctx context.Context, req models.TranscriptionRequest) (res *models.TranscriptionResult, err error) {
	const op = "TranscriptionService.Transcribe"

	if !s.auth.AllowedRequester(req.Credential) {
		return nil, utils.E(utils.CodeUnauthorized, op, "Unauthorized", nil)
	}
	if req.Audio == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "No audio file uploaded.", nil)
	}

	requested := strings.TrimSpace(req.RequestedFormat)
	if requested == "" {
		requested = models.DefaultRequestedFormat
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = models.DefaultFilename
	}
	format := models.ParseOutputFormat(requested)

	log := s.log.WithFields(logrus.Fields{"filename": filename, "format": requested})

	var held []*storage.Artifact
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("transcription panicked")
			res, err = nil, utils.E(utils.CodeInternal, op, fmt.Sprintf("internal error: %v", r), nil)
		}

		entry := models.AuditEntry{
			User:      req.Credential,
			Filename:  filename,
			Format:    requested,
			Timestamp: s.now().UTC(),
			Status:    models.AuditStatusSuccess,
		}
		if err != nil {
			entry.Status = utils.MessageOf(err)
		}
		if aerr := s.audit.Append(context.WithoutCancel(ctx), entry); aerr != nil {
			log.WithError(aerr).Error("audit append failed")
			if err == nil {
				res, err = nil, aerr
			}
		}

		for _, a := range held {
			if rerr := s.artifacts.Release(a); rerr != nil {
				log.WithError(rerr).WithField("path", a.Path).Error("artifact release failed")
			}
		}
	}()

	audio, err := s.artifacts.Acquire(ctx, req.Audio, audioSuffix(filename))
	if err != nil {
		return nil, err
	}
	held = append(held, audio)

	out, err := s.provider.Transcribe(ctx, stt.Request{AudioPath: audio.Path, Format: format, Language: s.language})
	if err != nil {
		if !utils.IsCode(err, utils.CodeProviderFailure) {
			err = utils.E(utils.CodeProviderFailure, op, err.Error(), err)
		}
		log.WithError(err).Warn("provider call failed")
		return nil, err
	}

	if format == models.FormatText {
		return &models.TranscriptionResult{Format: format, Text: out.Content}, nil
	}

	srt, err := s.artifacts.WriteDerived(audio, subtitleSuffix, []byte(out.Content))
	if err != nil {
		return nil, err
	}
	held = append(held, srt)

	body, err := s.artifacts.ReadAll(srt)
	if err != nil {
		return nil, err
	}
	return &models.TranscriptionResult{
		Format:           format,
		Subtitle:         body,
		SubtitleFilename: subtitleName(filename),
	}, nil
}

func audioSuffix(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if audioSuffixes[ext] {
		return ext
	}
	return defaultAudioSuffix
}

func subtitleName(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		base = models.DefaultFilename
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + subtitleSuffix
}

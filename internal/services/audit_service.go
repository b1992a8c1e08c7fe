package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoscribe/internal/models"
	"github.com/yoockh/yoscribe/internal/repositories/auditlog"
	"github.com/yoockh/yoscribe/internal/storage"
	"github.com/yoockh/yoscribe/internal/utils"
)

type AuditReport struct {
	Entries   []models.AuditEntry // newest first
	Total     int
	Succeeded int
	Failed    int
}

type AuditService interface {
	Report(ctx context.Context) (*AuditReport, error)
	ExportCSV(ctx context.Context, w io.Writer) error
	// Archive copies both sinks to remote storage. It returns the stored
	// object paths, or nothing when no uploader is configured.
	Archive(ctx context.Context) ([]string, error)
}

type auditService struct {
	repo     auditlog.AuditRepository
	uploader storage.Uploader
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewAuditService(repo auditlog.AuditRepository, uploader storage.Uploader, log logrus.FieldLogger) AuditService {
	return &auditService{repo: repo, uploader: uploader, log: log, now: time.Now}
}

func (s *auditService) Report(ctx context.Context) (*AuditReport, error) {
	const op = "AuditService.Report"

	entries, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeStorageFault, op, "failed to load audit log", err)
	}

	rep := &AuditReport{Entries: slices.Clone(entries), Total: len(entries)}
	slices.Reverse(rep.Entries)
	for _, e := range entries {
		if e.Succeeded() {
			rep.Succeeded++
		}
	}
	rep.Failed = rep.Total - rep.Succeeded
	return rep, nil
}

func (s *auditService) ExportCSV(ctx context.Context, w io.Writer) error {
	return s.repo.ExportCSV(ctx, w)
}

func (s *auditService) Archive(ctx context.Context) ([]string, error) {
	const op = "AuditService.Archive"

	if s.uploader == nil {
		return nil, nil
	}

	// both files come from one snapshot so the archive is self-consistent
	entries, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	collection, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode audit collection", err)
	}
	var table bytes.Buffer
	cw := csv.NewWriter(&table)
	_ = cw.Write(models.CSVHeader)
	for _, e := range entries {
		_ = cw.Write(e.Row())
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode audit table", err)
	}

	prefix := "audit/" + s.now().UTC().Format("20060102T150405Z") + "/"
	objects := []struct {
		name, contentType string
		body              []byte
	}{
		{prefix + auditlog.CollectionFile, "application/json", collection},
		{prefix + auditlog.TableFile, "text/csv", table.Bytes()},
	}

	stored := make([]string, 0, len(objects))
	for _, o := range objects {
		p, err := s.uploader.Upload(ctx, o.name, o.contentType, bytes.NewReader(o.body))
		if err != nil {
			return stored, utils.E(utils.CodeUnavailable, op, "failed to upload audit archive", err)
		}
		stored = append(stored, p)
	}
	s.log.WithFields(logrus.Fields{"objects": stored, "entries": len(entries)}).Info("audit log archived")
	return stored, nil
}

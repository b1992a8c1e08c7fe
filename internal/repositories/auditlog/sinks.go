package auditlog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/yoockh/yoscribe/internal/models"
)

const tempPattern = ".audit-*.tmp"

// readCollection loads the structured sink. A missing file reads as empty.
func readCollection(path string) ([]models.AuditEntry, bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return []models.AuditEntry{}, true, nil
	}
	var entries []models.AuditEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, true, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return entries, true, nil
}

// writeCollection replaces the structured sink via temp file + rename, so a
// reader sees either the old or the new collection.
func writeCollection(path string, entries []models.AuditEntry) error {
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	})
}

// writeTable rebuilds the tabular sink from entries.
func writeTable(path string, entries []models.AuditEntry) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(models.CSVHeader); err != nil {
			return err
		}
		for _, e := range entries {
			if err := cw.Write(e.Row()); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// appendRow adds a single row to the end of the tabular sink.
func appendRow(path string, e models.AuditEntry) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(e.Row()); err != nil {
		_ = f.Close()
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// readTable returns the data rows of the tabular sink. ok is false when the
// file is missing or its header is not the expected one.
func readTable(path string) (rows [][]string, ok bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		// a torn trailing row is reported as a parse error; treat as divergent
		return nil, false, nil
	}
	if len(all) == 0 || !slices.Equal(all[0], models.CSVHeader) {
		return nil, false, nil
	}
	return all[1:], true, nil
}

func entriesFromRows(rows [][]string) ([]models.AuditEntry, error) {
	out := make([]models.AuditEntry, 0, len(rows))
	for i, row := range rows {
		if len(row) != len(models.CSVHeader) {
			return nil, fmt.Errorf("row %d: expected %d fields, got %d", i+1, len(models.CSVHeader), len(row))
		}
		ts, err := time.Parse(time.RFC3339, row[3])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, models.AuditEntry{User: row[0], Filename: row[1], Format: row[2], Timestamp: ts.UTC(), Status: row[4]})
	}
	return out, nil
}

func sinksMatch(entries []models.AuditEntry, rows [][]string) bool {
	if len(entries) != len(rows) {
		return false
	}
	for i, e := range entries {
		if !slices.Equal(e.Row(), rows[i]) {
			return false
		}
	}
	return true
}

func writeAtomic(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op once renamed

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func removeStaleTemps(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, tempPattern))
	if err != nil {
		return 0, err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
	}
	return len(matches), nil
}

// fileSize treats a missing file as empty.
func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

package models

import "time"

const AuditStatusSuccess = "success"

// AuditEntry is one immutable record of a transcription request outcome.
type AuditEntry struct {
	User      string    `json:"user"`
	Filename  string    `json:"filename"`
	Format    string    `json:"format"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"` // "success" or the error message
}

func (e AuditEntry) Succeeded() bool { return e.Status == AuditStatusSuccess }

// CSVHeader is the column order of the tabular audit sink.
var CSVHeader = []string{"user", "filename", "format", "timestamp", "status"}

// Row renders the entry as a tabular sink row, in CSVHeader order.
func (e AuditEntry) Row() []string {
	return []string{e.User, e.Filename, e.Format, e.Timestamp.UTC().Format(time.RFC3339), e.Status}
}

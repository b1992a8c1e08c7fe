package auditlog

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoscribe/internal/models"
	"github.com/yoockh/yoscribe/internal/utils"
)

const (
	CollectionFile = "audit_log.json"
	TableFile      = "audit_log.csv"

	publishTimeout = 2 * time.Second
	publishBuffer  = 1024
)

type AuditRepository interface {
	Append(ctx context.Context, e models.AuditEntry) error
	ListAll(ctx context.Context) ([]models.AuditEntry, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}

// Publisher receives entries after they are committed to both sinks. Calls
// are made from a single goroutine, in commit order.
type Publisher interface {
	Publish(ctx context.Context, e models.AuditEntry) error
}

// Store keeps the audit log as a JSON collection plus a CSV export of the
// same entries. All mutation goes through Append, which holds the write lock
// for the whole read-modify-write of both files.
type Store struct {
	mu         sync.RWMutex
	dir        string
	collection string
	table      string

	pub     Publisher
	pubCh   chan models.AuditEntry
	pubDone chan struct{}
	closed  bool

	log    logrus.FieldLogger
	broken error
}

type Option func(*Store)

func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.pub = p }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

// ReconcileReport describes what Reconcile had to repair.
type ReconcileReport struct {
	Entries       int
	PreviousRows  int
	StaleTemps    int
	CreatedSinks  bool
	TableRebuilt  bool
	SeededFromCSV bool
}

// Open prepares both sinks under dir, creating them if absent, and
// reconciles the CSV against the JSON collection.
func Open(dir string, opts ...Option) (*Store, error) {
	const op = "auditlog.Open"

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, utils.E(utils.CodeStorageFault, op, "invalid audit dir", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, utils.E(utils.CodeStorageFault, op, "failed to create audit dir", err)
	}

	s := &Store{
		dir:        abs,
		collection: filepath.Join(abs, CollectionFile),
		table:      filepath.Join(abs, TableFile),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}

	rep, err := s.Reconcile()
	if err != nil {
		return nil, err
	}
	if s.pub != nil {
		s.pubCh = make(chan models.AuditEntry, publishBuffer)
		s.pubDone = make(chan struct{})
		go s.runPublisher()
	}
	s.log.WithFields(logrus.Fields{
		"dir":           abs,
		"entries":       rep.Entries,
		"table_rebuilt": rep.TableRebuilt,
		"stale_temps":   rep.StaleTemps,
	}).Info("audit log opened")
	return s, nil
}

func (s *Store) CollectionPath() string { return s.collection }
func (s *Store) TablePath() string      { return s.table }

// Reconcile brings the CSV back in line with the JSON collection. It runs at
// Open and may be called again to clear a failed state.
func (s *Store) Reconcile() (ReconcileReport, error) {
	const op = "auditlog.Reconcile"

	s.mu.Lock()
	defer s.mu.Unlock()

	var rep ReconcileReport

	n, err := removeStaleTemps(s.dir)
	if err != nil {
		return rep, utils.E(utils.CodeStorageFault, op, "failed to remove stale temp files", err)
	}
	rep.StaleTemps = n

	entries, exists, err := readCollection(s.collection)
	if err != nil {
		return rep, utils.E(utils.CodeLogInconsistency, op, "audit collection is unreadable", err)
	}
	rows, tableOK, err := readTable(s.table)
	if err != nil {
		return rep, utils.E(utils.CodeStorageFault, op, "failed to read audit table", err)
	}
	rep.PreviousRows = len(rows)

	if !exists {
		rep.CreatedSinks = true
		if tableOK && len(rows) > 0 {
			seeded, err := entriesFromRows(rows)
			if err != nil {
				return rep, utils.E(utils.CodeLogInconsistency, op, "audit table cannot seed a missing collection", err)
			}
			entries = seeded
			rep.SeededFromCSV = true
		}
		if err := writeCollection(s.collection, entries); err != nil {
			return rep, utils.E(utils.CodeStorageFault, op, "failed to create audit collection", err)
		}
	}

	if !tableOK || !sinksMatch(entries, rows) {
		if err := writeTable(s.table, entries); err != nil {
			return rep, utils.E(utils.CodeStorageFault, op, "failed to rebuild audit table", err)
		}
		if exists {
			rep.TableRebuilt = true
			s.log.WithFields(logrus.Fields{
				"entries": len(entries),
				"rows":    len(rows),
			}).Warn("audit table diverged from collection; rebuilt")
		}
	}

	rep.Entries = len(entries)
	s.broken = nil
	return rep, nil
}

// Append commits e to both sinks. Concurrent calls are serialized. On
// return, either both sinks contain e, or neither does, or the store reports
// LOG_INCONSISTENCY and rejects further appends until Reconcile succeeds.
func (s *Store) Append(_ context.Context, e models.AuditEntry) error {
	const op = "auditlog.Append"

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	// the CSV carries second precision; keep both sinks identical
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken != nil {
		return utils.E(utils.CodeLogInconsistency, op, "audit log sinks are inconsistent", s.broken)
	}

	prev, exists, err := readCollection(s.collection)
	if err != nil {
		return utils.E(utils.CodeStorageFault, op, "failed to read audit collection", err)
	}
	if !exists {
		// only Reconcile may recreate the collection from a non-empty table
		rows, _, err := readTable(s.table)
		if err != nil {
			return utils.E(utils.CodeStorageFault, op, "failed to read audit table", err)
		}
		if len(rows) > 0 {
			s.broken = errors.New("audit collection missing while the table holds entries")
			s.log.WithField("rows", len(rows)).Error("audit collection disappeared")
			return utils.E(utils.CodeLogInconsistency, op, "audit log sinks are inconsistent", s.broken)
		}
	}
	tableSize, err := fileSize(s.table)
	if err != nil {
		return utils.E(utils.CodeStorageFault, op, "failed to stat audit table", err)
	}

	next := make([]models.AuditEntry, len(prev), len(prev)+1)
	copy(next, prev)
	next = append(next, e)

	if err := writeCollection(s.collection, next); err != nil {
		return utils.E(utils.CodeStorageFault, op, "failed to write audit collection", err)
	}

	if err := appendRow(s.table, e); err != nil {
		kept, rerr := s.repair(next, prev, tableSize)
		if rerr != nil {
			s.broken = errors.Join(err, rerr)
			s.log.WithError(s.broken).Error("audit sinks diverged")
			return utils.E(utils.CodeLogInconsistency, op, "audit log sinks are inconsistent", s.broken)
		}
		if !kept {
			return utils.E(utils.CodeStorageFault, op, "failed to append audit row", err)
		}
		s.log.WithError(err).Warn("audit row append failed; table rebuilt from collection")
	}

	if s.pubCh != nil && !s.closed {
		select {
		case s.pubCh <- e:
		default:
			s.log.WithField("user", e.User).Warn("audit publish queue full; entry not streamed")
		}
	}
	return nil
}

// Close stops the publisher after it has drained queued entries. The sinks
// stay usable; later appends are simply not streamed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.pubCh != nil {
		close(s.pubCh)
	}
	s.mu.Unlock()

	if s.pubDone != nil {
		<-s.pubDone
	}
	return nil
}

func (s *Store) runPublisher() {
	defer close(s.pubDone)

	for e := range s.pubCh {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := s.pub.Publish(ctx, e); err != nil {
			s.log.WithError(err).Warn("audit publish failed")
		}
		cancel()
	}
}

// repair runs with the lock held after the row append failed while the
// collection already holds next. It first rebuilds the table from next
// (kept=true); failing that it rolls both sinks back to prev (kept=false).
func (s *Store) repair(next, prev []models.AuditEntry, tableSize int64) (kept bool, err error) {
	if err := writeTable(s.table, next); err == nil {
		return true, nil
	}
	if err := os.Truncate(s.table, tableSize); err != nil {
		return false, err
	}
	return false, writeCollection(s.collection, prev)
}

// ListAll returns every committed entry in commit order. It takes no lock:
// the collection is only ever replaced by rename.
func (s *Store) ListAll(_ context.Context) ([]models.AuditEntry, error) {
	const op = "auditlog.ListAll"

	entries, _, err := readCollection(s.collection)
	if err != nil {
		return nil, utils.E(utils.CodeStorageFault, op, "failed to read audit collection", err)
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}

// ExportCSV copies the tabular sink to w. The read lock keeps a concurrent
// Append from exposing a partially written row.
func (s *Store) ExportCSV(_ context.Context, w io.Writer) error {
	const op = "auditlog.ExportCSV"

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.table)
	if err != nil {
		return utils.E(utils.CodeStorageFault, op, "failed to open audit table", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return utils.E(utils.CodeStorageFault, op, "failed to copy audit table", err)
	}
	return nil
}

var _ AuditRepository = (*Store)(nil)

// Package journal persists sync events (base adoptions, time jumps, trigger
// reprogramming, lidar stops) to a local sqlite database.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/camsync/internal/lidar/timesync"
	"github.com/banshee-data/camsync/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultQueueSize bounds the events waiting to be written.
const DefaultQueueSize = 1024

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Journal is an EventSink backed by sqlite. Emit never blocks: events are
// queued and written by a background goroutine, and dropped when the
// queue is full.
type Journal struct {
	db    *sql.DB
	runID string
	logf  monitoring.Logf

	mu     sync.RWMutex
	closed bool // no more events accepted
	shut   bool // database closed
	queue  chan timesync.Event
	done   chan struct{}

	queued  atomic.Uint64
	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Options configures Open.
type Options struct {
	QueueSize int
	Version   string
	Logf      monitoring.Logf
	// ReadOnly opens the journal for Recent only: no run is recorded and
	// emitted events are dropped.
	ReadOnly bool
}

// Open opens (or creates) the journal at path, applies migrations, records
// a new run and starts the writer.
func Open(path string, opts Options) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared between the writer
	// and readers.
	db.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	if err := migrateUp(db, opts.Logf); err != nil {
		db.Close()
		return nil, err
	}

	j := &Journal{
		db:    db,
		runID: uuid.NewString(),
		logf:  monitoring.OrDefault(opts.Logf),
		done:  make(chan struct{}),
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	j.queue = make(chan timesync.Event, size)

	if opts.ReadOnly {
		j.closed = true
		close(j.queue)
		close(j.done)
		return j, nil
	}

	if _, err := db.Exec(`INSERT INTO runs (run_id, started_unix_nanos, version) VALUES (?, ?, ?)`,
		j.runID, time.Now().UnixNano(), opts.Version); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	go j.writer()
	return j, nil
}

func migrateUp(db *sql.DB, logf monitoring.Logf) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logf: monitoring.OrDefault(logf)}
	// Closing m would close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct {
	logf monitoring.Logf
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// RunID identifies this process start in the runs table.
func (j *Journal) RunID() string {
	return j.runID
}

// Emit implements timesync.EventSink.
func (j *Journal) Emit(ev timesync.Event) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}
	select {
	case j.queue <- ev:
		j.queued.Add(1)
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) writer() {
	defer close(j.done)
	for ev := range j.queue {
		if err := j.insert(ev); err != nil {
			if j.failed.Add(1) == 1 {
				j.logf("journal: write failed: %v", err)
			}
			continue
		}
		j.written.Add(1)
	}
}

func (j *Journal) insert(ev timesync.Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	_, err := j.db.Exec(`INSERT INTO sync_events (
			run_id, lidar, kind, camera, event_unix_nanos,
			base_epoch, prev_epoch, delay_us, exposure_us, offset_us, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, ev.Lidar, string(ev.Kind), ev.Camera, ev.Time.UnixNano(),
		ev.BaseEpoch, ev.PrevEpoch, ev.Delay, ev.Exposure, ev.Offset, ev.Detail,
	)
	return err
}

// Flush waits until every event queued before the call has been written
// (or has failed), or ctx ends.
func (j *Journal) Flush(ctx context.Context) error {
	target := j.queued.Load()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for j.written.Load()+j.failed.Load() < target {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-j.done:
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// Stats reports events written, dropped on a full queue, and failed
// inserts.
func (j *Journal) Stats() (written, dropped, failed uint64) {
	return j.written.Load(), j.dropped.Load(), j.failed.Load()
}

// Recent returns up to limit events for lidar, newest first. An empty
// lidar matches every lidar.
func (j *Journal) Recent(ctx context.Context, lidar string, limit int) ([]timesync.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT lidar, kind, camera, event_unix_nanos, base_epoch, prev_epoch,
			delay_us, exposure_us, offset_us, detail
		FROM sync_events`
	args := []any{}
	if lidar != "" {
		query += ` WHERE lidar = ?`
		args = append(args, lidar)
	}
	query += ` ORDER BY event_unix_nanos DESC, event_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []timesync.Event
	for rows.Next() {
		var (
			ev    timesync.Event
			kind  string
			nanos int64
		)
		if err := rows.Scan(&ev.Lidar, &kind, &ev.Camera, &nanos, &ev.BaseEpoch, &ev.PrevEpoch,
			&ev.Delay, &ev.Exposure, &ev.Offset, &ev.Detail); err != nil {
			return nil, err
		}
		ev.Kind = timesync.EventKind(kind)
		ev.Time = time.Unix(0, nanos).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Close stops accepting events, writes what is queued and closes the
// database. It is safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.shut {
		j.mu.Unlock()
		return nil
	}
	j.shut = true
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()

	<-j.done
	return j.db.Close()
}

package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agis/gridcal/internal/contract"
	_ "modernc.org/sqlite"
)

const listEventsQuery = `
SELECT
  COALESCE(id, '') AS id,
  COALESCE(title, '') AS title,
  COALESCE(CAST(start AS TEXT), '') AS start,
  COALESCE(CAST("end" AS TEXT), '') AS end_at,
  all_day,
  COALESCE(description, '') AS description,
  COALESCE(location, '') AS location,
  COALESCE(color, '') AS color,
  COALESCE(project_id, '') AS project_id,
  COALESCE(task_id, '') AS task_id,
  COALESCE(source, '') AS source
FROM events
ORDER BY start ASC, id ASC;
`

var (
	readDBMu sync.Mutex
	readDBs  = map[string]*sql.DB{}
)

// openReadDB returns a shared handle per database path.
func openReadDB(path string) (*sql.DB, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	readDBMu.Lock()
	defer readDBMu.Unlock()
	if db, ok := readDBs[abs]; ok {
		return db, nil
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+abs)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	readDBs[abs] = db
	return db, nil
}

// SQLiteSource reads an "events" table whose timestamps are stored as
// text in any format ParseAbsolute accepts, or as unix seconds.
type SQLiteSource struct {
	path string
	opts Options
}

func NewSQLiteSource(path string, opts Options) *SQLiteSource {
	return &SQLiteSource{path: path, opts: opts}
}

func (s *SQLiteSource) Name() string { return filepath.Base(s.path) }
func (s *SQLiteSource) Path() string { return s.path }

func (s *SQLiteSource) Doctor(ctx context.Context) ([]contract.DoctorCheck, error) {
	checks := []contract.DoctorCheck{}
	db, err := openReadDB(s.path)
	if err != nil {
		checks = append(checks, contract.DoctorCheck{Name: "source_db", Status: "fail", Message: err.Error()})
		return checks, err
	}
	if err := db.PingContext(ctx); err != nil {
		checks = append(checks, contract.DoctorCheck{Name: "source_db", Status: "fail", Message: err.Error()})
		return checks, err
	}
	checks = append(checks, contract.DoctorCheck{Name: "source_db", Status: "ok", Message: s.path})

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		checks = append(checks, contract.DoctorCheck{Name: "source_table", Status: "fail", Message: err.Error()})
		return checks, fmt.Errorf("events table not readable: %w", err)
	}
	checks = append(checks, contract.DoctorCheck{Name: "source_table", Status: "ok", Message: fmt.Sprintf("%d rows", n)})
	return checks, nil
}

func (s *SQLiteSource) ListEvents(ctx context.Context, f Filter) (Listing, error) {
	started := time.Now()
	db, err := openReadDB(s.path)
	if err != nil {
		return Listing{}, err
	}
	records, err := queryRecords(ctx, db)
	if err != nil {
		return Listing{}, err
	}
	events, skipped, err := resolveRecords(records, s.opts.location(), s.Name(), s.opts.Strict)
	if err != nil {
		return Listing{}, err
	}
	out := applyFilter(events, f)
	s.opts.logger().Debug("source read",
		"source", s.path,
		"format", "sqlite",
		"rows", len(records),
		"skipped", len(skipped),
		"matched", len(out),
		"elapsed", time.Since(started),
	)
	return Listing{Events: out, Skipped: skipped}, nil
}

func queryRecords(ctx context.Context, db *sql.DB) ([]record, error) {
	rows, err := db.QueryContext(ctx, listEventsQuery)
	if err != nil {
		return nil, fmt.Errorf("sqlite query failed: %w", err)
	}
	defer rows.Close()

	var out []record
	for rows.Next() {
		var r record
		var allDay sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Title, &r.Start, &r.End, &allDay, &r.Description, &r.Location, &r.Color, &r.ProjectID, &r.TaskID, &r.Source); err != nil {
			return nil, err
		}
		if allDay.Valid {
			v := allDay.Int64 != 0
			r.AllDay = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

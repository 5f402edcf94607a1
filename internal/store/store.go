// Package store persists ingested log entries in SQLite and answers the
// filtered queries the logs assistant exposes as tools.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// LogEntry is one row of ingested CSV log data.
type LogEntry struct {
	ID             int64  `json:"id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	PolicyIdentity string `json:"policy_identity"`
	InternalIP     string `json:"internal_ip"`
	ExternalIP     string `json:"external_ip"`
	Action         string `json:"action"`
	Destination    string `json:"destination"`
	Categories     string `json:"categories"`
	SourceFile     string `json:"source_file,omitempty"`
}

// Filter narrows log queries. String fields match as case-insensitive
// substrings; DateTime is a combined "dd/mm/yyyy hh:mm" value split into
// date and time filters. Zero values are ignored.
type Filter struct {
	DateTime       string
	Date           string
	Time           string
	PolicyIdentity string
	InternalIP     string
	ExternalIP     string
	Action         string
	Destination    string
	Limit          int
}

const schema = `
CREATE TABLE IF NOT EXISTS log_entries (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	date            TEXT,
	time            TEXT,
	policy_identity TEXT,
	internal_ip     TEXT,
	external_ip     TEXT,
	action          TEXT,
	destination     TEXT,
	categories      TEXT,
	source_file     TEXT
);
CREATE TABLE IF NOT EXISTS processed_files (
	filename     TEXT PRIMARY KEY,
	processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Store wraps the SQLite database holding log entries and ingestion state.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema
// exists. Pass ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// datetime layouts accepted in combined date/time filters, most specific
// first: "27/07/2025 13:30" down to "27/07/25".
var datetimeLayouts = []string{
	"02/01/2006 15:04",
	"02/01/2006 15",
	"02/01/2006",
	"02/01/06 15:04",
	"02/01/06 15",
	"02/01/06",
}

// splitDateTime parses a combined date/time string into separate date and
// time filter values. Returns empty strings if no layout matches.
func splitDateTime(value string) (date, clock string) {
	for _, layout := range datetimeLayouts {
		t, err := time.Parse(layout, strings.TrimSpace(value))
		if err != nil {
			continue
		}
		date = t.Format("02/01/2006")
		if strings.Contains(layout, "15") {
			clock = t.Format("15:04")
		}
		return date, clock
	}
	return "", ""
}

// buildWhere translates a Filter into a WHERE clause and its arguments.
// SQLite's LIKE is case-insensitive for ASCII, matching the original
// ilike semantics.
func buildWhere(f Filter) (string, []any) {
	var conds []string
	var args []any

	like := func(column, value string) {
		conds = append(conds, column+" LIKE ?")
		args = append(args, "%"+value+"%")
	}

	if f.DateTime != "" {
		date, clock := splitDateTime(f.DateTime)
		if date != "" {
			like("date", date)
		}
		if clock != "" {
			// Match on the hour: "13:30" filters as "13:" so nearby
			// minutes within the hour are included.
			like("time", strings.SplitN(clock, ":", 2)[0]+":")
		}
	}
	if f.Date != "" {
		like("date", f.Date)
	}
	if f.Time != "" {
		v := f.Time
		if !strings.Contains(v, ":") {
			v += ":"
		}
		like("time", v)
	}
	if f.PolicyIdentity != "" {
		like("policy_identity", f.PolicyIdentity)
	}
	if f.InternalIP != "" {
		like("internal_ip", f.InternalIP)
	}
	if f.ExternalIP != "" {
		like("external_ip", f.ExternalIP)
	}
	if f.Action != "" {
		like("action", f.Action)
	}
	if f.Destination != "" {
		like("destination", f.Destination)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// CountEntries counts log entries matching the filter.
func (s *Store) CountEntries(ctx context.Context, f Filter) (int64, error) {
	where, args := buildWhere(f)
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM log_entries"+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// GetEntries returns log entries matching the filter, in insertion order.
func (s *Store) GetEntries(ctx context.Context, f Filter) ([]LogEntry, error) {
	where, args := buildWhere(f)
	query := "SELECT id, date, time, policy_identity, internal_ip, external_ip, action, destination, categories, source_file FROM log_entries" + where + " ORDER BY id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.Time, &e.PolicyIdentity, &e.InternalIP,
			&e.ExternalIP, &e.Action, &e.Destination, &e.Categories, &e.SourceFile); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetEntryByID returns one log entry, or sql.ErrNoRows if it does not exist.
func (s *Store) GetEntryByID(ctx context.Context, id int64) (*LogEntry, error) {
	var e LogEntry
	err := s.db.QueryRowContext(ctx,
		"SELECT id, date, time, policy_identity, internal_ip, external_ip, action, destination, categories, source_file FROM log_entries WHERE id = ?", id,
	).Scan(&e.ID, &e.Date, &e.Time, &e.PolicyIdentity, &e.InternalIP,
		&e.ExternalIP, &e.Action, &e.Destination, &e.Categories, &e.SourceFile)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListIdentities returns the distinct policy identities seen in the log,
// sorted alphabetically.
func (s *Store) ListIdentities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT policy_identity FROM log_entries WHERE policy_identity != '' ORDER BY policy_identity`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var identities []string
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

// InsertEntries inserts a batch of entries in one transaction.
func (s *Store) InsertEntries(ctx context.Context, entries []LogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO log_entries (date, time, policy_identity, internal_ip, external_ip, action, destination, categories, source_file) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Date, e.Time, e.PolicyIdentity, e.InternalIP,
			e.ExternalIP, e.Action, e.Destination, e.Categories, e.SourceFile); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	return tx.Commit()
}

// IsFileProcessed reports whether the named CSV file was already ingested.
func (s *Store) IsFileProcessed(ctx context.Context, filename string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM processed_files WHERE filename = ?", filename).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check processed file: %w", err)
	}
	return n > 0, nil
}

// MarkFileProcessed records that the named CSV file has been ingested.
func (s *Store) MarkFileProcessed(ctx context.Context, filename string) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO processed_files (filename) VALUES (?)", filename)
	if err != nil {
		return fmt.Errorf("mark file processed: %w", err)
	}
	return nil
}

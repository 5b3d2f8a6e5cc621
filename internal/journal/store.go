package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"docgate/internal/config"
)

const entryColumns = "id, request_id, operation, source, sink, target_format, import_filter, export_filter, status, error_code, error_message, output_bytes, started_at, finished_at"

// Store persists finished requests in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.JournalPath())
}

// OpenPath opens the journal at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path reports the database file location.
func (s *Store) Path() string { return s.path }

// Record inserts a finished request and returns its row ID.
func (s *Store) Record(ctx context.Context, entry Entry) (int64, error) {
	if entry.RequestID == "" {
		return 0, errors.New("journal entry requires a request id")
	}
	if _, ok := ParseStatus(string(entry.Status)); !ok {
		return 0, fmt.Errorf("invalid journal status %q", entry.Status)
	}
	if entry.FinishedAt.IsZero() {
		entry.FinishedAt = time.Now().UTC()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = entry.FinishedAt
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversions (
            request_id, operation, source, sink, target_format, import_filter, export_filter,
            status, error_code, error_message, output_bytes, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID,
		entry.Operation,
		nullableString(entry.Source),
		nullableString(entry.Sink),
		nullableString(entry.TargetFormat),
		nullableString(entry.ImportFilter),
		nullableString(entry.ExportFilter),
		entry.Status,
		nullableString(entry.ErrorCode),
		nullableString(entry.ErrorMessage),
		entry.OutputBytes,
		formatTime(entry.StartedAt),
		formatTime(entry.FinishedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// List returns up to limit entries, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM conversions ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// FindByRequestID returns the entry for a request, or nil when absent.
func (s *Store) FindByRequestID(ctx context.Context, requestID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM conversions WHERE request_id = ? ORDER BY id DESC LIMIT 1`, requestID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find journal entry: %w", err)
	}
	return &entry, nil
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM conversions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("journal stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Summarize folds Stats and the most recent failure into one value.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Succeeded: stats[StatusSucceeded], Failed: stats[StatusFailed]}
	summary.Total = summary.Succeeded + summary.Failed

	var raw sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT MAX(finished_at) FROM conversions WHERE status = ?`, StatusFailed).Scan(&raw)
	if err != nil {
		return Summary{}, fmt.Errorf("last failure: %w", err)
	}
	if raw.Valid {
		if ts, err := parseTime(raw.String); err == nil {
			summary.LastFailure = &ts
		}
	}
	return summary, nil
}

// Prune removes entries that finished before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversions WHERE finished_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry        Entry
		source       sql.NullString
		sink         sql.NullString
		targetFormat sql.NullString
		importFilter sql.NullString
		exportFilter sql.NullString
		status       string
		errorCode    sql.NullString
		errorMessage sql.NullString
		startedRaw   string
		finishedRaw  string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.RequestID,
		&entry.Operation,
		&source,
		&sink,
		&targetFormat,
		&importFilter,
		&exportFilter,
		&status,
		&errorCode,
		&errorMessage,
		&entry.OutputBytes,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return Entry{}, err
	}
	entry.Source = source.String
	entry.Sink = sink.String
	entry.TargetFormat = targetFormat.String
	entry.ImportFilter = importFilter.String
	entry.ExportFilter = exportFilter.String
	entry.Status = Status(status)
	entry.ErrorCode = errorCode.String
	entry.ErrorMessage = errorMessage.String
	if ts, err := parseTime(startedRaw); err == nil {
		entry.StartedAt = ts
	}
	if ts, err := parseTime(finishedRaw); err == nil {
		entry.FinishedAt = ts
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout sorts lexically in the same order as the instants it encodes.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

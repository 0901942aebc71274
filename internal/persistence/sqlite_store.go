package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MimeLyc/video-sub-translator/internal/jobs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore keeps the outcome of finished jobs.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed paths always use forward slashes
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// RecordOutcome upserts rec. Recording the same job twice keeps the
// latest state.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, rec jobs.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("job id is empty")
	}
	var finished sql.NullTime
	if rec.FinishedAt != nil {
		finished = sql.NullTime{Time: rec.FinishedAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO job_history (
			id, source_url, local_path, target_language, service, use_gpu,
			status, output_folder, error, created_at, updated_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			output_folder=excluded.output_folder,
			error=excluded.error,
			updated_at=excluded.updated_at,
			finished_at=excluded.finished_at`,
		rec.ID,
		rec.SourceURL,
		rec.LocalPath,
		rec.TargetLanguage,
		rec.Service,
		boolToInt(rec.UseGPU),
		string(rec.Status),
		rec.OutputFolder,
		rec.Error,
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
		finished,
	)
	if err != nil {
		return fmt.Errorf("record job %s: %w", rec.ID, err)
	}
	return nil
}

const historyColumns = `id, source_url, local_path, target_language, service, use_gpu,
	status, output_folder, error, created_at, updated_at, finished_at`

// ListHistory returns jobs newest first.
func (s *SQLiteStore) ListHistory(ctx context.Context, q HistoryQuery) ([]jobs.Record, error) {
	var (
		where []string
		args  []any
	)
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UTC())
	}

	query := `SELECT ` + historyColumns + ` FROM job_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]jobs.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// GetJob looks a job up by its full ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (jobs.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM job_history WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Record{}, false, nil
	}
	if err != nil {
		return jobs.Record{}, false, err
	}
	return rec, true, nil
}

// DeleteBefore prunes jobs created before cutoff.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_history WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (jobs.Record, error) {
	var (
		rec      jobs.Record
		useGPU   int
		status   string
		finished sql.NullTime
	)
	if err := row.Scan(
		&rec.ID,
		&rec.SourceURL,
		&rec.LocalPath,
		&rec.TargetLanguage,
		&rec.Service,
		&useGPU,
		&status,
		&rec.OutputFolder,
		&rec.Error,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&finished,
	); err != nil {
		return jobs.Record{}, err
	}
	rec.UseGPU = useGPU != 0
	rec.Status = jobs.Status(status)
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	return rec, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

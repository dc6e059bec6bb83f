package session

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"artstudio/internal/config"
)

//go:embed schema.sql
var sqliteSchema string

// schemaVersion is the current schema version. Bump this when the schema changes.
// Users will need to clear their session database after schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const sessionColumns = `s.id, s.media_type, s.source_name, s.source_path, s.source_mime, s.style, s.status,
    s.progress_message, s.progress_percent, s.error_message, s.needs_reauth, s.animation_path,
    s.created_at, s.updated_at,
    (SELECT COUNT(1) FROM frames f WHERE f.session_id = s.id AND f.kind = 'captured'),
    (SELECT COUNT(1) FROM frames f WHERE f.session_id = s.id AND f.kind = 'stylized')`

// SQLiteStore manages session persistence backed by SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite initializes or connects to the session database under the data directory.
func OpenSQLite(cfg *config.Config) (*SQLiteStore, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenSQLitePath(cfg.SessionDBPath())
}

// OpenSQLitePath opens a session database at an explicit path.
func OpenSQLitePath(dbPath string) (*SQLiteStore, error) {
	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'artstudio sessions clear' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Create inserts a new idle session.
func (s *SQLiteStore) Create(ctx context.Context) (*Session, error) {
	ctx = ensureContext(ctx)
	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execRetry(ctx,
		`INSERT INTO sessions (id, media_type, status, progress_percent, needs_reauth, created_at, updated_at)
         VALUES (?, ?, ?, 0, 0, ?, ?)`,
		id, MediaNone, StatusIdle, timestamp, timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a session by identifier.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// List returns sessions filtered by status set (or all sessions when no status is provided).
func (s *SQLiteStore) List(ctx context.Context, statuses ...Status) ([]*Session, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + sessionColumns + ` FROM sessions s`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE s.status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY s.created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Update persists changes to an existing session.
func (s *SQLiteStore) Update(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("session is nil")
	}
	ctx = ensureContext(ctx)
	sess.UpdatedAt = time.Now().UTC()
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE sessions
             SET media_type = ?, source_name = ?, source_path = ?, source_mime = ?, style = ?,
                 status = ?, progress_message = ?, progress_percent = ?, error_message = ?,
                 needs_reauth = ?, animation_path = ?, updated_at = ?
             WHERE id = ?`,
			string(sess.MediaType),
			nullableString(sess.SourceName),
			nullableString(sess.SourcePath),
			nullableString(sess.SourceMime),
			nullableString(sess.Style),
			string(sess.Status),
			nullableString(sess.ProgressMessage),
			sess.ProgressPercent,
			nullableString(sess.ErrorMessage),
			boolToInt(sess.NeedsReauth),
			nullableString(sess.AnimationPath),
			sess.UpdatedAt.Format(time.RFC3339Nano),
			sess.ID,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sess.ID)
	}
	return nil
}

// ReplaceFrames swaps an entire frame sequence in one transaction.
func (s *SQLiteStore) ReplaceFrames(ctx context.Context, id string, kind Kind, frames []Frame) error {
	ctx = ensureContext(ctx)
	return s.withTx(ctx, "replace frames", func(tx *sql.Tx) error {
		if err := requireSession(ctx, tx, id); err != nil {
			return err
		}
		if err := replaceFramesTx(ctx, tx, id, kind, frames); err != nil {
			return err
		}
		return touch(ctx, tx, id)
	})
}

// ReplaceCaptured swaps the captured frames and clears the stylized ones atomically.
func (s *SQLiteStore) ReplaceCaptured(ctx context.Context, id string, frames []Frame) error {
	ctx = ensureContext(ctx)
	return s.withTx(ctx, "replace captured", func(tx *sql.Tx) error {
		if err := requireSession(ctx, tx, id); err != nil {
			return err
		}
		if err := replaceFramesTx(ctx, tx, id, KindStylized, nil); err != nil {
			return err
		}
		if err := replaceFramesTx(ctx, tx, id, KindCaptured, frames); err != nil {
			return err
		}
		return touch(ctx, tx, id)
	})
}

func replaceFramesTx(ctx context.Context, tx *sql.Tx, id string, kind Kind, frames []Frame) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE session_id = ? AND kind = ?`, id, kind); err != nil {
		return fmt.Errorf("delete %s frames: %w", kind, err)
	}
	for i, frame := range frames {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO frames (session_id, kind, idx, mime_type, data) VALUES (?, ?, ?, ?, ?)`,
			id, kind, i, frame.MimeType, frame.Data,
		); err != nil {
			return fmt.Errorf("insert frame %d: %w", i, err)
		}
	}
	return nil
}

// SetFrame overwrites one frame, creating it when absent.
func (s *SQLiteStore) SetFrame(ctx context.Context, id string, kind Kind, frame Frame) error {
	if frame.Index < 0 {
		return fmt.Errorf("set frame: negative index %d", frame.Index)
	}
	ctx = ensureContext(ctx)
	return s.withTx(ctx, "set frame", func(tx *sql.Tx) error {
		if err := requireSession(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO frames (session_id, kind, idx, mime_type, data) VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(session_id, kind, idx) DO UPDATE SET mime_type = excluded.mime_type, data = excluded.data`,
			id, kind, frame.Index, frame.MimeType, frame.Data,
		); err != nil {
			return fmt.Errorf("upsert frame: %w", err)
		}
		return touch(ctx, tx, id)
	})
}

// Frames returns a sequence ordered by index.
func (s *SQLiteStore) Frames(ctx context.Context, id string, kind Kind) ([]Frame, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, mime_type, data FROM frames WHERE session_id = ? AND kind = ? ORDER BY idx`, id, kind)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var frame Frame
		if err := rows.Scan(&frame.Index, &frame.MimeType, &frame.Data); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, frame)
	}
	return frames, rows.Err()
}

// Frame returns one frame of a sequence.
func (s *SQLiteStore) Frame(ctx context.Context, id string, kind Kind, index int) (Frame, error) {
	ctx = ensureContext(ctx)
	frame := Frame{Index: index}
	err := s.db.QueryRowContext(ctx,
		`SELECT mime_type, data FROM frames WHERE session_id = ? AND kind = ? AND idx = ?`, id, kind, index,
	).Scan(&frame.MimeType, &frame.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return Frame{}, fmt.Errorf("%w: %s %s frame %d", ErrNotFound, id, kind, index)
	}
	if err != nil {
		return Frame{}, fmt.Errorf("get frame: %w", err)
	}
	return frame, nil
}

// Delete removes a session and its frames.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Clear removes every session.
func (s *SQLiteStore) Clear(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear sessions: %w", err)
	}
	return affected, nil
}

// ResetStuck marks stale processing sessions as failed. updated_at is
// compared after parsing because RFC3339Nano strings do not sort lexically.
func (s *SQLiteStore) ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)
	statusArgs := make([]any, 0, len(processingStatuses))
	for _, status := range processingStatuses {
		statusArgs = append(statusArgs, status)
	}
	var affected int64
	err := s.withTx(ctx, "reset stuck sessions", func(tx *sql.Tx) error {
		affected = 0
		rows, err := tx.QueryContext(ctx,
			`SELECT id, updated_at FROM sessions WHERE status IN (`+makePlaceholders(len(statusArgs))+`)`,
			statusArgs...,
		)
		if err != nil {
			return err
		}
		var stale []string
		for rows.Next() {
			var id, updated string
			if err := rows.Scan(&id, &updated); err != nil {
				rows.Close()
				return err
			}
			if at, err := parseTimeString(updated); err != nil || !at.After(cutoff) {
				stale = append(stale, id)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range stale {
			args := append([]any{StatusFailed, InterruptedMessage, now.Format(time.RFC3339Nano), id}, statusArgs...)
			res, err := tx.ExecContext(ctx,
				`UPDATE sessions SET status = ?, error_message = ?, progress_message = NULL, updated_at = ?
                 WHERE id = ? AND status IN (`+makePlaceholders(len(statusArgs))+`)`,
				args...,
			)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			affected += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reset stuck sessions: %w", err)
	}
	return affected, nil
}

func (s *SQLiteStore) execRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%s: begin tx: %w", op, err)
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%s: commit: %w", op, err)
		}
		return nil
	})
}

func requireSession(ctx context.Context, tx *sql.Tx, id string) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	return nil
}

func touch(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		sess            Session
		mediaType       string
		sourceName      sql.NullString
		sourcePath      sql.NullString
		sourceMime      sql.NullString
		style           sql.NullString
		status          string
		progressMessage sql.NullString
		errorMessage    sql.NullString
		needsReauth     sql.NullInt64
		animationPath   sql.NullString
		createdRaw      string
		updatedRaw      string
	)
	if err := scanner.Scan(
		&sess.ID,
		&mediaType,
		&sourceName,
		&sourcePath,
		&sourceMime,
		&style,
		&status,
		&progressMessage,
		&sess.ProgressPercent,
		&errorMessage,
		&needsReauth,
		&animationPath,
		&createdRaw,
		&updatedRaw,
		&sess.CapturedCount,
		&sess.StylizedCount,
	); err != nil {
		return nil, err
	}
	sess.MediaType = MediaType(mediaType)
	sess.SourceName = sourceName.String
	sess.SourcePath = sourcePath.String
	sess.SourceMime = sourceMime.String
	sess.Style = style.String
	sess.Status = Status(status)
	sess.ProgressMessage = progressMessage.String
	sess.ErrorMessage = errorMessage.String
	sess.NeedsReauth = needsReauth.Valid && needsReauth.Int64 != 0
	sess.AnimationPath = animationPath.String
	if created, err := parseTimeString(createdRaw); err == nil {
		sess.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		sess.UpdatedAt = updated
	}
	return &sess, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

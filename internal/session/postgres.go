package session

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed postgres_schema.sql
var postgresSchema string

const pgSessionColumns = `s.id::text, s.media_type, s.source_name, s.source_path, s.source_mime, s.style, s.status,
    s.progress_message, s.progress_percent, s.error_message, s.needs_reauth, s.animation_path,
    s.created_at, s.updated_at,
    (SELECT COUNT(1) FROM frames f WHERE f.session_id = s.id AND f.kind = 'captured'),
    (SELECT COUNT(1) FROM frames f WHERE f.session_id = s.id AND f.kind = 'stylized')`

// PostgresStore manages session persistence backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to PostgreSQL and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("open postgres: dsn required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Create inserts a new idle session.
func (s *PostgresStore) Create(ctx context.Context) (*Session, error) {
	id := uuid.New()
	now := time.Now().UTC()
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, media_type, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		id, string(MediaNone), string(StatusIdle), now,
	); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s.Get(ctx, id.String())
}

// Get fetches a session by identifier.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+pgSessionColumns+` FROM sessions s WHERE s.id = $1`, parsed)
	sess, err := scanPGSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// List returns sessions filtered by status set (or all sessions when no status is provided).
func (s *PostgresStore) List(ctx context.Context, statuses ...Status) ([]*Session, error) {
	query := `SELECT ` + pgSessionColumns + ` FROM sessions s`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE s.status = ANY($1)`
		args = append(args, statusStrings(statuses))
	}
	query += ` ORDER BY s.created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanPGSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Update persists changes to an existing session.
func (s *PostgresStore) Update(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("session is nil")
	}
	parsed, err := uuid.Parse(sess.ID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, sess.ID)
	}
	sess.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET
            media_type=$2, source_name=$3, source_path=$4, source_mime=$5, style=$6,
            status=$7, progress_message=$8, progress_percent=$9, error_message=$10,
            needs_reauth=$11, animation_path=$12, updated_at=$13
         WHERE id=$1`,
		parsed, string(sess.MediaType), sess.SourceName, sess.SourcePath, sess.SourceMime, sess.Style,
		string(sess.Status), sess.ProgressMessage, sess.ProgressPercent, sess.ErrorMessage,
		sess.NeedsReauth, sess.AnimationPath, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sess.ID)
	}
	return nil
}

// ReplaceFrames swaps an entire frame sequence in one transaction.
func (s *PostgresStore) ReplaceFrames(ctx context.Context, id string, kind Kind, frames []Frame) error {
	return s.withTx(ctx, id, "replace frames", func(tx pgx.Tx, sessionID uuid.UUID) error {
		return copyFramesTx(ctx, tx, sessionID, kind, frames)
	})
}

// ReplaceCaptured swaps the captured frames and clears the stylized ones atomically.
func (s *PostgresStore) ReplaceCaptured(ctx context.Context, id string, frames []Frame) error {
	return s.withTx(ctx, id, "replace captured", func(tx pgx.Tx, sessionID uuid.UUID) error {
		if err := copyFramesTx(ctx, tx, sessionID, KindStylized, nil); err != nil {
			return err
		}
		return copyFramesTx(ctx, tx, sessionID, KindCaptured, frames)
	})
}

func copyFramesTx(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, kind Kind, frames []Frame) error {
	if _, err := tx.Exec(ctx, `DELETE FROM frames WHERE session_id = $1 AND kind = $2`, sessionID, string(kind)); err != nil {
		return fmt.Errorf("delete %s frames: %w", kind, err)
	}
	if len(frames) == 0 {
		return nil
	}
	rows := make([][]any, len(frames))
	for i, frame := range frames {
		rows[i] = []any{sessionID, string(kind), i, frame.MimeType, frame.Data}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"frames"},
		[]string{"session_id", "kind", "idx", "mime_type", "data"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy frames: %w", err)
	}
	return nil
}

// SetFrame overwrites one frame, creating it when absent.
func (s *PostgresStore) SetFrame(ctx context.Context, id string, kind Kind, frame Frame) error {
	if frame.Index < 0 {
		return fmt.Errorf("set frame: negative index %d", frame.Index)
	}
	return s.withTx(ctx, id, "set frame", func(tx pgx.Tx, sessionID uuid.UUID) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO frames (session_id, kind, idx, mime_type, data) VALUES ($1, $2, $3, $4, $5)
             ON CONFLICT (session_id, kind, idx) DO UPDATE SET mime_type = EXCLUDED.mime_type, data = EXCLUDED.data`,
			sessionID, string(kind), frame.Index, frame.MimeType, frame.Data,
		); err != nil {
			return fmt.Errorf("upsert frame: %w", err)
		}
		return nil
	})
}

// Frames returns a sequence ordered by index.
func (s *PostgresStore) Frames(ctx context.Context, id string, kind Kind) ([]Frame, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT idx, mime_type, data FROM frames WHERE session_id = $1 AND kind = $2 ORDER BY idx`, parsed, string(kind))
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
func (s *PostgresStore) Frame(ctx context.Context, id string, kind Kind, index int) (Frame, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	frame := Frame{Index: index}
	err = s.pool.QueryRow(ctx,
		`SELECT mime_type, data FROM frames WHERE session_id = $1 AND kind = $2 AND idx = $3`,
		parsed, string(kind), index,
	).Scan(&frame.MimeType, &frame.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Frame{}, fmt.Errorf("%w: %s %s frame %d", ErrNotFound, id, kind, index)
	}
	if err != nil {
		return Frame{}, fmt.Errorf("get frame: %w", err)
	}
	return frame, nil
}

// Delete removes a session and its frames.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, parsed)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Clear removes every session.
func (s *PostgresStore) Clear(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("clear sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ResetStuck marks processing sessions not updated within olderThan as failed.
func (s *PostgresStore) ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, error_message = $2, progress_message = '', updated_at = $3
         WHERE status = ANY($4) AND updated_at <= $5`,
		string(StatusFailed), InterruptedMessage, now, statusStrings(processingStatuses), now.Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) withTx(ctx context.Context, id, op string, fn func(tx pgx.Tx, sessionID uuid.UUID) error) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the parent row so concurrent writers serialize per session.
	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, parsed).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%s: lock session: %w", op, err)
	}
	if err := fn(tx, parsed); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE sessions SET updated_at = $2 WHERE id = $1`, parsed, time.Now().UTC()); err != nil {
		return fmt.Errorf("%s: touch session: %w", op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func scanPGSession(row pgx.Row) (*Session, error) {
	var (
		sess      Session
		mediaType string
		status    string
	)
	if err := row.Scan(
		&sess.ID,
		&mediaType,
		&sess.SourceName,
		&sess.SourcePath,
		&sess.SourceMime,
		&sess.Style,
		&status,
		&sess.ProgressMessage,
		&sess.ProgressPercent,
		&sess.ErrorMessage,
		&sess.NeedsReauth,
		&sess.AnimationPath,
		&sess.CreatedAt,
		&sess.UpdatedAt,
		&sess.CapturedCount,
		&sess.StylizedCount,
	); err != nil {
		return nil, err
	}
	sess.MediaType = MediaType(mediaType)
	sess.Status = Status(status)
	return &sess, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}

package session

import (
	"context"
	"fmt"
	"time"

	"artstudio/internal/config"
)

// Store persists sessions and their frame sequences.
type Store interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	// List returns sessions ordered by creation time, optionally filtered by status.
	List(ctx context.Context, statuses ...Status) ([]*Session, error)
	Update(ctx context.Context, s *Session) error
	// ReplaceFrames swaps an entire sequence atomically. Indexes are reassigned 0..n-1.
	ReplaceFrames(ctx context.Context, id string, kind Kind, frames []Frame) error
	// ReplaceCaptured swaps the captured sequence and drops every stylized
	// frame in the same transaction.
	ReplaceCaptured(ctx context.Context, id string, frames []Frame) error
	// SetFrame overwrites a single frame at frame.Index.
	SetFrame(ctx context.Context, id string, kind Kind, frame Frame) error
	Frames(ctx context.Context, id string, kind Kind) ([]Frame, error)
	Frame(ctx context.Context, id string, kind Kind, index int) (Frame, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) (int64, error)
	// ResetStuck marks sessions left in a processing status as failed when
	// they have not been updated for at least olderThan. Another process may
	// still be driving a session that changed more recently.
	ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error)
	Close() error
}

// InterruptedMessage is recorded on sessions recovered by ResetStuck.
const InterruptedMessage = "interrupted"

// Open returns the store selected by cfg.Storage.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Driver {
	case "", "sqlite":
		return OpenSQLite(cfg)
	case "postgres":
		return OpenPostgres(ctx, cfg.Storage.PostgresDSN)
	default:
		return nil, fmt.Errorf("session store: unsupported driver %q", cfg.Storage.Driver)
	}
}

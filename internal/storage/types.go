package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one delivered message.
type Entry struct {
	At   time.Time
	Kind string // daily | weekly
	Body string
}

// Store is the persistence API used by the delivery orchestrator.
type Store interface {
	AppendRun(ctx context.Context, e Entry) error
	Close() error
}

// Lister is implemented by drivers that can read entries back.
type Lister interface {
	Recent(ctx context.Context, n int) ([]Entry, error)
}

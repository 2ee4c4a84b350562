package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	logx "horoscopebot/pkg/logx"
)

const entryTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// fileStore appends entries to a plain text log:
//
//	\n=== 2026-10-19T06:00:01.234Z ===\n<body>\n
//
// The directory and file are (re)created on every append, so a log rotated or
// removed while the process runs is recreated on the next entry.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn("run log dir not created; retrying on append", logx.String("path", path), logx.Err(err))
	}
	log.Debug("run log opened", logx.String("driver", "file"), logx.String("path", path))
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) AppendRun(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("run log closed")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create log dir")
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open run log")
	}
	if _, err := fmt.Fprintf(f, "\n=== %s ===\n%s\n", e.At.UTC().Format(entryTimeLayout), e.Body); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "append %s", s.path)
	}
	return errors.Wrapf(f.Close(), "close %s", s.path)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

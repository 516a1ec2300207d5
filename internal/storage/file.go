package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "idlebot/pkg/logx"
)

const defaultFilePath = "data/job_history.json"

// fileStore keeps the whole history in one JSON object:
//
//	{"fetch_and_save(alice)": 1718000000.25, ...}
//
// Every Save re-reads the file, updates one key and replaces the file via
// <path>.tmp + rename, so a crash mid-write leaves the previous version intact.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultFilePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &fileStore{log: log.With(logx.String("path", path)), path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(ctx context.Context) (map[string]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.readLocked()
	if err != nil {
		s.log.Warn("job history unreadable; starting fresh", logx.Err(err))
		raw = map[string]float64{}
	}
	out := make(map[string]time.Time, len(raw))
	for k, v := range raw {
		out[k] = fromUnixSeconds(v)
	}
	return out, nil
}

func (s *fileStore) Save(ctx context.Context, key string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("empty job key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readLocked()
	if err != nil {
		return err
	}
	m[key] = toUnixSeconds(at)
	return s.writeLocked(m)
}

func (s *fileStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[string]float64{}
	if len(keys) > 0 {
		var err error
		if m, err = s.readLocked(); err != nil {
			return err
		}
		for _, k := range keys {
			delete(m, k)
		}
	}
	return s.writeLocked(m)
}

// readLocked returns the current mapping. A missing file is empty and corrupt
// content is logged and treated as empty. Any other read failure is returned
// so that a write never replaces history it could not see.
func (s *fileStore) readLocked() (map[string]float64, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]float64{}, nil
		}
		return nil, fmt.Errorf("read job history: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return map[string]float64{}, nil
	}
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		if err == nil {
			err = errors.New("not a JSON object")
		}
		s.log.Warn("job history corrupt; starting fresh", logx.Err(err))
		return map[string]float64{}, nil
	}
	return m, nil
}

func (s *fileStore) writeLocked(m map[string]float64) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write job history: %w", err)
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write job history: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write job history: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write job history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace job history: %w", err)
	}
	return nil
}

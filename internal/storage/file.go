package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "agentsched/pkg/logx"
)

// fileStore keeps the whole schedule in one JSON snapshot. Writes go to a
// temp file in the same directory followed by a rename, so a crash mid-save
// leaves the previous snapshot intact.
type fileStore struct {
	log  logx.Logger
	mu   sync.Mutex
	path string
}

type snapshot struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"saved_at"`
	Tasks   []TaskRecord `json:"tasks"`
}

const snapshotVersion = 1

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) SaveTasks(ctx context.Context, tasks []TaskRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{Version: snapshotVersion, SavedAt: time.Now().UTC(), Tasks: tasks}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.log.Debug("schedule snapshot written",
		logx.String("path", s.path),
		logx.Int("tasks", len(tasks)))
	return nil
}

func (s *fileStore) LoadTasks(ctx context.Context) ([]TaskRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return snap.Tasks, nil
}

func (s *fileStore) Close() error { return nil }

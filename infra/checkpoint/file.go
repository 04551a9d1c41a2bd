// Package checkpoint persists training records as JSON files.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	corecheckpoint "github.com/kilianp07/vrf/core/checkpoint"
	"github.com/kilianp07/vrf/infra/logger"
	"github.com/kilianp07/vrf/internal/fsutil"
)

// FileStore writes one JSON document per checkpoint. Relative paths are
// resolved against Dir; paths ending in .gz are gzip compressed. Writes go
// through a temporary file so an interrupted save never truncates an
// existing checkpoint.
type FileStore struct {
	Dir string
	log logger.Logger
	now func() time.Time
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir, log: logger.New("checkpoint"), now: time.Now}
}

func (s *FileStore) resolve(path string) string {
	if filepath.IsAbs(path) || s.Dir == "" {
		return path
	}
	return filepath.Join(s.Dir, path)
}

// Save writes rec to path. A zero SavedAt is stamped with the current time.
func (s *FileStore) Save(ctx context.Context, path string, rec *corecheckpoint.Record) error {
	if rec == nil {
		return errors.New("checkpoint: nil record")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	full := s.resolve(path)
	if rec.SavedAt.IsZero() {
		rec.SavedAt = s.now().UTC()
	}
	err := fsutil.WriteAtomic(full, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(rec)
	})
	if err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", full, err)
	}
	s.log.Debugf("saved checkpoint epoch %d to %s", rec.Epoch, full)
	return nil
}

// Load reads the record at path.
func (s *FileStore) Load(ctx context.Context, path string) (*corecheckpoint.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := s.resolve(path)
	r, err := fsutil.Open(full)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", full, err)
	}
	defer r.Close()
	var rec corecheckpoint.Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("checkpoint: decode %s: %w", full, err)
	}
	if len(rec.Params) == 0 {
		return nil, fmt.Errorf("checkpoint: %s holds no model parameters", full)
	}
	return &rec, nil
}

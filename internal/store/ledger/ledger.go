package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"hotfolder/internal/fileingest"
	"hotfolder/internal/models"
	"hotfolder/internal/store"
)

// Store is a LedgerStore backed by a single JSON file.
// Writes go through a temp file and a rename so readers never observe a partial file.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a file-backed ledger. The file does not need to exist yet.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the ledger file location.
func (s *Store) Path() string { return s.path }

// Load reads the whole ledger. A missing or empty file is an empty ledger.
func (s *Store) Load(ctx context.Context) ([]models.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save replaces the ledger with records.
func (s *Store) Save(ctx context.Context, records []models.JobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(records)
}

// Update applies fn to the current ledger and persists its result.
func (s *Store) Update(ctx context.Context, fn func([]models.JobRecord) ([]models.JobRecord, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	updated, err := fn(records)
	if err != nil {
		return err
	}
	return s.save(updated)
}

// Quarantine moves an unparseable ledger aside so the daemon can start from an
// empty ledger without overwriting the old data. It returns the new location,
// or "" when the ledger was readable and nothing was moved.
func (s *Store) Quarantine(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.load()
	if err == nil || !errors.Is(err, store.ErrCorruptLedger) {
		return "", err
	}
	dest := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().UnixMilli())
	if err := os.Rename(s.path, dest); err != nil {
		return "", fmt.Errorf("quarantine ledger %s: %w", s.path, err)
	}
	return dest, nil
}

func (s *Store) load() ([]models.JobRecord, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.JobRecord{}, nil
		}
		return nil, fmt.Errorf("read ledger %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []models.JobRecord{}, nil
	}

	var records []models.JobRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrCorruptLedger, s.path, err)
	}
	if records == nil {
		records = []models.JobRecord{}
	}
	return records, nil
}

func (s *Store) save(records []models.JobRecord) error {
	if records == nil {
		records = []models.JobRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if _, err := fileingest.EnsureDir(filepath.Dir(s.path)); err != nil {
		return err
	}
	if err := fileingest.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

var _ store.LedgerStore = (*Store)(nil)

package services

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"hotfolder/internal/models"
	"hotfolder/internal/store"
)

// BatchService handles read-only operations on the job ledger.
type BatchService struct {
	ledger store.LedgerStore
}

// NewBatchService creates a new BatchService.
func NewBatchService(ls store.LedgerStore) *BatchService {
	return &BatchService{
		ledger: ls,
	}
}

// ListBatches returns ledger entries, newest first. When statuses are given,
// only matching entries are paged.
func (s *BatchService) ListBatches(ctx context.Context, limit, offset int, statuses ...models.JobStatus) ([]models.JobRecord, error) {
	if limit <= 0 {
		limit = 20 // Default limit
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.ledger.Load(ctx)
	if err != nil {
		// Wrap the error for context
		return nil, fmt.Errorf("failed to list batch jobs from ledger: %w", err)
	}

	if len(statuses) > 0 {
		records = slices.DeleteFunc(records, func(r models.JobRecord) bool {
			return !slices.Contains(statuses, r.Status)
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SubmittedAt > records[j].SubmittedAt
	})

	if offset >= len(records) {
		return []models.JobRecord{}, nil
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end], nil
}

// Summary counts ledger entries per status.
func (s *BatchService) Summary(ctx context.Context) (map[models.JobStatus]int, error) {
	records, err := s.ledger.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return models.StatusCounts(records), nil
}

// LedgerPath is where the ledger lives on disk.
func (s *BatchService) LedgerPath() string { return s.ledger.Path() }

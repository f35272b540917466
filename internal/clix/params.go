package clix

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"hotfolder/internal/models"
)

type PaginationParams struct {
	Limit  int
	Offset int
}

func ParsePagination(flags *pflag.FlagSet) (PaginationParams, error) {
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return PaginationParams{Limit: limit, Offset: offset}, nil
}

// ParseStatuses reads the comma separated --status flag. An empty flag means no filter.
func ParseStatuses(flags *pflag.FlagSet) ([]models.JobStatus, error) {
	raw, _ := flags.GetString("status")
	var statuses []models.JobStatus
	if raw != "" {
		// Trim space and filter out empty strings in one pass
		for _, s := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(s))
			if trimmed == "" {
				continue
			}
			switch st := models.JobStatus(trimmed); st {
			case models.JobStatusPending, models.JobStatusRunning, models.JobStatusSucceeded, models.JobStatusFailed:
				statuses = append(statuses, st)
			default:
				return nil, fmt.Errorf("unknown status %q: %w", trimmed, models.ErrValidation)
			}
		}
	}
	return statuses, nil
}

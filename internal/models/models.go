package models

import "time"

// JobRecord is one submitted batch as persisted in the ledger file.
// The JSON field names are the on-disk format and must stay stable.
type JobRecord struct {
	JobName     string    `json:"jobName"`
	Files       []string  `json:"files"`       // base names, in bundle order
	SubmittedAt int64     `json:"submittedAt"` // epoch milliseconds
	Status      JobStatus `json:"status"`
}

// SubmittedTime converts SubmittedAt to a time.Time.
func (r JobRecord) SubmittedTime() time.Time {
	return time.UnixMilli(r.SubmittedAt)
}

// StatusCounts tallies records per status.
func StatusCounts(records []JobRecord) map[JobStatus]int {
	counts := make(map[JobStatus]int, 4)
	for _, r := range records {
		counts[r.Status]++
	}
	return counts
}

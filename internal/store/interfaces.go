package store

import (
	"context"

	"hotfolder/internal/models"
)

// --- Ledger Store ---

// LedgerStore persists the list of in-flight batch jobs.
// Every method reads or writes the whole list; there is no partial update format.
type LedgerStore interface {
	Load(ctx context.Context) ([]models.JobRecord, error)
	Save(ctx context.Context, records []models.JobRecord) error
	// Update loads the ledger, applies fn and saves the result as one step.
	// Returning an error from fn aborts without writing.
	Update(ctx context.Context, fn func([]models.JobRecord) ([]models.JobRecord, error)) error
	Path() string
}

// --- Object Store ---

// ObjectStore uploads local files to a remote bucket.
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName, localPath, contentType string) error
	Bucket() string
}

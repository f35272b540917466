package services

import (
	"context"

	"hotfolder/internal/models"
)

// --- Batch API Interface ---

// BatchJobStatus is the part of a remote batch job the client acts on.
type BatchJobStatus struct {
	Name       string
	State      models.RemoteState
	RawState   string // as reported by the service, for logs
	OutputFile string // handle of the result bundle, "" when there is none
}

// BatchAPIProvider defines the remote operations of a batch inference service.
type BatchAPIProvider interface {
	UploadFile(ctx context.Context, displayName, mimeType string, content []byte) (string, error)
	CreateBatch(ctx context.Context, model, inputFileName, displayName string) (string, error)
	RetrieveBatch(ctx context.Context, batchName string) (BatchJobStatus, error)
	GetFileContent(ctx context.Context, fileName string) ([]byte, error)
}

// --- Garment workflow collaborators ---

// Opener opens a file in an external desktop application.
type Opener interface {
	Open(ctx context.Context, path string) error
}

// Notifier tells the web API that a garment photo has been processed.
type Notifier interface {
	NotifyProcessed(ctx context.Context, id string) error
}

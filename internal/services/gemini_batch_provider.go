package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"hotfolder/internal/models"
)

// GeminiBatchProvider implements BatchAPIProvider on top of the Gemini Files and Batches APIs.
type GeminiBatchProvider struct {
	client *genai.Client
}

// NewGeminiBatchProvider creates the provider. Without an API key it returns a
// disabled provider whose calls fail with models.ErrProviderDisabled.
func NewGeminiBatchProvider(ctx context.Context, apiKey string) (*GeminiBatchProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY") // Fallback to env var
	}
	if apiKey == "" {
		log.Warn("Gemini API key not provided. Gemini batch provider will be disabled.")
		return &GeminiBatchProvider{client: nil}, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	log.Debug("Gemini batch provider initialized.")
	return &GeminiBatchProvider{client: client}, nil
}

// Enabled reports whether an API key was configured.
func (p *GeminiBatchProvider) Enabled() bool { return p.client != nil }

// UploadFile uploads a blob through the Files API and returns its name ("files/...").
func (p *GeminiBatchProvider) UploadFile(ctx context.Context, displayName, mimeType string, content []byte) (string, error) {
	if p.client == nil {
		return "", models.ErrProviderDisabled
	}

	file, err := p.client.Files.Upload(ctx, bytes.NewReader(content), &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file '%s': %w", displayName, err)
	}
	if file == nil || file.Name == "" {
		return "", fmt.Errorf("upload of '%s': %w", displayName, models.ErrEmptyHandle)
	}
	return file.Name, nil
}

// CreateBatch starts a batch job reading its requests from an uploaded JSONL file.
func (p *GeminiBatchProvider) CreateBatch(ctx context.Context, model, inputFileName, displayName string) (string, error) {
	if p.client == nil {
		return "", models.ErrProviderDisabled
	}

	job, err := p.client.Batches.Create(ctx, model,
		&genai.BatchJobSource{FileName: inputFileName},
		&genai.CreateBatchJobConfig{DisplayName: displayName},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create batch job for file %s: %w", inputFileName, err)
	}
	if job == nil || job.Name == "" {
		return "", fmt.Errorf("create batch for %s: %w", inputFileName, models.ErrEmptyHandle)
	}
	return job.Name, nil
}

// RetrieveBatch fetches the current state of a batch job.
func (p *GeminiBatchProvider) RetrieveBatch(ctx context.Context, batchName string) (BatchJobStatus, error) {
	if p.client == nil {
		return BatchJobStatus{}, models.ErrProviderDisabled
	}

	job, err := p.client.Batches.Get(ctx, batchName, nil)
	if err != nil {
		return BatchJobStatus{}, fmt.Errorf("failed to retrieve batch job %s: %w", batchName, err)
	}

	status := BatchJobStatus{
		Name:     job.Name,
		RawState: string(job.State),
		State:    NormalizeState(string(job.State)),
	}
	if job.Dest != nil {
		status.OutputFile = job.Dest.FileName
	}
	return status, nil
}

// GetFileContent downloads a file produced by a batch job.
func (p *GeminiBatchProvider) GetFileContent(ctx context.Context, fileName string) ([]byte, error) {
	if p.client == nil {
		return nil, models.ErrProviderDisabled
	}

	data, err := p.client.Files.Download(ctx, genai.NewDownloadURIFromFile(&genai.File{Name: fileName}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileName, err)
	}
	return data, nil
}

// NormalizeState maps JOB_STATE_* and BATCH_STATE_* names onto models.RemoteState.
func NormalizeState(raw string) models.RemoteState {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "JOB_STATE_")
	s = strings.TrimPrefix(s, "BATCH_STATE_")

	switch s {
	case "SUCCEEDED", "PARTIALLY_SUCCEEDED":
		return models.RemoteStateSucceeded
	case "FAILED":
		return models.RemoteStateFailed
	case "CANCELLED":
		return models.RemoteStateCancelled
	case "EXPIRED":
		return models.RemoteStateExpired
	case "PENDING", "QUEUED":
		return models.RemoteStatePending
	case "RUNNING", "CANCELLING", "UPDATING", "PAUSED":
		return models.RemoteStateRunning
	default:
		return models.RemoteStateUnknown
	}
}

// Ensure GeminiBatchProvider implements the interface at compile time.
var _ BatchAPIProvider = (*GeminiBatchProvider)(nil)

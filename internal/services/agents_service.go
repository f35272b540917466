package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"hotfolder/internal/config"
	"hotfolder/internal/fileingest"
	"hotfolder/internal/logging"
	"hotfolder/internal/models"
	"hotfolder/internal/store"
	"hotfolder/internal/util"
)

const responseSnippetLength = 200

// AgentsService moves images from a watch folder through a remote batch job
// and back out as touched-up copies.
type AgentsService struct {
	ledger   store.LedgerStore
	provider BatchAPIProvider
	cfg      config.AgentsConfig
	now      func() time.Time
	moveFile func(src, dst string) error
	log      *log.Entry
}

// NewAgentsService creates a new AgentsService.
func NewAgentsService(ledger store.LedgerStore, provider BatchAPIProvider, cfg config.AgentsConfig) *AgentsService {
	if cfg.Instruction == "" {
		cfg.Instruction = config.DefaultInstruction
	}
	return &AgentsService{
		ledger:   ledger,
		provider: provider,
		cfg:      cfg,
		now:      time.Now,
		moveFile: fileingest.MoveFile,
		log:      log.WithField("component", "agents"),
	}
}

// Prepare creates the watch, processing and output folders when missing.
func (s *AgentsService) Prepare() error {
	for _, dir := range []string{s.cfg.WatchPath, s.cfg.ProcessingPath, s.cfg.OutputPath} {
		created, err := fileingest.EnsureDir(dir)
		if err != nil {
			return err
		}
		if created {
			s.log.Infof("Created folder %s", dir)
		}
	}
	return nil
}

// RunCycle polls known jobs, then submits new files. Errors are logged, never returned.
func (s *AgentsService) RunCycle(ctx context.Context) {
	if err := s.Poll(ctx); err != nil {
		s.log.Errorf("Error checking pending jobs: %v", err)
	}
	if ctx.Err() != nil {
		return
	}
	if err := s.Submit(ctx); err != nil {
		s.log.Errorf("Error submitting new files: %v", err)
	}
}

// Submit moves every eligible image from the watch folder into processing and
// submits them as one batch job. On failure the moved files are put back and
// no ledger entry is written.
func (s *AgentsService) Submit(ctx context.Context) error {
	files, err := fileingest.ListEligibleImages(s.cfg.WatchPath)
	if err != nil {
		return fmt.Errorf("failed to list watch folder: %w", err)
	}
	if len(files) == 0 {
		return nil
	}
	s.log.Infof("Found %d new image(s) to process", len(files))

	if _, err := fileingest.EnsureDir(s.cfg.ProcessingPath); err != nil {
		return err
	}

	moved := make([]string, 0, len(files))
	for _, f := range files {
		dest := filepath.Join(s.cfg.ProcessingPath, f.Name)
		if _, err := os.Lstat(dest); err == nil {
			s.log.Warnf("%s is still in processing; leaving the new copy in the watch folder", f.Name)
			continue
		}
		if err := s.moveFile(f.Path, dest); err != nil {
			s.log.Errorf("Failed to move %s to processing: %v", f.Name, err)
			continue
		}
		s.log.Infof("Moved %s to processing", f.Name)
		moved = append(moved, f.Name)
	}
	if len(moved) == 0 {
		return nil
	}

	jobName, err := s.submitBatch(ctx, moved)
	if err != nil {
		s.moveFilesBack(moved)
		return err
	}
	s.log.WithField("job", jobName).Infof("Created batch job with %d image(s)", len(moved))
	return nil
}

func (s *AgentsService) submitBatch(ctx context.Context, files []string) (string, error) {
	submittedAt := s.now().UnixMilli()

	inputs := make([]BatchInput, 0, len(files))
	for _, name := range files {
		data, err := fileingest.ReadFileContent(filepath.Join(s.cfg.ProcessingPath, name))
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", name, err)
		}
		inputs = append(inputs, BatchInput{Key: name, MIMEType: fileingest.MimeType(name), Data: data})
	}

	bundle, err := EncodeBatchRequests(inputs, s.cfg.Instruction)
	if err != nil {
		return "", err
	}

	inputFile, err := s.provider.UploadFile(ctx, fmt.Sprintf("agents-batch-%d", submittedAt), BatchInputMIMEType, bundle)
	if err != nil {
		return "", fmt.Errorf("failed to upload batch input: %w", err)
	}
	if inputFile == "" {
		return "", fmt.Errorf("upload batch input: %w", models.ErrEmptyHandle)
	}
	s.log.Debugf("Uploaded batch input as %s", inputFile)

	jobName, err := s.provider.CreateBatch(ctx, s.cfg.Model, inputFile, fmt.Sprintf("agents-upscale-%d", submittedAt))
	if err != nil {
		return "", fmt.Errorf("failed to create batch job: %w", err)
	}
	if jobName == "" {
		return "", fmt.Errorf("create batch job: %w", models.ErrEmptyHandle)
	}

	record := models.JobRecord{
		JobName:     jobName,
		Files:       files,
		SubmittedAt: submittedAt,
		Status:      models.JobStatusPending,
	}
	err = s.ledger.Update(ctx, func(records []models.JobRecord) ([]models.JobRecord, error) {
		return append(records, record), nil
	})
	if err != nil {
		s.log.WithField("job", jobName).Warn("Remote job was created but could not be recorded; its output will not be collected")
		return "", fmt.Errorf("failed to record batch job: %w", err)
	}
	return jobName, nil
}

// Poll checks every ledger entry against the remote service and applies the
// side effects of terminal states. The ledger is written at most once.
func (s *AgentsService) Poll(ctx context.Context) error {
	records, err := s.ledger.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	closed := make(map[string]bool)
	changed := make(map[string]models.JobStatus)

	for _, job := range records {
		if ctx.Err() != nil {
			break
		}
		entry := s.log.WithField("job", job.JobName)

		if job.Status.IsTerminal() {
			closed[job.JobName] = true
			continue
		}

		status, err := s.provider.RetrieveBatch(ctx, job.JobName)
		if err != nil {
			entry.Errorf("Failed to check job: %v", err)
			continue
		}
		entry.Infof("Job status: %s", status.RawState)

		switch status.State {
		case models.RemoteStateSucceeded:
			entry.Info("Job completed")
			s.retrieveOutput(ctx, entry, job, status)
			closed[job.JobName] = true
		case models.RemoteStateFailed, models.RemoteStateExpired:
			entry.Errorf("Job %s", status.State)
			s.moveFilesBack(job.Files)
			closed[job.JobName] = true
		case models.RemoteStateCancelled:
			entry.Warn("Job was cancelled")
			s.moveFilesBack(job.Files)
			closed[job.JobName] = true
		case models.RemoteStateRunning:
			if job.Status != models.JobStatusRunning {
				changed[job.JobName] = models.JobStatusRunning
			}
		}
	}

	if len(closed) == 0 && len(changed) == 0 {
		return nil
	}

	return s.ledger.Update(ctx, func(current []models.JobRecord) ([]models.JobRecord, error) {
		kept := make([]models.JobRecord, 0, len(current))
		for _, r := range current {
			if closed[r.JobName] {
				continue
			}
			if st, ok := changed[r.JobName]; ok {
				r.Status = st
			}
			kept = append(kept, r)
		}
		return kept, nil
	})
}

// retrieveOutput saves the images of a finished job and deletes its inputs
// from processing. Every failure here is soft: the job is closed either way.
func (s *AgentsService) retrieveOutput(ctx context.Context, entry *log.Entry, job models.JobRecord, status BatchJobStatus) {
	if status.OutputFile == "" {
		entry.Warnf("%v", models.ErrNoOutput)
		return
	}

	data, err := s.provider.GetFileContent(ctx, status.OutputFile)
	if err != nil {
		entry.Errorf("Failed to download results: %v", err)
		return
	}

	tmp, err := os.CreateTemp(s.cfg.TempDir, "agents-result-*.jsonl")
	if err != nil {
		entry.Errorf("Failed to create temp file: %v", err)
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, err = io.Copy(tmp, bytes.NewReader(data))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		entry.Errorf("Failed to write temp file: %v", err)
		return
	}

	if _, err := fileingest.EnsureDir(s.cfg.OutputPath); err != nil {
		entry.Errorf("Output folder unavailable: %v", err)
		return
	}

	saved, err := s.saveResults(entry, tmpPath)
	if err != nil {
		entry.Errorf("Failed to read results: %v", err)
	}
	entry.Infof("Saved %d upscaled image(s)", saved)

	for _, name := range job.Files {
		_ = os.Remove(filepath.Join(s.cfg.ProcessingPath, name))
	}
}

// saveResults reads the result bundle line by line and writes every inline
// image into the output folder. Bad records are logged and skipped.
func (s *AgentsService) saveResults(entry *log.Entry, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	saved := 0
	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return saved, readErr
		}

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			saved += s.saveRecord(entry, lineNo, line)
		}

		if errors.Is(readErr, io.EOF) {
			return saved, nil
		}
	}
}

func (s *AgentsService) saveRecord(entry *log.Entry, lineNo int, line []byte) int {
	rec, err := ParseResultLine(line)
	if err != nil {
		entry.Errorf("Skipping result line %d: %v", lineNo, err)
		return 0
	}

	key := rec.Key
	if key == "" {
		key = fmt.Sprintf("unknown-%d", s.now().UnixMilli())
	}
	if rec.Error != nil {
		entry.Warnf("Request %s failed: %s", key, rec.Error.Message)
	}

	saved := 0
	for i, img := range rec.Images() {
		name := OutputFileName(key, img.Type(), i+1)
		dest := filepath.Join(s.cfg.OutputPath, name)
		if err := fileingest.WriteFileAtomic(dest, img.Data, 0o644); err != nil {
			entry.Errorf("Failed to save %s: %v", name, err)
			continue
		}
		entry.Infof("Saved %s", logging.ShortPath(dest))
		saved++
	}
	for _, text := range rec.Texts() {
		entry.Infof("Response text for %s: %s", key, util.Snippet(util.CleanText(text), responseSnippetLength))
	}
	return saved
}

// moveFilesBack returns files from processing to the watch folder. Files no
// longer in processing are skipped.
func (s *AgentsService) moveFilesBack(files []string) {
	for _, name := range files {
		src := filepath.Join(s.cfg.ProcessingPath, name)
		if !fileingest.IsRegularFile(src) {
			continue
		}
		if err := s.moveFile(src, filepath.Join(s.cfg.WatchPath, name)); err != nil {
			s.log.Errorf("Failed to move %s back to watch folder: %v", name, err)
			continue
		}
		s.log.Warnf("Moved %s back to watch folder", name)
	}
}

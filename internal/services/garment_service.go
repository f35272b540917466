package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"hotfolder/internal/config"
	"hotfolder/internal/fileingest"
	"hotfolder/internal/logging"
	"hotfolder/internal/scheduler"
	"hotfolder/internal/store"
	"hotfolder/internal/watcher"
)

// ErrOriginalMissing is returned when an editor export has no matching original photo.
var ErrOriginalMissing = errors.New("original photo not found")

// GarmentService runs the editor round trip: new photos are opened in the
// editor, and each export releases its original to the bucket and the output folder.
type GarmentService struct {
	cfg      config.GarmentConfig
	storage  store.ObjectStore
	opener   Opener
	notifier Notifier

	waitPolicy   scheduler.RetryPolicy
	uploadPolicy scheduler.RetryPolicy
	log          *log.Entry
}

// NewGarmentService creates a new GarmentService.
func NewGarmentService(cfg config.GarmentConfig, storage store.ObjectStore, opener Opener, notifier Notifier) *GarmentService {
	return &GarmentService{
		cfg:      cfg,
		storage:  storage,
		opener:   opener,
		notifier: notifier,
		waitPolicy: scheduler.RetryPolicy{
			MaxAttempts: cfg.WaitAttempts,
			Delay:       cfg.WaitInterval,
		},
		uploadPolicy: scheduler.RetryPolicy{
			MaxAttempts: cfg.UploadAttempts,
			Delay:       cfg.UploadDelay,
			Multiplier:  2,
		},
		log: log.WithField("component", "garment"),
	}
}

// Prepare creates the watch, export and output folders when missing.
func (s *GarmentService) Prepare() error {
	for _, dir := range []string{s.cfg.WatchPath, s.cfg.ExportPath, s.cfg.OutPath} {
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

// Run watches the intake and export folders until ctx is done.
func (s *GarmentService) Run(ctx context.Context) error {
	intake, _, err := watcher.Start(ctx, watcher.Config{
		Dir:         s.cfg.WatchPath,
		Ops:         fsnotify.Create | fsnotify.Write,
		Filter:      visibleFile,
		Debounce:    s.cfg.Debounce,
		InitialScan: s.cfg.OpenExisting,
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.cfg.WatchPath, err)
	}
	exports, _, err := watcher.Start(ctx, watcher.Config{
		Dir:      s.cfg.ExportPath,
		Ops:      fsnotify.Create,
		Filter:   visibleFile,
		Debounce: s.cfg.Debounce,
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.cfg.ExportPath, err)
	}

	s.log.Infof("Watching %s for new photos", s.cfg.WatchPath)
	s.log.Infof("Watching %s for editor exports", s.cfg.ExportPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for ev := range intake {
			if err := s.HandleIntake(gctx, ev); err != nil {
				s.log.Errorf("Error opening %s: %v", logging.ShortPath(ev.Path), err)
			}
		}
		return nil
	})
	g.Go(func() error {
		for ev := range exports {
			if err := s.HandleExport(gctx, ev.Path); err != nil {
				s.log.Errorf("Error while processing export %s: %v", logging.ShortPath(ev.Path), err)
			}
		}
		return nil
	})
	return g.Wait()
}

// HandleIntake opens a newly arrived or rewritten photo in the editor and
// pauses before the next one.
func (s *GarmentService) HandleIntake(ctx context.Context, ev watcher.Event) error {
	path := ev.Path
	if !fileingest.IsRegularFile(path) {
		return nil
	}
	if ev.Has(fsnotify.Create) {
		s.log.Infof("New file detected: %s", logging.ShortPath(path))
	} else {
		s.log.Infof("File updated: %s", logging.ShortPath(path))
	}

	if err := s.opener.Open(ctx, path); err != nil {
		return err
	}

	if s.cfg.OpenDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(s.cfg.OpenDelay):
		}
	}
	return nil
}

// OriginalName maps an export file name to the original photo's name.
func OriginalName(exportName string) string {
	return strings.Replace(exportName, ".png", ".jpg", 1)
}

// HandleExport finishes one garment: upload the original, move it to the
// output folder and report it to the web API.
func (s *GarmentService) HandleExport(ctx context.Context, path string) error {
	base := filepath.Base(path)
	id := strings.TrimSuffix(base, filepath.Ext(base))
	filename := OriginalName(base)
	oldPath := filepath.Join(s.cfg.WatchPath, filename)
	newPath := filepath.Join(s.cfg.OutPath, filename)
	entry := s.log.WithField("id", id)

	entry.Infof("Export detected: %s", logging.ShortPath(path))

	if !s.waitPolicy.WaitFor(ctx, func() bool { return fileExists(oldPath) }) {
		return fmt.Errorf("%s: %w", logging.ShortPath(oldPath), ErrOriginalMissing)
	}
	if !fileingest.IsRegularFile(oldPath) {
		return fmt.Errorf("%s is not a regular file", logging.ShortPath(oldPath))
	}

	err := s.uploadPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		err := s.storage.UploadFile(ctx, filename, oldPath, fileingest.MimeType(filename))
		if errors.Is(err, os.ErrNotExist) {
			return scheduler.Permanent(err)
		}
		if err != nil {
			entry.Warnf("Upload attempt %d failed: %v", attempt, err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", filename, s.storage.Bucket(), err)
	}
	entry.Infof("Uploaded %s to bucket %s", filename, s.storage.Bucket())

	entry.Infof("Moving %s to %s", logging.ShortPath(oldPath), logging.ShortPath(newPath))
	if err := fileingest.MoveFile(oldPath, newPath); err != nil {
		return fmt.Errorf("failed to move original: %w", err)
	}

	err = s.uploadPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		return s.notifier.NotifyProcessed(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to report processed garment: %w", err)
	}
	entry.Info("Garment processed")
	return nil
}

func visibleFile(path string) bool {
	return !fileingest.IsHidden(filepath.Base(path))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

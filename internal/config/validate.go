package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

/*
Validation is split per command: the monitor only needs the ledger location,
the agents daemon needs Gemini credentials and its three folders, and the
garment watcher needs its folders, an editor and a bucket.
*/

// ValidateAgents checks the settings required by the batch submitter.
func (c *Config) ValidateAgents() error {
	a := c.Agents
	if a.APIKey == "" {
		return errors.New("agents.api_key is required (or set GEMINI_API_KEY)")
	}
	if a.Model == "" {
		return errors.New("agents.model is required")
	}
	if a.StateFile == "" {
		return errors.New("agents.state_file is required")
	}
	if err := distinctDirs(map[string]string{
		"agents.watch_path":      a.WatchPath,
		"agents.processing_path": a.ProcessingPath,
		"agents.output_path":     a.OutputPath,
	}); err != nil {
		return err
	}
	if a.Interval < time.Second {
		return fmt.Errorf("agents.interval (%s) must be at least 1s", a.Interval)
	}
	if a.Jitter < 0 || a.Jitter >= a.Interval {
		return fmt.Errorf("agents.jitter (%s) must be non-negative and less than agents.interval (%s)", a.Jitter, a.Interval)
	}
	return nil
}

// ValidateGarment checks the settings required by the editor round-trip watcher.
func (c *Config) ValidateGarment() error {
	g := c.Garment
	if err := distinctDirs(map[string]string{
		"garment.watch_path":  g.WatchPath,
		"garment.export_path": g.ExportPath,
		"garment.out_path":    g.OutPath,
	}); err != nil {
		return err
	}
	if g.FilterApp == "" {
		return errors.New("garment.filter_app is required (or set GARMENT_FILTER_APP)")
	}
	if g.OpenCommand == "" {
		return errors.New("garment.open_command is required")
	}
	if g.WaitAttempts <= 0 {
		return errors.New("garment.wait_attempts must be a positive integer")
	}
	if g.UploadAttempts <= 0 {
		return errors.New("garment.upload_attempts must be a positive integer")
	}

	s := c.Storage
	if s.Endpoint == "" {
		return errors.New("storage.endpoint is required")
	}
	if s.Bucket == "" {
		return errors.New("storage.bucket is required")
	}
	if s.AccessKey == "" || s.SecretKey == "" {
		return errors.New("storage.access_key and storage.secret_key are required")
	}
	return nil
}

// ValidateMonitor checks the settings required by the status viewer.
func (c *Config) ValidateMonitor() error {
	if c.Agents.StateFile == "" {
		return errors.New("agents.state_file is required")
	}
	if c.Monitor.RefreshInterval <= 0 {
		return errors.New("monitor.refresh_interval must be positive")
	}
	return nil
}

func distinctDirs(dirs map[string]string) error {
	seen := make(map[string]string, len(dirs))
	for key, dir := range dirs {
		if dir == "" {
			return fmt.Errorf("%s is required", key)
		}
		clean := filepath.Clean(dir)
		if other, ok := seen[clean]; ok {
			return fmt.Errorf("%s and %s must be different directories", other, key)
		}
		seen[clean] = key
	}
	return nil
}

package services

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// AppLauncher opens files through a desktop launcher command.
// With the macOS "open" command the file is handed to App via "-a".
type AppLauncher struct {
	Command string
	App     string

	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewAppLauncher creates an AppLauncher. An empty command means "open".
func NewAppLauncher(command, app string) *AppLauncher {
	if command == "" {
		command = "open"
	}
	return &AppLauncher{Command: command, App: app, run: runCommand}
}

// Args returns the launcher arguments for path.
func (l *AppLauncher) Args(path string) []string {
	if filepath.Base(l.Command) == "open" && l.App != "" {
		return []string{"-a", l.App, path}
	}
	return []string{path}
}

// Open launches the editor and returns once the launcher command exits.
func (l *AppLauncher) Open(ctx context.Context, path string) error {
	out, err := l.run(ctx, l.Command, l.Args(path)...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s %s: %w: %s", l.Command, path, err, msg)
		}
		return fmt.Errorf("%s %s: %w", l.Command, path, err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

var _ Opener = (*AppLauncher)(nil)

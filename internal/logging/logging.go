package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgHiYellow)
	noticeColor  = color.New(color.FgCyan)
	debugColor   = color.New(color.FgHiBlack)
)

// Formatter renders entries as "LEVEL: message key=value ..." with a colored level.
type Formatter struct {
	DisableColors bool
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	prefix, paint := levelStyle(entry.Level)

	var b bytes.Buffer
	b.WriteString(prefix)
	b.WriteString(": ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}

	line := b.String()
	if !f.DisableColors {
		line = paint.Sprint(line)
	}
	return []byte(line + "\n"), nil
}

func levelStyle(level log.Level) (string, *color.Color) {
	switch level {
	case log.PanicLevel, log.FatalLevel, log.ErrorLevel:
		return "ERROR", errorColor
	case log.WarnLevel:
		return "WARNING", warningColor
	case log.InfoLevel:
		return "NOTICE", noticeColor
	default:
		return "DEBUG", debugColor
	}
}

// Options configures the process-wide logger.
type Options struct {
	Level         string
	File          string
	DisableColors bool
}

// Setup configures the standard logrus logger. The returned closer releases the
// log file, if any. Terminal output may be colored; the log file never is.
func Setup(opts Options) (io.Closer, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}
	log.SetLevel(level)
	log.SetFormatter(&Formatter{DisableColors: opts.DisableColors})
	log.SetOutput(os.Stdout)
	log.StandardLogger().ReplaceHooks(make(log.LevelHooks))

	if opts.File == "" {
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	log.AddHook(NewFileHook(f))
	return f, nil
}

// FileHook mirrors every entry to a writer, formatted without colors.
type FileHook struct {
	mu        sync.Mutex
	w         io.Writer
	formatter log.Formatter
}

// NewFileHook returns a hook writing plain lines to w.
func NewFileHook(w io.Writer) *FileHook {
	return &FileHook{w: w, formatter: &Formatter{DisableColors: true}}
}

// Levels implements logrus.Hook.
func (h *FileHook) Levels() []log.Level { return log.AllLevels }

// Fire implements logrus.Hook.
func (h *FileHook) Fire(entry *log.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(line)
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ShortPath renders a path as "parent/file" for log lines.
func ShortPath(path string) string {
	return filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path))
}

package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Event is a debounced change to one path. Op accumulates every operation seen
// for the path during the debounce window.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Has reports whether op was part of the event.
func (e Event) Has(op fsnotify.Op) bool { return e.Op&op == op }

type Config struct {
	Dir         string
	Ops         fsnotify.Op            // operations of interest; 0 means Create|Write
	Filter      func(path string) bool // nil accepts every path
	Debounce    time.Duration          // quiet period per path before its event is emitted; 0 emits immediately
	InitialScan bool                   // emit files already present as Create events
}

// Start watches cfg.Dir (not recursively) until ctx is done. Both channels are
// closed when the watcher stops.
func Start(ctx context.Context, cfg Config) (<-chan Event, <-chan error, error) {
	if cfg.Dir == "" {
		return nil, nil, errors.New("watcher: no directory provided")
	}
	if cfg.Ops == 0 {
		cfg.Ops = fsnotify.Create | fsnotify.Write
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("watcher: create: %w", err)
	}
	if err := w.Add(cfg.Dir); err != nil {
		_ = w.Close()
		return nil, nil, fmt.Errorf("watcher: add %s: %w", cfg.Dir, err)
	}

	evCh := make(chan Event, 256)
	errCh := make(chan error, 1)

	var initial []string
	if cfg.InitialScan {
		entries, err := os.ReadDir(cfg.Dir)
		if err != nil {
			_ = w.Close()
			return nil, nil, fmt.Errorf("watcher: scan %s: %w", cfg.Dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			initial = append(initial, filepath.Join(cfg.Dir, e.Name()))
		}
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer w.Close()

		emit := func(ev Event) bool {
			select {
			case evCh <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, p := range initial {
			if cfg.Filter == nil || cfg.Filter(p) {
				if !emit(Event{Path: p, Op: fsnotify.Create}) {
					return
				}
			}
		}

		type pendingEvent struct {
			op  fsnotify.Op
			due time.Time
		}
		pending := map[string]*pendingEvent{}
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		defer timer.Stop()

		// flush emits every path whose quiet period ended by now and re-arms the
		// timer for the earliest remaining one.
		flush := func(now time.Time) bool {
			var ready []string
			var next time.Time
			for p, pe := range pending {
				if !pe.due.After(now) {
					ready = append(ready, p)
				} else if next.IsZero() || pe.due.Before(next) {
					next = pe.due
				}
			}
			sort.Strings(ready)
			for _, p := range ready {
				op := pending[p].op
				delete(pending, p)
				if !emit(Event{Path: p, Op: op}) {
					return false
				}
			}
			if !next.IsZero() {
				timer.Reset(next.Sub(now))
			}
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&cfg.Ops == 0 {
					continue
				}
				if cfg.Filter != nil && !cfg.Filter(e.Name) {
					continue
				}
				now := time.Now()
				pe, seen := pending[e.Name]
				if !seen {
					pe = &pendingEvent{}
					pending[e.Name] = pe
				}
				pe.op |= e.Op & cfg.Ops
				pe.due = now.Add(cfg.Debounce)
				if cfg.Debounce <= 0 {
					if !flush(now) {
						return
					}
					continue
				}
				if !seen {
					// A new path may be due before whatever the timer waits for.
					timer.Stop()
					if !flush(now) {
						return
					}
				}
			case now := <-timer.C:
				if !flush(now) {
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithField("dir", cfg.Dir).Errorf("Watcher error: %v", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

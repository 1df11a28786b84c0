package override

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// File triggers when the trigger file appears or is written. The file is
// removed once consumed, so each phase needs a fresh touch.
type File struct {
	path string
	log  zerolog.Logger
}

func NewFile(path string, logger zerolog.Logger) *File {
	return &File{
		path: filepath.Clean(path),
		log:  logger.With().Str("component", "override").Str("source", "file").Str("path", path).Logger(),
	}
}

func (f *File) WaitForSignal(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create trigger dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// A trigger written before the watch was armed still counts.
	if _, err := os.Stat(f.path); err == nil {
		return f.consume()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return ErrInputClosed
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				return f.consume()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return ErrInputClosed
			}
			f.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (f *File) consume() error {
	f.log.Info().Msg("manual override")
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		f.log.Warn().Err(err).Msg("could not remove trigger file")
	}
	return nil
}

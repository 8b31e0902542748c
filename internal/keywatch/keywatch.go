// Package keywatch перечитывает файл ключа при изменении и подменяет ключ в holder.
package keywatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/udisondev/manchester/pkg/secret"
)

// DefaultDebounce — пауза после последнего события перед перечитыванием.
const DefaultDebounce = 100 * time.Millisecond

// Watcher следит за файлом ключа.
type Watcher struct {
	path     string
	holder   *secret.Holder
	debounce time.Duration
	onReload func(secret.Key)
}

// Option конфигурирует Watcher.
type Option func(*Watcher)

// WithDebounce устанавливает паузу перед перечитыванием.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithOnReload вызывается после успешной подмены ключа.
func WithOnReload(fn func(secret.Key)) Option {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// New создаёт наблюдателя за path.
func New(path string, holder *secret.Holder, opts ...Option) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		holder:   holder,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run следит за файлом до отмены ctx.
// Следим за директорией: редакторы и `mv` заменяют файл целиком.
// Невалидный ключ в файле логируется, прежний ключ остаётся.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	slog.Info("keywatch: watching", "file", w.path)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("keywatch: stopped", "file", w.path)
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("keywatch: watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	key, err := secret.LoadFromFile(w.path)
	if err != nil {
		slog.Warn("keywatch: key rejected, keeping previous", "file", w.path, "error", err)
		return
	}

	if current, ok := w.holder.Get(); ok && current.Equal(key) {
		return
	}

	w.holder.Set(key)
	slog.Info("keywatch: key reloaded", "file", w.path)
	if w.onReload != nil {
		w.onReload(key)
	}
}

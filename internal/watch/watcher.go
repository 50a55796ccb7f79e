// Package watch observa o diretório de dados e avisa quando um arquivo de base
// muda por fora do bot (edição manual, restauração de backup, outro processo).
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 50 * time.Millisecond

// Watcher dispara o callback para cada arquivo .json alterado no diretório de dados.
type Watcher struct {
	fw       *fsnotify.Watcher
	log      *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	last    map[string]time.Time
	stopped bool
}

// New cria o watcher para dir e para os seus subdiretórios imediatos.
func New(dir string, log *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("erro ao criar watcher: %w", err)
	}

	w := &Watcher{
		fw:       fw,
		log:      log.Named("watch"),
		debounce: DefaultDebounce,
		last:     make(map[string]time.Time),
	}
	if err := w.addTree(abs); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("erro ao observar %s: %w", path, err)
		}
		return nil
	})
}

// Run entrega os eventos até o contexto ser cancelado. Bloqueia.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fw.Add(event.Name)
					continue
				}
			}
			if !relevant(event) || w.bounced(event.Name) {
				continue
			}
			w.log.Debug("arquivo de base alterado", zap.String("path", event.Name), zap.Stringer("op", event.Op))
			onChange(event.Name)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("erro do watcher", zap.Error(err))
		}
	}
}

// Stop libera o watcher. Pode ser chamado mais de uma vez.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	return w.fw.Close()
}

// bounced descarta eventos repetidos do mesmo arquivo dentro da janela de debounce.
func (w *Watcher) bounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if last, ok := w.last[path]; ok && now.Sub(last) < w.debounce {
		return true
	}
	w.last[path] = now
	return false
}

func relevant(event fsnotify.Event) bool {
	if filepath.Ext(event.Name) != ".json" {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

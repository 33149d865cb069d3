package app

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// PromptSource serves the current prompt set and hot-reloads it when the
// prompts file changes on disk. A failed reload keeps the previous set.
type PromptSource struct {
	mu      sync.RWMutex
	path    string
	current *Prompts
	logger  *Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewPromptSource(path string, logger *Logger) (*PromptSource, error) {
	prompts, err := LoadPrompts(path)
	if err != nil {
		return nil, err
	}
	return &PromptSource{
		path:    path,
		current: prompts,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

func (s *PromptSource) Prompts() *Prompts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Watch starts observing the prompts file's directory. Watching the
// directory instead of the file survives editors that replace on save.
func (s *PromptSource) Watch() error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher
	go s.loop()
	return nil
}

func (s *PromptSource) loop() {
	target := filepath.Clean(s.path)
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			prompts, err := LoadPrompts(s.path)
			if err != nil {
				s.logger.Warn("prompt reload failed", map[string]any{"path": s.path, "error": err.Error()})
				continue
			}
			s.mu.Lock()
			s.current = prompts
			s.mu.Unlock()
			s.logger.Info("prompts reloaded", map[string]any{"path": s.path})
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("prompt watcher error", map[string]any{"error": err.Error()})
		}
	}
}

func (s *PromptSource) Close() {
	close(s.done)
	if s.watcher != nil {
		s.watcher.Close()
	}
}

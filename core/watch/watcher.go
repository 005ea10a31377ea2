package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"multitrack/logger"

	"github.com/fsnotify/fsnotify"
)

// Handler processes one settled file.
type Handler func(ctx context.Context, path string) error

// Watcher hands new files in a directory to a Handler once they have stopped
// changing. Each path is handled at most once per Watcher.
type Watcher struct {
	dir     string
	exts    map[string]bool
	settle  time.Duration
	handle  Handler
	mu      sync.Mutex
	timers  map[string]*time.Timer
	handled map[string]bool
}

// New watches dir for files with one of exts (".wav" style, any case).
func New(dir string, exts []string, settle time.Duration, handle Handler) *Watcher {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = true
	}
	return &Watcher{
		dir:     dir,
		exts:    set,
		settle:  settle,
		handle:  handle,
		timers:  make(map[string]*time.Timer),
		handled: make(map[string]bool),
	}
}

// Run blocks until ctx is done. Files already in dir are not handled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", w.dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	logger.Info("[Watcher] 开始监听目录", logger.String("dir", w.dir))

	var wg sync.WaitGroup
	defer func() {
		w.mu.Lock()
		for path, t := range w.timers {
			if t.Stop() {
				wg.Done()
			}
			delete(w.timers, path)
		}
		w.mu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !w.exts[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			w.schedule(ctx, &wg, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("[Watcher] 监听出错", logger.ErrorField(err))
		}
	}
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, wg *sync.WaitGroup, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handled[path] {
		return
	}
	if t, ok := w.timers[path]; ok {
		if !t.Stop() {
			// already firing
			return
		}
		wg.Done()
	}
	wg.Add(1)
	w.timers[path] = time.AfterFunc(w.settle, func() {
		defer wg.Done()
		w.mu.Lock()
		delete(w.timers, path)
		w.handled[path] = true
		w.mu.Unlock()

		if err := w.handle(ctx, path); err != nil {
			logger.Error("[Watcher] 处理文件失败", logger.String("path", path), logger.ErrorField(err))
			return
		}
		logger.Info("[Watcher] 文件处理完成", logger.String("path", path))
	})
}

package credentials

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileProvider loads credentials from individual files in a directory,
// Kubernetes secret-mount style: the filename is the credential id and
// the trimmed file content is the secret.
//
// File permissions are validated (0600 or 0400 only) so secrets are not
// readable by other users. With watching enabled the provider monitors
// the directory and re-seeds changed files into the store.
type FileProvider struct {
	basePath string
	watch    bool

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	started bool
}

// NewFileProvider creates a file-based credential provider over basePath.
func NewFileProvider(basePath string, watch bool) (*FileProvider, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat credential directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("credential path is not a directory: %s", basePath)
	}

	return &FileProvider{
		basePath: basePath,
		watch:    watch,
		stopCh:   make(chan struct{}),
	}, nil
}

// Name identifies the provider in logs.
func (p *FileProvider) Name() string { return "file" }

// Load reads every regular file in the directory into the store and, if
// watching is enabled, starts the change monitor.
func (p *FileProvider) Load(ctx context.Context, store *Store) error {
	if err := p.loadAll(store); err != nil {
		return err
	}

	if !p.watch {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(p.basePath); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch credential directory: %w", err)
	}

	p.watcher = watcher
	p.started = true
	go p.watchLoop(store)

	slog.Info("file credential provider watching", "path", p.basePath)
	return nil
}

// Refresh re-reads every file in the directory.
func (p *FileProvider) Refresh(ctx context.Context, store *Store) error {
	return p.loadAll(store)
}

// Close stops the watcher.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}
	close(p.stopCh)
	p.started = false
	return p.watcher.Close()
}

func (p *FileProvider) loadAll(store *Store) error {
	entries, err := os.ReadDir(p.basePath)
	if err != nil {
		return fmt.Errorf("failed to read credential directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := p.loadOne(store, entry.Name()); err != nil {
			slog.Warn("skipping credential file", "file", entry.Name(), "error", err)
			continue
		}
		count++
	}
	slog.Debug("file credentials loaded", "count", count, "path", p.basePath)
	return nil
}

func (p *FileProvider) loadOne(store *Store, name string) error {
	path := filepath.Join(p.basePath, name)

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := checkPermissions(info.Mode()); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return fmt.Errorf("file is empty")
	}

	return store.Put(Credential{ID: name, Secret: []byte(secret), Kind: "file"})
}

func (p *FileProvider) watchLoop(store *Store) {
	for {
		select {
		case <-p.stopCh:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") {
				continue
			}
			switch {
			case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
				if err := p.loadOne(store, name); err != nil {
					slog.Warn("credential reload failed", "file", name, "error", err)
					continue
				}
				slog.Info("credential reloaded", "id", name)
			case event.Has(fsnotify.Remove):
				if err := store.Delete(name); err == nil {
					slog.Info("credential removed", "id", name)
				}
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("credential watcher error", "error", err)
		}
	}
}

// checkPermissions rejects group- or world-readable secret files.
func checkPermissions(mode fs.FileMode) error {
	perm := mode.Perm()
	if perm != 0o600 && perm != 0o400 {
		return fmt.Errorf("permissions %#o too permissive (want 0600 or 0400)", perm)
	}
	return nil
}

package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// pollingWatcher watches by periodically re-scanning the directory tree,
// used when fsnotify isn't available (spec.md §4.10 "polling fallback").
type pollingWatcher struct {
	interval  time.Duration
	suffix    string
	fileState map[string]fileSnapshot
	events    chan FileEvent
	errors    chan error
	stopCh    chan struct{}
	mu        sync.RWMutex
	stopped   bool
	rootPath  string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

func newPollingWatcher(interval time.Duration, suffix string) *pollingWatcher {
	return &pollingWatcher{
		interval:  interval,
		suffix:    suffix,
		fileState: make(map[string]fileSnapshot),
		events:    make(chan FileEvent, 100),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
}

func (p *pollingWatcher) Start(ctx context.Context, root string) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	p.rootPath = absPath

	if err := p.scan(); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

func (p *pollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

func (p *pollingWatcher) Events() <-chan FileEvent { return p.events }
func (p *pollingWatcher) Errors() <-chan error     { return p.errors }

func (p *pollingWatcher) scan() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !p.matches(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(p.rootPath, path)
		p.fileState[rel] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
}

func (p *pollingWatcher) matches(path string) bool {
	return p.suffix == "" || strings.HasSuffix(path, p.suffix)
}

func (p *pollingWatcher) detectChanges() error {
	p.mu.Lock()
	seen := make(map[string]bool, len(p.fileState))
	var toEmit []FileEvent

	err := filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !p.matches(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(p.rootPath, path)
		seen[rel] = true

		snap := fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		prev, existed := p.fileState[rel]
		p.fileState[rel] = snap

		switch {
		case !existed:
			toEmit = append(toEmit, FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
		case prev.modTime != snap.modTime || prev.size != snap.size:
			toEmit = append(toEmit, FileEvent{Path: rel, Operation: OpModify, Timestamp: time.Now()})
		}
		return nil
	})

	for rel := range p.fileState {
		if !seen[rel] {
			toEmit = append(toEmit, FileEvent{Path: rel, Operation: OpDelete, Timestamp: time.Now()})
			delete(p.fileState, rel)
		}
	}
	p.mu.Unlock()

	for _, ev := range toEmit {
		select {
		case p.events <- ev:
		default:
		}
	}
	return err
}

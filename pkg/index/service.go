// Package index maintains a queryable, filesystem-backed index of
// documents under three rooted trees (project, spec, management),
// mirroring changes with a recursive watcher and a debounce loop.
package index

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/indexstore"
)

// DocType identifies which rooted tree an indexed file belongs to.
type DocType string

const (
	DocTypeProject    DocType = "project"
	DocTypeSpec       DocType = "spec"
	DocTypeManagement DocType = "management"
)

// specSearchableExts are the extensions recorded for the spec root.
var specSearchableExts = map[string]bool{
	"pdf": true, "md": true, "docx": true, "txt": true,
	"ofd": true, "ceb": true, "jpeg": true, "jpg": true, "png": true,
}

// Metrics is the optional instrumentation hook for index activity. A
// nil Metrics disables instrumentation at zero cost.
type Metrics interface {
	RecordUpsert(docType string)
	RecordDelete(docType string)
	SetPendingCount(n int)
}

// Root describes one watched document tree.
type Root struct {
	DocType DocType
	Path    string
}

// Config configures the IndexService.
type Config struct {
	Roots           []Root
	Cooldown        time.Duration
	Persist         string // "rescan" or "persist"
	ScanCronHour    int
	ScanCronMinute  int
}

// Service is the running index: a persistent store, a set of watchers,
// and a debounce loop that coalesces bursts of filesystem events.
type Service struct {
	store    *indexstore.Store
	roots    []Root
	cooldown time.Duration
	metrics  Metrics

	mu      sync.Mutex
	pending map[pendingKey]time.Time

	watcher     *fsnotify.Watcher
	watchedDirs map[string]bool
	cancel      context.CancelFunc
	done        chan struct{}
}

type pendingKey struct {
	docType DocType
	absPath string
}

// New constructs a Service against an already-migrated store. If
// cfg.Persist is "rescan", callers must have opened store with
// Config.Truncate set so the table starts empty.
func New(store *indexstore.Store, cfg Config) *Service {
	return &Service{
		store:       store,
		roots:       cfg.Roots,
		cooldown:    cfg.Cooldown,
		pending:     make(map[pendingKey]time.Time),
		watchedDirs: make(map[string]bool),
		done:        make(chan struct{}),
	}
}

// SetMetrics attaches an instrumentation sink. Passing nil disables
// instrumentation.
func (s *Service) SetMetrics(m Metrics) {
	s.metrics = m
}

// Start performs the startup walk over every configured root, installs
// a recursive watcher per root, and begins the debounce loop. It
// blocks until the startup walk completes; the watcher and debounce
// loop continue running on background goroutines until Stop is called.
func (s *Service) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	s.watcher = w

	for _, root := range s.roots {
		if err := s.walkAndUpsert(ctx, root); err != nil {
			logger.ErrorCtx(ctx, "initial index walk failed", logger.Path(root.Path), logger.Err(err))
		}
		if err := s.watchRecursive(root.Path); err != nil {
			logger.ErrorCtx(ctx, "failed to install watcher", logger.Path(root.Path), logger.Err(err))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.watchLoop(runCtx)
	go s.debounceLoop(runCtx)

	return nil
}

// Stop cancels the watch and debounce loops, flushes any pending
// updates best-effort, and closes the filesystem watcher.
func (s *Service) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done

	s.mu.Lock()
	toFlush := s.pending
	s.pending = make(map[pendingKey]time.Time)
	s.mu.Unlock()

	for key := range toFlush {
		if err := s.upsertPath(ctx, key.docType, key.absPath); err != nil {
			logger.WarnCtx(ctx, "failed to flush pending index update on shutdown", logger.Path(key.absPath), logger.Err(err))
		}
	}

	if s.watcher != nil {
		_ = s.watcher.Close()
	}
}

func (s *Service) rootFor(absPath string) (Root, bool) {
	for _, root := range s.roots {
		if strings.HasPrefix(absPath, root.Path+string(filepath.Separator)) || absPath == root.Path {
			return root, true
		}
	}
	return Root{}, false
}

func (s *Service) ignorePath(absPath string) bool {
	base := filepath.Base(absPath)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return true
	}
	if strings.HasSuffix(base, ".tmp") {
		return true
	}
	return false
}

func (s *Service) walkAndUpsert(ctx context.Context, root Root) error {
	return filepath.Walk(root.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || s.ignorePath(path) {
			return nil
		}
		if uerr := s.upsertPath(ctx, root.DocType, path); uerr != nil {
			logger.WarnCtx(ctx, "failed to index file during startup walk", logger.Path(path), logger.Err(uerr))
		}
		return nil
	})
}

func (s *Service) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			s.mu.Lock()
			s.watchedDirs[path] = true
			s.mu.Unlock()
			return s.watcher.Add(path)
		}
		return nil
	})
}

func (s *Service) watchLoop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(ctx, event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.ErrorCtx(ctx, "filesystem watcher error", logger.Err(err))
		}
	}
}

func (s *Service) handleEvent(ctx context.Context, event fsnotify.Event) {
	root, ok := s.rootFor(event.Name)
	if !ok || s.ignorePath(event.Name) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			s.mu.Lock()
			s.watchedDirs[event.Name] = true
			s.mu.Unlock()
			_ = s.watcher.Add(event.Name)
			_ = s.walkAndUpsert(ctx, root)
			return
		}
		s.enqueue(root.DocType, event.Name)

	case event.Op&fsnotify.Write != 0:
		s.enqueue(root.DocType, event.Name)

	case event.Op&fsnotify.Remove != 0:
		if err := s.deletePath(ctx, root, event.Name); err != nil {
			logger.WarnCtx(ctx, "failed to delete index entry", logger.Path(event.Name), logger.Err(err))
		}

	case event.Op&fsnotify.Rename != 0:
		// fsnotify reports the source side of a move as Rename; the
		// destination arrives as a separate Create event.
		if err := s.deletePath(ctx, root, event.Name); err != nil {
			logger.WarnCtx(ctx, "failed to delete moved-from index entry", logger.Path(event.Name), logger.Err(err))
		}
	}
}

// deletePath removes the index row(s) for a path that no longer
// exists on disk. Whether it was a file or a directory is resolved
// against the set of paths the watcher had registered as directories,
// since os.Stat can no longer distinguish a removed path.
func (s *Service) deletePath(ctx context.Context, root Root, absPath string) error {
	relPath, err := filepath.Rel(root.Path, absPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	wasDir := s.watchedDirs[absPath]
	delete(s.watchedDirs, absPath)
	s.mu.Unlock()

	if wasDir {
		err = s.store.DeleteUnderDirectory(ctx, string(root.DocType), relPath)
	} else {
		err = s.store.DeleteByPath(ctx, string(root.DocType), relPath)
	}
	if err == nil && s.metrics != nil {
		s.metrics.RecordDelete(string(root.DocType))
	}
	return err
}

func (s *Service) enqueue(docType DocType, absPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[pendingKey{docType: docType, absPath: absPath}] = time.Now()
}

func (s *Service) debounceLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drainPending(ctx)
		}
	}
}

func (s *Service) drainPending(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var ready []pendingKey
	for key, ts := range s.pending {
		if now.Sub(ts) > s.cooldown {
			ready = append(ready, key)
			delete(s.pending, key)
		}
	}
	remaining := len(s.pending)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetPendingCount(remaining)
	}

	for _, key := range ready {
		if err := s.upsertPath(ctx, key.docType, key.absPath); err != nil {
			logger.WarnCtx(ctx, "failed to upsert file after debounce", logger.Path(key.absPath), logger.Err(err))
		}
	}
}

// upsertPath runs the single-file upsert algorithm: stat, hash,
// metadata derivation, then a replacing write.
func (s *Service) upsertPath(ctx context.Context, docType DocType, absPath string) error {
	root, ok := s.rootFor(absPath)
	if !ok {
		return fmt.Errorf("path %s is not under a configured root", absPath)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	relPath, err := filepath.Rel(root.Path, absPath)
	if err != nil {
		return err
	}
	relPath = filepath.ToSlash(relPath)

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	if docType == DocTypeSpec && !specSearchableExts[ext] {
		return nil
	}

	hash, err := md5File(absPath)
	if err != nil {
		return err
	}

	row := buildRow(docType, relPath, ext, info, hash)

	if err := s.store.Upsert(ctx, row); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordUpsert(string(docType))
	}
	return nil
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func buildRow(docType DocType, relPath, ext string, info os.FileInfo, hash string) indexstore.Row {
	row := indexstore.Row{
		DocType:      string(docType),
		RelativePath: relPath,
		FileName:     filepath.Base(relPath),
		Ext:          ext,
		Size:         info.Size(),
		ModifiedTime: info.ModTime().Unix(),
		ContentHash:  hash,
		LastScanned:  time.Now().Unix(),
	}

	parts := strings.Split(relPath, "/")

	switch docType {
	case DocTypeProject:
		// <year>/<projectName>/<status>/...
		if len(parts) > 1 && isFourDigitYear(parts[0]) {
			row.Year = parts[0]
		}
		if len(parts) > 2 {
			row.ProjectName = parts[1]
		}
		if len(parts) > 3 {
			row.Status = parts[2]
		}

	case DocTypeSpec:
		// <category>/<docName>/...
		if len(parts) > 1 {
			row.Category = parts[0]
		}
		if len(parts) > 2 && specSearchableExts[ext] {
			row.DocName = parts[1]
		}

	case DocTypeManagement:
		// <category>/<subCategory>/...
		if len(parts) > 1 {
			row.Category = parts[0]
		}
		if len(parts) > 2 {
			row.SubCategory = parts[1]
		}
	}

	return row
}

func isFourDigitYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

// Find runs the index's query contract.
func (s *Service) Find(ctx context.Context, q indexstore.Query) ([]indexstore.Row, error) {
	return s.store.Find(ctx, q)
}

// QuerySpecsByCategory returns docName -> relativePath for every spec
// entry in the given category.
func (s *Service) QuerySpecsByCategory(ctx context.Context, category string) (map[string]string, error) {
	docType := string(DocTypeSpec)
	rows, err := s.store.Find(ctx, indexstore.Query{DocType: &docType, Category: &category})
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.DocName == "" {
			continue
		}
		result[row.DocName] = row.RelativePath
	}
	return result, nil
}

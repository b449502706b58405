// Package fileservice is the rooted, path-escape-safe file helper that
// backs every upload, download, archive and disk-usage operation. Each
// blocking operation takes one of MaxConcurrentIO semaphore slots and
// then runs on the calling goroutine; the existence probes,
// ResolvePath and DiskUsage take no slot.
package fileservice

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docassistant/docassistant/internal/bytesize"
	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/apperrors"
	"github.com/docassistant/docassistant/pkg/backup"
)

const placeholderFilename = "placeholder.txt"

// DiskUsage reports the root filesystem's capacity in both raw bytes
// and human-readable form.
type DiskUsage struct {
	TotalBytes uint64
	UsedBytes  uint64
	FreeBytes  uint64
	Total      string
	Used       string
	Free       string
}

// UploadFile is one member of a directory upload: its content stream
// plus the client-supplied relative sub-path under the destination
// directory.
type UploadFile struct {
	SubPath string
	Stream  io.Reader
}

// Service is a rooted file helper: every relative path it is given is
// resolved against root and checked for escape before any I/O happens.
type Service struct {
	root         string
	sem          chan struct{}
	backupUpload *backup.Uploader
}

// Config controls the bounded worker pool width and the optional S3
// uploader BackupDirectory hands its archive to.
type Config struct {
	RootDir         string
	MaxConcurrentIO int
	BackupUpload    *backup.Uploader
}

// New constructs a Service rooted at cfg.RootDir.
func New(cfg Config) (*Service, error) {
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file service root %q: %w", cfg.RootDir, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create file service root %q: %w", root, err)
	}

	width := cfg.MaxConcurrentIO
	if width <= 0 {
		width = 8
	}
	return &Service{root: root, sem: make(chan struct{}, width), backupUpload: cfg.BackupUpload}, nil
}

// acquire/release bound the number of blocking I/O operations in
// flight at once, mirroring the semaphore-channel pattern used for
// bounded upload/download concurrency elsewhere in the stack.
func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("file service operation cancelled: %w", ctx.Err())
	}
}

func (s *Service) release() {
	<-s.sem
}

// safePath resolves relPath against the root and fails with
// ErrPathEscape if the result is not contained within it, or if
// relPath is itself absolute.
func (s *Service) safePath(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", apperrors.PathEscapef("absolute path not allowed: %q", relPath)
	}

	joined := filepath.Join(s.root, relPath)
	resolved := filepath.Clean(joined)

	rel, err := filepath.Rel(s.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.PathEscapef("path escapes file service root: %q", relPath)
	}
	return resolved, nil
}

// SaveUpload streams content to a tempfile beside the destination and
// renames it into place, so a failed or partial write never leaves a
// corrupt file at relPath.
func (s *Service) SaveUpload(ctx context.Context, stream io.Reader, relPath string) (string, error) {
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.release()

	dest, err := s.safePath(relPath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create parent directory for %q: %w", relPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %q: %w", relPath, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, stream); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write upload %q: %w", relPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file for %q: %w", relPath, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move upload into place %q: %w", relPath, err)
	}
	return dest, nil
}

// SaveBytes is SaveUpload from an in-memory buffer.
func (s *Service) SaveBytes(ctx context.Context, content []byte, relPath string) (string, error) {
	return s.SaveUpload(ctx, strings.NewReader(string(content)), relPath)
}

// ReadStream opens relPath for chunked reading. Callers are
// responsible for closing the returned ReadCloser.
func (s *Service) ReadStream(ctx context.Context, relPath string) (io.ReadCloser, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	full, err := s.safePath(relPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFoundf("file %q", relPath)
		}
		return nil, fmt.Errorf("failed to open %q: %w", relPath, err)
	}
	return f, nil
}

// SaveDirectoryUpload saves every file under destRelDir/<subPath>. If
// any single file fails, the files already written in this call are
// best-effort removed before the error is returned.
func (s *Service) SaveDirectoryUpload(ctx context.Context, files []UploadFile, destRelDir string) ([]string, error) {
	written := make([]string, 0, len(files))

	for _, f := range files {
		relPath := filepath.Join(destRelDir, f.SubPath)
		dest, err := s.SaveUpload(ctx, f.Stream, relPath)
		if err != nil {
			for _, w := range written {
				if rmErr := os.Remove(w); rmErr != nil {
					logger.WarnCtx(ctx, "failed to roll back partially written upload", logger.Err(rmErr))
				}
			}
			return nil, fmt.Errorf("directory upload failed on %q: %w", f.SubPath, err)
		}
		written = append(written, dest)
	}
	return written, nil
}

// RemoveDirectory recursively removes relPath. Missing is success.
func (s *Service) RemoveDirectory(ctx context.Context, relPath string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	full, err := s.safePath(relPath)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("failed to remove directory %q: %w", relPath, err)
	}
	return nil
}

// CreatePlaceholder ensures relDir exists and touches filename inside
// it if absent, defaulting to placeholder.txt.
func (s *Service) CreatePlaceholder(ctx context.Context, relDir, filename string) (string, error) {
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.release()

	if filename == "" {
		filename = placeholderFilename
	}

	dirPath, err := s.safePath(relDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %q: %w", relDir, err)
	}

	full := filepath.Join(dirPath, filename)
	if _, err := os.Stat(full); err == nil {
		return full, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat placeholder %q: %w", full, err)
	}

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("failed to create placeholder %q: %w", full, err)
	}
	f.Close()
	return full, nil
}

// DecompressArchive extracts a .zip or .tar[.gz] archive at relPath
// into a sibling directory named after the archive (minus extension).
func (s *Service) DecompressArchive(ctx context.Context, relPath string, overwrite bool) (string, error) {
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.release()

	archivePath, err := s.safePath(relPath)
	if err != nil {
		return "", err
	}

	destDir, base := archiveDestDir(archivePath)
	if _, err := os.Stat(destDir); err == nil && !overwrite {
		return "", apperrors.AlreadyExistsf("decompression target %q", destDir)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create extraction directory for %q: %w", base, err)
	}

	switch {
	case strings.HasSuffix(base, ".zip"):
		if err := extractZip(archivePath, destDir); err != nil {
			return "", fmt.Errorf("failed to extract zip archive %q: %w", relPath, err)
		}
	case strings.HasSuffix(base, ".tar.gz"), strings.HasSuffix(base, ".tgz"):
		if err := extractTarGz(archivePath, destDir); err != nil {
			return "", fmt.Errorf("failed to extract tar.gz archive %q: %w", relPath, err)
		}
	case strings.HasSuffix(base, ".tar"):
		if err := extractTar(archivePath, destDir); err != nil {
			return "", fmt.Errorf("failed to extract tar archive %q: %w", relPath, err)
		}
	default:
		return "", fmt.Errorf("unsupported archive format: %q", relPath)
	}
	return destDir, nil
}

// BackupDirectory zips srcRel into a timestamped archive at destAbs.
func (s *Service) BackupDirectory(ctx context.Context, srcRel, destAbs string) (string, error) {
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.release()

	srcPath, err := s.safePath(srcRel)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(destAbs), 0755); err != nil {
		return "", fmt.Errorf("failed to create backup destination directory: %w", err)
	}

	out, err := os.Create(destAbs)
	if err != nil {
		return "", fmt.Errorf("failed to create backup archive %q: %w", destAbs, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	walkErr := filepath.Walk(srcPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcPath, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if walkErr != nil {
		zw.Close()
		return "", fmt.Errorf("failed to archive %q: %w", srcRel, walkErr)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize backup archive %q: %w", destAbs, err)
	}

	if err := s.backupUpload.Upload(ctx, destAbs); err != nil {
		logger.WarnCtx(ctx, "backup archive produced but s3 upload failed", logger.Err(err))
	}

	return destAbs, nil
}

// DiskUsage reports capacity of the filesystem underlying the root.
func (s *Service) DiskUsage() (DiskUsage, error) {
	total, free, err := diskStats(s.root)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("failed to read disk usage for %q: %w", s.root, err)
	}
	used := total - free
	return DiskUsage{
		TotalBytes: total,
		UsedBytes:  used,
		FreeBytes:  free,
		Total:      bytesize.ByteSize(total).String(),
		Used:       bytesize.ByteSize(used).String(),
		Free:       bytesize.ByteSize(free).String(),
	}, nil
}

// ResolvePath returns the absolute path for relPath after the same
// root-containment check every other operation applies, for callers
// (document parsers, archive readers) that need a path rather than a
// stream.
func (s *Service) ResolvePath(relPath string) (string, error) {
	return s.safePath(relPath)
}

// FileExists is a non-throwing existence probe; a path-escape or I/O
// error is treated as "does not exist" rather than propagated.
func (s *Service) FileExists(relPath string) bool {
	full, err := s.safePath(relPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}

// DirectoryExists is FileExists for directories.
func (s *Service) DirectoryExists(relPath string) bool {
	full, err := s.safePath(relPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.IsDir()
}

func archiveDestDir(archivePath string) (string, string) {
	base := filepath.Base(archivePath)
	name := base
	for _, ext := range []string{".tar.gz", ".tgz", ".tar", ".zip"} {
		if strings.HasSuffix(strings.ToLower(name), ext) {
			name = name[:len(name)-len(ext)]
			break
		}
	}
	return filepath.Join(filepath.Dir(archivePath), name), base
}

func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(filepath.Separator)) {
			return apperrors.PathEscapef("zip entry escapes extraction directory: %q", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

func extractTar(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	return extractTarStream(f, destDir)
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	return extractTarStream(gz, destDir)
}

func extractTarStream(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(filepath.Separator)) {
			return apperrors.PathEscapef("tar entry escapes extraction directory: %q", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.Create(target)
			if err != nil {
				return err
			}
			_, copyErr := io.Copy(out, tr)
			out.Close()
			if copyErr != nil {
				return copyErr
			}
		}
	}
}

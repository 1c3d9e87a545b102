package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"nuclight.org/msglog-tg-bot/pkg/logger"
)

// DefaultExtension is used when no extension can be derived from a url.
const DefaultExtension = "jpg"

var (
	ErrExists = errors.New("blob already exists")
	ErrClosed = errors.New("blob store is closed")
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Store is a private scratch directory holding downloaded blobs. Nothing else
// writes into it. Close removes the whole directory.
type Store struct {
	log        logger.Logger
	httpClient HTTPClient
	dir        string

	// done is canceled by Close so in-flight downloads stop promptly.
	done   context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New creates a uniquely named directory with the given prefix inside baseDir,
// or inside the system temp dir when baseDir is empty.
func New(baseDir, prefix string, log logger.Logger, httpClient HTTPClient) (*Store, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating base directory: %w", err)
		}
	}

	dir, err := os.MkdirTemp(baseDir, prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}

	done, cancel := context.WithCancel(context.Background())

	return &Store{
		log:        log.With("blob_dir", dir),
		httpClient: httpClient,
		dir:        dir,
		done:       done,
		cancel:     cancel,
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Download fetches src into "{attachmentID}.{ext}" and returns the file path.
// Either the whole body lands at the returned path or nothing does.
func (s *Store) Download(ctx context.Context, src, attachmentID, ext string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrClosed
	}

	name, err := fileName(attachmentID, ext)
	if err != nil {
		return "", err
	}

	target := filepath.Join(s.dir, name)
	if _, err := os.Lstat(target); err == nil {
		return "", fmt.Errorf("%s: %w", name, ErrExists)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.done, cancel)
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	partial := filepath.Join(s.dir, name+"."+uuid.NewString()+".part")
	if err := writeFile(partial, resp.Body); err != nil {
		s.removeFile(partial)
		return "", err
	}

	// os.Link fails if target exists, unlike os.Rename
	if err := os.Link(partial, target); err != nil {
		s.removeFile(partial)
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%s: %w", name, ErrExists)
		}
		return "", fmt.Errorf("publishing file: %w", err)
	}
	s.removeFile(partial)

	return target, nil
}

// Remove deletes one blob. Failures are logged and otherwise ignored.
func (s *Store) Remove(p string) {
	if !s.contains(p) {
		s.log.Warn("refusing to remove file outside blob directory", "path", p)
		return
	}
	s.removeFile(p)
}

// Close removes the scratch directory with everything in it. Only the first
// call does any work.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if err := os.RemoveAll(s.dir); err != nil {
			s.log.Error("removing blob directory", "error", err)
			return
		}
		s.log.Debug("blob directory removed")
	})
}

func (s *Store) removeFile(p string) {
	err := os.Remove(p)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return
	}
	s.log.Error("removing blob", "path", p, "error", err)
}

func (s *Store) contains(p string) bool {
	rel, err := filepath.Rel(s.dir, p)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// Extension returns the last dot-delimited segment of the url path, or
// DefaultExtension if there is none.
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}

	ext := strings.TrimPrefix(path.Ext(path.Base(p)), ".")
	if ext == "" {
		return DefaultExtension
	}

	return ext
}

func fileName(attachmentID, ext string) (string, error) {
	if attachmentID == "" || strings.ContainsAny(attachmentID, `/\`) || attachmentID == "." || attachmentID == ".." {
		return "", fmt.Errorf("invalid attachment id: %q", attachmentID)
	}

	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		ext = DefaultExtension
	}

	return attachmentID + "." + ext, nil
}

func writeFile(p string, r io.Reader) (err error) {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing file: %w", cerr)
		}
	}()

	if _, err = io.Copy(f, r); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}

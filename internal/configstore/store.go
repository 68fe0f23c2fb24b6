// Package configstore persists the chamber's configuration document: a
// single JSON file with crash-safe writes, hash-based versioning, and
// best-effort advisory locking.
//
// Writes are atomic: the document is serialized canonically to a temp file
// in the destination directory, fsynced, and renamed over the destination.
// A reader never observes a partially written document.
package configstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// DefaultMaxSize is the default maximum document size in bytes.
const DefaultMaxSize = 65536

// Version identifies the exact bytes currently on stable storage.
type Version struct {
	ContentHash  string    `json:"content_hash"`
	LastModified time.Time `json:"last_modified"`
	SizeBytes    int       `json:"size_bytes"`
}

// ValidationError reports why a document was rejected. The store never
// writes anything when validation fails.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid document: %s", e.Reason)
	}
	return fmt.Sprintf("invalid document: field %q %s", e.Field, e.Reason)
}

// Store is the authoritative configuration document, bound to one path.
type Store struct {
	path    string
	maxSize int
	logger  *logrus.Logger
}

// New creates a Store for the document at path. maxSize <= 0 selects
// DefaultMaxSize.
func New(path string, maxSize int, logger *logrus.Logger) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{path: path, maxSize: maxSize, logger: logger}
}

// Path returns the document path the store is bound to.
func (s *Store) Path() string {
	return s.path
}

// MaxSize returns the configured maximum document size in bytes.
func (s *Store) MaxSize() int {
	return s.maxSize
}

// ReadRaw returns the exact bytes on stable storage and their version.
// A missing or empty file yields an empty byte slice.
func (s *Store) ReadRaw() ([]byte, Version, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []byte{}, versionOf(nil, time.Time{}), nil
		}
		return nil, Version{}, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	s.lock(f, unix.LOCK_SH)
	defer s.unlock(f)

	// Read one byte past the limit so oversize documents are detected
	// without slurping an unbounded file.
	raw, err := io.ReadAll(io.LimitReader(f, int64(s.maxSize)+1))
	if err != nil {
		return nil, Version{}, fmt.Errorf("reading document: %w", err)
	}
	if len(raw) > s.maxSize {
		return nil, Version{}, fmt.Errorf("document exceeds maximum size of %d bytes", s.maxSize)
	}

	mtime := time.Time{}
	if fi, err := f.Stat(); err == nil {
		mtime = fi.ModTime().UTC()
	}
	return raw, versionOf(raw, mtime), nil
}

// Read returns the parsed document and its version. An empty document
// parses as an empty object.
func (s *Store) Read() (map[string]interface{}, Version, error) {
	raw, ver, err := s.ReadRaw()
	if err != nil {
		return nil, Version{}, err
	}
	if len(raw) == 0 {
		return map[string]interface{}{}, ver, nil
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, Version{}, fmt.Errorf("parsing document: %w", err)
	}
	return doc, ver, nil
}

// Version returns the current document version without the document.
func (s *Store) Version() (Version, error) {
	_, ver, err := s.ReadRaw()
	return ver, err
}

// Write validates, canonically serializes, and atomically persists the
// document, returning the new version. On validation failure nothing is
// written and the error is a *ValidationError.
func (s *Store) Write(doc map[string]interface{}) (Version, error) {
	if err := ValidateDocument(doc); err != nil {
		return Version{}, err
	}

	canonical, err := CanonicalJSON(doc)
	if err != nil {
		return Version{}, fmt.Errorf("serializing document: %w", err)
	}
	if len(canonical) > s.maxSize {
		return Version{}, &ValidationError{Reason: fmt.Sprintf("serialized size %d exceeds maximum of %d bytes", len(canonical), s.maxSize)}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".chamber-*.tmp")
	if err != nil {
		return Version{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(canonical); err != nil {
		tmp.Close()
		return Version{}, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return Version{}, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Version{}, fmt.Errorf("closing temp file: %w", err)
	}

	// Exclusive advisory lock on the destination while it is replaced.
	// Best-effort: the deployment is single-process, single-writer.
	if dst, err := os.Open(s.path); err == nil {
		s.lock(dst, unix.LOCK_EX)
		defer s.unlock(dst)
		defer dst.Close()
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return Version{}, fmt.Errorf("replacing document: %w", err)
	}
	s.syncDir(dir)

	ver := versionOf(canonical, time.Now().UTC())
	s.logger.WithFields(logrus.Fields{
		"path":  s.path,
		"hash":  ver.ContentHash,
		"bytes": ver.SizeBytes,
	}).Info("Configuration document written")
	return ver, nil
}

func (s *Store) lock(f *os.File, how int) {
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		// Advisory only: a filesystem without flock degrades to
		// unsynchronized access.
		s.logger.WithError(err).WithField("path", s.path).Debug("Advisory lock unavailable")
	}
}

func (s *Store) unlock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func (s *Store) syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		s.logger.WithError(err).WithField("dir", dir).Debug("Directory sync failed")
	}
}

func versionOf(raw []byte, mtime time.Time) Version {
	sum := sha256.Sum256(raw)
	return Version{
		ContentHash:  hex.EncodeToString(sum[:]),
		LastModified: mtime,
		SizeBytes:    len(raw),
	}
}


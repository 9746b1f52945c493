package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"p2p-nebula/nebula/pkg/logger"
)

var (
	ErrNotFound       = errors.New("file not found")
	ErrDigestMismatch = errors.New("content digest does not match file id")
	ErrBadName        = errors.New("invalid file name")
)

// FileRecord describes one stored file. ID is the lowercase hex SHA-256 of
// the file's bytes.
type FileRecord struct {
	ID      string
	Name    string
	AddedAt time.Time
	Path    string
	Size    int64
}

// Store is a content addressed file store rooted in a per-node directory.
// Files live under their shared name; a new file with the same name replaces
// the old bytes and the old record.
type Store struct {
	mu      sync.RWMutex
	dir     string
	records map[string]FileRecord
	verify  bool
	now     func() time.Time
}

type Option func(*Store)

// WithVerify makes SaveIncoming reject content whose digest differs from the requested id.
func WithVerify(verify bool) Option {
	return func(s *Store) { s.verify = verify }
}

// DirName is the storage directory name used for a node listening on port.
func DirName(port int) string {
	return fmt.Sprintf("Node_%d_Files", port)
}

// NewStore creates (if needed) <baseDir>/Node_<port>_Files and returns an empty store over it.
func NewStore(baseDir string, port int, opts ...Option) (*Store, error) {
	return Open(filepath.Join(baseDir, DirName(port)), opts...)
}

// Open uses dir as storage directory, creating it when missing.
func Open(dir string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	s := &Store{
		dir:     abs,
		records: make(map[string]FileRecord),
		verify:  true,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// HashFile returns the lowercase hex SHA-256 digest of everything read from r.
func HashFile(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func cleanName(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == ".." || base == string(filepath.Separator) || base == "" {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return base, nil
}

// AddLocalFile copies the file at path into the store and registers it under
// the digest of the copied bytes, which it returns.
func (s *Store) AddLocalFile(path string) (string, error) {
	name, err := cleanName(path)
	if err != nil {
		return "", err
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source file: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrBadName, path)
	}

	dest := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("copy file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("move file into store: %w", err)
	}

	id := hex.EncodeToString(h.Sum(nil))
	s.register(FileRecord{ID: id, Name: name, AddedAt: s.now(), Path: dest, Size: size})
	logger.Sugar.Infof("[Store] added file: name=%s id=%s size=%d", name, id, size)
	return id, nil
}

// SaveIncoming writes the stream under name and registers it for id. An
// interrupted stream leaves the partial file on disk.
func (s *Store) SaveIncoming(id, name string, r io.Reader) (FileRecord, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	name, err := cleanName(name)
	if err != nil {
		return FileRecord{}, err
	}

	dest := filepath.Join(s.dir, name)
	f, err := os.Create(dest)
	if err != nil {
		return FileRecord{}, fmt.Errorf("create %s: %w", dest, err)
	}

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.forgetName(name)
		return FileRecord{}, fmt.Errorf("write %s: %w", dest, err)
	}

	digest := hex.EncodeToString(h.Sum(nil))
	if s.verify && digest != id {
		s.forgetName(name)
		return FileRecord{}, fmt.Errorf("%w: want %s got %s", ErrDigestMismatch, id, digest)
	}

	rec := FileRecord{ID: id, Name: name, AddedAt: s.now(), Path: dest, Size: size}
	s.register(rec)
	logger.Sugar.Infof("[Store] saved incoming file: name=%s id=%s size=%d", name, id, size)
	return rec, nil
}

// register stores rec and drops any other record whose bytes were just
// overwritten because it shared the name.
func (s *Store) register(rec FileRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, old := range s.records {
		if old.Name == rec.Name && id != rec.ID {
			delete(s.records, id)
		}
	}
	s.records[rec.ID] = rec
}

func (s *Store) forgetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, old := range s.records {
		if old.Name == name {
			delete(s.records, id)
		}
	}
}

// LookupByID matches id case-insensitively. Records whose backing file has
// disappeared are reported as missing.
func (s *Store) LookupByID(id string) (FileRecord, bool) {
	s.mu.RLock()
	rec, ok := s.records[strings.ToLower(strings.TrimSpace(id))]
	s.mu.RUnlock()
	if !ok {
		return FileRecord{}, false
	}
	if _, err := os.Stat(rec.Path); err != nil {
		return FileRecord{}, false
	}
	return rec, true
}

// LookupByTerm returns the first record, in name order, whose id equals term
// or whose name contains it, ignoring case.
func (s *Store) LookupByTerm(term string) (FileRecord, bool) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return FileRecord{}, false
	}
	if rec, ok := s.LookupByID(term); ok {
		return rec, true
	}
	for _, rec := range s.List() {
		if strings.Contains(strings.ToLower(rec.Name), term) {
			return rec, true
		}
	}
	return FileRecord{}, false
}

// Open returns the stored bytes for id. The caller closes the file.
func (s *Store) Open(id string) (*os.File, FileRecord, error) {
	rec, ok := s.LookupByID(id)
	if !ok {
		return nil, FileRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	f, err := os.Open(rec.Path)
	if err != nil {
		return nil, FileRecord{}, fmt.Errorf("open stored file: %w", err)
	}
	return f, rec, nil
}

// List returns all records sorted by name.
func (s *Store) List() []FileRecord {
	s.mu.RLock()
	out := make([]FileRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

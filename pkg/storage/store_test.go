package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), 9001, opts...)
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestHashFileIsDeterministic(t *testing.T) {
	a, err := HashFile(strings.NewReader("hello"))
	require.NoError(t, err)
	b, err := HashFile(strings.NewReader("hello"))
	require.NoError(t, err)
	c, err := HashFile(strings.NewReader("hello!"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, digest([]byte("hello")), a)
	assert.Equal(t, strings.ToLower(a), a)
	assert.Len(t, a, 64)
}

func TestNewStoreCreatesPortDirectory(t *testing.T) {
	base := t.TempDir()
	s, err := NewStore(base, 9123)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(base, "Node_9123_Files"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(base, "Node_9123_Files"), s.Dir())
}

func TestAddLocalFileRoundTrip(t *testing.T) {
	s := newStore(t)
	data := []byte("the quick brown fox")
	src := writeFile(t, "fox.txt", data)

	id, err := s.AddLocalFile(src)
	require.NoError(t, err)
	assert.Equal(t, digest(data), id)

	rec, ok := s.LookupByID(id)
	require.True(t, ok)
	assert.Equal(t, "fox.txt", rec.Name)
	assert.Equal(t, int64(len(data)), rec.Size)
	assert.Equal(t, filepath.Join(s.Dir(), "fox.txt"), rec.Path)

	stored, err := os.ReadFile(rec.Path)
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	_, ok = s.LookupByID(strings.ToUpper(id))
	assert.True(t, ok, "id lookup ignores case")
}

func TestAddLocalFileSameContentSameID(t *testing.T) {
	s := newStore(t)
	a, err := s.AddLocalFile(writeFile(t, "a.bin", []byte("same")))
	require.NoError(t, err)
	b, err := s.AddLocalFile(writeFile(t, "b.bin", []byte("same")))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	rec, ok := s.LookupByID(a)
	require.True(t, ok)
	assert.Equal(t, "b.bin", rec.Name, "re-add overwrites the record")
}

func TestAddLocalFileErrors(t *testing.T) {
	s := newStore(t)

	_, err := s.AddLocalFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	_, err = s.AddLocalFile(t.TempDir())
	assert.ErrorIs(t, err, ErrBadName)
}

func TestNameCollisionDropsStaleRecord(t *testing.T) {
	s := newStore(t)
	first, err := s.AddLocalFile(writeFile(t, "f.txt", []byte("v1")))
	require.NoError(t, err)
	second, err := s.AddLocalFile(writeFile(t, "f.txt", []byte("v2")))
	require.NoError(t, err)

	_, ok := s.LookupByID(first)
	assert.False(t, ok)
	_, ok = s.LookupByID(second)
	assert.True(t, ok)
	assert.Len(t, s.List(), 1)
}

func TestLookupByTerm(t *testing.T) {
	s := newStore(t)
	id, err := s.AddLocalFile(writeFile(t, "Holiday-Photo.JPG", []byte("jpeg")))
	require.NoError(t, err)
	_, err = s.AddLocalFile(writeFile(t, "notes.txt", []byte("notes")))
	require.NoError(t, err)

	rec, ok := s.LookupByTerm("photo")
	require.True(t, ok)
	assert.Equal(t, id, rec.ID)

	rec, ok = s.LookupByTerm(strings.ToUpper(id))
	require.True(t, ok)
	assert.Equal(t, "Holiday-Photo.JPG", rec.Name)

	_, ok = s.LookupByTerm("absent")
	assert.False(t, ok)
	_, ok = s.LookupByTerm("  ")
	assert.False(t, ok)
}

func TestLookupMissingBackingFile(t *testing.T) {
	s := newStore(t)
	id, err := s.AddLocalFile(writeFile(t, "gone.txt", []byte("x")))
	require.NoError(t, err)

	rec, _ := s.LookupByID(id)
	require.NoError(t, os.Remove(rec.Path))

	_, ok := s.LookupByID(id)
	assert.False(t, ok)
	_, _, err = s.Open(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveIncoming(t *testing.T) {
	s := newStore(t)
	data := bytes.Repeat([]byte("abc"), 5000)
	id := digest(data)

	rec, err := s.SaveIncoming(strings.ToUpper(id), "../../escape.bin", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "escape.bin", rec.Name)
	assert.Equal(t, filepath.Join(s.Dir(), "escape.bin"), rec.Path)

	f, got, err := s.Open(id)
	require.NoError(t, err)
	defer f.Close()
	stored, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, data, stored)
	assert.Equal(t, rec, got)
}

func TestSaveIncomingDigestMismatch(t *testing.T) {
	s := newStore(t)
	_, err := s.SaveIncoming(digest([]byte("expected")), "f.txt", strings.NewReader("truncat"))
	assert.ErrorIs(t, err, ErrDigestMismatch)
	assert.Empty(t, s.List())

	// The partial file stays on disk.
	_, statErr := os.Stat(filepath.Join(s.Dir(), "f.txt"))
	assert.NoError(t, statErr)
}

func TestSaveIncomingWithoutVerify(t *testing.T) {
	s := newStore(t, WithVerify(false))
	rec, err := s.SaveIncoming("someid", "f.txt", strings.NewReader("anything"))
	require.NoError(t, err)
	assert.Equal(t, "someid", rec.ID)
}

func TestSaveIncomingRejectsBadName(t *testing.T) {
	s := newStore(t)
	_, err := s.SaveIncoming("id", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrBadName)
}

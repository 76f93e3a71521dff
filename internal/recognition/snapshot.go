package recognition

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/your-org/attendance/internal/storage"
)

const currentPointer = "CURRENT"

// SnapshotStore persists models. Save must be durable before it returns, so a
// crash after Save never leaves the pointer at a partial snapshot.
type SnapshotStore interface {
	Save(ctx context.Context, m *Model) error
	Load(ctx context.Context) (*Model, error)
}

func encodeModel(m *Model) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(zw).Encode(m); err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress model: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeModel(data []byte) (*Model, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open model archive: %w", err)
	}
	defer zr.Close()
	m := &Model{}
	if err := gob.NewDecoder(zr).Decode(m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if m.SampleCount() == 0 {
		return nil, ErrModelNotTrained
	}
	if len(m.Labels) != len(m.Histograms) {
		return nil, fmt.Errorf("corrupt model %s: %d labels, %d histograms", m.Version, len(m.Labels), len(m.Histograms))
	}
	return m, nil
}

func snapshotName(version string) string {
	return "model-" + version + ".gob.gz"
}

// FileStore keeps snapshots in a local directory next to a CURRENT pointer file.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Save(_ context.Context, m *Model) error {
	data, err := encodeModel(m)
	if err != nil {
		return err
	}
	name := snapshotName(m.Version)
	if err := writeFileAtomic(filepath.Join(s.dir, name), data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, currentPointer), []byte(name+"\n")); err != nil {
		return fmt.Errorf("write snapshot pointer: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context) (*Model, error) {
	ptr, err := os.ReadFile(filepath.Join(s.dir, currentPointer))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrModelNotTrained
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot pointer: %w", err)
	}
	name := strings.TrimSpace(string(ptr))
	if name == "" {
		return nil, ErrModelNotTrained
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", name, err)
	}
	return decodeModel(data)
}

// writeFileAtomic writes to a temp file in the same directory, syncs it and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// ObjectStore is the subset of storage.MinIOStore used for snapshots.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// prunableStore is implemented by object stores that can list and delete;
// ObjectSnapshotStore uses it to drop old snapshots.
type prunableStore interface {
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	DeleteObject(ctx context.Context, key string) error
}

// DefaultSnapshotRetention is how many snapshots ObjectSnapshotStore keeps.
const DefaultSnapshotRetention = 5

// ObjectSnapshotStore keeps snapshots in the object store under a prefix.
type ObjectSnapshotStore struct {
	objects ObjectStore
	prefix  string
	keep    int
}

func NewObjectSnapshotStore(objects ObjectStore, prefix string) *ObjectSnapshotStore {
	if prefix == "" {
		prefix = "models"
	}
	return &ObjectSnapshotStore{
		objects: objects,
		prefix:  strings.TrimSuffix(prefix, "/"),
		keep:    DefaultSnapshotRetention,
	}
}

func (s *ObjectSnapshotStore) Save(ctx context.Context, m *Model) error {
	data, err := encodeModel(m)
	if err != nil {
		return err
	}
	name := snapshotName(m.Version)
	if err := s.objects.PutObject(ctx, s.prefix+"/"+name, data, "application/gzip"); err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	if err := s.objects.PutObject(ctx, s.prefix+"/"+currentPointer, []byte(name), "text/plain"); err != nil {
		return fmt.Errorf("upload snapshot pointer: %w", err)
	}
	if p, ok := s.objects.(prunableStore); ok {
		if err := s.prune(ctx, p); err != nil {
			slog.Warn("prune model snapshots", "error", err)
		}
	}
	return nil
}

// prune deletes all but the newest keep snapshots. Version names sort
// chronologically.
func (s *ObjectSnapshotStore) prune(ctx context.Context, p prunableStore) error {
	keys, err := p.ListObjects(ctx, s.prefix+"/model-")
	if err != nil {
		return err
	}
	if len(keys) <= s.keep {
		return nil
	}
	slices.Sort(keys)
	for _, key := range keys[:len(keys)-s.keep] {
		if err := p.DeleteObject(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *ObjectSnapshotStore) Load(ctx context.Context) (*Model, error) {
	ptr, err := s.objects.GetObject(ctx, s.prefix+"/"+currentPointer)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrModelNotTrained
	}
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot pointer: %w", err)
	}
	name := strings.TrimSpace(string(ptr))
	if name == "" {
		return nil, ErrModelNotTrained
	}
	data, err := s.objects.GetObject(ctx, s.prefix+"/"+name)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot %s: %w", name, err)
	}
	return decodeModel(data)
}

// Package flat is an in-process vector store. Each collection is an exact
// L2 index held in memory and persisted to its own file in a directory.
//
// Writes to one collection are serialized; each builds a new snapshot from
// the current one, writes it to disk through a temp file and rename, and
// only then publishes it. Searches read the published snapshot without
// locking, so they never observe a partial write.
package flat

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/vectorstore"
)

const indexExt = ".idx"

// ErrDirRequired is returned when no index directory is given.
var ErrDirRequired = errors.New("index directory required")

// Store implements vectorstore.Store and vectorstore.Rewriter on local files.
type Store struct {
	dir    string
	logger *slog.Logger
	locks  *keyedMutex
	closed atomic.Bool

	mu    sync.RWMutex
	cache map[string]*snapshot
}

var (
	_ vectorstore.Store    = (*Store)(nil)
	_ vectorstore.Rewriter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// Open creates dir if needed and returns a store over it. Collections are
// loaded lazily on first use.
func Open(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrDirRequired
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	s := &Store{
		dir:    dir,
		logger: slog.Default(),
		locks:  newKeyedMutex(),
		cache:  make(map[string]*snapshot),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "flat-store", "dir", dir)
	return s, nil
}

// Close drops cached snapshots. Index files are always current on disk.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	clear(s.cache)
	s.mu.Unlock()
	return nil
}

// Add appends entries to collection under fresh UUIDs.
func (s *Store) Add(ctx context.Context, collection string, entries []vectorstore.Entry) ([]string, error) {
	if err := s.check(collection); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []string{}, nil
	}

	ids := make([]string, len(entries))
	for i := range ids {
		ids[i] = uuid.NewString()
	}

	err := s.update(ctx, collection, func(cur *snapshot) (*snapshot, error) {
		return cur.withEntries(ids, entries)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Replace swaps the whole collection for docs if nothing was written to it
// since revision was read.
func (s *Store) Replace(ctx context.Context, collection string, docs []vectorstore.Document, revision uint64) error {
	if err := s.check(collection); err != nil {
		return err
	}
	return s.update(ctx, collection, func(cur *snapshot) (*snapshot, error) {
		if cur.revision != revision {
			return nil, fmt.Errorf("%w: %q is at revision %d, read at %d",
				vectorstore.ErrCollectionChanged, collection, cur.revision, revision)
		}
		return fromDocuments(collection, docs)
	})
}

// update runs build against the current snapshot with the collection
// locked, persists the result and publishes it.
func (s *Store) update(ctx context.Context, collection string, build func(*snapshot) (*snapshot, error)) error {
	unlock := s.locks.Lock(collection)
	defer unlock()

	cur, err := s.loadLocked(collection)
	if err != nil {
		return err
	}
	next, err := build(cur)
	if err != nil {
		return err
	}
	next.revision = cur.revision + 1
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.persist(next); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[collection] = next
	s.mu.Unlock()

	s.logger.Debug("published index",
		"collection", collection,
		"size", next.len(),
		"dim", next.dim)
	return nil
}

// Search scans the collection and returns the k closest entries by
// squared L2 distance, which is reported as the score.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, k int) ([]core.SearchHit, error) {
	if err := s.check(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, vectorstore.ErrInvalidTopK
	}

	snap, err := s.snapshot(collection)
	if err != nil {
		return nil, err
	}
	if snap.len() == 0 {
		return []core.SearchHit{}, nil
	}
	if len(vector) != snap.dim {
		return nil, fmt.Errorf("%w: collection %q has %d dimensions, query has %d",
			vectorstore.ErrDimensionMismatch, collection, snap.dim, len(vector))
	}

	type scored struct {
		pos  int
		dist float32
	}
	results := make([]scored, snap.len())
	for i, v := range snap.vectors {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		results[i] = scored{pos: i, dist: vectorstore.SquaredL2(vector, v)}
	}
	slices.SortStableFunc(results, func(a, b scored) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		}
		return 0
	})

	hits := make([]core.SearchHit, 0, min(k, len(results)))
	for _, r := range results[:min(k, len(results))] {
		id := snap.positions[r.pos]
		doc := snap.docs[id]
		hits = append(hits, core.SearchHit{
			ChunkID:  id,
			Content:  doc.content,
			Metadata: doc.metadata.Clone(),
			Score:    r.dist,
		})
	}
	return hits, nil
}

// Documents returns the collection's contents in insertion order.
func (s *Store) Documents(ctx context.Context, collection string) ([]vectorstore.Document, error) {
	docs, _, err := s.Read(ctx, collection)
	return docs, err
}

// Read returns the collection's contents with the revision they belong to.
func (s *Store) Read(ctx context.Context, collection string) ([]vectorstore.Document, uint64, error) {
	if err := s.check(collection); err != nil {
		return nil, 0, err
	}
	snap, err := s.snapshot(collection)
	if err != nil {
		return nil, 0, err
	}

	docs := make([]vectorstore.Document, snap.len())
	for i, id := range snap.positions {
		doc := snap.docs[id]
		docs[i] = vectorstore.Document{
			ID:       id,
			Content:  doc.content,
			Metadata: doc.metadata.Clone(),
			Vector:   append([]float32(nil), snap.vectors[i]...),
		}
	}
	return docs, snap.revision, nil
}

// Collections lists the collections that have an index file.
func (s *Store) Collections() ([]string, error) {
	if s.closed.Load() {
		return nil, vectorstore.ErrStoreClosed
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+indexExt))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		snap, err := decodeSnapshot(data)
		if err != nil {
			s.logger.Warn("skipping unreadable index", "path", path, "err", err)
			continue
		}
		names = append(names, snap.collection)
	}
	slices.Sort(names)
	return names, nil
}

func (s *Store) check(collection string) error {
	if s.closed.Load() {
		return vectorstore.ErrStoreClosed
	}
	return core.ValidateCollection(collection)
}

// snapshot returns the published snapshot, loading it on a cache miss.
func (s *Store) snapshot(collection string) (*snapshot, error) {
	s.mu.RLock()
	snap, ok := s.cache[collection]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	unlock := s.locks.Lock(collection)
	defer unlock()
	return s.loadLocked(collection)
}

// loadLocked must be called with the collection lock held.
func (s *Store) loadLocked(collection string) (*snapshot, error) {
	s.mu.RLock()
	snap, ok := s.cache[collection]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	data, err := os.ReadFile(s.indexPath(collection))
	switch {
	case errors.Is(err, os.ErrNotExist):
		snap = emptySnapshot(collection)
	case err != nil:
		return nil, fmt.Errorf("failed to read index for %q: %w", collection, err)
	default:
		snap, err = decodeSnapshot(data)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", collection, err)
		}
		if snap.collection != collection {
			return nil, fmt.Errorf("%w: file holds collection %q, expected %q",
				ErrCorruptIndex, snap.collection, collection)
		}
		s.logger.Debug("loaded index", "collection", collection, "size", snap.len())
	}

	s.mu.Lock()
	s.cache[collection] = snap
	s.mu.Unlock()
	return snap, nil
}

// persist writes snap to a temp file, syncs it and renames it over the
// collection's index file.
func (s *Store) persist(snap *snapshot) (err error) {
	path := s.indexPath(snap.collection)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(snap.encode()); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync index: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to publish index: %w", err)
	}
	syncDir(s.dir)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

func (s *Store) indexPath(collection string) string {
	return filepath.Join(s.dir, fileName(collection))
}

// fileName maps a collection to a safe file name. Names that need escaping
// get a hash suffix so distinct collections never share a file.
func fileName(collection string) string {
	var sb strings.Builder
	clean := true
	for _, r := range collection {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
			clean = false
		}
	}
	if clean {
		return sb.String() + indexExt
	}
	sum := blake2b.Sum256([]byte(collection))
	return sb.String() + "-" + hex.EncodeToString(sum[:4]) + indexExt
}

package flat

import (
	"bytes"
	"errors"
	"fmt"
	"maps"

	"github.com/go-crypt/x/blake2b"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/vectorstore"
)

// Index file layout:
//
//	magic "DIDX" | format version (1 byte) | blake2b-256 of body | body
//
// The body is MUS encoded: collection name, dimension, entry count, then
// per position the chunk id, content, metadata and dim float32 values.
var indexMagic = []byte("DIDX")

const (
	formatVersion = 1
	headerSize    = 4 + 1 + blake2b.Size256
)

var (
	// ErrCorruptIndex is returned when an index file fails verification.
	ErrCorruptIndex = errors.New("corrupt index file")
)

type document struct {
	content  string
	metadata core.Metadata
}

// snapshot is an immutable view of one collection. positions[i] is the id
// of the vector at vectors[i]; docs holds every id's text and metadata.
type snapshot struct {
	collection string
	dim        int
	vectors    [][]float32
	positions  []string
	docs       map[string]document

	// revision counts writes published since the store loaded the file.
	revision uint64
}

func emptySnapshot(collection string) *snapshot {
	return &snapshot{collection: collection, docs: map[string]document{}}
}

func (s *snapshot) len() int {
	return len(s.positions)
}

// withEntries returns a new snapshot holding s's contents followed by
// entries under ids. s is left untouched.
func (s *snapshot) withEntries(ids []string, entries []vectorstore.Entry) (*snapshot, error) {
	vectors := make([][]float32, len(entries))
	for i := range entries {
		vectors[i] = entries[i].Vector
	}
	dim, err := vectorstore.CheckDimensions(vectors)
	if err != nil {
		return nil, err
	}
	if s.dim != 0 && dim != s.dim {
		return nil, fmt.Errorf("%w: collection %q has %d dimensions, got %d",
			vectorstore.ErrDimensionMismatch, s.collection, s.dim, dim)
	}

	next := &snapshot{
		collection: s.collection,
		dim:        dim,
		vectors:    make([][]float32, 0, s.len()+len(entries)),
		positions:  make([]string, 0, s.len()+len(entries)),
		docs:       maps.Clone(s.docs),
	}
	next.vectors = append(next.vectors, s.vectors...)
	next.positions = append(next.positions, s.positions...)

	for i, entry := range entries {
		next.vectors = append(next.vectors, append([]float32(nil), entry.Vector...))
		next.positions = append(next.positions, ids[i])
		next.docs[ids[i]] = document{content: entry.Content, metadata: entry.Metadata.Clone()}
	}
	return next, nil
}

// fromDocuments builds a snapshot holding exactly docs.
func fromDocuments(collection string, docs []vectorstore.Document) (*snapshot, error) {
	ids := make([]string, len(docs))
	entries := make([]vectorstore.Entry, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("document %d has no id", i)
		}
		if _, dup := seen[doc.ID]; dup {
			return nil, fmt.Errorf("duplicate document id %q", doc.ID)
		}
		seen[doc.ID] = struct{}{}
		ids[i] = doc.ID
		entries[i] = vectorstore.Entry{Content: doc.Content, Metadata: doc.Metadata, Vector: doc.Vector}
	}
	return emptySnapshot(collection).withEntries(ids, entries)
}

func (s *snapshot) bodySize() int {
	size := ord.String.Size(s.collection) +
		varint.PositiveInt.Size(s.dim) +
		varint.PositiveInt.Size(s.len())
	for i, id := range s.positions {
		doc := s.docs[id]
		size += ord.String.Size(id) +
			ord.String.Size(doc.content) +
			core.MetadataMUS.Size(doc.metadata)
		for _, f := range s.vectors[i] {
			size += raw.Float32.Size(f)
		}
	}
	return size
}

// encode returns the full index file contents.
func (s *snapshot) encode() []byte {
	body := make([]byte, s.bodySize())
	n := ord.String.Marshal(s.collection, body)
	n += varint.PositiveInt.Marshal(s.dim, body[n:])
	n += varint.PositiveInt.Marshal(s.len(), body[n:])
	for i, id := range s.positions {
		doc := s.docs[id]
		n += ord.String.Marshal(id, body[n:])
		n += ord.String.Marshal(doc.content, body[n:])
		n += core.MetadataMUS.Marshal(doc.metadata, body[n:])
		for _, f := range s.vectors[i] {
			n += raw.Float32.Marshal(f, body[n:])
		}
	}

	sum := blake2b.Sum256(body[:n])
	out := make([]byte, 0, headerSize+n)
	out = append(out, indexMagic...)
	out = append(out, formatVersion)
	out = append(out, sum[:]...)
	return append(out, body[:n]...)
}

// decodeSnapshot verifies and parses an index file.
func decodeSnapshot(data []byte) (*snapshot, error) {
	if len(data) < headerSize || !bytes.Equal(data[:4], indexMagic) {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptIndex)
	}
	if data[4] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptIndex, data[4])
	}
	body := data[headerSize:]
	if sum := blake2b.Sum256(body); !bytes.Equal(sum[:], data[5:headerSize]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}

	s, err := decodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	return s, nil
}

func decodeBody(bs []byte) (*snapshot, error) {
	collection, n, err := ord.String.Unmarshal(bs)
	if err != nil {
		return nil, err
	}
	dim, n1, err := varint.PositiveInt.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return nil, err
	}
	count, n1, err := varint.PositiveInt.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return nil, err
	}

	s := &snapshot{
		collection: collection,
		dim:        dim,
		vectors:    make([][]float32, 0, count),
		positions:  make([]string, 0, count),
		docs:       make(map[string]document, count),
	}
	for range count {
		var doc document
		id, n1, err := ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, err
		}
		doc.content, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, err
		}
		doc.metadata, n1, err = core.MetadataMUS.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, err
		}
		vector := make([]float32, dim)
		for j := range vector {
			vector[j], n1, err = raw.Float32.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return nil, err
			}
		}
		if _, dup := s.docs[id]; dup {
			return nil, fmt.Errorf("duplicate id %q", id)
		}
		s.positions = append(s.positions, id)
		s.vectors = append(s.vectors, vector)
		s.docs[id] = doc
	}
	if n != len(bs) {
		return nil, fmt.Errorf("%d trailing bytes", len(bs)-n)
	}
	return s, nil
}

package object

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned when an object is not present in a backend.
var ErrNotFound = errors.New("object not found")

// Backend is the raw persistence layer behind a Store. Implementations are
// content addressed: Write returns HashObject(objType, data) and writing the
// same object twice is a no-op. The engine never depends on which backend
// is in use.
type Backend interface {
	Has(h Hash) bool
	Read(h Hash) (ObjectType, []byte, error)
	Write(objType ObjectType, data []byte) (Hash, error)
}

// Store wraps a Backend with typed helpers and knowledge of the synthetic
// root commit and the empty tree, neither of which is ever persisted.
type Store struct {
	backend Backend
}

// NewStore creates a Store backed by loose files under root/objects.
func NewStore(root string) *Store {
	return &Store{backend: NewFileBackend(root)}
}

// NewStoreWithBackend creates a Store over an arbitrary backend.
func NewStoreWithBackend(b Backend) *Store {
	return &Store{backend: b}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// Close releases the backend when it holds resources.
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	if h == RootCommitID || h == EmptyTreeHash() {
		return true
	}
	return s.backend.Has(h)
}

// Write stores an object and returns its content hash.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	return s.backend.Write(objType, data)
}

// Read retrieves an object by hash, returning its type and raw content.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	if h == EmptyTreeHash() {
		return TypeTree, nil, nil
	}
	if h == RootCommitID {
		return TypeCommit, MarshalCommit(RootCommit()), nil
	}
	return s.backend.Read(h)
}

// RootCommit returns the synthetic root commit.
func RootCommit() *CommitObj {
	epoch := time.Unix(0, 0).UTC()
	return &CommitObj{
		TreeHash:  EmptyTreeHash(),
		ChangeID:  RootChangeID,
		Author:    Signature{When: epoch},
		Committer: Signature{When: epoch},
	}
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

func (s *Store) readTyped(h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, want)
	}
	return data, nil
}

// WriteBlob serializes and stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads and deserializes a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := s.readTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return UnmarshalBlob(data)
}

// WriteTree serializes and stores a TreeObj.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	if len(tr.Entries) == 0 {
		return EmptyTreeHash(), nil
	}
	return s.Write(TypeTree, MarshalTree(tr))
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	data, err := s.readTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	return UnmarshalTree(data)
}

// WriteConflict serializes and stores a ConflictObj.
func (s *Store) WriteConflict(c *ConflictObj) (Hash, error) {
	if len(c.Adds) != len(c.Removes)+1 {
		return "", fmt.Errorf("write conflict: %d adds for %d removes", len(c.Adds), len(c.Removes))
	}
	return s.Write(TypeConflict, MarshalConflict(c))
}

// ReadConflict reads and deserializes a ConflictObj.
func (s *Store) ReadConflict(h Hash) (*ConflictObj, error) {
	data, err := s.readTyped(h, TypeConflict)
	if err != nil {
		return nil, err
	}
	return UnmarshalConflict(data)
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	if c.ChangeID == "" {
		return "", fmt.Errorf("write commit: change id is required")
	}
	if len(c.Parents) == 0 {
		return "", fmt.Errorf("write commit: at least one parent is required")
	}
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	if h == RootCommitID {
		return RootCommit(), nil
	}
	data, err := s.readTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	return UnmarshalCommit(data)
}

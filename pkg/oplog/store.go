package oplog

import (
	"fmt"
	"io"
	"time"

	"github.com/odvcencio/jig/pkg/dag"
	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/view"
)

// Store persists operations and views in a content-addressed backend. The
// root operation and its view are synthetic and never written.
type Store struct {
	backend object.Backend
	index   *dag.Index
}

// NewStore returns an operation store over b.
func NewStore(b object.Backend) *Store {
	s := &Store{backend: b}
	s.index = dag.New(func(id object.Hash) ([]object.Hash, error) {
		op, err := s.ReadOperation(id)
		if err != nil {
			return nil, err
		}
		return op.Parents, nil
	})
	return s
}

// Close releases the backend when it holds resources.
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Index returns the ancestry index over the operation graph.
func (s *Store) Index() *dag.Index { return s.index }

// RootViewID is the id of the view of the root operation.
func RootViewID() object.Hash {
	return object.HashObject(TypeView, view.Marshal(view.Root()))
}

// RootOperation returns the synthetic root operation.
func RootOperation() *Operation {
	epoch := time.Unix(0, 0).UTC()
	return &Operation{
		ViewID:   RootViewID(),
		Metadata: Metadata{Start: epoch, End: epoch},
	}
}

// WriteView stores v and returns its id.
func (s *Store) WriteView(v *view.View) (object.Hash, error) {
	data := view.Marshal(v)
	if id := object.HashObject(TypeView, data); id == RootViewID() {
		return id, nil
	}
	id, err := s.backend.Write(TypeView, data)
	if err != nil {
		return "", fmt.Errorf("write view: %w", err)
	}
	return id, nil
}

// ReadView loads a view by id.
func (s *Store) ReadView(id object.Hash) (*view.View, error) {
	if id == RootViewID() {
		return view.Root(), nil
	}
	data, err := s.read(id, TypeView)
	if err != nil {
		return nil, err
	}
	return view.Unmarshal(data)
}

// WriteOperation stores op and returns its id.
func (s *Store) WriteOperation(op *Operation) (object.Hash, error) {
	if len(op.Parents) == 0 {
		return "", fmt.Errorf("write operation: at least one parent is required")
	}
	id, err := s.backend.Write(TypeOperation, MarshalOperation(op))
	if err != nil {
		return "", fmt.Errorf("write operation: %w", err)
	}
	return id, nil
}

// ReadOperation loads an operation by id.
func (s *Store) ReadOperation(id object.Hash) (*Operation, error) {
	if id == RootOperationID {
		return RootOperation(), nil
	}
	data, err := s.read(id, TypeOperation)
	if err != nil {
		return nil, err
	}
	return UnmarshalOperation(data)
}

func (s *Store) read(id object.Hash, want object.ObjectType) ([]byte, error) {
	objType, data, err := s.backend.Read(id)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("op store %s: type mismatch: got %q, want %q", id, objType, want)
	}
	return data, nil
}

// Log returns head and its ancestors, newest first. A limit of zero or less
// returns the whole log.
func (s *Store) Log(head object.Hash, limit int) ([]object.Hash, error) {
	ids, err := s.index.Walk([]object.Hash{head}, nil)
	if err != nil {
		return nil, fmt.Errorf("op log: %w", err)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/jig/pkg/object"
)

// ErrRefCASMismatch is returned when a bookmark update names an old value
// that no longer matches the remote.
var ErrRefCASMismatch = errors.New("remote bookmark compare-and-swap mismatch")

// ObjectRecord is an object payload used by fetch and push.
type ObjectRecord struct {
	Hash object.Hash
	Type object.ObjectType
	Data []byte
}

// BookmarkUpdate moves one remote bookmark from Old to New. An empty hash
// stands for an absent bookmark, so Old == "" creates and New == "" deletes.
type BookmarkUpdate struct {
	Name string
	Old  object.Hash
	New  object.Hash
}

// Transport is the exchange surface of a remote. UpdateBookmarks applies all
// updates or none; a stale Old fails with ErrRefCASMismatch.
type Transport interface {
	ListBookmarks(ctx context.Context) (map[string]object.Hash, error)
	GetObject(ctx context.Context, h object.Hash) (ObjectRecord, error)
	PushObjects(ctx context.Context, objects []ObjectRecord) error
	UpdateBookmarks(ctx context.Context, updates []BookmarkUpdate) error
}

// BatchFetcher is implemented by transports that can send many objects per
// round trip. FetchIntoStore uses it when available.
type BatchFetcher interface {
	BatchObjects(ctx context.Context, wants, haves []object.Hash, maxObjects int) ([]ObjectRecord, bool, error)
}

// Open returns the transport for a remote location: an HTTP client for
// http(s) URLs, a directory remote for file:// URLs and plain paths.
func Open(location string, opts ClientOptions) (Transport, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "":
		return nil, fmt.Errorf("remote location is required")
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return NewClientWithOptions(location, opts)
	default:
		return NewDirRemote(strings.TrimPrefix(location, "file://"))
	}
}

func parseObjectType(raw string) (object.ObjectType, error) {
	switch t := object.ObjectType(strings.TrimSpace(raw)); t {
	case object.TypeBlob, object.TypeTree, object.TypeConflict, object.TypeCommit:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported object type %q", raw)
	}
}

// verifyRecord checks that a record's hash matches its content.
func verifyRecord(obj ObjectRecord) error {
	if _, err := parseObjectType(string(obj.Type)); err != nil {
		return err
	}
	if err := object.ValidateHash(obj.Hash); err != nil {
		return fmt.Errorf("object %q: %w", obj.Hash, err)
	}
	if computed := object.HashObject(obj.Type, obj.Data); computed != obj.Hash {
		return fmt.Errorf("object hash mismatch: expected %s, got %s", obj.Hash, computed)
	}
	return nil
}

package remote

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/jig/pkg/lockfile"
	"github.com/odvcencio/jig/pkg/object"
)

// DirRemote is a remote stored in a local directory: loose objects under
// objects/ and every bookmark in a single bookmarks file, which is replaced
// atomically under a lockfile so that a batch of updates applies all or
// nothing.
type DirRemote struct {
	root  string
	store *object.Store
}

// NewDirRemote opens (and creates, if needed) a directory remote.
func NewDirRemote(root string) (*DirRemote, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("dir remote: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("dir remote: %w", err)
	}
	return &DirRemote{root: abs, store: object.NewStore(abs)}, nil
}

// Root returns the remote directory.
func (d *DirRemote) Root() string { return d.root }

func (d *DirRemote) bookmarksPath() string { return filepath.Join(d.root, "bookmarks") }

func (d *DirRemote) ListBookmarks(ctx context.Context) (map[string]object.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.bookmarksPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("dir remote: read bookmarks: %w", err)
	}
	return parseBookmarks(data)
}

func (d *DirRemote) GetObject(ctx context.Context, h object.Hash) (ObjectRecord, error) {
	if err := ctx.Err(); err != nil {
		return ObjectRecord{}, err
	}
	objType, data, err := d.store.Read(h)
	if err != nil {
		return ObjectRecord{}, fmt.Errorf("dir remote: %w", err)
	}
	return ObjectRecord{Hash: h, Type: objType, Data: data}, nil
}

func (d *DirRemote) PushObjects(ctx context.Context, objects []ObjectRecord) error {
	for i, obj := range objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := verifyRecord(obj); err != nil {
			return fmt.Errorf("push object %d: %w", i, err)
		}
		if _, err := d.store.Write(obj.Type, obj.Data); err != nil {
			return fmt.Errorf("dir remote: %w", err)
		}
	}
	return nil
}

func (d *DirRemote) UpdateBookmarks(ctx context.Context, updates []BookmarkUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, u := range updates {
		if u.New != "" && !d.store.Has(u.New) {
			return fmt.Errorf("dir remote: bookmark %s: target %s: %w", u.Name, u.New.Short(12), object.ErrNotFound)
		}
	}
	return lockfile.Update(d.bookmarksPath(), func(old []byte) ([]byte, error) {
		current, err := parseBookmarks(old)
		if err != nil {
			return nil, err
		}
		for _, u := range updates {
			if current[u.Name] != u.Old {
				return nil, fmt.Errorf("bookmark %s: expected %s, found %s: %w",
					u.Name, displayHash(u.Old), displayHash(current[u.Name]), ErrRefCASMismatch)
			}
			if u.New == "" {
				delete(current, u.Name)
			} else {
				current[u.Name] = u.New
			}
		}
		return formatBookmarks(current), nil
	})
}

// parseBookmarks reads "hash name" lines.
func parseBookmarks(data []byte) (map[string]object.Hash, error) {
	out := make(map[string]object.Hash)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		h, name, ok := strings.Cut(line, " ")
		if !ok || name == "" {
			return nil, fmt.Errorf("dir remote: malformed bookmark line %q", line)
		}
		out[name] = object.Hash(h)
	}
	return out, sc.Err()
}

func formatBookmarks(m map[string]object.Hash) []byte {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	var buf bytes.Buffer
	for _, name := range names {
		fmt.Fprintf(&buf, "%s %s\n", m[name], name)
	}
	return buf.Bytes()
}

func displayHash(h object.Hash) string {
	if h == "" {
		return "nothing"
	}
	return h.Short(12)
}

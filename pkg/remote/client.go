package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/odvcencio/jig/pkg/logging"
	"github.com/odvcencio/jig/pkg/object"
)

// Endpoint identifies a jig protocol repository endpoint. BaseURL is
// normalized to ".../jig/{owner}/{repo}" with no trailing slash.
type Endpoint struct {
	Raw     string
	BaseURL string
	Owner   string
	Repo    string
	user    string
	pass    string
}

// ParseEndpoint parses a remote URL into a canonical endpoint. Both
// https://host/jig/owner/repo and https://host/owner/repo are accepted; the
// latter is expanded to the former.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("remote URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse remote URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Endpoint{}, fmt.Errorf("remote URL must include scheme and host")
	}

	segments := splitPathSegments(u.Path)
	if len(segments) < 2 {
		return Endpoint{}, fmt.Errorf("remote URL must include owner and repository")
	}
	base := segments
	if i := lastIndex(segments[:len(segments)-2], "jig"); i >= 0 && i+2 < len(segments) {
		base = segments[:i+3]
	} else {
		n := len(segments)
		base = append(append([]string(nil), segments[:n-2]...), "jig", segments[n-2], segments[n-1])
	}
	owner, repo := base[len(base)-2], base[len(base)-1]

	ep := Endpoint{Raw: raw, Owner: owner, Repo: repo}
	if u.User != nil {
		ep.user = u.User.Username()
		ep.pass, _ = u.User.Password()
	}
	clean := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/" + strings.Join(base, "/")}
	ep.BaseURL = strings.TrimRight(clean.String(), "/")
	return ep, nil
}

func splitPathSegments(p string) []string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func lastIndex(items []string, want string) int {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i] == want {
			return i
		}
	}
	return -1
}

// ClientOptions configures the HTTP client.
type ClientOptions struct {
	Timeout     time.Duration // HTTP client timeout (default 60s)
	MaxAttempts int           // retry attempts (default 3)
	Logger      *slog.Logger
}

// Response limits per endpoint type.
const (
	responseLimitDefault   = 2 << 20
	responseLimitBookmarks = 8 << 20
	responseLimitBatch     = 64 << 20
	responseLimitObject    = 32 << 20
)

// Client talks to a jig server over HTTP.
type Client struct {
	endpoint    Endpoint
	httpClient  *http.Client
	token       string
	user        string
	pass        string
	maxAttempts int
	logger      *slog.Logger

	// serverCaps is what the server advertised on its last response.
	serverCaps Capabilities
}

// NewClient creates a client with default options.
//
// Auth resolution order:
// 1) JIG_TOKEN (Bearer)
// 2) JIG_USERNAME + JIG_PASSWORD (Basic)
// 3) URL userinfo (Basic)
func NewClient(remoteURL string) (*Client, error) {
	return NewClientWithOptions(remoteURL, ClientOptions{})
}

// NewClientWithOptions creates a client. Zero-value fields in opts receive
// defaults.
func NewClientWithOptions(remoteURL string, opts ClientOptions) (*Client, error) {
	endpoint, err := ParseEndpoint(remoteURL)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	token := strings.TrimSpace(os.Getenv("JIG_TOKEN"))
	user := strings.TrimSpace(os.Getenv("JIG_USERNAME"))
	pass := os.Getenv("JIG_PASSWORD")
	if token == "" && user == "" && endpoint.user != "" {
		user, pass = endpoint.user, endpoint.pass
	}

	return &Client{
		endpoint:    endpoint,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		token:       token,
		user:        user,
		pass:        pass,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger.With("remote", endpoint.BaseURL),
	}, nil
}

// Endpoint returns the parsed endpoint metadata.
func (c *Client) Endpoint() Endpoint { return c.endpoint }

// ListBookmarks returns all remote bookmarks.
func (c *Client) ListBookmarks(ctx context.Context) (map[string]object.Hash, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.BaseURL+"/bookmarks", nil)
	if err != nil {
		return nil, err
	}
	body, _, err := c.doWithLimit(req, http.StatusOK, responseLimitBookmarks, contentTypeJSON)
	if err != nil {
		return nil, err
	}
	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode bookmarks response: %w", err)
	}
	out := make(map[string]object.Hash, len(raw))
	for name, hash := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		h := objectHash(hash)
		if err := object.ValidateHash(h); err != nil {
			return nil, fmt.Errorf("invalid hash for bookmark %q: %w", name, err)
		}
		out[name] = h
	}
	c.logger.Debug("listed remote bookmarks", "count", len(out))
	return out, nil
}

// BatchObjects fetches objects reachable from wants and not from haves. The
// server may truncate the answer; the second result reports that.
func (c *Client) BatchObjects(ctx context.Context, wants, haves []object.Hash, maxObjects int) ([]ObjectRecord, bool, error) {
	wants = object.UniqueHashes(wants)
	if len(wants) == 0 {
		return nil, false, fmt.Errorf("at least one want hash is required")
	}
	reqBody := struct {
		Wants      []object.Hash `json:"wants"`
		Haves      []object.Hash `json:"haves,omitempty"`
		MaxObjects int           `json:"max_objects,omitempty"`
	}{Wants: wants, Haves: object.UniqueHashes(haves), MaxObjects: maxObjects}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.BaseURL+"/objects/batch", bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept-Encoding", "zstd")

	body, header, err := c.doWithLimit(req, http.StatusOK, responseLimitBatch, contentTypeJSON)
	if err != nil {
		return nil, false, err
	}
	if isZstdEncoded(header.Get("Content-Encoding")) {
		if body, err = decompressZstd(body); err != nil {
			return nil, false, fmt.Errorf("decompress batch response: %w", err)
		}
	}
	var resp struct {
		Objects   []wireObject `json:"objects"`
		Truncated bool         `json:"truncated"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, fmt.Errorf("decode batch response: %w", err)
	}
	out := make([]ObjectRecord, 0, len(resp.Objects))
	for _, w := range resp.Objects {
		rec, err := w.record()
		if err != nil {
			return nil, false, fmt.Errorf("batch response: %w", err)
		}
		out = append(out, rec)
	}
	c.logger.Debug("fetched object batch", "objects", len(out), "truncated", resp.Truncated)
	return out, resp.Truncated, nil
}

// GetObject fetches one object by hash.
func (c *Client) GetObject(ctx context.Context, hash object.Hash) (ObjectRecord, error) {
	if err := object.ValidateHash(hash); err != nil {
		return ObjectRecord{}, fmt.Errorf("get object: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.BaseURL+"/objects/"+string(hash), nil)
	if err != nil {
		return ObjectRecord{}, err
	}
	body, header, err := c.doWithLimit(req, http.StatusOK, responseLimitObject, "")
	if err != nil {
		return ObjectRecord{}, err
	}
	objType, err := parseObjectType(header.Get("X-Object-Type"))
	if err != nil {
		return ObjectRecord{}, fmt.Errorf("decode object %s: %w", hash, err)
	}
	return ObjectRecord{Hash: hash, Type: objType, Data: body}, nil
}

// PushObjects uploads objects as newline-delimited JSON, zstd-compressed
// when the server advertised support for it.
func (c *Client) PushObjects(ctx context.Context, objects []ObjectRecord) error {
	if len(objects) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, obj := range objects {
		if err := verifyRecord(obj); err != nil {
			return fmt.Errorf("push object %d: %w", i, err)
		}
		if err := enc.Encode(wireObject{Hash: string(obj.Hash), Type: string(obj.Type), Data: obj.Data}); err != nil {
			return fmt.Errorf("push object %d: encode: %w", i, err)
		}
	}
	body := buf.Bytes()
	compressed := c.serverCaps.Has("zstd")
	if compressed {
		var err error
		if body, err = compressZstd(body); err != nil {
			return fmt.Errorf("compress push body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.BaseURL+"/objects", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentTypeNDJSON)
	if compressed {
		req.Header.Set("Content-Encoding", "zstd")
	}
	if _, _, err := c.doWithLimit(req, http.StatusOK, responseLimitDefault, ""); err != nil {
		return err
	}
	c.logger.Debug("pushed objects", "count", len(objects))
	return nil
}

// UpdateBookmarks applies compare-and-swap updates on the remote bookmarks.
// The server answers 409 with code cas_mismatch when an Old value is stale.
func (c *Client) UpdateBookmarks(ctx context.Context, updates []BookmarkUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	payload := struct {
		Updates []wireUpdate `json:"updates"`
	}{}
	for _, u := range updates {
		name := strings.TrimSpace(u.Name)
		if name == "" {
			return fmt.Errorf("bookmark update name is required")
		}
		payload.Updates = append(payload.Updates, wireUpdate{Name: name, Old: string(u.Old), New: string(u.New)})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.BaseURL+"/bookmarks", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	if _, _, err := c.doWithLimit(req, http.StatusOK, responseLimitDefault, ""); err != nil {
		return fmt.Errorf("update remote bookmarks: %w", err)
	}
	c.logger.Debug("updated remote bookmarks", "count", len(updates))
	return nil
}

func (c *Client) doWithLimit(req *http.Request, expectedStatus int, maxBytes int64, expectedContentType string) ([]byte, http.Header, error) {
	c.applyAuth(req)
	resp, err := retryDo(c.httpClient, req, c.maxAttempts)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if v := resp.Header.Get(headerCapabilities); v != "" {
		c.serverCaps = ParseCapabilities(v)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != expectedStatus {
		if re := tryParseRemoteError(body); re != nil {
			return nil, nil, re
		}
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusConflict {
			return nil, nil, fmt.Errorf("%s %s: %s: %w", req.Method, req.URL.Path, msg, ErrRefCASMismatch)
		}
		return nil, nil, fmt.Errorf("remote request failed (%s %s): %s", req.Method, req.URL.Path, msg)
	}
	if expectedContentType != "" {
		ct := resp.Header.Get("Content-Type")
		if ct != "" && !strings.HasPrefix(ct, expectedContentType) {
			return nil, nil, fmt.Errorf("unexpected content type %q (expected %s) from %s %s",
				ct, expectedContentType, req.Method, req.URL.Path)
		}
	}
	return body, resp.Header, nil
}

func (c *Client) applyAuth(req *http.Request) {
	req.Header.Set(headerProtocol, ProtocolVersion)
	req.Header.Set(headerCapabilities, ClientCapabilities)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		return
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
}

func objectHash(s string) object.Hash {
	return object.Hash(strings.TrimSpace(s))
}

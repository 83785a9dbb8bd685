package remote

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	// ProtocolVersion is the current jig remote protocol version.
	ProtocolVersion = "1"

	// ClientCapabilities lists the capabilities this client supports.
	ClientCapabilities = "batch,zstd"

	headerProtocol     = "Jig-Protocol"
	headerCapabilities = "Jig-Capabilities"

	contentTypeJSON   = "application/json"
	contentTypeNDJSON = "application/x-ndjson"
)

// Capabilities represents a set of protocol capabilities.
type Capabilities struct {
	set map[string]struct{}
}

// ParseCapabilities parses a comma-separated capability string.
func ParseCapabilities(raw string) Capabilities {
	caps := Capabilities{set: make(map[string]struct{})}
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			caps.set[c] = struct{}{}
		}
	}
	return caps
}

func (c Capabilities) Has(name string) bool {
	_, ok := c.set[name]
	return ok
}

// String returns a sorted comma-separated capability string.
func (c Capabilities) String() string {
	names := make([]string, 0, len(c.set))
	for k := range c.set {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// RemoteError is a structured error from the remote server.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%s): %s", e.Message, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Unwrap maps the server's cas_mismatch code onto ErrRefCASMismatch.
func (e *RemoteError) Unwrap() error {
	if e.Code == "cas_mismatch" {
		return ErrRefCASMismatch
	}
	return nil
}

func tryParseRemoteError(body []byte) *RemoteError {
	var re RemoteError
	if err := json.Unmarshal(body, &re); err != nil {
		return nil
	}
	if re.Message == "" && re.Code == "" {
		return nil
	}
	return &re
}

// wireObject is the JSON form of an ObjectRecord; Data is base64 encoded by
// encoding/json.
type wireObject struct {
	Hash string `json:"hash"`
	Type string `json:"type"`
	Data []byte `json:"data"`
}

func (w wireObject) record() (ObjectRecord, error) {
	t, err := parseObjectType(w.Type)
	if err != nil {
		return ObjectRecord{}, err
	}
	return ObjectRecord{Hash: objectHash(w.Hash), Type: t, Data: w.Data}, nil
}

// wireUpdate is the JSON form of a BookmarkUpdate; empty strings mean
// absent.
type wireUpdate struct {
	Name string `json:"name"`
	Old  string `json:"old"`
	New  string `json:"new"`
}

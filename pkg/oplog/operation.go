// Package oplog stores operations and views and tracks the current
// operation heads. Every change to repository state is recorded as an
// operation pointing at the view it produced and at the operations it was
// based on.
package oplog

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/jig/pkg/object"
)

const (
	TypeOperation object.ObjectType = "operation"
	TypeView      object.ObjectType = "view"
)

// RootOperationID is the synthetic first operation. Its view has only the
// root commit as head.
var RootOperationID = object.Hash(strings.Repeat("0", 64))

// Metadata describes who ran an operation and when.
type Metadata struct {
	Start       time.Time
	End         time.Time
	Description string
	Hostname    string
	Username    string
	IsSnapshot  bool
	Tags        map[string]string
}

// Operation is one recorded change to repository state.
type Operation struct {
	ViewID   object.Hash
	Parents  []object.Hash
	Metadata Metadata
}

// IsRoot reports whether op is the synthetic root operation.
func (op *Operation) IsRoot() bool {
	return len(op.Parents) == 0
}

// MarshalOperation serializes an operation:
//
//	view H
//	parent H        (zero or more)
//	start RFC3339
//	end RFC3339
//	hostname h
//	username u
//	snapshot        (optional)
//	tag "k" "v"     (zero or more, sorted)
//
//	description
func MarshalOperation(op *Operation) []byte {
	var buf bytes.Buffer
	md := op.Metadata
	fmt.Fprintf(&buf, "view %s\n", op.ViewID)
	for _, p := range op.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "start %s\n", md.Start.Format(time.RFC3339Nano))
	fmt.Fprintf(&buf, "end %s\n", md.End.Format(time.RFC3339Nano))
	fmt.Fprintf(&buf, "hostname %s\n", md.Hostname)
	fmt.Fprintf(&buf, "username %s\n", md.Username)
	if md.IsSnapshot {
		buf.WriteString("snapshot\n")
	}
	keys := make([]string, 0, len(md.Tags))
	for k := range md.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, "tag %s %s\n", strconv.Quote(k), strconv.Quote(md.Tags[k]))
	}
	buf.WriteByte('\n')
	buf.WriteString(md.Description)
	return buf.Bytes()
}

// UnmarshalOperation parses the form written by MarshalOperation.
func UnmarshalOperation(data []byte) (*Operation, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal operation: missing header/description separator")
	}
	op := &Operation{Metadata: Metadata{Description: string(data[idx+2:])}}
	for _, line := range strings.Split(string(data[:idx]), "\n") {
		key, val, _ := strings.Cut(line, " ")
		switch key {
		case "view":
			op.ViewID = object.Hash(val)
		case "parent":
			op.Parents = append(op.Parents, object.Hash(val))
		case "start", "end":
			ts, err := time.Parse(time.RFC3339Nano, val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal operation: %s: %w", key, err)
			}
			if key == "start" {
				op.Metadata.Start = ts
			} else {
				op.Metadata.End = ts
			}
		case "hostname":
			op.Metadata.Hostname = val
		case "username":
			op.Metadata.Username = val
		case "snapshot":
			op.Metadata.IsSnapshot = true
		case "tag":
			k, rest, err := unquotePrefix(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal operation: tag: %w", err)
			}
			v, _, err := unquotePrefix(rest)
			if err != nil {
				return nil, fmt.Errorf("unmarshal operation: tag: %w", err)
			}
			if op.Metadata.Tags == nil {
				op.Metadata.Tags = make(map[string]string)
			}
			op.Metadata.Tags[k] = v
		default:
			return nil, fmt.Errorf("unmarshal operation: unknown header key %q", key)
		}
	}
	return op, nil
}

func unquotePrefix(s string) (string, string, error) {
	q, err := strconv.QuotedPrefix(s)
	if err != nil {
		return "", "", err
	}
	v, err := strconv.Unquote(q)
	if err != nil {
		return "", "", err
	}
	return v, strings.TrimPrefix(s[len(q):], " "), nil
}

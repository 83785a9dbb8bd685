package workingcopy

import (
	"bufio"
	"bytes"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// IgnoreFile is the name of the ignore file read from the workspace root.
const IgnoreFile = ".jigignore"

// Ignorer decides which workspace paths are never snapshotted. Patterns
// follow the usual gitignore shape: "#" comments, "!" negation, a trailing
// "/" for directories only, a slash anywhere else to anchor the pattern to
// the full path and "**" for any number of directories. The last matching
// pattern wins.
type Ignorer struct {
	rules []ignoreRule
}

type ignoreRule struct {
	negated  bool
	dirOnly  bool
	anchored bool
	literal  string
	re       *regexp.Regexp
}

// LoadIgnorer reads root/.jigignore, if any. .jig and .git are always
// ignored.
func LoadIgnorer(root string) (*Ignorer, error) {
	data, err := os.ReadFile(filepath.Join(root, IgnoreFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return ParseIgnore(data), nil
}

// ParseIgnore builds an Ignorer from ignore-file content.
func ParseIgnore(data []byte) *Ignorer {
	ig := &Ignorer{rules: []ignoreRule{
		{dirOnly: true, literal: ".jig"},
		{dirOnly: true, literal: ".git"},
	}}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if r, ok := parseIgnoreLine(sc.Text()); ok {
			ig.rules = append(ig.rules, r)
		}
	}
	return ig
}

func parseIgnoreLine(line string) (ignoreRule, bool) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return ignoreRule{}, false
	}
	var r ignoreRule
	if strings.HasPrefix(line, "!") {
		r.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return ignoreRule{}, false
	}
	r.anchored = strings.Contains(line, "/")
	if !strings.ContainsAny(line, "*?[") {
		r.literal = line
		return r, true
	}
	re, err := regexp.Compile(globToRegexp(line))
	if err != nil {
		return ignoreRule{}, false
	}
	r.re = re
	return r, true
}

func (r ignoreRule) matchName(p string) bool {
	target := p
	if !r.anchored {
		target = path.Base(p)
	}
	if r.re != nil {
		return r.re.MatchString(target)
	}
	return target == r.literal
}

// Ignored reports whether the slash-separated relative path p is ignored.
// isDir says whether p itself is a directory. A path under an ignored
// directory is ignored too.
func (ig *Ignorer) Ignored(p string, isDir bool) bool {
	p = filepath.ToSlash(p)
	ignored := false
	for _, r := range ig.rules {
		if r.matches(p, isDir) {
			ignored = !r.negated
		}
	}
	return ignored
}

func (r ignoreRule) matches(p string, isDir bool) bool {
	if r.matchName(p) && (isDir || !r.dirOnly) {
		return true
	}
	// Any ancestor directory matching the rule covers p.
	for i := 0; i < len(p); i++ {
		if p[i] == '/' && r.matchName(p[:i]) {
			return true
		}
	}
	return false
}

func globToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch {
		case ch == '*' && i+2 < len(pattern) && pattern[i+1] == '*' && pattern[i+2] == '/':
			b.WriteString("(?:.*/)?")
			i += 2
		case ch == '*' && i+1 < len(pattern) && pattern[i+1] == '*':
			b.WriteString(".*")
			i++
		case ch == '*':
			b.WriteString("[^/]*")
		case ch == '?':
			b.WriteString("[^/]")
		case ch == '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// Package persist implements the on-disk system of record: YAML-frontmatter
// markdown documents guarded by advisory file locks, matching the locking
// sequence (open, lock, truncate, write, flush) used by the original TOCTOU-
// safe implementation this scheduler core is based on.
package persist

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const TimeLayout = "2006-01-02T15:04:05Z07:00"

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("persist: missing frontmatter")
	// ErrMalformedFrontMatter indicates the closing `---` fence is missing.
	ErrMalformedFrontMatter = errors.New("persist: malformed frontmatter")
)

// Document is a parsed frontmatter markdown file: a YAML metadata block
// decoded into a caller-supplied struct, plus the prose body that follows.
type Document struct {
	Meta any
	Body []byte
}

// ParseFrontMatter extracts the metadata block and body from content that
// starts with a `---` YAML fence, decoding the metadata into dst (a pointer
// to the caller's struct). Unknown fields are tolerated.
func ParseFrontMatter(content []byte, dst any) ([]byte, error) {
	if len(content) == 0 {
		return nil, ErrMissingFrontMatter
	}
	normalized := normalizeNewlines(content)
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return nil, ErrMissingFrontMatter
	}
	rest := normalized[4:]
	parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return nil, ErrMalformedFrontMatter
	}
	metaBytes, body := parts[0], parts[1]
	if err := yaml.Unmarshal(metaBytes, dst); err != nil {
		return nil, fmt.Errorf("persist: parse frontmatter: %w", err)
	}
	return body, nil
}

// WriteFrontMatter renders meta + body with YAML fences, matching the
// `---\n<yaml>\n---\n\n<body>` convention used across every stage,
// session, and handoff document.
func WriteFrontMatter(meta any, body []byte) ([]byte, error) {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("persist: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// FormatTime renders t in the canonical on-disk timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a canonical on-disk timestamp, rejecting blank values.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("persist: empty timestamp")
	}
	t, err := time.Parse(TimeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func normalizeNewlines(content []byte) []byte {
	return bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
}

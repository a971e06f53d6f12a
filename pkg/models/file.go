package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxPathLength bounds the stored path of a file.
	MaxPathLength = 4096
	// MaxNumTags bounds the tag list of a file.
	MaxNumTags = 8
	// MaxTagLength bounds a single tag.
	MaxTagLength = 64
)

var tagRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidTag reports whether s is a valid file tag.
func IsValidTag(s string) bool {
	return len(s) <= MaxTagLength && tagRegexp.MatchString(s)
}

// IsValidPath reports whether p is acceptable as a stored file path:
// non-empty, bounded, relative, and free of parent traversal.
func IsValidPath(p string) bool {
	if p == "" || len(p) > MaxPathLength {
		return false
	}
	if strings.HasPrefix(p, "/") {
		return false
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// FileInfo is the metadata record of one stored file. The id doubles as
// the blob's filename inside the store directory.
type FileInfo struct {
	ID           string       `json:"id"`
	Path         string       `json:"path"`
	Size         int64        `json:"size"`
	MD5Checksum  string       `json:"md5Checksum"`
	Version      string       `json:"version"`
	Tags         []string     `json:"tags"`
	AccessRights AccessRights `json:"accessRights"`
	CreatedAt    int64        `json:"createdAt"`
	UpdatedAt    int64        `json:"updatedAt"`
}

// Validate checks path, tags and access rights.
func (f FileInfo) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("file id is required")
	}
	if !IsValidPath(f.Path) {
		return fmt.Errorf("invalid file path %q", f.Path)
	}
	if len(f.Tags) > MaxNumTags {
		return fmt.Errorf("at most %d tags are allowed", MaxNumTags)
	}
	for _, tag := range f.Tags {
		if !IsValidTag(tag) {
			return fmt.Errorf("invalid tag %q", tag)
		}
	}
	return f.AccessRights.Validate()
}

// MarshalLine renders the record as a single compact line for the index
// file.
func (f FileInfo) MarshalLine() (string, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("failed to serialize file info: %w", err)
	}
	return string(raw), nil
}

// ParseFileInfoLine parses one index line back into a FileInfo.
func ParseFileInfoLine(line string) (FileInfo, error) {
	var f FileInfo
	if err := json.Unmarshal([]byte(line), &f); err != nil {
		return FileInfo{}, fmt.Errorf("malformed index line: %w", err)
	}
	return f, nil
}

// FileObject carries a file-service task through the queue: metadata,
// optional content, and the task's outcome.
type FileObject struct {
	Info      FileInfo
	Content   []byte
	ErrorType ErrorType
}

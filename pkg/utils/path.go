package utils

import (
	"fmt"
	"strings"
)

// SplitPath splits a slash-separated bridge path such as "/bucket/dir/file"
// into its components. Empty and "." components are dropped; ".." is
// rejected because names are resolved one Lookup at a time and never
// escape upward. The root path yields no components.
func SplitPath(p string) ([]string, error) {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			return nil, fmt.Errorf("path contains directory traversal: %s", p)
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// JoinPath renders components as an absolute bridge path.
func JoinPath(parts ...string) string {
	return "/" + strings.Join(parts, "/")
}

// Package pathutil normalizes mount-relative POSIX paths and translates
// them to and from object-store keys and prefixes.
package pathutil

import "strings"

// Normalize returns path with a leading slash always present and no
// trailing slash, except for the root "/" itself.
func Normalize(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

// Key translates a mount-relative path to an object-store key by
// stripping the leading slash. The root path becomes the empty key.
func Key(path string) string {
	path = Normalize(path)
	return strings.TrimPrefix(path, "/")
}

// Prefix translates a mount-relative directory path to the object-store
// listing prefix: the key with a trailing slash appended, or the empty
// string for the root.
func Prefix(path string) string {
	key := Key(path)
	if key == "" {
		return ""
	}
	return key + "/"
}

// Basename returns the last path segment of key or prefix, with any
// trailing slash stripped.
func Basename(keyOrPrefix string) string {
	trimmed := strings.TrimRight(keyOrPrefix, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Dirname returns the mount-relative path of the parent directory of
// path. Dirname("/") is "/".
func Dirname(path string) string {
	path = Normalize(path)
	if path == "/" {
		return "/"
	}
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// Join builds the mount-relative cache path for a child entry named name
// directly under parent, normalizing the result.
func Join(parent, name string) string {
	parent = Normalize(parent)
	name = strings.TrimRight(name, "/")
	if parent == "/" {
		return Normalize("/" + name)
	}
	return Normalize(parent + "/" + name)
}

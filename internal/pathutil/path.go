// Package pathutil provides path manipulation for slash-separated,
// root-relative tree paths.
package pathutil

import "strings"

// Normalize converts backslash separators to slashes.
// Index names and manifest keys written on Windows use backslashes.
func Normalize(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// Join appends name to dir. An empty dir is the root.
//
// Join does not clean the result, so ".." elements and empty elements stay
// visible to fs.ValidPath.
func Join(dir, name string) string {
	name = Normalize(name)
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// Dir returns the directory part of a slash-separated path, or "" when the
// path has no directory.
func Dir(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}

// Label returns dir for display, using "." for the root.
func Label(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}

// CleanDir turns a user-supplied directory into the form produced by Dir:
// slash separated, no leading "./" or trailing slash, and "" for the root.
func CleanDir(dir string) string {
	dir = strings.Trim(Normalize(dir), "/")
	for strings.HasPrefix(dir, "./") {
		dir = strings.TrimPrefix(dir, "./")
	}
	if dir == "." {
		return ""
	}
	return dir
}

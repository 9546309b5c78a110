// Package identity maps filesystem paths to the canonical identity the
// finding store keys everything on: canonical absolute path, modification
// time and size. Content change means identity change; two identities with
// the same path but different (mtime, size) are distinct.
package identity

import (
	"os"
	"path/filepath"
)

// FileIdentity is a point-in-time snapshot of a file as seen on disk.
// The zero value is invalid.
type FileIdentity struct {
	// Path is the canonical absolute, symlink-free path.
	Path string
	// Mtime is the modification time in Unix seconds.
	Mtime int64
	// Size is the file size in bytes.
	Size int64
}

// Valid reports whether the identity refers to a resolvable file. Callers
// must treat an invalid identity as "file not found" and not use it
// further.
func (fi FileIdentity) Valid() bool {
	return fi.Path != ""
}

// Canonicalize resolves path to its absolute, symlink-free form.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Identify resolves path and stats it. Any failure — missing file,
// permission, symlink loop, or the file vanishing between the resolve and
// the stat — yields an invalid identity. There is no caching: identity
// must reflect current disk state, so every call re-touches the
// filesystem.
func Identify(path string) FileIdentity {
	canonical, err := Canonicalize(path)
	if err != nil {
		return FileIdentity{}
	}
	// Canonicalization already resolved symlinks; do not follow further.
	st, err := os.Lstat(canonical)
	if err != nil {
		return FileIdentity{}
	}
	return FileIdentity{
		Path:  canonical,
		Mtime: st.ModTime().Unix(),
		Size:  st.Size(),
	}
}

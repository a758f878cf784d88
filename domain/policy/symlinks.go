package policy

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// maxLinkHops bounds symlink chains the same way the kernel's ELOOP does.
const maxLinkHops = 40

var errTooManyLinks = errors.New("too many levels of symbolic links")

// resolvePath returns the real location path refers to, including paths that
// do not exist yet. The longest existing ancestor is resolved and the missing
// components are rejoined; a dangling symlink leaf is followed to its target.
// The result is what a create or write through path would touch.
func resolvePath(path string) (string, error) {
	return resolveHops(filepath.Clean(path), 0)
}

func resolveHops(path string, hops int) (string, error) {
	if hops > maxLinkHops {
		return "", errTooManyLinks
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	if fi, lerr := os.Lstat(path); lerr == nil && fi.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		return resolveHops(filepath.Clean(target), hops+1)
	}

	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	rp, err := resolveHops(parent, hops)
	if err != nil {
		return "", err
	}
	return filepath.Join(rp, filepath.Base(path)), nil
}

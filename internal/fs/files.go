package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// FSContainsFiles returns true if rule selects at least one file of fsys.
func FSContainsFiles(fsys fs.FS, rule Rule) (bool, error) {
	filtered, err := rule.filter(fsys)
	if err != nil {
		return false, err
	}

	// errFound is a sentinel error used to stop the walk when a file is found.
	errFound := os.ErrExist

	err = fs.WalkDir(filtered, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && rule.match(path) {
			return errFound
		}
		return nil
	})
	if err == errFound {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, err
}

// Fingerprint summarizes the files rule selects under root by path, size and
// modification time. It changes whenever a selected file is added, removed
// or touched.
func Fingerprint(root string, rule Rule) (string, error) {
	result, err := ResolveDir(root, rule, nil)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	fsys := os.DirFS(root)
	for _, p := range result.Paths {
		fi, err := fs.Stat(fsys, p)
		if err != nil {
			// Removed between walk and stat: the next round picks it up.
			continue
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", p, fi.Size(), fi.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Package output materializes compiled text on disk.
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/akedrou/textdiff"
)

// MinifiedMarker is inserted before the script extension of per-file
// outputs.
const MinifiedMarker = ".min"

// WriteError is a failure to materialize an output file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Write creates the missing parents of dest and replaces its content with
// text. The content is written to a temporary file in the same directory
// and renamed into place, so dest never holds a partial write.
func Write(text, dest string) error {
	if err := write(text, dest); err != nil {
		return &WriteError{Path: dest, Err: err}
	}
	return nil
}

func write(text, dest string) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), dest)
}

// Destination derives the per-file output path of the source rel, a
// slash-separated path relative to the source root: the extension ext is
// replaced by the minified marker followed by ext, below dir.
func Destination(dir, rel, ext string) string {
	return filepath.Join(dir, filepath.FromSlash(strings.TrimSuffix(rel, ext)+MinifiedMarker+ext))
}

// Check compares text with the current content of dest. It returns an
// empty string when they are equal and a unified diff otherwise. A missing
// dest differs from any text.
func Check(text, dest string) (string, error) {
	bs, err := os.ReadFile(dest)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	if err == nil && string(bs) == text {
		return "", nil
	}

	diff := textdiff.Unified(dest, dest, string(bs), text)
	if diff == "" {
		diff = fmt.Sprintf("--- %s\n+++ %s\n(new empty file)\n", dest, dest)
	}
	return diff, nil
}

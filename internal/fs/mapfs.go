package fs

import (
	"io/fs"
	"testing/fstest"
)

// MapFS turns a map of slash-separated paths to contents into an fs.FS.
func MapFS(m map[string]string) fs.FS {
	m0 := make(map[string]*fstest.MapFile, len(m))
	for p, f := range m {
		m0[p] = &fstest.MapFile{Data: []byte(f)}
	}
	return fstest.MapFS(m0)
}

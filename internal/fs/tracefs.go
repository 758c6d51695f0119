package fs

import (
	"io/fs"

	"github.com/bundlekit/bundlekit/internal/logging"
)

// TraceFS logs every Open at trace level. Discovery wraps its trees with it
// when trace logging is on.
type TraceFS struct {
	fsys fs.FS
	log  *logging.Logger
}

func NewTraceFS(fsys fs.FS, log *logging.Logger) fs.FS {
	if log == nil || !log.Enabled(logging.Trace) {
		return fsys
	}
	return &TraceFS{fsys: fsys, log: log}
}

func (t *TraceFS) Open(p string) (fs.File, error) {
	f, err := t.fsys.Open(p)
	if err != nil {
		t.log.Tracef("Open(%s) => %v", p, err)
		return f, err
	}

	fi, err := f.Stat()
	switch {
	case err != nil:
		t.log.Tracef("Open(%s) => stat: %v", p, err)
	case fi.IsDir():
		t.log.Tracef("Open(%s) => %v dir", p, fi.Name())
	default:
		t.log.Tracef("Open(%s) => %v size=%d", p, fi.Name(), fi.Size())
	}
	return f, nil
}

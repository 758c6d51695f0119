package fs

import (
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// NewFilterFS returns a view of fsys that hides files not matching any of
// the included patterns (when there are any) and files or directories
// matching any of the excluded patterns. Patterns use Ant semantics over
// slash-separated paths: `*` stays within one path element, `**` spans any
// number of elements, and a leading or inner `**/` also matches zero
// elements.
func NewFilterFS(fsys fs.FS, included, excluded []string) (fs.FS, error) {
	inc, err := compilePatterns(included)
	if err != nil {
		return nil, err
	}
	exc, err := compilePatterns(excluded)
	if err != nil {
		return nil, err
	}
	if len(inc) == 0 && len(exc) == 0 {
		return fsys, nil
	}
	return &filterFS{fsys: fsys, included: inc, excluded: exc}, nil
}

type filterFS struct {
	fsys     fs.FS
	included []glob.Glob
	excluded []glob.Glob
}

func (f *filterFS) visible(name string, dir bool) bool {
	if name == "." {
		return true
	}
	if matchAny(f.excluded, name) {
		return false
	}
	if dir || len(f.included) == 0 {
		return true
	}
	return matchAny(f.included, name)
}

func (f *filterFS) Open(name string) (fs.File, error) {
	file, err := f.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if !f.visible(name, fi.IsDir()) {
		file.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return file, nil
}

func (f *filterFS) Stat(name string) (fs.FileInfo, error) {
	fi, err := fs.Stat(f.fsys, name)
	if err != nil {
		return nil, err
	}
	if !f.visible(name, fi.IsDir()) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return fi, nil
}

func (f *filterFS) ReadDir(name string) ([]fs.DirEntry, error) {
	entries, err := fs.ReadDir(f.fsys, name)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(entries, func(e fs.DirEntry) bool {
		return !f.visible(path.Join(name, e.Name()), e.IsDir())
	}), nil
}

func matchAny(gs []glob.Glob, name string) bool {
	return slices.ContainsFunc(gs, func(g glob.Glob) bool { return g.Match(name) })
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	var gs []glob.Glob
	for _, p := range patterns {
		for _, variant := range expandPattern(p) {
			g, err := glob.Compile(variant, '/')
			if err != nil {
				return nil, fmt.Errorf("failed to compile pattern %q: %w", p, err)
			}
			gs = append(gs, g)
		}
	}
	return gs, nil
}

// expandPattern rewrites an Ant pattern into glob variants: gobwas' `**/`
// needs at least one separator, Ant's does not. A trailing slash means
// everything below the directory.
func expandPattern(p string) []string {
	p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "./")
	p = strings.TrimPrefix(p, "/")
	if strings.HasSuffix(p, "/") || p == "" {
		p += "**"
	}

	variants := []string{p}
	add := func(v string) {
		if !slices.Contains(variants, v) {
			variants = append(variants, v)
		}
	}
	for i := 0; i < len(variants); i++ {
		v := variants[i]
		if rest, ok := strings.CutPrefix(v, "**/"); ok {
			add(rest)
		}
		for j := 0; ; {
			k := strings.Index(v[j:], "/**/")
			if k < 0 {
				break
			}
			k += j
			add(v[:k] + v[k+3:])
			j = k + 1
		}
	}
	return variants
}

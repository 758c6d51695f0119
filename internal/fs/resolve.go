package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bundlekit/bundlekit/internal/logging"
)

// ScriptExtension is the extension of the files handled by the build.
const ScriptExtension = ".js"

// Rule selects the files of a tree. A rule without patterns selects all
// files ending in Extension; a rule with patterns selects by Ant-style
// include and exclude globs.
type Rule struct {
	Extension       string
	Included        []string
	Excluded        []string
	DefaultExcludes bool
}

// RecursiveRule selects every file ending in ext, at any depth.
func RecursiveRule(ext string) Rule {
	return Rule{Extension: ext}
}

// PatternRule selects by include and exclude patterns. When defaultExcludes
// is set, version control metadata and editor leftovers are excluded too.
func PatternRule(included, excluded []string, defaultExcludes bool) Rule {
	return Rule{Included: included, Excluded: excluded, DefaultExcludes: defaultExcludes}
}

func (r Rule) filter(fsys fs.FS) (fs.FS, error) {
	excluded := r.Excluded
	if r.DefaultExcludes {
		excluded = append(DefaultExcludes(), excluded...)
	}
	return NewFilterFS(fsys, r.Included, excluded)
}

func (r Rule) match(name string) bool {
	return r.Extension == "" || strings.HasSuffix(name, r.Extension)
}

// DiscoveryFault records a part of the tree that could not be read. The
// affected subtree is skipped.
type DiscoveryFault struct {
	Path string
	Err  error
}

func (f *DiscoveryFault) Error() string {
	return fmt.Sprintf("skipping %s: %v", f.Path, f.Err)
}

func (f *DiscoveryFault) Unwrap() error {
	return f.Err
}

// Result is the outcome of a resolution: slash-separated paths relative to
// the root, in lexical walk order.
type Result struct {
	Paths  []string
	Faults []*DiscoveryFault
}

// ResolveDir resolves rule against the OS directory root. A missing root
// yields an empty result. With a trace-level log every file access is
// logged.
func ResolveDir(root string, rule Rule, log *logging.Logger) (*Result, error) {
	fi, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !fi.IsDir()) {
		return &Result{}, nil
	} else if err != nil {
		return &Result{Faults: []*DiscoveryFault{{Path: root, Err: err}}}, nil
	}
	return Resolve(NewTraceFS(os.DirFS(root), log), rule)
}

// Resolve walks fsys and returns the files selected by rule. Symbolic links
// to directories are not followed and unreadable directories are skipped
// and reported as faults. The only error returned is an invalid pattern.
func Resolve(fsys fs.FS, rule Rule) (*Result, error) {
	filtered, err := rule.filter(fsys)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	err = fs.WalkDir(filtered, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == "." && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			result.Faults = append(result.Faults, &DiscoveryFault{Path: filepath.FromSlash(path), Err: err})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			fi, err := fs.Stat(filtered, path)
			if err != nil {
				result.Faults = append(result.Faults, &DiscoveryFault{Path: filepath.FromSlash(path), Err: err})
				return nil
			}
			if !fi.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		if rule.match(path) {
			result.Paths = append(result.Paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

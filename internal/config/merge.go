package config

import (
	"cmp"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"slices"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Merge reads the given configuration files, walking directories, and deep
// merges them in order into one YAML document, so that a shared base can be
// refined per environment:
//
//	bundlekit build -c bundlekit.yaml -c release.toml
//
// Sections such as project, options and output merge key by key. Lists
// (formatting, included_files, the compiler command) and scalars are
// replaced as a whole by the later file. With conflictError a value set
// differently by two files is an error naming both files.
//
// Relative paths of every file are anchored at the directory of the first
// one; the caller sets BaseDir accordingly.
func Merge(configFiles []string, conflictError bool) ([]byte, error) {
	var paths []string
	for _, f := range configFiles {
		if err := filepath.Walk(f, func(path string, fi fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			paths = append(paths, path)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	m := merger{conflictError: conflictError, origin: make(map[string]string)}
	result := make(map[string]any)
	for _, f := range paths {
		doc, err := readDocument(f)
		if err != nil {
			return nil, err
		}
		if err := m.merge(result, doc, "", f); err != nil {
			return nil, err
		}
	}

	bs, err := yaml.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged configuration: %v", err)
	}

	return bs, nil
}

func readDocument(f string) (map[string]any, error) {
	bs, err := os.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %v: %v", f, err)
	}

	var doc map[string]any
	if isTOML(f) {
		_, err = toml.Decode(string(bs), &doc)
	} else {
		err = yaml.Unmarshal(bs, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration file %v: %v", f, err)
	}
	return doc, nil
}

// merger remembers which file set each value, to name it in conflicts.
type merger struct {
	conflictError bool
	origin        map[string]string
}

func (m *merger) merge(dst, src map[string]any, path, file string) error {
	for _, key := range slices.Sorted(maps.Keys(src)) { // Sort keys to ensure deterministic merge errors.
		p := path + "/" + key
		value := src[key]

		if existing, ok := dst[key]; ok {
			existingMap, ok1 := existing.(map[string]any)
			valueMap, ok2 := value.(map[string]any)
			if ok1 && ok2 {
				if err := m.merge(existingMap, valueMap, p, file); err != nil {
					return err
				}
				continue
			}

			if m.conflictError && !reflect.DeepEqual(existing, value) {
				return fmt.Errorf("conflict for config path %s: set by %s and %s", p, cmp.Or(m.origin[p], "an earlier file"), file)
			}
		}

		if valueMap, ok := value.(map[string]any); ok {
			// Copy so that later files never write into a decoded document.
			copied := make(map[string]any, len(valueMap))
			if err := m.merge(copied, valueMap, p, file); err != nil {
				return err
			}
			value = copied
		}
		dst[key] = value
		m.origin[p] = file
	}
	return nil
}

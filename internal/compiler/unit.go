package compiler

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// unit is one input file of a compilation. It is either backed by a file on
// disk or carries its content.
type unit struct {
	name    string
	path    string
	content []byte
}

// Name is the slash-separated name the compiler reports the unit by.
func (u unit) Name() string {
	return u.name
}

// Path is the file backing the unit, or empty for in-memory units.
func (u unit) Path() string {
	return u.path
}

// ReadContent returns the unit's content. File-backed units are read on
// every call.
func (u unit) ReadContent() ([]byte, error) {
	if u.path == "" {
		return u.content, nil
	}

	bs, err := os.ReadFile(u.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", u.name, err)
	}
	return bs, nil
}

func fileUnit(root, rel string) unit {
	return unit{name: path.Clean(filepath.ToSlash(rel)), path: filepath.Join(root, filepath.FromSlash(rel))}
}

// SourceUnit is a script file to be compiled and emitted.
type SourceUnit struct{ unit }

// DeclarationUnit is an externs file. It declares symbols defined outside
// the compiled sources and is never emitted.
type DeclarationUnit struct{ unit }

// NewSourceFile returns the source unit for the file rel below root. The
// unit is named by rel.
func NewSourceFile(root, rel string) SourceUnit {
	return SourceUnit{fileUnit(root, rel)}
}

// NewSource returns an in-memory source unit.
func NewSource(name string, content []byte) SourceUnit {
	return SourceUnit{unit{name: name, content: content}}
}

// NewDeclarationFile returns the declaration unit for the file rel below
// root.
func NewDeclarationFile(root, rel string) DeclarationUnit {
	return DeclarationUnit{fileUnit(root, rel)}
}

// NewDeclaration returns an in-memory declaration unit.
func NewDeclaration(name string, content []byte) DeclarationUnit {
	return DeclarationUnit{unit{name: name, content: content}}
}

// SourceFiles turns the paths resolved below root into source units,
// keeping their order.
func SourceFiles(root string, paths []string) []SourceUnit {
	units := make([]SourceUnit, len(paths))
	for i, p := range paths {
		units[i] = NewSourceFile(root, p)
	}
	return units
}

// DeclarationFiles turns the paths resolved below root into declaration
// units, keeping their order.
func DeclarationFiles(root string, paths []string) []DeclarationUnit {
	units := make([]DeclarationUnit, len(paths))
	for i, p := range paths {
		units[i] = NewDeclarationFile(root, p)
	}
	return units
}

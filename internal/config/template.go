package config

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// projectAliases maps the names accepted in ${...} placeholders onto the
// project fields. The dotted Maven spellings are kept so that existing
// templates carry over.
var projectAliases = map[string]string{
	"project.artifact_id":           "artifact_id",
	"project.artifactId":            "artifact_id",
	"artifactId":                    "artifact_id",
	"project.version":               "version",
	"version":                       "version",
	"project.build_directory":       "build_directory",
	"project.build.directory":       "build_directory",
	"build":                         "build_directory",
	"project.output_directory":      "output_directory",
	"project.build.outputDirectory": "output_directory",
}

// maxTemplateDepth bounds the expansion of placeholders that refer to
// other placeholders.
const maxTemplateDepth = 8

// Expand replaces ${...} placeholders in s. Project placeholders expand to
// the project fields, anything else to the environment variable of the same
// name. A project-like placeholder that is not known is an error.
func (p *Project) Expand(s string) (string, error) {
	for range maxTemplateDepth {
		if !strings.Contains(s, "${") {
			return s, nil
		}

		var err error
		expanded := os.Expand(s, func(name string) string {
			if field, ok := projectAliases[name]; ok {
				return p.field(field)
			}
			if strings.HasPrefix(name, "project.") {
				err = fmt.Errorf("unknown placeholder ${%s}", name)
				return ""
			}
			return os.Getenv(name)
		})
		if err != nil {
			return "", err
		}
		if expanded == s {
			return s, nil
		}
		s = expanded
	}

	return "", fmt.Errorf("placeholder expansion of %q does not terminate", s)
}

func (p *Project) field(name string) string {
	switch name {
	case "artifact_id":
		return p.ArtifactID
	case "version":
		return p.Version
	case "build_directory":
		return p.BuildDirectory
	case "output_directory":
		return p.OutputDirectory
	}
	return ""
}

// Resolve expands the placeholders of every path-valued field and anchors
// relative paths at the base directory, which is made absolute first. An
// empty base directory is the working directory. Every resolved path is
// absolute, so resolving again changes nothing. It must run after
// SetDefaults.
func (r *Root) Resolve() error {
	base, err := filepath.Abs(cmp.Or(r.BaseDir, "."))
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	r.BaseDir = base

	expand := func(field *string) {
		if err != nil || *field == "" {
			return
		}
		var v string
		if v, err = r.Project.Expand(*field); err == nil {
			*field = v
		}
	}

	expand(&r.Project.BuildDirectory)
	expand(&r.Project.OutputDirectory)
	expand(&r.Compiler.Jar)
	r.Compiler.Command = slices.Clone(r.Compiler.Command)
	if len(r.Compiler.Command) > 0 {
		expand(&r.Compiler.Command[0])
	}
	expand(&r.Externs.Directory)
	expand(&r.Sources.Directory)
	expand(&r.Output.File)
	expand(&r.Output.Directory)
	if r.Cache != nil && (r.Cache.Driver == "sqlite" || r.Cache.Driver == "sqlite3") {
		expand(&r.Cache.DSN)
	}
	if r.Publish != nil && r.Publish.FileSystemStorage != nil {
		expand(&r.Publish.FileSystemStorage.Path)
	}
	if err != nil {
		return err
	}

	for _, field := range []*string{
		&r.Project.BuildDirectory,
		&r.Project.OutputDirectory,
		&r.Compiler.Jar,
		&r.Externs.Directory,
		&r.Sources.Directory,
		&r.Output.File,
		&r.Output.Directory,
	} {
		*field = r.Path(*field)
	}
	// A command given as a path is relative to the configuration. A bare
	// name is looked up on PATH when the compiler runs.
	if len(r.Compiler.Command) > 0 && strings.ContainsRune(filepath.ToSlash(r.Compiler.Command[0]), '/') {
		r.Compiler.Command[0] = r.Path(r.Compiler.Command[0])
	}
	if r.Cache != nil && (r.Cache.Driver == "sqlite" || r.Cache.Driver == "sqlite3") && r.Cache.DSN != ":memory:" {
		r.Cache.DSN = r.Path(r.Cache.DSN)
	}
	if r.Publish != nil && r.Publish.FileSystemStorage != nil {
		r.Publish.FileSystemStorage.Path = r.Path(r.Publish.FileSystemStorage.Path)
	}

	return nil
}

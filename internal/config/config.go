package config

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"
	"github.com/swaggest/jsonschema-go"
)

// Internal configuration data structures for bundlekit.

const (
	DefaultArtifactID      = "bundle"
	DefaultVersion         = "0.0.0-SNAPSHOT"
	DefaultBuildDirectory  = "target"
	DefaultOutputDirectory = "${project.build_directory}/classes"
	DefaultExternsDir      = "src/main/webapp/js"
	DefaultSourcesDir      = "src/main/js"
	DefaultOutputFile      = "${project.build_directory}/${project.artifact_id}-${project.version}/js/${project.artifact_id}.js"
	DefaultOutputDir       = "${project.output_directory}"
	DefaultIncludedFiles   = "**/*.js"

	DefaultCompilationLevel = "SIMPLE_OPTIMIZATIONS"
	DefaultWarningLevel     = "VERBOSE"
	DefaultLoggingLevel     = "WARNING"
)

// Root is the top-level configuration structure of a build.
type Root struct {
	Project  Project            `json:"project,omitzero"`
	Compiler Compiler           `json:"compiler,omitzero"`
	Options  Options            `json:"options,omitzero"`
	Externs  Externs            `json:"externs,omitzero"`
	Sources  Sources            `json:"sources,omitzero"`
	Output   Output             `json:"output,omitzero"`
	Gate     Gate               `json:"gate,omitzero"`
	Cache    *Cache             `json:"cache,omitempty"`
	Publish  *ObjectStorage     `json:"publish,omitempty"`
	Secrets  map[string]*Secret `json:"secrets,omitempty"` // Schema validation overrides Secret to object type.

	// BaseDir anchors relative paths. It is the directory of the first
	// configuration file, or empty for the working directory.
	BaseDir string `json:"-"`

	_ struct{} `additionalProperties:"false"`
}

// Project carries the identity used in templated paths.
type Project struct {
	ArtifactID      string `json:"artifact_id,omitempty"`
	Version         string `json:"version,omitempty"`
	BuildDirectory  string `json:"build_directory,omitempty"`
	OutputDirectory string `json:"output_directory,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Compiler locates the external compiler. Either Jar (run with Java) or
// Command must be set to compile.
type Compiler struct {
	Jar     string   `json:"jar,omitempty"`
	Java    string   `json:"java,omitempty"`
	Command []string `json:"command,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Options holds the declarative compiler options. The symbolic values are
// validated when the options are resolved, not by the schema, so that the
// error can name the recognized values.
type Options struct {
	CompilationLevel   string     `json:"compilation_level,omitempty"`
	WarningLevel       string     `json:"warning_level,omitempty"`
	ManageDependencies bool       `json:"manage_closure_dependencies,omitempty"`
	GenerateExports    bool       `json:"generate_exports,omitempty"`
	Formatting         Formatting `json:"formatting,omitempty"`
	LoggingLevel       string     `json:"logging_level,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Formatting is a list of output formatting options. A single string is
// accepted as a one-element list.
type Formatting []string

type Externs struct {
	Directory         string `json:"directory,omitempty"`
	AddDefaultExterns bool   `json:"add_default_externs,omitempty"`
	Log               bool   `json:"log,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

type Sources struct {
	Directory       string    `json:"directory,omitempty"`
	IncludedFiles   StringSet `json:"included_files,omitempty"`
	ExcludedFiles   StringSet `json:"excluded_files,omitempty"`
	DefaultExcludes *bool     `json:"default_excludes,omitempty"`
	Log             bool      `json:"log,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// DefaultExcludesEnabled reports whether the built-in exclude set applies.
func (s *Sources) DefaultExcludesEnabled() bool {
	return s.DefaultExcludes == nil || *s.DefaultExcludes
}

func (s *Sources) validate() error {
	for _, pattern := range slices.Concat(s.IncludedFiles, s.ExcludedFiles) {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("failed to compile source file pattern %q: %w", pattern, err)
		}
	}
	return nil
}

type Output struct {
	Merge     *bool  `json:"merge,omitempty"`
	File      string `json:"file,omitempty"`
	Directory string `json:"directory,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// MergeEnabled reports whether all sources compile into one output file.
func (o *Output) MergeEnabled() bool {
	return o.Merge == nil || *o.Merge
}

type Gate struct {
	StopOnWarnings bool `json:"stop_on_warnings,omitempty"`
	StopOnErrors   bool `json:"stop_on_errors,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Cache configures the compilation cache database.
type Cache struct {
	Driver string   `json:"driver,omitempty" enum:"sqlite,sqlite3,postgres,pgx,mysql"`
	DSN    string   `json:"dsn,omitempty"`
	MaxAge Duration `json:"max_age,omitzero"`

	_ struct{} `additionalProperties:"false"`
}

func (c *Cache) validate() error {
	if c == nil {
		return nil
	}
	switch c.Driver {
	case "", "sqlite", "sqlite3":
	case "postgres", "pgx", "mysql":
		if c.DSN == "" {
			return fmt.Errorf("cache dsn is required for driver %s", c.Driver)
		}
	default:
		return fmt.Errorf("unsupported cache driver %q", c.Driver)
	}
	return nil
}

// Instead of marshaling and unmarshaling as int64 it uses strings, like "5m" or "0.5s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	val, err := time.ParseDuration(str)
	*d = Duration(val)
	return err
}

func (d *Duration) UnmarshalYAML(bs []byte) error {
	var s string
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return err
	}
	val, err := time.ParseDuration(s)
	*d = Duration(val)
	return err
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

type StringSet []string

func (a StringSet) Equal(b StringSet) bool {
	return slices.Equal(slices.Sorted(slices.Values(a)), slices.Sorted(slices.Values(b)))
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for the Root struct.
// It fills in the names of secrets and injects them into the secret
// references that use them.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw) // Assign the unmarshaled data back to the original struct
	return r.unmarshal()
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) unmarshal() error {
	for name := range r.Secrets {
		r.Secrets[name] = cmp.Or(r.Secrets[name], &Secret{})
		r.Secrets[name].Name = name
	}

	if r.Publish != nil {
		if ref := r.Publish.credentials(); ref != nil {
			ref.value = r.Secrets[ref.Name]
		}
	}

	return nil
}

// SetDefaults fills in every unset field with its default.
func (r *Root) SetDefaults() {
	r.Project.ArtifactID = cmp.Or(r.Project.ArtifactID, DefaultArtifactID)
	r.Project.Version = cmp.Or(r.Project.Version, DefaultVersion)
	r.Project.BuildDirectory = cmp.Or(r.Project.BuildDirectory, DefaultBuildDirectory)
	r.Project.OutputDirectory = cmp.Or(r.Project.OutputDirectory, DefaultOutputDirectory)

	r.Compiler.Java = cmp.Or(r.Compiler.Java, "java")

	r.Options.CompilationLevel = cmp.Or(r.Options.CompilationLevel, DefaultCompilationLevel)
	r.Options.WarningLevel = cmp.Or(r.Options.WarningLevel, DefaultWarningLevel)
	r.Options.LoggingLevel = cmp.Or(r.Options.LoggingLevel, DefaultLoggingLevel)

	r.Externs.Directory = cmp.Or(r.Externs.Directory, DefaultExternsDir)
	r.Sources.Directory = cmp.Or(r.Sources.Directory, DefaultSourcesDir)
	if len(r.Sources.IncludedFiles) == 0 {
		r.Sources.IncludedFiles = StringSet{DefaultIncludedFiles}
	}

	r.Output.File = cmp.Or(r.Output.File, DefaultOutputFile)
	r.Output.Directory = cmp.Or(r.Output.Directory, DefaultOutputDir)

	if r.Cache != nil {
		r.Cache.Driver = cmp.Or(r.Cache.Driver, "sqlite")
		r.Cache.DSN = cmp.Or(r.Cache.DSN, "${project.build_directory}/bundlekit-cache.db")
	}
}

func (r *Root) validate() error {
	if err := r.Sources.validate(); err != nil {
		return err
	}
	if err := r.Cache.validate(); err != nil {
		return err
	}
	if r.Publish != nil {
		if err := r.Publish.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Path resolves p against the base directory. Absolute paths, which
// includes every path of a resolved configuration, are returned unchanged.
func (r *Root) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.BaseDir, filepath.FromSlash(p))
}

// Default returns the configuration used when no file is given.
func Default() *Root {
	var root Root
	root.SetDefaults()
	return &root
}

func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}
	if config == nil {
		config = map[string]any{}
	}

	return rootSchema.Validate(config)
}

// ParseFile reads a YAML, JSON or TOML configuration file. Relative paths in
// it are resolved against the file's directory.
func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	if isTOML(filename) {
		if bs, err = tomlToYAML(bs); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
		}
	}

	root, err = Parse(bs)
	if err != nil {
		return nil, err
	}
	if root.BaseDir, err = filepath.Abs(filepath.Dir(filename)); err != nil {
		return nil, err
	}
	return root, nil
}

func Parse(bs []byte) (*Root, error) {
	if len(bytes.TrimSpace(bs)) == 0 {
		bs = []byte("{}")
	}

	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := root.validate(); err != nil {
		return nil, err
	}

	root.SetDefaults()
	return &root, nil
}

func isTOML(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".toml")
}

func tomlToYAML(bs []byte) ([]byte, error) {
	var doc map[string]any
	if err := toml.Unmarshal(bs, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// MarshalYAML keeps Formatting a list.
func (f Formatting) MarshalYAML() (any, error) {
	return []string(f), nil
}

func (f *Formatting) UnmarshalYAML(bs []byte) error {
	var v any
	if err := yaml.Unmarshal(bs, &v); err != nil {
		return err
	}
	return f.unmarshal(v)
}

func (f *Formatting) UnmarshalJSON(bs []byte) error {
	var v any
	if err := json.Unmarshal(bs, &v); err != nil {
		return err
	}
	return f.unmarshal(v)
}

func (f *Formatting) unmarshal(v any) error {
	switch v := v.(type) {
	case nil:
		*f = nil
	case string:
		*f = Formatting{v}
	case []any:
		out := make(Formatting, 0, len(v))
		for _, x := range v {
			s, ok := x.(string)
			if !ok {
				return fmt.Errorf("formatting: expected string, got %T", x)
			}
			out = append(out, s)
		}
		*f = out
	default:
		return errors.New("formatting: expected string or list of strings")
	}
	return nil
}

func (Formatting) PrepareJSONSchema(schema *jsonschema.Schema) error {
	schema.Type = nil
	schema.AddType(jsonschema.Array)
	schema.AddType(jsonschema.String)
	schema.AddType(jsonschema.Null)
	return nil
}

package fs

import "slices"

var defaultExcludes = []string{
	// Miscellaneous typical temporary files
	"**/*~",
	"**/#*#",
	"**/.#*",
	"**/%*%",
	"**/._*",

	// CVS
	"**/CVS",
	"**/CVS/**",
	"**/.cvsignore",

	// SCCS
	"**/SCCS",
	"**/SCCS/**",

	// Visual SourceSafe
	"**/vssver.scc",

	// Subversion
	"**/.svn",
	"**/.svn/**",

	// Mac
	"**/.DS_Store",

	// Git
	"**/.git",
	"**/.git/**",
	"**/.gitattributes",
	"**/.gitignore",
	"**/.gitmodules",

	// Mercurial
	"**/.hg",
	"**/.hg/**",
	"**/.hgignore",
	"**/.hgsub",
	"**/.hgsubstate",
	"**/.hgtags",

	// Bazaar
	"**/.bzr",
	"**/.bzr/**",
	"**/.bzrignore",
}

// DefaultExcludes returns the patterns excluded from pattern rules unless
// turned off.
func DefaultExcludes() []string {
	return slices.Clone(defaultExcludes)
}

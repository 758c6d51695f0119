//go:build e2e

package cli

import (
	"cmp"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

// fakeClosure stands in for the Closure Compiler: it records its arguments
// in $CLOSURE_ARGS, concatenates the --js inputs into the output file and
// reports an error diagnostic for every input containing ERROR and a
// warning for every input containing WARN.
const fakeClosure = `#!/bin/sh
[ -n "$CLOSURE_ARGS" ] && echo "$@" >> "$CLOSURE_ARGS"
out=""
js=""
while [ $# -gt 0 ]; do
  case "$1" in
    --js) js="$js $2"; shift ;;
    --js_output_file) out="$2"; shift ;;
  esac
  shift
done
status=0
sep=""
printf '[' >&2
for f in $js; do
  if grep -q ERROR "$f"; then
    printf '%s{"level":"error","key":"JSC_FAKE_ERROR","description":"fake error","source":"%s","line":1,"column":0}' "$sep" "$f" >&2
    sep=","
    status=1
  fi
  if grep -q WARN "$f"; then
    printf '%s{"level":"warning","key":"JSC_FAKE_WARNING","description":"fake warning","source":"%s","line":1,"column":0}' "$sep" "$f" >&2
    sep=","
  fi
done
printf ']\n' >&2
if [ $status -eq 0 ]; then
  cat $js > "$out"
fi
exit $status
`

func TestScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	bundlekit := cmp.Or(os.Getenv("BUNDLEKIT"), "bundlekit")

	closure := filepath.Join(t.TempDir(), "closure")
	if err := os.WriteFile(closure, []byte(fakeClosure), 0o755); err != nil {
		t.Fatal(err)
	}

	testscript.Run(t, testscript.Params{
		Dir: ".",
		Setup: func(e *testscript.Env) error {
			e.Vars = append(e.Vars,
				"BUNDLEKIT="+bundlekit,
				"CLOSURE="+closure,
			)
			for _, kv := range os.Environ() {
				if strings.HasPrefix(kv, "E2E_") {
					e.Vars = append(e.Vars, kv)
				}
			}
			return nil
		},
		Cmds: map[string]func(*testscript.TestScript, bool, []string){
			"tree": treeCmd,
		},
		// NB: To quickly update expectations in txtar files, try re-running the tests with
		// E2E_UPDATE=y, for example:
		//   E2E_UPDATE=y go test -tags e2e ./e2e/cli -run TestScript/merged -v -count=1
		UpdateScripts: os.Getenv("E2E_UPDATE") != "",
	})
}

// treeCmd prints the slash-separated paths of all files below a directory,
// one per line, in lexical order.
func treeCmd(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("unsupported: ! tree")
	}
	if len(args) != 1 {
		ts.Fatalf("usage: tree dir")
	}

	root := ts.MkAbs(args[0])
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	ts.Check(err)

	slices.Sort(files)
	for _, f := range files {
		fmt.Fprintln(ts.Stdout(), f)
	}
}

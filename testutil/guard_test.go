package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred Predicate
		in   string
		want bool
	}{
		{"infra backend", InfraImport, "flowcore/internal/infra/blob/fs", true},
		{"blob facade", InfraImport, "flowcore/internal/blob", false},
		{"own internal", InternalImport, "flowcore/internal/core", true},
		{"foreign internal", InternalImport, "example.com/x/internal/y", true},
		{"public", InternalImport, "flowcore/pkg/domain", false},
		{"under exact", Under("flowcore/plugins"), "flowcore/plugins", true},
		{"under child", Under("flowcore/plugins/"), "flowcore/plugins/jobarchive", true},
		{"under sibling", Under("flowcore/plugins"), "flowcore/pluginsx", false},
		{"any", Any(InfraImport, Under("os/exec")), "os/exec", true},
		{"any none", Any(), "fmt", false},
	}
	for _, tc := range cases {
		if got := tc.pred(tc.in); got != tc.want {
			t.Fatalf("%s: pred(%q)=%v want %v", tc.name, tc.in, got, tc.want)
		}
	}
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, src := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func TestImportViolations(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go":               "package a\nimport \"flowcore/internal/infra/blob/fs\"\n",
		"a_test.go":          "package a\nimport \"flowcore/internal/infra/blob/memory\"\n",
		"sub/b.go":           "package sub\nimport (\n\t\"fmt\"\n\tx \"flowcore/internal/infra/persistence/sqlite\"\n)\n",
		"testdata/ignore.go": "package ignore\nimport \"flowcore/internal/infra/blob/s3\"\n",
	})
	viols, err := ImportViolations(root, InfraImport)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{
		"flowcore/internal/infra/blob/fs (in a.go)",
		"flowcore/internal/infra/persistence/sqlite (in sub/b.go)",
	}
	if len(viols) != len(want) {
		t.Fatalf("violations = %v", viols)
	}
	for i := range want {
		if viols[i] != want[i] {
			t.Fatalf("violation %d = %q want %q", i, viols[i], want[i])
		}
	}
}

func TestImportViolationsParseError(t *testing.T) {
	root := writeTree(t, map[string]string{"bad.go": "package\n"})
	if _, err := ImportViolations(root, InfraImport); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestAssertNoImportsClean(t *testing.T) {
	root := writeTree(t, map[string]string{"ok.go": "package ok\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n"})
	AssertNoImports(t, root, InfraImport, "clean tree")
}

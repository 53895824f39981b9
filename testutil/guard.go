// Package testutil holds helpers for tests that enforce import boundaries
// between flowcore layers.
package testutil

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Predicate reports whether an import path is forbidden.
type Predicate func(importPath string) bool

// Module is the flowcore module path.
const Module = "flowcore"

// InfraImport matches the concrete storage and blob backends.
func InfraImport(path string) bool {
	return strings.HasPrefix(path, Module+"/internal/infra/")
}

// InternalImport matches any internal package, of this module or another.
func InternalImport(path string) bool {
	return strings.HasPrefix(path, Module+"/internal") || strings.Contains(path, "/internal/")
}

// Under matches prefix and every package below it.
func Under(prefix string) Predicate {
	prefix = strings.TrimSuffix(prefix, "/")
	return func(path string) bool {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
}

// Any matches when at least one of preds does.
func Any(preds ...Predicate) Predicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

// AssertNoImports walks root and fails t when a non-test .go file imports a
// path matching forbidden. reason is included in the failure.
func AssertNoImports(t testing.TB, root string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := ImportViolations(root, forbidden)
	if err != nil {
		t.Fatalf("scan imports under %s: %v", root, err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// ImportViolations lists "import (in file)" entries under root, sorted.
// Only import clauses are parsed, and testdata directories are skipped.
func ImportViolations(root string, forbidden Predicate) ([]string, error) {
	fset := token.NewFileSet()
	var viols []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "testdata" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		for _, imp := range f.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+filepath.ToSlash(rel)+")")
			}
		}
		return nil
	})
	sort.Strings(viols)
	return viols, err
}

package domain

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"geuebt/testutil"
)

// TestDomainImportsStayPure keeps the domain layer free of internal packages
// and third-party dependencies.
func TestDomainImportsStayPure(t *testing.T) {
	entries, err := os.ReadDir(".")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	fset := token.NewFileSet()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Clean(name), nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		for _, spec := range file.Imports {
			path, _ := strconv.Unquote(spec.Path.Value)
			if strings.Contains(path, "/internal/") || strings.HasPrefix(path, "geuebt/internal") {
				t.Errorf("%s imports internal package %s", name, path)
			}
			if strings.Contains(strings.SplitN(path, "/", 2)[0], ".") {
				t.Errorf("%s imports third-party package %s", name, path)
			}
		}
	}
}

func TestDomainHasNoTransitiveThirdPartyDeps(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, "geuebt/pkg/domain", testutil.ThirdPartyImport,
		"the domain model is plain Go")
}

// Package testutil holds shared test helpers: a t.Log backed slog logger and
// guards that keep storage drivers behind their adapter packages.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// driverModules are the third-party modules that talk to external storage.
var driverModules = []string{
	"github.com/jackc/pgx",
	"modernc.org/sqlite",
	"github.com/dgraph-io/badger",
	"go.mongodb.org/mongo-driver",
	"github.com/aws/aws-sdk-go-v2",
}

// DriverImport matches import paths of storage and object-store client libraries.
func DriverImport(path string) bool {
	for _, mod := range driverModules {
		if path == mod || strings.HasPrefix(path, mod+"/") {
			return true
		}
	}
	return false
}

// InfraImport matches the geuebt infra adapters.
func InfraImport(path string) bool {
	return path == "geuebt/internal/infra" || strings.HasPrefix(path, "geuebt/internal/infra/")
}

// InternalImport matches any path with an internal/ segment.
func InternalImport(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasPrefix(path, "internal/")
}

// ThirdPartyImport matches paths whose first element looks like a host name.
func ThirdPartyImport(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// AssertNoDirectImports parses the non-test .go files in dir (not recursive)
// and fails if an import satisfies forbidden.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// AssertNoTransitiveDependency loads pattern with its full import graph and
// fails if any reachable package satisfies forbidden. Test files are excluded.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	viols, err := transitiveViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden transitive dependencies (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

func transitiveViolations(pattern string, forbidden func(string) bool) ([]string, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	roots, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("no packages match %q", pattern)
	}
	found := make(map[string]struct{})
	packages.Visit(roots, func(p *packages.Package) bool {
		if forbidden(p.PkgPath) {
			found[p.PkgPath] = struct{}{}
		}
		return true
	}, nil)

	viols := make([]string, 0, len(found))
	for p := range found {
		viols = append(viols, p)
	}
	sort.Strings(viols)
	return viols, nil
}

func directImportViolations(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, spec := range file.Imports {
			path, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				return nil, err
			}
			if forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

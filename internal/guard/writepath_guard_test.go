// Copyright 2025 Oppie Thunder Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package guard holds architectural invariants enforced by AST
// inspection rather than code review: cold-tier file mutation must go
// through layout/batcher, never be reimplemented ad hoc elsewhere.
package guard

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// bannedCalls are os package functions that mutate the filesystem.
// Everywhere except the packages listed in allowedDirs must go through
// the store/index APIs instead of touching files directly.
var bannedCalls = map[string]struct{}{
	"Remove":    {},
	"RemoveAll": {},
	"WriteFile": {},
	"Rename":    {},
}

// allowedDirs may call the banned os functions directly: layout owns
// the write primitives, batcher dispatches through them, index
// persists its own snapshot file via temp-plus-rename, and migration
// backs up and renames the legacy database.
var allowedDirs = map[string]struct{}{
	filepath.Join("pkg", "tidecache", "layout"):  {},
	filepath.Join("pkg", "tidecache", "batcher"): {},
	filepath.Join("pkg", "tidecache", "index"):   {},
	filepath.Join("internal", "migration"):       {},
}

func TestNoDirectFileMutationOutsideLayout(t *testing.T) {
	root := locateRepoRoot(t)
	targets := []string{"pkg", "cmd", "internal"}
	for _, dir := range targets {
		path := filepath.Join(root, dir)
		_ = filepath.WalkDir(path, func(p string, d os.DirEntry, _ error) error {
			if d == nil || d.IsDir() || !strings.HasSuffix(p, ".go") || strings.HasSuffix(p, "_test.go") {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return nil
			}
			if allowedPath(rel) {
				return nil
			}
			checkFile(t, p)
			return nil
		})
	}
}

func allowedPath(rel string) bool {
	for dir := range allowedDirs {
		if strings.HasPrefix(rel, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func checkFile(t *testing.T, filePath string) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filePath, nil, 0)
	if err != nil {
		t.Fatalf("parse %s: %v", filePath, err)
	}
	ast.Inspect(f, func(n ast.Node) bool {
		x, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		pkg, _ := x.X.(*ast.Ident)
		if pkg == nil || pkg.Name != "os" {
			return true
		}
		if _, banned := bannedCalls[x.Sel.Name]; banned {
			t.Fatalf("forbidden direct filesystem mutation: os.%s in %s (route through layout/batcher instead)", x.Sel.Name, filePath)
		}
		return true
	})
}

func locateRepoRoot(t *testing.T) string {
	wd, _ := os.Getwd()
	cur := wd
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(filepath.Join(cur, "go.mod")); err == nil {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return wd
}

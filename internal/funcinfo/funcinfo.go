// Package funcinfo extracts the information needed to semantically test a
// Go function against its own documentation: the doc comment, the exact
// source text, and a bounded-depth tree of same-file callees that give the
// judge context about helpers the function leans on.
package funcinfo

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"strings"
)

// FunctionInfo describes one function for semantic testing.
type FunctionInfo struct {
	Name         string
	Doc          string
	Source       string
	SourceFile   string
	Dependencies []*FunctionInfo
}

// DefaultMaxDepth bounds dependency recursion.
const DefaultMaxDepth = 2

// FromFile parses path and extracts info for the named function, following
// same-file callees up to maxDepth levels (0 means no dependencies).
func FromFile(path, funcName string, maxDepth int) (*FunctionInfo, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	decls := indexFuncDecls(file)
	fd, ok := decls[funcName]
	if !ok {
		return nil, fmt.Errorf("function %q not found in %s", funcName, path)
	}

	visited := map[string]bool{}
	return build(fset, src, path, decls, fd, maxDepth, 0, visited), nil
}

func indexFuncDecls(file *ast.File) map[string]*ast.FuncDecl {
	decls := make(map[string]*ast.FuncDecl)
	for _, d := range file.Decls {
		if fd, ok := d.(*ast.FuncDecl); ok && fd.Recv == nil {
			decls[fd.Name.Name] = fd
		}
	}
	return decls
}

func build(fset *token.FileSet, src []byte, path string, decls map[string]*ast.FuncDecl, fd *ast.FuncDecl, maxDepth, depth int, visited map[string]bool) *FunctionInfo {
	info := &FunctionInfo{
		Name:       fd.Name.Name,
		Doc:        strings.TrimSpace(fd.Doc.Text()),
		Source:     sourceText(fset, src, fd),
		SourceFile: path,
	}

	if depth >= maxDepth || visited[fd.Name.Name] {
		return info
	}
	visited[fd.Name.Name] = true

	for _, callee := range calleeNames(fd) {
		dep, ok := decls[callee]
		if !ok || dep.Name.Name == fd.Name.Name {
			continue
		}
		info.Dependencies = append(info.Dependencies,
			build(fset, src, path, decls, dep, maxDepth, depth+1, visited))
	}
	return info
}

// sourceText returns the exact text of the declaration, including its doc
// comment when present.
func sourceText(fset *token.FileSet, src []byte, fd *ast.FuncDecl) string {
	start := fd.Pos()
	if fd.Doc != nil {
		start = fd.Doc.Pos()
	}
	from := fset.Position(start).Offset
	to := fset.Position(fd.End()).Offset
	if from < 0 || to > len(src) || from >= to {
		return ""
	}
	return string(src[from:to])
}

// calleeNames collects names called within the function body, in first-call
// order and deduplicated. Method calls are recorded as "recv.Method" so
// same-file helpers called through a receiver are not confused with plain
// functions.
func calleeNames(fd *ast.FuncDecl) []string {
	var names []string
	seen := map[string]bool{}

	ast.Inspect(fd.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		var name string
		switch fn := call.Fun.(type) {
		case *ast.Ident:
			name = fn.Name
		case *ast.SelectorExpr:
			if x, ok := fn.X.(*ast.Ident); ok {
				name = x.Name + "." + fn.Sel.Name
			}
		}
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return true
	})
	return names
}

// ContextText renders the dependency tree as judge context: each dependency
// function's source, recursively, so the judge can follow helper calls.
func (f *FunctionInfo) ContextText() string {
	if len(f.Dependencies) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Helper functions called by the implementation:\n")
	writeDeps(&sb, f.Dependencies)
	return sb.String()
}

func writeDeps(sb *strings.Builder, deps []*FunctionInfo) {
	for _, d := range deps {
		sb.WriteString("\n")
		sb.WriteString(d.Source)
		sb.WriteString("\n")
		writeDeps(sb, d.Dependencies)
	}
}

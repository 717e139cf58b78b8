package skills

import (
	"go/ast"
	"go/doc"
	"go/parser"
	"go/token"
	"sort"
	"strings"
)

// Describe returns the first line of the doc comment on the first exported
// function of a Go program, or "" when there is none.
func Describe(code string) string {
	if strings.TrimSpace(code) == "" {
		return ""
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "program.go", code, parser.ParseComments)
	if err != nil {
		return ""
	}
	pkg, err := doc.NewFromFiles(fset, []*ast.File{f}, "webskill/program")
	if err != nil {
		return ""
	}

	funcs := append([]*doc.Func(nil), pkg.Funcs...)
	for _, t := range pkg.Types {
		funcs = append(funcs, t.Funcs...)
	}
	sort.Slice(funcs, func(i, j int) bool {
		return funcs[i].Decl.Pos() < funcs[j].Decl.Pos()
	})

	for _, fn := range funcs {
		if fn.Decl.Recv != nil || !ast.IsExported(fn.Name) {
			continue
		}
		for _, line := range strings.Split(fn.Doc, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				return line
			}
		}
		return ""
	}
	return ""
}

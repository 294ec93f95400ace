// Package sqllint checks that every SQL string constant starts with a
// "--sql <uuid>" audit marker and that no two statements share a marker.
// infra.SQLRunner refuses unmarked statements at runtime; this catches them
// before that.
package sqllint

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	sqlKeywordPattern = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with|create)\b`)
	uuidMarkerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

type Violation struct {
	File    string
	Line    int
	Name    string
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", v.File, v.Line, v.Message, v.Name)
}

// Report is the outcome of a Lint run.
type Report struct {
	Statements int
	Violations []Violation
}

type statement struct {
	file   string
	line   int
	name   string
	marker string
}

// Lint scans the given files or directories. Test files, hidden
// directories, vendor and underscore-prefixed directories are skipped.
func Lint(targets ...string) (*Report, error) {
	if len(targets) == 0 {
		targets = []string{"."}
	}
	var stmts []statement
	report := &Report{}
	for _, target := range targets {
		err := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if path != target && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			found, err := scanFile(path)
			if err != nil {
				return err
			}
			stmts = append(stmts, found...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]statement, len(stmts))
	for _, s := range stmts {
		report.Statements++
		if !uuidMarkerPattern.MatchString(s.marker) {
			report.Violations = append(report.Violations, Violation{File: s.file, Line: s.line, Name: s.name, Message: "missing or invalid --sql <uuid> marker"})
			continue
		}
		if prev, dup := seen[s.marker]; dup {
			report.Violations = append(report.Violations, Violation{File: s.file, Line: s.line, Name: s.name, Message: "marker already used by " + prev.name})
			continue
		}
		seen[s.marker] = s
	}
	return report, nil
}

func scanFile(path string) ([]statement, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, 0)
	if err != nil {
		return nil, err
	}
	var out []statement
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := unquote(bl.Value)
			if err != nil || !sqlKeywordPattern.MatchString(raw) {
				continue
			}
			name := "_"
			if i < len(vs.Names) {
				name = vs.Names[i].Name
			}
			out = append(out, statement{
				file:   path,
				line:   fset.Position(bl.Pos()).Line,
				name:   name,
				marker: leadingLine(raw),
			})
		}
		return true
	})
	return out, nil
}

func leadingLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if strings.HasPrefix(v, "`") {
		return strings.Trim(v, "`"), nil
	}
	return strconv.Unquote(v)
}

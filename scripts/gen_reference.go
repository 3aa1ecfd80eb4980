package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

type constValue struct {
	Name  string
	Value string
}

type structField struct {
	Name  string
	Type  string
	Tag   string
	Notes string
}

func main() {
	var root string
	var reasonsOut string
	var configOut string
	flag.StringVar(&root, "root", ".", "module root")
	flag.StringVar(&reasonsOut, "reasons-out", "docs/reference/reason-codes.md", "output markdown path for reason codes and observer records")
	flag.StringVar(&configOut, "config-out", "docs/reference/config-schema.md", "output markdown path for the YAML configuration schema")
	flag.Parse()

	if err := generateReasonCodes(root, reasonsOut); err != nil {
		fail(err)
	}
	if err := generateConfigSchema(root, configOut); err != nil {
		fail(err)
	}
}

func generateReasonCodes(root, outPath string) error {
	outcome, err := collectPrefixedConsts(filepath.Join(root, "classify", "outcome.go"), "Reason")
	if err != nil {
		return err
	}
	circuitReasons, err := collectPrefixedConsts(filepath.Join(root, "circuit", "types.go"), "Reason")
	if err != nil {
		return err
	}
	modes, err := collectPrefixedConsts(filepath.Join(root, "observe", "types.go"), "Mode")
	if err != nil {
		return err
	}
	sources, err := collectPrefixedConsts(filepath.Join(root, "observe", "types.go"), "Cancel")
	if err != nil {
		return err
	}
	structs, err := collectStructFields(filepath.Join(root, "observe", "types.go"), "json",
		[]string{"CallInfo", "CallRecord", "CancelEvent", "BatchRecord"})
	if err != nil {
		return err
	}

	data := renderReasonsMarkdown(outcome, circuitReasons, modes, sources, structs)
	return writeFile(outPath, data)
}

func generateConfigSchema(root, outPath string) error {
	structs, err := collectStructFields(filepath.Join(root, "config", "config.go"), "yaml", []string{"Config"})
	if err != nil {
		return err
	}
	circuitStructs, err := collectStructFields(filepath.Join(root, "circuit", "registry.go"), "yaml", []string{"Config"})
	if err != nil {
		return err
	}
	env, err := collectPrefixedConsts(filepath.Join(root, "config", "config.go"), "Env")
	if err != nil {
		return err
	}
	conditions, err := collectStringerValues(filepath.Join(root, "classify", "condition.go"), "Condition")
	if err != nil {
		return err
	}
	defaults, err := collectConstValues(filepath.Join(root, "circuit", "breaker.go"), []string{"DefaultThreshold", "DefaultCooldown"})
	if err != nil {
		return err
	}

	data := renderConfigMarkdown(structs["Config"], circuitStructs["Config"], env, conditions, defaults)
	return writeFile(outPath, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// collectPrefixedConsts returns the string constants whose name starts with prefix.
func collectPrefixedConsts(path, prefix string) ([]constValue, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, err
	}
	var values []constValue
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.CONST {
			continue
		}
		for _, spec := range gen.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for i, name := range vs.Names {
				if !strings.HasPrefix(name.Name, prefix) || len(vs.Values) <= i {
					continue
				}
				val, ok := stringLiteral(vs.Values[i])
				if !ok {
					continue
				}
				values = append(values, constValue{Name: name.Name, Value: val})
			}
		}
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Value < values[j].Value })
	return values, nil
}

// collectStringerValues returns the string literals returned by the String
// method of typeName.
func collectStringerValues(path, typeName string) ([]string, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, err
	}
	values := make(map[string]struct{})
	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name.Name != "String" || fn.Recv == nil || len(fn.Recv.List) != 1 {
			continue
		}
		if !isIdent(fn.Recv.List[0].Type, typeName) {
			continue
		}
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			ret, ok := n.(*ast.ReturnStmt)
			if !ok || len(ret.Results) != 1 {
				return true
			}
			if val, ok := stringLiteral(ret.Results[0]); ok {
				values[val] = struct{}{}
			}
			return true
		})
	}
	return setToSorted(values), nil
}

func collectStructFields(path, tagKey string, names []string) (map[string][]structField, error) {
	want := make(map[string]struct{})
	for _, name := range names {
		want[name] = struct{}{}
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]structField)
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			if _, ok := want[ts.Name.Name]; !ok {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				continue
			}
			fields := make([]structField, 0, len(st.Fields.List))
			for _, field := range st.Fields.List {
				typeStr := exprString(field.Type)
				notes := joinComments(field.Doc, field.Comment)
				tagVal := ""
				if field.Tag != nil {
					if tag, err := strconv.Unquote(field.Tag.Value); err == nil {
						tagVal = strings.Split(reflect.StructTag(tag).Get(tagKey), ",")[0]
					}
				}
				if len(field.Names) == 0 {
					fields = append(fields, structField{Name: typeStr, Tag: tagVal, Notes: notes})
					continue
				}
				for _, name := range field.Names {
					if !name.IsExported() {
						continue
					}
					fields = append(fields, structField{Name: name.Name, Type: typeStr, Tag: tagVal, Notes: notes})
				}
			}
			out[ts.Name.Name] = fields
		}
	}
	return out, nil
}

func collectConstValues(path string, names []string) (map[string]string, error) {
	want := make(map[string]struct{})
	for _, name := range names {
		want[name] = struct{}{}
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.CONST {
			continue
		}
		for _, spec := range gen.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for i, name := range vs.Names {
				if _, ok := want[name.Name]; !ok {
					continue
				}
				if len(vs.Values) == 0 {
					continue
				}
				idx := i
				if idx >= len(vs.Values) {
					idx = len(vs.Values) - 1
				}
				out[name.Name] = exprString(vs.Values[idx])
			}
		}
	}
	return out, nil
}

func stringLiteral(expr ast.Expr) (string, bool) {
	lit, ok := expr.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	val, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return val, true
}

func isIdent(expr ast.Expr, name string) bool {
	ident, ok := expr.(*ast.Ident)
	return ok && ident.Name == name
}

func exprString(expr ast.Expr) string {
	var buf bytes.Buffer
	_ = printer.Fprint(&buf, token.NewFileSet(), expr)
	return buf.String()
}

func joinComments(groups ...*ast.CommentGroup) string {
	var parts []string
	for _, g := range groups {
		if g == nil {
			continue
		}
		text := strings.TrimSpace(g.Text())
		if text != "" {
			parts = append(parts, strings.ReplaceAll(text, "\n", " "))
		}
	}
	return strings.Join(parts, " ")
}

func renderReasonsMarkdown(outcome, circuitReasons, modes, sources []constValue, structs map[string][]structField) []byte {
	var buf bytes.Buffer

	buf.WriteString("<!-- Generated by scripts/gen_reference.go; do not edit by hand. -->\n")
	buf.WriteString("# Reason codes and observer records\n\n")
	buf.WriteString("Generated from: `classify/outcome.go`, `circuit/types.go`, `observe/types.go`.\n\n")

	buf.WriteString("## Outcome reasons\n\n")
	buf.WriteString("These values appear in `classify.Outcome.Reason` and `observe.CallRecord.Reason`.\n\n")
	writeConsts(&buf, "classify", outcome)

	buf.WriteString("## Circuit reasons\n\n")
	buf.WriteString("These values appear on `circuit.OpenError.Reason`.\n\n")
	writeConsts(&buf, "circuit", circuitReasons)

	buf.WriteString("## Execution modes\n\n")
	buf.WriteString("These values appear in `observe.CallInfo.Mode`.\n\n")
	writeConsts(&buf, "observe", modes)

	buf.WriteString("## Cancellation sources\n\n")
	buf.WriteString("These values appear in `observe.CancelEvent.Source`.\n\n")
	writeConsts(&buf, "observe", sources)

	buf.WriteString("## Observer records\n\n")
	for _, name := range []string{"CallInfo", "CallRecord", "CancelEvent", "BatchRecord"} {
		writeStruct(&buf, "observe."+name, structs[name], false)
	}
	return buf.Bytes()
}

func renderConfigMarkdown(cfg, circuitCfg []structField, env []constValue, conditions []string, defaults map[string]string) []byte {
	var buf bytes.Buffer

	buf.WriteString("<!-- Generated by scripts/gen_reference.go; do not edit by hand. -->\n")
	buf.WriteString("# Configuration schema\n\n")
	buf.WriteString("Generated from: `config/config.go`, `circuit/registry.go`, `circuit/breaker.go`, `classify/condition.go`.\n\n")

	buf.WriteString("## Top level\n\n")
	writeStruct(&buf, "config.Config", cfg, true)

	buf.WriteString("## circuit\n\n")
	writeStruct(&buf, "circuit.Config", circuitCfg, true)
	if len(defaults) > 0 {
		buf.WriteString("Defaults when zero:\n\n")
		for _, k := range sortedKeys(defaults) {
			buf.WriteString("- `" + k + "` = `" + defaults[k] + "`\n")
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Condition names\n\n")
	buf.WriteString("Accepted in `conditions` and `profiles`: " + joinBackticked(conditions) + ".\n\n")

	buf.WriteString("## Environment overrides\n\n")
	writeConsts(&buf, "config", env)
	return buf.Bytes()
}

func writeConsts(buf *bytes.Buffer, pkg string, values []constValue) {
	for _, v := range values {
		buf.WriteString("- `" + v.Value + "` (`" + pkg + "." + v.Name + "`)\n")
	}
	buf.WriteString("\n")
}

func writeStruct(buf *bytes.Buffer, name string, fields []structField, withTags bool) {
	if len(fields) == 0 {
		return
	}
	buf.WriteString("### " + name + "\n\n")
	if withTags {
		buf.WriteString("| Key | Field | Type | Notes |\n")
		buf.WriteString("|---|---|---|---|\n")
	} else {
		buf.WriteString("| Field | Type | Notes |\n")
		buf.WriteString("|---|---|---|\n")
	}
	for _, field := range fields {
		note := orDash(field.Notes)
		typeStr := orDash(field.Type)
		if withTags {
			buf.WriteString("| `" + orDash(field.Tag) + "` | `" + field.Name + "` | `" + typeStr + "` | " + escapePipes(note) + " |\n")
			continue
		}
		buf.WriteString("| `" + field.Name + "` | `" + typeStr + "` | " + escapePipes(note) + " |\n")
	}
	buf.WriteString("\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func joinBackticked(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, "`"+v+"`")
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

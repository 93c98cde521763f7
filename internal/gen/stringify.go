package gen

import (
	"strings"
	"unicode"

	"github.com/dave/dst"
)

// renderer turns type expressions back into Go source. A non-empty qualifier is prefixed to
// exported identifiers, for mocks generated outside the interface's own package.
type renderer struct {
	qualifier string
}

// typeString renders a type expression.
//
//nolint:cyclop,funlen // one case per expression kind
func (r renderer) typeString(expr dst.Expr) string {
	typeString := r.typeString

	switch typed := expr.(type) {
	case nil:
		return ""
	case *dst.Ident:
		if r.qualifier != "" && unicode.IsUpper([]rune(typed.Name)[0]) {
			return r.qualifier + "." + typed.Name
		}

		return typed.Name
	case *dst.BasicLit:
		return typed.Value
	case *dst.SelectorExpr:
		if ident, ok := typed.X.(*dst.Ident); ok {
			return ident.Name + "." + typed.Sel.Name
		}

		return typeString(typed.X) + "." + typed.Sel.Name
	case *dst.StarExpr:
		return "*" + typeString(typed.X)
	case *dst.ParenExpr:
		return "(" + typeString(typed.X) + ")"
	case *dst.Ellipsis:
		return "..." + typeString(typed.Elt)
	case *dst.ArrayType:
		return "[" + typeString(typed.Len) + "]" + typeString(typed.Elt)
	case *dst.MapType:
		return "map[" + typeString(typed.Key) + "]" + typeString(typed.Value)
	case *dst.ChanType:
		switch typed.Dir {
		case dst.SEND:
			return "chan<- " + typeString(typed.Value)
		case dst.RECV:
			return "<-chan " + typeString(typed.Value)
		default:
			return "chan " + typeString(typed.Value)
		}
	case *dst.FuncType:
		return "func" + r.signatureString(typed)
	case *dst.IndexExpr:
		return typeString(typed.X) + "[" + typeString(typed.Index) + "]"
	case *dst.IndexListExpr:
		indices := make([]string, len(typed.Indices))
		for index, expr := range typed.Indices {
			indices[index] = typeString(expr)
		}

		return typeString(typed.X) + "[" + strings.Join(indices, ", ") + "]"
	case *dst.InterfaceType:
		if typed.Methods == nil || len(typed.Methods.List) == 0 {
			return "interface{}"
		}

		return "interface{ " + strings.Join(r.fieldStrings(typed.Methods, true), "; ") + " }"
	case *dst.StructType:
		if typed.Fields == nil || len(typed.Fields.List) == 0 {
			return "struct{}"
		}

		return "struct{ " + strings.Join(r.fieldStrings(typed.Fields, false), "; ") + " }"
	default:
		return ""
	}
}

// signatureString renders "(params) results" of a function type.
func (r renderer) signatureString(fn *dst.FuncType) string {
	params := "(" + strings.Join(r.fieldStrings(fn.Params, false), ", ") + ")"

	results := r.fieldStrings(fn.Results, false)

	switch {
	case len(results) == 0:
		return params
	case len(results) == 1 && !strings.Contains(results[0], " "):
		return params + " " + results[0]
	default:
		return params + " (" + strings.Join(results, ", ") + ")"
	}
}

// fieldStrings renders each field of a list, keeping names. Interface method fields render as
// "Name(params) results".
func (r renderer) fieldStrings(fields *dst.FieldList, methods bool) []string {
	if fields == nil {
		return nil
	}

	parts := make([]string, 0, len(fields.List))

	for _, field := range fields.List {
		if fn, ok := field.Type.(*dst.FuncType); ok && methods && len(field.Names) > 0 {
			parts = append(parts, field.Names[0].Name+r.signatureString(fn))

			continue
		}

		typ := r.typeString(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typ)

			continue
		}

		names := make([]string, len(field.Names))
		for index, name := range field.Names {
			names[index] = name.Name
		}

		parts = append(parts, strings.Join(names, ", ")+" "+typ)
	}

	return parts
}

// packageRefs collects the package qualifiers used in a type expression, such as "io" in "io.Reader".
func packageRefs(expr dst.Expr, refs map[string]bool) {
	dst.Inspect(expr, func(node dst.Node) bool {
		selector, ok := node.(*dst.SelectorExpr)
		if !ok {
			return true
		}

		if ident, ok := selector.X.(*dst.Ident); ok {
			refs[ident.Name] = true
		}

		return false
	})
}

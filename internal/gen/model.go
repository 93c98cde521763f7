package gen

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/dave/dst"
)

// Exported variables.
var (
	ErrEmbedded        = errors.New("embedded interface is not declared in the parsed files")
	ErrGenericIface    = errors.New("generic interfaces are not supported")
	ErrInterfaceAbsent = errors.New("interface not found")
	ErrNotInterface    = errors.New("not an interface")
)

// Mock describes the code to generate for one interface.
type Mock struct {
	Package    string
	Name       string
	Interface  string
	Imports    []string
	Methods    []Method
	SourcePkg  string
	SourcePath string
}

// Method is one mocked method.
type Method struct {
	Name     string
	Params   []Param
	Results  []string
	Variadic bool
}

// Param is one named method parameter.
type Param struct {
	Name string
	Type string
}

// Key is the function name the method's calls are recorded under, such as "Store.Get".
func (m Method) Key(iface string) string {
	return iface + "." + m.Name
}

// ParamList renders the parameters of the method's signature.
func (m Method) ParamList() string {
	parts := make([]string, len(m.Params))
	for index, param := range m.Params {
		parts[index] = param.Name + " " + param.Type
	}

	return strings.Join(parts, ", ")
}

// ArgList renders the values passed to the mock-call API. A variadic parameter is passed as one
// slice argument.
func (m Method) ArgList() string {
	names := make([]string, len(m.Params))
	for index, param := range m.Params {
		names[index] = param.Name
	}

	return strings.Join(names, ", ")
}

// ResultList renders the result part of the method's signature.
func (m Method) ResultList() string {
	switch len(m.Results) {
	case 0:
		return ""
	case 1:
		return m.Results[0]
	default:
		return "(" + strings.Join(m.Results, ", ") + ")"
	}
}

// BuildMock finds the interface named iface among files and describes its mock. pkg is the
// package the mock is generated into. When it differs from the interface's own package, types
// of that package are qualified and it is imported from importPath.
func BuildMock(files []*dst.File, iface, name, pkg, importPath string) (Mock, error) {
	decl, file, err := findInterface(files, iface)
	if err != nil {
		return Mock{}, err
	}

	mock := Mock{Package: pkg, Name: name, Interface: iface}

	render := renderer{}
	if file.Name.Name != pkg {
		mock.SourcePkg = file.Name.Name
		mock.SourcePath = importPath
		render.qualifier = file.Name.Name
	}

	refs := make(map[string]bool)

	methods, err := collectMethods(files, decl, render, refs, make(map[string]bool))
	if err != nil {
		return Mock{}, err
	}

	mock.Methods = methods
	mock.Imports = resolveImports(file, refs)

	if mock.SourcePath != "" {
		mock.Imports = append(mock.Imports, strconv.Quote(mock.SourcePath))
	}

	return mock, nil
}

func findInterface(files []*dst.File, iface string) (*dst.TypeSpec, *dst.File, error) {
	for _, file := range files {
		for _, decl := range file.Decls {
			gen, ok := decl.(*dst.GenDecl)
			if !ok {
				continue
			}

			for _, spec := range gen.Specs {
				typeSpec, ok := spec.(*dst.TypeSpec)
				if !ok || typeSpec.Name.Name != iface {
					continue
				}

				if _, ok := typeSpec.Type.(*dst.InterfaceType); !ok {
					return nil, nil, fmt.Errorf("%s: %w", iface, ErrNotInterface)
				}

				if typeSpec.TypeParams != nil && len(typeSpec.TypeParams.List) > 0 {
					return nil, nil, fmt.Errorf("%s: %w", iface, ErrGenericIface)
				}

				return typeSpec, file, nil
			}
		}
	}

	return nil, nil, fmt.Errorf("%w: %s", ErrInterfaceAbsent, iface)
}

// collectMethods lists the interface's methods, expanding embedded interfaces declared in the
// same files. The builtin error interface contributes Error() string.
func collectMethods(
	files []*dst.File, decl *dst.TypeSpec, render renderer, refs map[string]bool, seen map[string]bool,
) ([]Method, error) {
	seen[decl.Name.Name] = true

	iface, _ := decl.Type.(*dst.InterfaceType)
	methods := make([]Method, 0, len(iface.Methods.List))

	for _, field := range iface.Methods.List {
		if fn, ok := field.Type.(*dst.FuncType); ok && len(field.Names) > 0 {
			methods = append(methods, buildMethod(field.Names[0].Name, fn, render, refs))

			continue
		}

		embedded, err := embeddedMethods(files, field.Type, render, refs, seen)
		if err != nil {
			return nil, err
		}

		methods = append(methods, embedded...)
	}

	return methods, nil
}

func embeddedMethods(
	files []*dst.File, expr dst.Expr, render renderer, refs map[string]bool, seen map[string]bool,
) ([]Method, error) {
	ident, ok := expr.(*dst.Ident)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEmbedded, render.typeString(expr))
	}

	if ident.Name == "error" {
		return []Method{{Name: "Error", Results: []string{"string"}}}, nil
	}

	if seen[ident.Name] {
		return nil, nil
	}

	decl, _, err := findInterface(files, ident.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEmbedded, ident.Name)
	}

	return collectMethods(files, decl, render, refs, seen)
}

func buildMethod(name string, fn *dst.FuncType, render renderer, refs map[string]bool) Method {
	method := Method{Name: name}
	position := 0

	for _, field := range fn.Params.List {
		packageRefs(field.Type, refs)

		typ := render.typeString(field.Type)
		if _, ok := field.Type.(*dst.Ellipsis); ok {
			method.Variadic = true
		}

		names := field.Names
		if len(names) == 0 {
			names = []*dst.Ident{{Name: "_"}}
		}

		for _, ident := range names {
			paramName := ident.Name
			if paramName == "_" || reserved[paramName] {
				paramName = "p" + strconv.Itoa(position)
			}

			method.Params = append(method.Params, Param{Name: paramName, Type: typ})
			position++
		}
	}

	if fn.Results == nil {
		return method
	}

	for _, field := range fn.Results.List {
		packageRefs(field.Type, refs)

		count := max(len(field.Names), 1)
		for range count {
			method.Results = append(method.Results, render.typeString(field.Type))
		}
	}

	return method
}

//nolint:gochecknoglobals // names the generated method bodies use
var reserved = map[string]bool{"m": true, "forktest": true, "returned": true}

// resolveImports returns the import specs of file that refs use, as they appear in source.
func resolveImports(file *dst.File, refs map[string]bool) []string {
	imports := make([]string, 0, len(refs))

	for _, spec := range file.Imports {
		importPath, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}

		name := path.Base(importPath)
		if spec.Name != nil {
			name = spec.Name.Name
		}

		if !refs[name] {
			continue
		}

		if spec.Name != nil {
			imports = append(imports, spec.Name.Name+" "+spec.Path.Value)
		} else {
			imports = append(imports, spec.Path.Value)
		}
	}

	return imports
}

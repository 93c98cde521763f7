// Package gen generates forktest mocks of Go interfaces.
package gen

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/toejough/go-reorder"
)

// FileSystem is where generated files are written.
type FileSystem interface {
	WriteFile(name string, data []byte, perm os.FileMode) error
}

// Exported variables.
var (
	ErrNoModule  = errors.New("no go.mod found")
	ErrNoPackage = errors.New("package name unknown: set GOPACKAGE or pass --pkg")
)

// Run executes forkgen: it parses args, finds the interface in the current directory's sources,
// and writes its mock next to them. getEnv supplies the go:generate variables GOPACKAGE and GOFILE.
func Run(args []string, getEnv func(string) string, fileSys FileSystem, out io.Writer) error {
	parsed, err := parseArgs(args)
	if err != nil {
		return err
	}

	pkg := parsed.Pkg
	if pkg == "" {
		pkg = getEnv("GOPACKAGE")
	}

	if pkg == "" {
		return ErrNoPackage
	}

	name := parsed.Name
	if name == "" {
		name = parsed.Interface + "Mock"
	}

	files, err := LoadDir(parsed.Dir, parsed.Source)
	if err != nil {
		return err
	}

	// only needed when the mock lives in another package than the interface, e.g. foo_test
	importPath, _ := ImportPath(parsed.Dir)

	mock, err := BuildMock(files, parsed.Interface, name, pkg, importPath)
	if err != nil {
		return err
	}

	if mock.SourcePkg != "" && mock.SourcePath == "" {
		return fmt.Errorf("importing %s: %w", mock.SourcePkg, ErrNoModule)
	}

	code, err := Generate(mock)
	if err != nil {
		return err
	}

	return WriteGeneratedCode(code, parsed.Dir, toFileName(name), pkg, getEnv, fileSys, out)
}

// cliArgs defines the command-line arguments of forkgen.
type cliArgs struct {
	Interface string `arg:"positional,required" help:"interface to mock, declared in this directory"`
	Name      string `arg:"--name"              help:"name of the mock type (defaults to <Interface>Mock)"`
	Pkg       string `arg:"--pkg"               help:"package of the generated file (defaults to $GOPACKAGE)"`
	Source    string `arg:"--source"            help:"parse only this file instead of the whole directory"`
	Dir       string `arg:"--dir"               help:"directory holding the interface and the output" default:"."`
}

func parseArgs(args []string) (cliArgs, error) {
	var parsed cliArgs

	parser, err := arg.NewParser(arg.Config{Program: "forkgen"}, &parsed)
	if err != nil {
		return cliArgs{}, fmt.Errorf("failed to create argument parser: %w", err)
	}

	if len(args) > 0 {
		args = args[1:]
	}

	err = parser.Parse(args)
	if err != nil {
		return cliArgs{}, fmt.Errorf("failed to parse arguments: %w", err)
	}

	return parsed, nil
}

// ImportPath derives the import path of dir from the nearest enclosing go.mod.
func ImportPath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	for root := abs; ; root = filepath.Dir(root) {
		module, err := modulePath(filepath.Join(root, "go.mod"))
		if err == nil {
			rel, err := filepath.Rel(root, abs)
			if err != nil {
				return "", fmt.Errorf("failed to relate %s to %s: %w", abs, root, err)
			}

			if rel == "." {
				return module, nil
			}

			return module + "/" + filepath.ToSlash(rel), nil
		}

		if filepath.Dir(root) == root {
			return "", fmt.Errorf("%w above %s", ErrNoModule, abs)
		}
	}
}

func modulePath(goMod string) (string, error) {
	file, err := os.Open(goMod) //nolint:gosec // path is built from the working directory
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", goMod, err)
	}

	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if module, ok := strings.CutPrefix(line, "module "); ok {
			return strings.Trim(strings.TrimSpace(module), `"`), nil
		}
	}

	return "", fmt.Errorf("%w: no module line in %s", ErrNoModule, goMod)
}

func toFileName(name string) string {
	var builder strings.Builder

	for index, r := range name {
		if index > 0 && r >= 'A' && r <= 'Z' {
			builder.WriteByte('_')
		}

		builder.WriteRune(r)
	}

	return strings.ToLower(builder.String())
}

// WriteGeneratedCode writes code to dir/generated_<name>.go, or generated_<name>_test.go when
// generating into a test package or from a test file.
func WriteGeneratedCode(
	code string, dir string, name string, pkg string, getEnv func(string) string, fileSys FileSystem, out io.Writer,
) error {
	const generatedFilePermissions = 0o600

	filename := "generated_" + name + ".go"
	if strings.HasSuffix(pkg, "_test") || strings.HasSuffix(getEnv("GOFILE"), "_test.go") {
		filename = "generated_" + name + "_test.go"
	}

	reordered, err := reorder.Source(code)
	if err != nil {
		_, _ = fmt.Fprintf(out, "Warning: failed to reorder %s: %v\n", filename, err)

		reordered = code
	}

	err = fileSys.WriteFile(filepath.Join(dir, filename), []byte(reordered), generatedFilePermissions)
	if err != nil {
		return fmt.Errorf("error writing %s: %w", filename, err)
	}

	_, _ = fmt.Fprintf(out, "%s written successfully.\n", filename)

	return nil
}

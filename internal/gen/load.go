package gen

import (
	"errors"
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"github.com/dave/dst"
	"github.com/dave/dst/decorator"
)

// Exported variables.
var (
	ErrNoSources = errors.New("no go files found")
)

// LoadDir parses the .go files of dir, including tests. When source is non-empty only that file
// is parsed. Syntax only: nothing is type checked.
func LoadDir(dir, source string) ([]*dst.File, error) {
	paths, err := sourcePaths(dir, source)
	if err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	dec := decorator.NewDecorator(fset)
	files := make([]*dst.File, 0, len(paths))

	for _, path := range paths {
		file, err := dec.ParseFile(path, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		files = append(files, file)
	}

	return files, nil
}

func sourcePaths(dir, source string) ([]string, error) {
	if source != "" {
		if filepath.IsAbs(source) {
			return []string{source}, nil
		}

		return []string{filepath.Join(dir, source)}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	paths := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasPrefix(name, "generated_") {
			continue
		}

		paths = append(paths, filepath.Join(dir, name))
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSources, dir)
	}

	return paths, nil
}

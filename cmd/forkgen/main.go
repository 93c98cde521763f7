// forkgen generates forktest mocks for Go interfaces.
// Install it with `go install github.com/toejough/forktest/cmd/forkgen@latest` and add a
// `//go:generate forkgen <Interface>` comment next to the interface or in a test file. The mock
// is named <Interface>Mock unless `--name` says otherwise, and is written to
// generated_<name>.go in the package running go generate (generated_<name>_test.go for tests).
package main

import (
	"fmt"
	"os"

	"github.com/toejough/forktest/internal/gen"
)

func main() {
	err := gen.Run(os.Args, os.Getenv, &realFileSystem{}, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// realFileSystem writes through the os package.
type realFileSystem struct{}

func (fs *realFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	err := os.WriteFile(name, data, perm)
	if err != nil {
		return fmt.Errorf("failed to write file %s: %w", name, err)
	}

	return nil
}

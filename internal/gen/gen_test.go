package gen_test

import (
	"bytes"
	"errors"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/toejough/forktest/internal/gen"
	"pgregory.net/rapid"
)

const storeSource = `package store

import (
	"context"
	"io"
	"strings"
)

type Item struct{ Key string }

type Closer interface {
	Close() error
}

type Store interface {
	Closer
	error
	Get(ctx context.Context, key string) (Item, error)
	Put(Item)
	Load(io.Reader, int) (n int, err error)
	Tags(prefix string, tags ...string) []string
	Ping()
}

type NotAnInterface struct{}

var _ = strings.TrimSpace
`

// TestRun_GeneratesMock verifies the generated mock covers every method, including embedded
// ones, imports only what its signatures use, and parses.
func TestRun_GeneratesMock(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	dir := writeModule(t, map[string]string{"store.go": storeSource})
	fs := &memFS{}

	var out bytes.Buffer

	err := gen.Run([]string{"forkgen", "Store", "--dir", dir}, env("store", "store.go"), fs, &out)
	g.Expect(err).ToNot(HaveOccurred())

	path := filepath.Join(dir, "generated_store_mock.go")
	g.Expect(out.String()).To(ContainSubstring("generated_store_mock.go written successfully."))

	code := fs.file(path)
	g.Expect(code).To(ContainSubstring("// Code generated by forkgen. DO NOT EDIT."))
	g.Expect(code).To(ContainSubstring(`StoreMockFuncGet = "Store.Get"`))
	g.Expect(code).To(ContainSubstring(`StoreMockFuncClose = "Store.Close"`))
	g.Expect(code).To(ContainSubstring(`StoreMockFuncError = "Store.Error"`))
	g.Expect(code).To(ContainSubstring("func (m *StoreMock) Get(ctx context.Context, key string) (Item, error)"))
	g.Expect(code).To(ContainSubstring("func (m *StoreMock) Load(p0 io.Reader, p1 int) (int, error)"))
	g.Expect(code).To(ContainSubstring("func (m *StoreMock) Tags(prefix string, tags ...string) []string"))
	g.Expect(code).To(ContainSubstring("StoreMockFuncTags, prefix, tags)"))
	g.Expect(code).To(ContainSubstring("forktest.Returned[error](returned[1])"))
	g.Expect(code).To(ContainSubstring(`"io"`))
	g.Expect(code).ToNot(ContainSubstring(`"strings"`))
	g.Expect(code).To(ContainSubstring("_ Store = (*StoreMock)(nil)"))

	_, err = parser.ParseFile(token.NewFileSet(), path, code, 0)
	g.Expect(err).ToNot(HaveOccurred())
}

// TestRun_TestPackage verifies a mock generated into the external test package qualifies the
// interface's types and imports its package.
func TestRun_TestPackage(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	dir := writeModule(t, map[string]string{"store.go": storeSource})
	fs := &memFS{}

	err := gen.Run(
		[]string{"forkgen", "Store", "--dir", dir, "--name", "FakeStore"},
		env("store_test", "store_test.go"), fs, &bytes.Buffer{},
	)
	g.Expect(err).ToNot(HaveOccurred())

	code := fs.file(filepath.Join(dir, "generated_fake_store_test.go"))
	g.Expect(code).To(ContainSubstring("package store_test"))
	g.Expect(code).To(ContainSubstring(`"example.com/app/store"`))
	g.Expect(code).To(ContainSubstring("(store.Item, error)"))
	g.Expect(code).To(ContainSubstring("Put(p0 store.Item)"))
	g.Expect(code).To(ContainSubstring("_ store.Store = (*FakeStore)(nil)"))
}

// TestRun_Errors verifies misuse is reported rather than producing a file.
func TestRun_Errors(t *testing.T) {
	t.Parallel()

	dir := writeModule(t, map[string]string{"store.go": storeSource})

	for _, test := range []struct {
		name string
		args []string
		pkg  string
		want error
	}{
		{"missing interface", []string{"forkgen", "Nope", "--dir", dir}, "store", gen.ErrInterfaceAbsent},
		{"not an interface", []string{"forkgen", "NotAnInterface", "--dir", dir}, "store", gen.ErrNotInterface},
		{"no package", []string{"forkgen", "Store", "--dir", dir}, "", gen.ErrNoPackage},
		{"empty dir", []string{"forkgen", "Store", "--dir", t.TempDir()}, "store", gen.ErrNoSources},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			fs := &memFS{}
			err := gen.Run(test.args, env(test.pkg, ""), fs, &bytes.Buffer{})
			g.Expect(errors.Is(err, test.want)).To(BeTrue(), "got %v", err)
			g.Expect(fs.files).To(BeEmpty())
		})
	}

	g := NewWithT(t)
	err := gen.Run([]string{"forkgen"}, env("store", ""), &memFS{}, &bytes.Buffer{})
	g.Expect(err).To(HaveOccurred())
}

// TestRun_Source verifies --source restricts parsing to one file.
func TestRun_Source(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	dir := writeModule(t, map[string]string{
		"a.go": "package store\n\ntype A interface{ Do() }\n",
		"b.go": "package store\n\ntype B interface{ Do() }\n",
	})

	err := gen.Run([]string{"forkgen", "B", "--dir", dir, "--source", "a.go"}, env("store", ""), &memFS{}, &bytes.Buffer{})
	g.Expect(errors.Is(err, gen.ErrInterfaceAbsent)).To(BeTrue())

	fs := &memFS{}
	err = gen.Run([]string{"forkgen", "A", "--dir", dir, "--source", "a.go"}, env("store", ""), fs, &bytes.Buffer{})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(fs.file(filepath.Join(dir, "generated_a_mock.go"))).To(ContainSubstring("func (m *AMock) Do()"))
}

// TestImportPath verifies import paths are derived from the enclosing go.mod.
func TestImportPath(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	dir := writeModule(t, map[string]string{"store.go": storeSource})
	nested := filepath.Join(dir, "inner", "deep")
	g.Expect(os.MkdirAll(nested, 0o750)).To(Succeed())

	path, err := gen.ImportPath(dir)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(path).To(Equal("example.com/app/store"))

	path, err = gen.ImportPath(nested)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(path).To(Equal("example.com/app/store/inner/deep"))
}

// TestRun_MethodArity checks, for interfaces with arbitrary parameter and result counts, that the
// mock compiles syntactically and unpacks exactly as many results as the method declares.
func TestRun_MethodArity(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		params := rapid.IntRange(0, 4).Draw(rt, "params")
		results := rapid.IntRange(0, 4).Draw(rt, "results")

		signature := "M(" + strings.TrimSuffix(strings.Repeat("int, ", params), ", ") + ")"
		if results > 0 {
			signature += " (" + strings.TrimSuffix(strings.Repeat("string, ", results), ", ") + ")"
		}

		source := "package p\n\ntype I interface{ " + signature + " }\n"

		files, err := gen.LoadDir(writeFiles(t, map[string]string{"p.go": source}), "")
		if err != nil {
			rt.Fatalf("load: %v", err)
		}

		mock, err := gen.BuildMock(files, "I", "IMock", "p", "")
		if err != nil {
			rt.Fatalf("build: %v", err)
		}

		if got := len(mock.Methods[0].Params); got != params {
			rt.Fatalf("params = %d, want %d", got, params)
		}

		code, err := gen.Generate(mock)
		if err != nil {
			rt.Fatalf("generate: %v", err)
		}

		if results > 1 && !strings.Contains(code, "returned[") {
			rt.Fatalf("results not unpacked:\n%s", code)
		}

		if results > 1 && strings.Contains(code, "returned["+string(rune('0'+results))+"]") {
			rt.Fatalf("unpacked too many results:\n%s", code)
		}
	})
}

type memFS struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (fs *memFS) WriteFile(name string, data []byte, _ os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.files == nil {
		fs.files = make(map[string][]byte)
	}

	fs.files[name] = data

	return nil
}

func (fs *memFS) file(name string) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return string(fs.files[name])
}

func env(pkg, file string) func(string) string {
	return func(key string) string {
		switch key {
		case "GOPACKAGE":
			return pkg
		case "GOFILE":
			return file
		default:
			return ""
		}
	}
}

// writeModule lays out example.com/app with sources in its store directory.
func writeModule(t *testing.T, sources map[string]string) string {
	t.Helper()

	root := t.TempDir()

	err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/app\n\ngo 1.25\n"), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(root, "store")
	if err := os.Mkdir(dir, 0o750); err != nil {
		t.Fatal(err)
	}

	for name, source := range sources {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(source), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	return dir
}

func writeFiles(t *testing.T, sources map[string]string) string {
	t.Helper()

	dir, err := os.MkdirTemp(t.TempDir(), "src")
	if err != nil {
		t.Fatal(err)
	}

	for name, source := range sources {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(source), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	return dir
}

package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		in               string
		internal, service bool
	}{
		{"flowcore/internal/blob", true, true},
		{"flowcore/internal", true, true},
		{"flowcore/pkg/fcs", false, false},
		{"go.uber.org/zap/internal/bufferpool", false, false},
		{"github.com/aws/aws-sdk-go-v2/service/s3", false, true},
		{"modernc.org/sqlite", false, true},
		{"github.com/spf13/cobra", false, true},
		{"github.com/cockroachdb/errors", false, false},
		{"github.com/hashicorp/golang-lru/v2", false, false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.internal {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.internal)
		}
		if got := ServiceImportForbidden(c.in); got != c.service {
			t.Fatalf("ServiceImportForbidden(%q)=%v want %v", c.in, got, c.service)
		}
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"flowcore/internal/blob\"\n)\nvar _ = fmt.Sprint\nvar _ blob.Store\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"github.com/spf13/cobra\"\nvar _ cobra.Command\n")
	writeFile(t, dir, "notes.txt", "import \"flowcore/internal/x\"")
	if err := os.Mkdir(filepath.Join(dir, "sub.go"), 0o700); err != nil {
		t.Fatal(err)
	}

	viols, err := directImportViolations(dir, ServiceImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "flowcore/internal/blob (in a.go)" {
		t.Fatalf("violations = %v", viols)
	}

	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")

	writeFile(t, dir, "broken.go", "package tmp\nimport (")
	if _, err := directImportViolations(dir, ServiceImportForbidden); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "absent"), ServiceImportForbidden); err == nil {
		t.Fatal("expected read error")
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\n\nflowcore/pkg/matrix\nmodernc.org/sqlite\n"), nil
	}
	viols, _, err := transitiveDependencyViolations(".", ServiceImportForbidden)
	if err != nil {
		t.Fatal(err)
	}
	if len(viols) != 1 || viols[0] != "modernc.org/sqlite" {
		t.Fatalf("violations = %v", viols)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	if _, out, err := transitiveDependencyViolations(".", ServiceImportForbidden); err == nil || string(out) != "boom" {
		t.Fatalf("err=%v out=%q", err, out)
	}
}

type recorder struct{ msg string }

func (r *recorder) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolations(t *testing.T) {
	var r recorder
	failIfViolations(&r, "direct imports", "reason", nil)
	if r.msg != "" {
		t.Fatalf("unexpected failure %q", r.msg)
	}
	failIfViolations(&r, "direct imports", "pkg stays lean", []string{"a", "b"})
	if !strings.Contains(r.msg, "pkg stays lean") || !strings.Contains(r.msg, "a\nb") {
		t.Fatalf("message = %q", r.msg)
	}
}

//go:build cgo

package obfuscate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zskulcsar/codeobfuscator/internal/logging"
)

func writeProjectFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func newTestLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: logging.ErrorLevel, Output: os.Stderr})
}

func TestOrchestratorRunRenamesAcrossFiles(t *testing.T) {
	root := writeProjectFiles(t, map[string]string{
		"widget.py": `class Widget:
    def render(self):
        return 1
`,
		"main.py": `from widget import Widget

w = Widget()
w.render()
`,
	})

	rel, err := DiscoverPythonFiles(root, nil)
	if err != nil {
		t.Fatalf("DiscoverPythonFiles: %v", err)
	}
	if len(rel) != 2 {
		t.Fatalf("expected 2 files discovered, got %d: %v", len(rel), rel)
	}

	orch := NewOrchestrator(newTestLogger(), rel, nil, "")
	result, err := orch.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Summary.PythonFilesDiscovered != 2 {
		t.Errorf("PythonFilesDiscovered = %d, want 2", result.Summary.PythonFilesDiscovered)
	}
	if result.Summary.PythonFilesProcessed == 0 {
		t.Error("expected at least one file to be rewritten")
	}

	token := result.RenameMap.Mapping["Widget"]
	if token == "" {
		t.Fatal("Widget should have been mapped")
	}

	mainOut, err := os.ReadFile(filepath.Join(root, "main.py"))
	if err != nil {
		t.Fatalf("read main.py: %v", err)
	}
	widgetOut, err := os.ReadFile(filepath.Join(root, "widget.py"))
	if err != nil {
		t.Fatalf("read widget.py: %v", err)
	}

	if strings.Contains(string(mainOut), "Widget") {
		t.Errorf("main.py should have Widget renamed consistently:\n%s", mainOut)
	}
	if strings.Contains(string(widgetOut), "Widget") {
		t.Errorf("widget.py should have Widget renamed consistently:\n%s", widgetOut)
	}
	if !strings.Contains(string(mainOut), token) {
		t.Errorf("main.py should reference the new token %q:\n%s", token, mainOut)
	}
}

func TestOrchestratorRunIsDeterministicAcrossRuns(t *testing.T) {
	files := map[string]string{
		"a.py": `class Alpha:
    def go(self):
        return 1
`,
		"b.py": `from a import Alpha

Alpha().go()
`,
	}

	root1 := writeProjectFiles(t, files)
	rel1, _ := DiscoverPythonFiles(root1, nil)
	r1, err := NewOrchestrator(newTestLogger(), rel1, nil, "").Run(context.Background(), root1)
	if err != nil {
		t.Fatalf("Run 1: %v", err)
	}

	root2 := writeProjectFiles(t, files)
	rel2, _ := DiscoverPythonFiles(root2, nil)
	r2, err := NewOrchestrator(newTestLogger(), rel2, nil, "").Run(context.Background(), root2)
	if err != nil {
		t.Fatalf("Run 2: %v", err)
	}

	for name, token := range r1.RenameMap.Mapping {
		if r2.RenameMap.Mapping[name] != token {
			t.Errorf("non-deterministic token for %q: %q vs %q", name, token, r2.RenameMap.Mapping[name])
		}
	}
}

func TestOrchestratorTokenExhaustionIsFatal(t *testing.T) {
	var b strings.Builder
	b.WriteString("class Widget:\n")
	for i := 0; i < 70; i++ {
		b.WriteString("    def m")
		b.WriteString(padNumber(i))
		b.WriteString("(self): pass\n")
	}
	root := writeProjectFiles(t, map[string]string{"big.py": b.String()})
	rel, _ := DiscoverPythonFiles(root, nil)

	orch := NewOrchestrator(newTestLogger(), rel, nil, "x")
	_, err := orch.Run(context.Background(), root)
	if err == nil {
		t.Fatal("expected a fatal token-exhaustion error with a single-letter alphabet and many distinct symbols")
	}
}

func TestOrchestratorOverridesForceExternalClassification(t *testing.T) {
	root := writeProjectFiles(t, map[string]string{
		"main.py": `class Widget:
    def render(self):
        return 1
`,
	})
	rel, _ := DiscoverPythonFiles(root, nil)

	orch := NewOrchestrator(newTestLogger(), rel, nil, "")
	orch.SetOverrides([]string{"Widget"}, nil)
	result, err := orch.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, mapped := result.RenameMap.Mapping["Widget"]; mapped {
		t.Error("Widget should be excluded from the rename map once forced external")
	}
}

func padNumber(i int) string {
	digits := "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	return string(digits[i/10]) + string(digits[i%10])
}

func TestDiscoverPythonFilesSkipsExcludedDirs(t *testing.T) {
	root := writeProjectFiles(t, map[string]string{
		"keep.py":         "x = 1\n",
		"vendor/skip.py":  "y = 2\n",
		"nested/keep2.py": "z = 3\n",
	})

	rel, err := DiscoverPythonFiles(root, []string{"vendor"})
	if err != nil {
		t.Fatalf("DiscoverPythonFiles: %v", err)
	}

	for _, r := range rel {
		if strings.HasPrefix(r, "vendor") {
			t.Errorf("excluded dir leaked into results: %v", rel)
		}
	}
	if len(rel) != 2 {
		t.Errorf("expected 2 files, got %d: %v", len(rel), rel)
	}
}

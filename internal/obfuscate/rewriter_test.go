//go:build cgo

package obfuscate

import (
	"context"
	"strings"
	"testing"

	"github.com/zskulcsar/codeobfuscator/internal/pysource"
)

// rewriteSource indexes and rewrites source as a single-file project, for
// tests that only need the end-to-end index -> map -> rewrite pipeline.
func rewriteSource(t *testing.T, file, source string, alphabet string) (*RewriteResult, *ProjectIndex, *RenameMap) {
	t.Helper()
	return rewriteSourceInProject(t, []string{file}, file, source, alphabet)
}

// rewriteSourceInProject is rewriteSource with an explicit project file list,
// for scenarios that need another file present to classify an import root as
// project-local.
func rewriteSourceInProject(t *testing.T, relPaths []string, file, source string, alphabet string) (*RewriteResult, *ProjectIndex, *RenameMap) {
	t.Helper()
	parser := pysource.NewParser()
	tree, err := parser.Parse(context.Background(), []byte(source))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	defer tree.Close()

	indexer := NewIndexer(relPaths, nil)
	idx := newProjectIndex()
	indexer.IndexFile(idx, file, tree.RootNode(), []byte(source))
	indexer.Finalize(idx)

	rmap, err := BuildRenameMap(idx, alphabet)
	if err != nil {
		t.Fatalf("BuildRenameMap error: %v", err)
	}

	rw := NewRewriter()
	result, err := rw.Rewrite(context.Background(), file, []byte(source), idx, rmap)
	if err != nil {
		t.Fatalf("Rewrite error: %v", err)
	}
	return result, idx, rmap
}

func TestRewriteRenamesProjectClassConsistently(t *testing.T) {
	src := `class Widget:
    def render(self):
        return 1


instance = Widget()
instance.render()
`
	result, _, rmap := rewriteSource(t, "main.py", src, "")
	if !result.Changed {
		t.Fatal("expected the source to change")
	}

	token := rmap.Mapping["Widget"]
	if token == "" {
		t.Fatal("Widget should have been assigned a token")
	}
	out := string(result.Source)
	if strings.Contains(out, "Widget") {
		t.Errorf("original class name should not survive in output:\n%s", out)
	}
	if strings.Count(out, token) < 2 {
		t.Errorf("expected every Widget occurrence renamed consistently to %q:\n%s", token, out)
	}
}

func TestRewriteLeavesExternalFromImportUntouched(t *testing.T) {
	// Only plain "import x" statements get normalized with a minted alias;
	// "from x import y" never does, so an external member import with no
	// project symbols anywhere in the file should produce byte-identical
	// output.
	src := `from external_pkg import thing

thing()
`
	result, _, _ := rewriteSource(t, "main.py", src, "")
	if string(result.Source) != src {
		t.Errorf("external-only source should be unchanged:\ngot:\n%s\nwant:\n%s", result.Source, src)
	}
}

func TestRewriteAliasesPlainImport(t *testing.T) {
	src := `import os

print(os.getcwd())
`
	result, _, _ := rewriteSource(t, "main.py", src, "")
	if !result.Changed {
		t.Fatal("expected the plain import to be aliased")
	}
	out := string(result.Source)
	if !strings.Contains(out, "import os as ") {
		t.Errorf("expected 'import os as <alias>', got:\n%s", out)
	}
	if strings.Contains(out, "print(os.getcwd())") {
		t.Errorf("the later bare reference to os should be redirected to the alias:\n%s", out)
	}
}

func TestRewriteLeavesAlreadyAliasedImportUntouched(t *testing.T) {
	src := `import os as myos

print(myos.getcwd())
`
	result, _, _ := rewriteSource(t, "main.py", src, "")
	if result.Changed {
		t.Errorf("an already-aliased plain import has nothing to rename, got:\n%s", result.Source)
	}
}

func TestRewriteImportFromRenamesExposedBinding(t *testing.T) {
	src := `from mypkg import Widget as bw

bw()
`
	result, _, rmap := rewriteSourceInProject(t, []string{"main.py", "mypkg.py"}, "main.py", src, "")
	out := string(result.Source)
	token := rmap.Mapping["bw"]
	if token == "" {
		t.Fatal("the exposed asname 'bw' should be the rename candidate, not the source member 'Widget'")
	}
	if strings.Contains(out, "bw") {
		t.Errorf("every occurrence of bw, including the declaration site, should be renamed:\n%s", out)
	}
	if !strings.Contains(out, "Widget") {
		t.Errorf("the source-side member name must stay exactly as the upstream module spells it:\n%s", out)
	}
}

func TestRewriteDunderNamesNeverRenamed(t *testing.T) {
	src := `class Widget:
    def __init__(self):
        self.__init__()
`
	result, _, _ := rewriteSource(t, "main.py", src, "")
	out := string(result.Source)
	if !strings.Contains(out, "__init__") {
		t.Errorf("dunder method name must never be renamed:\n%s", out)
	}
}

func TestRewriteGetattrOnProjectAttributeRenamed(t *testing.T) {
	src := `class Widget:
    def load(self):
        self.cache = 1


def use(w):
    return getattr(w, "cache")
`
	result, _, rmap := rewriteSource(t, "main.py", src, "")
	token := rmap.Mapping["cache"]
	if token == "" {
		t.Fatal("cache should have been assigned a token")
	}
	out := string(result.Source)
	if !strings.Contains(out, `"`+token+`"`) {
		t.Errorf("dynamic-name literal should be rewritten to the mapped token:\n%s", out)
	}
	if result.DynamicNameRewrites != 1 {
		t.Errorf("DynamicNameRewrites = %d, want 1", result.DynamicNameRewrites)
	}
}

func TestRewriteGetattrOnExternalReceiverLeftUntouchedWithWarning(t *testing.T) {
	// "cache" must be a real, mapped project attribute (via Widget) for the
	// dynamic-name machinery to even consider it; the getattr call itself
	// targets an unrelated external receiver, which must block the rewrite.
	src := `class Widget:
    def load(self):
        self.cache = 1


import requests


def use():
    return getattr(requests, "cache")
`
	result, _, _ := rewriteSource(t, "main.py", src, "")
	out := string(result.Source)
	if !strings.Contains(out, `"cache"`) {
		t.Errorf("literal on an external receiver must stay untouched:\n%s", out)
	}
	found := false
	for _, w := range result.Warnings {
		if w.Code == "dynamic_name_uncertain" {
			found = true
		}
	}
	if !found {
		t.Error("expected a dynamic_name_uncertain warning")
	}
}

func TestRewriteKeywordArgumentsRenamedOnlyForProjectCallables(t *testing.T) {
	src := `class Widget:
    def __init__(self, cache=None):
        self.cache = cache


def build(cache=None):
    return cache


Widget(cache=1)
build(cache=1)
dict(cache=1)
`
	result, _, rmap := rewriteSource(t, "main.py", src, "")
	cacheToken := rmap.Mapping["cache"]
	widgetToken := rmap.Mapping["Widget"]
	buildToken := rmap.Mapping["build"]
	out := string(result.Source)

	if !strings.Contains(out, widgetToken+"("+cacheToken+"=1)") {
		t.Errorf("Widget's keyword argument should be renamed:\n%s", out)
	}
	if !strings.Contains(out, buildToken+"("+cacheToken+"=1)") {
		t.Errorf("build's keyword argument should be renamed:\n%s", out)
	}
	if !strings.Contains(out, "dict(cache=1)") {
		t.Errorf("dict(...) is a builtin call; its keyword must never be renamed:\n%s", out)
	}
}

func TestRewriteAttributeOnUnresolvedReceiverWarns(t *testing.T) {
	src := `class Widget:
    def load(self):
        self.cache = 1


def use(w):
    return w.cache
`
	result, _, rmap := rewriteSource(t, "main.py", src, "")
	cacheToken := rmap.Mapping["cache"]
	wToken := rmap.Mapping["w"]
	out := string(result.Source)
	if !strings.Contains(out, wToken+"."+cacheToken) {
		t.Errorf("an unresolved receiver's known project attribute should still be renamed leniently:\n%s", out)
	}
	found := false
	for _, w := range result.Warnings {
		if w.Code == "ambiguous_ownership" {
			found = true
		}
	}
	if !found {
		t.Error("expected an ambiguous_ownership warning for the lenient rename")
	}
}

func TestRewriteUnchangedFileReparsesWithoutValidationError(t *testing.T) {
	src := "1 + 2\n"
	result, _, _ := rewriteSource(t, "main.py", src, "")
	if result.Changed {
		t.Errorf("a file with no identifiers at all should be unchanged, got:\n%s", result.Source)
	}
}

func TestApplyEditsSkipsOverlapping(t *testing.T) {
	src := []byte("abcdef")
	edits := []edit{
		{start: 0, end: 2, replacement: "XX"},
		{start: 1, end: 3, replacement: "YY"}, // overlaps the first, must be dropped
		{start: 3, end: 4, replacement: "Z"},
	}
	out := applyEdits(src, edits)
	if string(out) != "XXcZef" {
		t.Errorf("applyEdits() = %q, want %q", out, "XXcZef")
	}
}

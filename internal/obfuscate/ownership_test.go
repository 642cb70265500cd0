//go:build cgo

package obfuscate

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/zskulcsar/codeobfuscator/internal/pysource"
)

func parseForTest(t *testing.T, source string) (*sitter.Node, []byte) {
	t.Helper()
	tree, err := pysource.NewParser().Parse(context.Background(), []byte(source))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	t.Cleanup(tree.Close)
	return tree.RootNode(), []byte(source)
}

func firstNodeOfType(n *sitter.Node, nodeType string) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == nodeType {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstNodeOfType(n.Child(i), nodeType); found != nil {
			return found
		}
	}
	return nil
}

func newTestRenameMap(mapped []string) *RenameMap {
	rmap := &RenameMap{
		Mapping:               make(map[string]string),
		Provenance:            make(map[string]Provenance),
		LikelyLocalAttributes: make(map[string]bool),
	}
	for i, name := range mapped {
		rmap.Mapping[name] = bijectiveBaseN("abcdefghijklmnopqrstuvwxyz", i)
		rmap.Provenance[name] = ProvenanceResolvedLocal
	}
	return rmap
}

func TestResolverNameOwnershipDefaults(t *testing.T) {
	idx := newProjectIndex()
	idx.ExternalNames["requests"] = true
	rmap := newTestRenameMap(nil)
	r := NewResolver(idx, rmap)

	if got := r.NameOwnership("requests"); got != OwnershipExternal {
		t.Errorf("NameOwnership(requests) = %v, want external", got)
	}
	if got := r.NameOwnership("self"); got != OwnershipProjectLocal {
		t.Errorf("NameOwnership(self) = %v, want project_local", got)
	}
	if got := r.NameOwnership("mystery"); got != OwnershipExternal {
		t.Errorf("NameOwnership(mystery) = %v, want external (no evidence defaults external)", got)
	}
}

func TestResolverNameOwnershipTrackedScope(t *testing.T) {
	idx := newProjectIndex()
	rmap := newTestRenameMap(nil)
	r := NewResolver(idx, rmap)

	r.Record("widget", OwnershipProjectLocal)
	if got := r.NameOwnership("widget"); got != OwnershipProjectLocal {
		t.Errorf("tracked binding should win: got %v", got)
	}

	r.PushScope()
	r.Record("widget", OwnershipUnresolved)
	if got := r.NameOwnership("widget"); got != OwnershipUnresolved {
		t.Errorf("inner scope binding should shadow outer: got %v", got)
	}
	r.PopScope()
	if got := r.NameOwnership("widget"); got != OwnershipProjectLocal {
		t.Errorf("outer binding should resurface after PopScope: got %v", got)
	}
}

func TestResolverImportAliasTarget(t *testing.T) {
	idx := newProjectIndex()
	rmap := newTestRenameMap(nil)
	r := NewResolver(idx, rmap)

	// Ownership is queried against the pre-rename exposed module name, since
	// that's still what a receiver's text reads as while the walker is
	// traversing — the "as <alias>" substitution is only a pending edit.
	r.AddImportAlias("mypkg", "q", false)
	if got := r.NameOwnership("mypkg"); got != OwnershipProjectLocal {
		t.Errorf("plain-imported project module should resolve project_local, got %v", got)
	}

	r.AddImportAlias("numpy", "z", true)
	if got := r.NameOwnership("numpy"); got != OwnershipExternal {
		t.Errorf("plain-imported external module should resolve external, got %v", got)
	}
}

func TestResolverBaseOwnershipNonIdentifier(t *testing.T) {
	idx := newProjectIndex()
	rmap := newTestRenameMap(nil)
	r := NewResolver(idx, rmap)

	root, src := parseForTest(t, "a.b.c\n")
	call := firstNodeOfType(root, "attribute")
	if call == nil {
		t.Fatal("expected to find an attribute node")
	}
	obj := call.ChildByFieldName("object")
	text := func(n *sitter.Node) string { return n.Content(src) }

	// obj here is itself "a.b", an attribute, not a bare identifier.
	if got := r.BaseOwnership(obj, text); got != OwnershipUnresolved {
		t.Errorf("non-identifier base should default unresolved, got %v", got)
	}
}

func TestResolverShouldRenameCallKeywords(t *testing.T) {
	idx := newProjectIndex()
	idx.ProjectClassNames["Widget"] = true
	idx.ExternalNames["requests"] = true
	rmap := newTestRenameMap([]string{"helper"})
	r := NewResolver(idx, rmap)

	root, src := parseForTest(t, "Widget(name=1)\nrequests(name=1)\nhelper(name=1)\nmystery(name=1)\n")
	calls := collectAllCalls(root)
	if len(calls) != 4 {
		t.Fatalf("expected 4 call nodes, got %d", len(calls))
	}
	textFn := func(n *sitter.Node) string { return n.Content(src) }

	if !r.ShouldRenameCallKeywords(calls[0].ChildByFieldName("function"), textFn) {
		t.Error("Widget(...) keywords should be renameable (project class)")
	}
	if r.ShouldRenameCallKeywords(calls[1].ChildByFieldName("function"), textFn) {
		t.Error("requests(...) keywords should never be renamed (external)")
	}
	if !r.ShouldRenameCallKeywords(calls[2].ChildByFieldName("function"), textFn) {
		t.Error("helper(...) keywords should be renameable (mapped project symbol)")
	}
	if r.ShouldRenameCallKeywords(calls[3].ChildByFieldName("function"), textFn) {
		t.Error("mystery(...) keywords should not be renamed (unmapped, not a project class)")
	}
}

func collectAllCalls(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "call" {
			out = append(out, n)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(n)
	return out
}

func TestResolverAnnotationOwnership(t *testing.T) {
	idx := newProjectIndex()
	idx.ProjectClassNames["Widget"] = true
	rmap := newTestRenameMap(nil)
	r := NewResolver(idx, rmap)

	root, src := parseForTest(t, "def f(a: Widget, b: int): pass\n")
	text := func(n *sitter.Node) string { return n.Content(src) }

	params := firstNodeOfType(root, "parameters")
	var widgetAnn, intAnn *sitter.Node
	for i := 0; i < int(params.ChildCount()); i++ {
		p := params.Child(i)
		if p == nil || p.Type() != "typed_parameter" {
			continue
		}
		name := firstIdentifierChild(p)
		if name == nil {
			continue
		}
		if text(name) == "a" {
			widgetAnn = p.ChildByFieldName("type")
		}
		if text(name) == "b" {
			intAnn = p.ChildByFieldName("type")
		}
	}

	if o, ok := r.AnnotationOwnership(widgetAnn, text); !ok || o != OwnershipProjectLocal {
		t.Errorf("Widget annotation should resolve project_local, got %v, ok=%v", o, ok)
	}
	if o, ok := r.AnnotationOwnership(intAnn, text); !ok || o != OwnershipExternal {
		t.Errorf("int annotation should resolve external, got %v, ok=%v", o, ok)
	}
	if _, ok := r.AnnotationOwnership(nil, text); ok {
		t.Error("nil annotation should report ok=false")
	}
}

func TestResolverInferIterOwnershipSortedPropagates(t *testing.T) {
	idx := newProjectIndex()
	rmap := newTestRenameMap(nil)
	r := NewResolver(idx, rmap)
	r.Record("items", OwnershipProjectLocal)

	root, src := parseForTest(t, "sorted(items)\n")
	call := firstNodeOfType(root, "call")
	text := func(n *sitter.Node) string { return n.Content(src) }

	o, ok := r.InferIterOwnership(call, text)
	if !ok || o != OwnershipProjectLocal {
		t.Errorf("sorted(items) should propagate items's ownership, got %v, ok=%v", o, ok)
	}
}

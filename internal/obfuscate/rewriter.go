//go:build cgo

package obfuscate

import (
	"context"
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/zskulcsar/codeobfuscator/internal/pysource"
)

// RewriteWarning records a non-fatal event the Rewriter wants surfaced:
// ambiguous ownership it resolved leniently, or a dynamic-name call it
// chose not to touch.
type RewriteWarning struct {
	File    string
	Span    Span
	Code    string // "ambiguous_ownership" | "dynamic_name_uncertain"
	Message string
}

// RewriteResult is the per-file output of Rewrite.
type RewriteResult struct {
	File                string
	Source              []byte
	Changed             bool
	SymbolsRenamed      int
	LikelyLocalRenames  int
	DynamicNameRewrites int
	Warnings            []RewriteWarning
}

// RewriteError reports that a file could not be safely rewritten: either the
// original source failed to parse (caught earlier, by the Orchestrator) or
// the rewritten bytes failed to re-parse cleanly, the Rewriter's own
// validation gate.
type RewriteError struct {
	File string
	Err  error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewrite %s: %v", e.File, e.Err)
}

func (e *RewriteError) Unwrap() error { return e.Err }

type edit struct {
	start, end  uint32
	replacement string
}

// Rewriter applies a RenameMap to one file's syntax tree, producing new
// source bytes. It never mutates the parsed tree; it collects a list of
// byte-range edits against the original, always-unmutated node spans, then
// applies them in one pass ordered by start offset. This is a deliberate
// departure from a rebuild-the-tree-bottom-up approach: because every edit
// is anchored to the original source's byte ranges, nothing needs a second,
// already-renamed bookkeeping set mirroring the first.
type Rewriter struct {
	parser *pysource.Parser
}

// NewRewriter creates a Rewriter backed by a fresh Parser, used to validate
// that the rewritten output re-parses cleanly.
func NewRewriter() *Rewriter {
	return &Rewriter{parser: pysource.NewParser()}
}

// Rewrite transforms one file's source according to rmap and idx, returning
// the new bytes plus per-file counters. It re-parses the result and returns
// a *RewriteError if that re-parse fails, the Rewriter's validation gate.
func (rw *Rewriter) Rewrite(ctx context.Context, file string, source []byte, idx *ProjectIndex, rmap *RenameMap) (*RewriteResult, error) {
	tree, err := rw.parser.Parse(ctx, source)
	if err != nil {
		return nil, &RewriteError{File: file, Err: err}
	}
	defer tree.Close()

	w := &walker{
		file:     file,
		source:   source,
		idx:      idx,
		rmap:     rmap,
		resolver: NewResolver(idx, rmap),
	}
	w.walk(tree.RootNode())

	out := applyEdits(source, w.edits)

	result := &RewriteResult{
		File:                file,
		Source:              out,
		Changed:             len(w.edits) > 0,
		SymbolsRenamed:      w.symbolsRenamed,
		LikelyLocalRenames:  w.likelyLocalRenames,
		DynamicNameRewrites: w.dynamicRewrites,
		Warnings:            w.warnings,
	}

	if result.Changed {
		validated, err := rw.parser.Parse(ctx, out)
		if err != nil {
			return nil, &RewriteError{File: file, Err: err}
		}
		validated.Close()
	}

	return result, nil
}

func applyEdits(source []byte, edits []edit) []byte {
	if len(edits) == 0 {
		return source
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	out := make([]byte, 0, len(source))
	var cursor uint32
	for _, e := range edits {
		if e.start < cursor {
			// Overlapping edits should never occur; keep the earlier one.
			continue
		}
		out = append(out, source[cursor:e.start]...)
		out = append(out, []byte(e.replacement)...)
		cursor = e.end
	}
	out = append(out, source[cursor:]...)
	return out
}

// walker drives the single top-down, source-order traversal that both
// renames declarations/references unconditionally and gates attribute,
// keyword-argument, and dynamic-name rewrites on the Resolver's verdict.
type walker struct {
	file   string
	source []byte
	idx    *ProjectIndex
	rmap   *RenameMap

	resolver *Resolver
	edits    []edit

	aliasCounter int

	symbolsRenamed     int
	likelyLocalRenames int
	dynamicRewrites    int
	warnings           []RewriteWarning
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.source)
}

func (w *walker) addEdit(n *sitter.Node, replacement string) {
	w.edits = append(w.edits, edit{start: n.StartByte(), end: n.EndByte(), replacement: replacement})
}

func (w *walker) insertAfter(n *sitter.Node, text string) {
	w.edits = append(w.edits, edit{start: n.EndByte(), end: n.EndByte(), replacement: text})
}

func (w *walker) warn(n *sitter.Node, code, message string) {
	w.warnings = append(w.warnings, RewriteWarning{File: w.file, Span: spanOf(n), Code: code, Message: message})
}

// walk dispatches on node type. Every case that doesn't fully consume its
// subtree falls through to recursing into all children, so the large
// majority of nodes (parameter declarations, default values, annotations,
// decorators, interpolation expressions, del targets, …) get the plain
// identifier rule applied wherever a bare name turns up, with no dedicated
// case of their own.
func (w *walker) walk(n *sitter.Node) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "identifier":
		w.handleIdentifier(n)
		return

	case "global_statement", "nonlocal_statement":
		// Python's AST stores these as raw name strings, never visited by a
		// Name-rewriting transform; match that by leaving them untouched.
		return

	case "import_statement":
		w.handleImport(n)
		return

	case "import_from_statement":
		w.handleImportFrom(n)
		return

	case "class_definition":
		w.handleClassDef(n)
		return

	case "function_definition", "lambda":
		w.handleFunctionLike(n)
		return

	case "assignment":
		w.handleAssignment(n)
		// fall through to generic recursion below

	case "for_statement":
		w.handleForStatement(n)
		return

	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		w.handleComprehension(n)
		return

	case "attribute":
		w.handleAttribute(n)
		return

	case "call":
		w.handleCall(n)
		return
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

// handleIdentifier applies the unconditional, ownership-blind rename rule:
// every bare-name reference or declaration whose text has a file-local
// import alias is redirected to that alias (external modules included);
// otherwise a name in the RenameMap gets its token, except names the
// Indexer classified external.
func (w *walker) handleIdentifier(n *sitter.Node) {
	name := w.text(n)

	if alias, ok := w.resolver.importAliases[name]; ok {
		if alias != name {
			w.addEdit(n, alias)
		}
		return
	}
	if w.idx.ExternalNames[name] {
		return
	}
	token, ok := w.rmap.Mapping[name]
	if !ok || token == name {
		return
	}
	w.addEdit(n, token)
	w.symbolsRenamed++
	if w.rmap.Provenance[name] == ProvenanceLikelyLocal {
		w.likelyLocalRenames++
	}
}

// handleImport fully consumes every child itself and never falls through to
// generic recursion. A plain, unaliased module path gets a freshly minted
// "as <alias>" annotation and every later bare reference to it in this file
// is redirected to that alias. An already-aliased "import x as y" is left
// completely untouched — neither the module path nor y is ever a rename
// candidate, so nothing downstream needs to agree on a substitution for it.
func (w *walker) handleImport(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if child.Type() == "dotted_name" {
			w.handlePlainImportTarget(child)
		}
	}
}

// handlePlainImportTarget mints (or reuses) a file-local alias for a bare,
// unaliased "import name" target and emits the "as <alias>" insertion.
func (w *walker) handlePlainImportTarget(dotted *sitter.Node) {
	if firstIdentifierChild(dotted) == nil {
		return
	}
	// only single-component module names (no dots) are eligible; a dotted
	// submodule import is left untouched, matching the original's
	// "if '.' in alias.name: return node" guard.
	for i := 0; i < int(dotted.ChildCount()); i++ {
		if dotted.Child(i).Type() == "." {
			return
		}
	}
	exposed := w.text(dotted)
	if _, already := w.resolver.importAliases[exposed]; already {
		return
	}
	isExternal := w.idx.ExternalNames[exposed]
	alias := w.nextImportAlias()
	w.resolver.AddImportAlias(exposed, alias, isExternal)
	w.insertAfter(dotted, " as "+alias)
}

// nextImportAlias allocates a fresh bijective-base-26 alias from the
// walker's own counter, which starts at zero for each file and advances on
// every candidate it tries, so repeated plain imports in the same file
// never collide with each other or with any token the Rename Mapper
// already allocated.
func (w *walker) nextImportAlias() string {
	blocked := blockedTokenNames()
	for name := range w.idx.ExternalNames {
		blocked[name] = true
	}
	for name, token := range w.rmap.Mapping {
		blocked[name] = true
		blocked[token] = true
	}
	for {
		candidate := bijectiveBaseN("abcdefghijklmnopqrstuvwxyz", w.aliasCounter)
		w.aliasCounter++
		if !blocked[candidate] {
			return candidate
		}
	}
}

func (w *walker) handleImportFrom(n *sitter.Node) {
	// "from module import a, b as c, *" — the module path is never touched.
	// The exposed local name is always whichever identifier the Indexer
	// used as the binding (the asname when present, the bare member
	// otherwise), so that identifier is what gets renamed both here and at
	// every later reference; the source-side member name in an aliased
	// import stays exactly as the upstream module spells it.
	moduleNode := n.ChildByFieldName("module_name")
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || child == moduleNode {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			if id := firstIdentifierChild(child); id != nil {
				w.handleIdentifier(id)
			}
		case "aliased_import":
			if alias := child.ChildByFieldName("alias"); alias != nil {
				w.handleIdentifier(alias)
			}
		}
	}
}

func (w *walker) handleClassDef(n *sitter.Node) {
	name := n.ChildByFieldName("name")
	if name != nil {
		w.handleIdentifier(name)
	}
	if sup := n.ChildByFieldName("superclasses"); sup != nil {
		w.walk(sup)
	}
	w.resolver.PushScope()
	defer w.resolver.PopScope()
	if body := n.ChildByFieldName("body"); body != nil {
		w.walk(body)
	}
}

func (w *walker) handleFunctionLike(n *sitter.Node) {
	if n.Type() == "function_definition" {
		if name := n.ChildByFieldName("name"); name != nil {
			w.handleIdentifier(name)
		}
	}

	params := n.ChildByFieldName("parameters")

	w.resolver.PushScope()
	defer w.resolver.PopScope()

	w.seedParameterOwnership(params)

	if rt := n.ChildByFieldName("return_type"); rt != nil {
		w.walk(rt)
	}
	if params != nil {
		w.walk(params)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		w.walk(body)
	}
}

// seedParameterOwnership binds each parameter's ownership before the body is
// visited: an annotated parameter takes its verdict from the annotation; an
// unannotated "self"/"cls" is project_local; everything else starts
// unresolved rather than external, since a parameter is, by construction,
// a name the function body legitimately owns a binding for.
func (w *walker) seedParameterOwnership(params *sitter.Node) {
	if params == nil {
		return
	}
	for i := 0; i < int(params.ChildCount()); i++ {
		p := params.Child(i)
		if p == nil {
			continue
		}
		switch p.Type() {
		case "identifier":
			w.seedOneParam(p, nil)
		case "typed_parameter":
			id := firstIdentifierChild(p)
			w.seedOneParam(id, p.ChildByFieldName("type"))
		case "default_parameter":
			name := p.ChildByFieldName("name")
			w.seedOneParam(name, nil)
		case "typed_default_parameter":
			name := p.ChildByFieldName("name")
			w.seedOneParam(name, p.ChildByFieldName("type"))
		case "list_splat_pattern", "dictionary_splat_pattern":
			w.seedOneParam(firstIdentifierChild(p), nil)
		}
	}
}

func (w *walker) seedOneParam(id, annotation *sitter.Node) {
	if id == nil {
		return
	}
	name := w.text(id)
	if name == "self" || name == "cls" {
		w.resolver.Record(name, OwnershipProjectLocal)
		return
	}
	if annotation != nil {
		if o, ok := w.resolver.AnnotationOwnership(annotation, w.text); ok {
			w.resolver.Record(name, o)
			return
		}
	}
	w.resolver.Record(name, OwnershipUnresolved)
}

func (w *walker) handleAssignment(n *sitter.Node) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	annotation := n.ChildByFieldName("type")

	var ownership Ownership
	var known bool
	if right != nil {
		ownership, known = w.resolver.InferValueOwnership(right, w.text)
	}
	if !known && annotation != nil {
		ownership, known = w.resolver.AnnotationOwnership(annotation, w.text)
	}
	if known {
		w.seedAssignmentTargets(left, ownership)
	} else if left != nil && left.Type() == "identifier" {
		// No evidence at all: still give the target its own binding so a
		// later reference doesn't silently inherit an unrelated outer-scope
		// verdict for the same name.
		w.resolver.Record(w.text(left), OwnershipUnresolved)
	}
}

func (w *walker) seedAssignmentTargets(target *sitter.Node, ownership Ownership) {
	if target == nil {
		return
	}
	switch target.Type() {
	case "identifier":
		w.resolver.Record(w.text(target), ownership)
	case "pattern_list", "tuple_pattern", "list_pattern":
		for i := 0; i < int(target.ChildCount()); i++ {
			c := target.Child(i)
			if c == nil {
				continue
			}
			w.seedAssignmentTargets(c, ownership)
		}
	case "attribute":
		// self.x = <owned value>: tracked separately as a project attribute
		// by the Indexer already; the resolver doesn't need a scope binding
		// for it, only the bare-name propagation case does.
	}
}

func (w *walker) handleForStatement(n *sitter.Node) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if right != nil {
		if o, ok := w.resolver.InferIterOwnership(right, w.text); ok {
			w.seedAssignmentTargets(left, o)
		} else if left != nil && left.Type() == "identifier" {
			w.resolver.Record(w.text(left), OwnershipUnresolved)
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

func (w *walker) handleComprehension(n *sitter.Node) {
	w.resolver.PushScope()
	defer w.resolver.PopScope()

	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || c.Type() != "for_in_clause" {
			continue
		}
		left := c.ChildByFieldName("left")
		right := c.ChildByFieldName("right")
		if right != nil {
			if o, ok := w.resolver.InferIterOwnership(right, w.text); ok {
				w.seedAssignmentTargets(left, o)
			} else if left != nil && left.Type() == "identifier" {
				w.resolver.Record(w.text(left), OwnershipUnresolved)
			}
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

// handleAttribute renames a mapped, non-external `.attribute` member only
// when the receiver resolves project_local or unresolved (never external).
// project_local renames any mapped member silently; unresolved renames only
// a member that is a project attribute or class name, and records a
// warning, matching
// spec's "rename leniently with a warning" policy for likely-local evidence.
func (w *walker) handleAttribute(n *sitter.Node) {
	obj := n.ChildByFieldName("object")
	attr := n.ChildByFieldName("attribute")

	w.walk(obj)

	if attr == nil {
		return
	}
	name := w.text(attr)
	token, inMap := w.rmap.Mapping[name]
	if !inMap || token == name {
		return
	}
	if w.idx.ExternalNames[name] {
		return
	}

	owner := w.resolver.BaseOwnership(obj, w.text)
	switch owner {
	case OwnershipExternal:
		return
	case OwnershipUnresolved:
		if !w.idx.ProjectAttributes[name] && !w.idx.ProjectClassNames[name] {
			return
		}
		w.addEdit(attr, token)
		w.symbolsRenamed++
		w.likelyLocalRenames++
		w.warn(n, "ambiguous_ownership", fmt.Sprintf("renamed attribute %q on a receiver of unresolved ownership", name))
	default: // project_local
		w.addEdit(attr, token)
		w.symbolsRenamed++
	}
}

func (w *walker) handleCall(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	w.walk(fn)

	args := n.ChildByFieldName("arguments")
	if args == nil {
		return
	}

	var dynamicObjectArg, dynamicNameArg *sitter.Node
	if fn != nil && fn.Type() == "identifier" && dynamicCallNames[w.text(fn)] {
		positional := callPositionalArgs(n)
		if len(positional) >= 2 {
			dynamicObjectArg, dynamicNameArg = positional[0], positional[1]
		}
	}

	shouldRenameKeywords := w.resolver.ShouldRenameCallKeywords(fn, w.text)

	for i := 0; i < int(args.ChildCount()); i++ {
		c := args.Child(i)
		switch {
		case c == nil:
			continue
		case c == dynamicNameArg:
			w.handleDynamicNameArg(n, dynamicObjectArg, c)
		case c.Type() == "keyword_argument":
			w.handleKeywordArgument(c, shouldRenameKeywords)
		default:
			w.walk(c)
		}
	}
}

func (w *walker) handleKeywordArgument(n *sitter.Node, shouldRename bool) {
	name := n.ChildByFieldName("name")
	value := n.ChildByFieldName("value")
	if name != nil && shouldRename {
		nameText := w.text(name)
		if token, ok := w.rmap.Mapping[nameText]; ok && token != nameText && !w.idx.ExternalNames[nameText] {
			w.addEdit(name, token)
			w.symbolsRenamed++
		}
	}
	w.walk(value)
}

// handleDynamicNameArg rewrites the literal name argument of a getattr/
// setattr/hasattr call when the literal is in the RenameMap and the
// receiver resolves project_local, or resolves unresolved and the literal
// names a project attribute; an argument that is not a single plain literal
// (a name, an expression, an interpolated string) is left to the ordinary
// recursive walk (so any expression inside it still gets its own references
// renamed).
func (w *walker) handleDynamicNameArg(call, objectArg, nameArg *sitter.Node) {
	if nameArg.Type() != "string" {
		w.walk(nameArg)
		return
	}
	content, contentNode, ok := stringContentNode(nameArg, w.source)
	if !ok {
		w.walk(nameArg)
		return
	}

	token, inMap := w.rmap.Mapping[content]
	if !inMap || token == content || w.idx.ExternalNames[content] {
		return
	}

	owner := w.resolver.BaseOwnership(objectArg, w.text)
	switch owner {
	case OwnershipExternal:
		w.warn(call, "dynamic_name_uncertain", fmt.Sprintf("left dynamic-name call untouched: %q resolves external", content))
	case OwnershipUnresolved:
		if !w.idx.ProjectAttributes[content] {
			w.warn(call, "dynamic_name_uncertain", fmt.Sprintf("left dynamic-name call untouched: receiver ownership unresolved for %q", content))
			return
		}
		w.addEdit(contentNode, token)
		w.dynamicRewrites++
		w.likelyLocalRenames++
		w.warn(call, "ambiguous_ownership", fmt.Sprintf("rewrote dynamic-name literal %q on a receiver of unresolved ownership", content))
	default:
		w.addEdit(contentNode, token)
		w.dynamicRewrites++
	}
}

// stringContentNode is stringLiteralValue plus the string_content node
// itself, so the caller can emit a byte-range edit over just the literal's
// inner text without disturbing its quotes or prefix.
func stringContentNode(n *sitter.Node, source []byte) (string, *sitter.Node, bool) {
	var contentNode *sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "string_content":
			if contentNode != nil {
				return "", nil, false
			}
			contentNode = c
		case "interpolation", "escape_interpolation":
			return "", nil, false
		}
	}
	if contentNode == nil {
		return "", nil, false
	}
	return contentNode.Content(source), contentNode, true
}

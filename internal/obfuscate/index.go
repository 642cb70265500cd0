//go:build cgo

package obfuscate

import (
	sitter "github.com/smacker/go-tree-sitter"
)

func spanOf(n *sitter.Node) Span {
	start, end := n.StartPoint(), n.EndPoint()
	return Span{
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}

// Indexer walks a project's parsed Python files and builds a ProjectIndex.
type Indexer struct {
	projectRootModules map[string]bool
}

// NewIndexer creates an Indexer seeded with the project's top-level module
// names, derived from each file's project-relative path.
func NewIndexer(projectRelPaths []string, srcLayoutDirs []string) *Indexer {
	srcLayout := make(map[string]bool, len(srcLayoutDirs))
	for _, d := range srcLayoutDirs {
		srcLayout[d] = true
	}

	roots := make(map[string]bool)
	for _, rel := range projectRelPaths {
		parts := splitModulePath(rel)
		if len(parts) == 0 {
			continue
		}
		roots[parts[0]] = true
		if srcLayout[parts[0]] && len(parts) >= 2 {
			roots[parts[1]] = true
		}
	}

	return &Indexer{projectRootModules: roots}
}

// Finalize removes external names from rename_candidates, enforcing the
// invariant that a name in external_names is never a rename candidate.
func (ix *Indexer) Finalize(idx *ProjectIndex) {
	for name := range idx.ExternalNames {
		delete(idx.RenameCandidates, name)
	}
}

// IndexFile walks one parsed file's root node and folds its declarations,
// imports, and dynamic sites into idx.
func (ix *Indexer) IndexFile(idx *ProjectIndex, file string, root *sitter.Node, source []byte) {
	w := &fileWalker{
		idx:     idx,
		file:    file,
		source:  source,
		indexer: ix,
		scope:   []string{"module"},
	}
	w.walk(root)
}

type fileWalker struct {
	idx     *ProjectIndex
	file    string
	source  []byte
	indexer *Indexer
	scope   []string
	inClass []bool
}

func (w *fileWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.source)
}

func (w *fileWalker) scopePath() string {
	out := w.scope[0]
	for _, s := range w.scope[1:] {
		out += "." + s
	}
	return out
}

func (w *fileWalker) curInClass() bool {
	if len(w.inClass) == 0 {
		return false
	}
	return w.inClass[len(w.inClass)-1]
}

func (w *fileWalker) addCandidate(name string) {
	if !isRenameable(name) {
		return
	}
	w.idx.RenameCandidates[name] = true
}

func (w *fileWalker) addProjectAttribute(name string) {
	if IsDunder(name) {
		return
	}
	w.idx.ProjectAttributes[name] = true
}

func (w *fileWalker) declare(name string, kind SymbolKind, span Span) {
	key := DeclKey{File: w.file, ScopePath: w.scopePath(), Name: name}
	w.idx.Declarations[key] = Declaration{Kind: kind, Span: span}
}

// walk performs a pre-order traversal, dispatching on node type the way the
// original ast.NodeVisitor subclass dispatches on Python AST node classes.
func (w *fileWalker) walk(n *sitter.Node) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "import_statement":
		w.visitImport(n)
		return
	case "import_from_statement":
		w.visitImportFrom(n)
		return
	case "class_definition":
		w.visitClassDef(n)
		return
	case "function_definition":
		w.visitFunctionDef(n)
		return
	case "call":
		w.visitCall(n)
	case "assignment":
		w.visitAssignment(n)
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

func (w *fileWalker) visitImport(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			name := w.text(child)
			root := rootModuleName(name)
			isProject := w.indexer.projectRootModules[root]
			binding := ImportBinding{
				File: w.file, LocalName: root, SourceModule: name,
				ImportedMember: "*module*", IsProjectModule: isProject, Span: spanOf(child),
			}
			w.idx.Imports[w.file] = append(w.idx.Imports[w.file], binding)
			if !isProject {
				w.idx.ExternalNames[root] = true
			}
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			module := w.text(nameNode)
			alias := w.text(aliasNode)
			root := rootModuleName(module)
			isProject := w.indexer.projectRootModules[root]
			binding := ImportBinding{
				File: w.file, LocalName: alias, SourceModule: module,
				ImportedMember: "*module*", IsProjectModule: isProject, Span: spanOf(child),
			}
			w.idx.Imports[w.file] = append(w.idx.Imports[w.file], binding)
			if !isProject {
				w.idx.ExternalNames[alias] = true
			}
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

func (w *fileWalker) visitImportFrom(n *sitter.Node) {
	moduleNode := n.ChildByFieldName("module_name")
	module := w.text(moduleNode)
	root := rootModuleName(module)
	isProject := w.indexer.projectRootModules[root]

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "wildcard_import":
			continue
		case "dotted_name":
			if child == moduleNode {
				continue
			}
			name := w.text(child)
			w.bindImportedMember(module, root, isProject, name, name, spanOf(child))
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			member := w.text(nameNode)
			alias := w.text(aliasNode)
			w.bindImportedMember(module, root, isProject, member, alias, spanOf(child))
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

func (w *fileWalker) bindImportedMember(module, root string, isProject bool, member, localName string, span Span) {
	binding := ImportBinding{
		File: w.file, LocalName: localName, SourceModule: module,
		ImportedMember: member, IsProjectModule: isProject, Span: span,
	}
	w.idx.Imports[w.file] = append(w.idx.Imports[w.file], binding)
	if isProject {
		w.addCandidate(localName)
	} else {
		w.idx.ExternalNames[localName] = true
	}
}

func (w *fileWalker) visitClassDef(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	name := w.text(nameNode)
	w.idx.ProjectClassNames[name] = true
	w.addCandidate(name)
	w.declare(name, KindClass, spanOf(n))

	w.scope = append(w.scope, name)
	w.inClass = append(w.inClass, true)

	body := n.ChildByFieldName("body")
	if body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			w.walk(body.Child(i))
		}
	}

	w.inClass = w.inClass[:len(w.inClass)-1]
	w.scope = w.scope[:len(w.scope)-1]
}

func (w *fileWalker) visitFunctionDef(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	name := w.text(nameNode)
	w.addCandidate(name)

	inClass := w.curInClass()
	kind := KindFunction
	if inClass {
		kind = KindMethod
		if !IsDunder(name) {
			w.addProjectAttribute(name)
		}
	}
	w.declare(name, kind, spanOf(n))

	w.scope = append(w.scope, name)
	w.inClass = append(w.inClass, false)

	params := n.ChildByFieldName("parameters")
	w.collectParameters(params)

	body := n.ChildByFieldName("body")
	if body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			w.walk(body.Child(i))
		}
	}

	w.inClass = w.inClass[:len(w.inClass)-1]
	w.scope = w.scope[:len(w.scope)-1]
}

func (w *fileWalker) collectParameters(params *sitter.Node) {
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
			name := w.text(p)
			w.addCandidate(name)
			w.declare(name, KindParameter, spanOf(p))
		case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
			if id := firstIdentifierChild(p); id != nil {
				name := w.text(id)
				w.addCandidate(name)
				w.declare(name, KindParameter, spanOf(id))
			}
		case "default_parameter", "typed_default_parameter":
			nameNode := p.ChildByFieldName("name")
			if nameNode != nil {
				name := w.text(nameNode)
				w.addCandidate(name)
				w.declare(name, KindParameter, spanOf(nameNode))
			}
		}
	}
}

func (w *fileWalker) visitAssignment(n *sitter.Node) {
	left := n.ChildByFieldName("left")
	w.collectAssignmentTarget(left)
}

func (w *fileWalker) collectAssignmentTarget(target *sitter.Node) {
	if target == nil {
		return
	}
	switch target.Type() {
	case "identifier":
		name := w.text(target)
		if w.curInClass() && !IsDunder(name) {
			w.addProjectAttribute(name)
		}
		w.addCandidate(name)
		w.declare(name, KindLocal, spanOf(target))
	case "attribute":
		obj := target.ChildByFieldName("object")
		attr := target.ChildByFieldName("attribute")
		if obj != nil && obj.Type() == "identifier" && w.text(obj) == "self" && attr != nil {
			name := w.text(attr)
			if !IsDunder(name) {
				w.idx.ProjectAttributes[name] = true
				classes := w.currentClassNames()
				for _, c := range classes {
					if w.idx.AttributeOwners[name] == nil {
						w.idx.AttributeOwners[name] = make(map[string]bool)
					}
					w.idx.AttributeOwners[name][c] = true
				}
			}
		}
	case "pattern_list", "tuple_pattern", "list_pattern":
		for i := 0; i < int(target.ChildCount()); i++ {
			w.collectAssignmentTarget(target.Child(i))
		}
	}
}

func (w *fileWalker) currentClassNames() []string {
	var out []string
	for i, inClass := range w.inClass {
		if inClass {
			out = append(out, w.scope[i+1])
		}
	}
	return out
}

func (w *fileWalker) visitCall(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		return
	}
	callName := w.text(fn)
	if !dynamicCallNames[callName] {
		return
	}

	argsNode := n.ChildByFieldName("arguments")
	if argsNode == nil {
		return
	}

	var positional []*sitter.Node
	for i := 0; i < int(argsNode.ChildCount()); i++ {
		c := argsNode.Child(i)
		if c == nil {
			continue
		}
		if isPositionalArgNode(c.Type()) {
			positional = append(positional, c)
		}
	}
	if len(positional) < 2 {
		return
	}

	objectArg, nameArg := positional[0], positional[1]

	kind := "get"
	switch callName {
	case "setattr":
		kind = "set"
	case "hasattr":
		kind = "has"
	}

	site := DynamicSite{File: w.file, Span: spanOf(n), Kind: kind, NameArgSpan: spanOf(nameArg)}
	if objectArg.Type() == "identifier" {
		site.ReceiverIsName = true
		site.ReceiverName = w.text(objectArg)
	}
	if nameArg.Type() == "string" {
		if literal, ok := stringLiteralValue(nameArg, w.source); ok {
			site.HasNameLiteral = true
			site.NameLiteral = literal

			if site.ReceiverIsName && site.ReceiverName != "self" && !w.idx.ExternalNames[site.ReceiverName] {
				if w.idx.ProjectAttributes[literal] {
					w.idx.LikelyLocalDynamicAttributes[literal] = true
				}
			}
		}
	}

	w.idx.DynamicSites = append(w.idx.DynamicSites, site)
}

func isPositionalArgNode(t string) bool {
	switch t {
	case "keyword_argument", "comment", ",", "(", ")":
		return false
	default:
		return true
	}
}

func firstIdentifierChild(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && c.Type() == "identifier" {
			return c
		}
	}
	return nil
}

func rootModuleName(dotted string) string {
	for i := 0; i < len(dotted); i++ {
		if dotted[i] == '.' {
			return dotted[:i]
		}
	}
	return dotted
}

func splitModulePath(relPath string) []string {
	var parts []string
	cur := ""
	clean := relPath
	if len(clean) >= 3 && clean[len(clean)-3:] == ".py" {
		clean = clean[:len(clean)-3]
	}
	for i := 0; i < len(clean); i++ {
		c := clean[i]
		if c == '/' || c == '\\' {
			if cur != "" {
				parts = append(parts, cur)
				cur = ""
			}
			continue
		}
		cur += string(c)
	}
	if cur != "" {
		parts = append(parts, cur)
	}
	if len(parts) > 0 && parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// stringLiteralValue extracts the literal text of a simple (non-interpolated,
// non-concatenated) Python string node, if it contains exactly one
// string_content child and no interpolation.
func stringLiteralValue(n *sitter.Node, source []byte) (string, bool) {
	var content string
	found := false
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "string_content":
			if found {
				return "", false
			}
			content = c.Content(source)
			found = true
		case "interpolation", "escape_interpolation":
			return "", false
		}
	}
	if !found {
		return "", false
	}
	return content, true
}

//go:build cgo

package obfuscate

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Resolver infers, for each usage site the Rewriter visits, whether the
// receiver or bare name in question is project-owned. It maintains a stack
// of per-scope name->Ownership bindings seeded from parameter annotations
// and refined by flow-insensitive propagation over assignments, loop and
// comprehension targets, and annotated locals, in source order, exactly as
// the Rewriter walks the file.
//
// Unlike the declaration-site renaming the Rewriter applies unconditionally
// to bare identifiers, Resolver verdicts gate only attribute access, keyword
// argument renaming, and dynamic-name string rewriting — the sites where the
// same attribute name could plausibly belong to an external receiver.
type Resolver struct {
	idx    *ProjectIndex
	rmap   *RenameMap
	scopes []map[string]Ownership

	// importAliases maps an original module-exposed name to the file-local
	// alias the Rewriter minted for it (plain "import x" normalization).
	// externalAliases marks which of those aliases stand for an external
	// module, so attribute access through the alias is never renamed.
	importAliases   map[string]string
	externalAliases map[string]bool
}

// NewResolver creates a Resolver bound to idx and rmap, seeded with one
// empty module-level scope.
func NewResolver(idx *ProjectIndex, rmap *RenameMap) *Resolver {
	return &Resolver{
		idx:             idx,
		rmap:            rmap,
		scopes:          []map[string]Ownership{make(map[string]Ownership)},
		importAliases:   make(map[string]string),
		externalAliases: make(map[string]bool),
	}
}

// PushScope opens a new function/class/lambda-local ownership scope.
func (r *Resolver) PushScope() {
	r.scopes = append(r.scopes, make(map[string]Ownership))
}

// PopScope closes the innermost scope, discarding its bindings.
func (r *Resolver) PopScope() {
	if len(r.scopes) > 1 {
		r.scopes = r.scopes[:len(r.scopes)-1]
	}
}

func (r *Resolver) set(name string, o Ownership) {
	r.scopes[len(r.scopes)-1][name] = o
}

func (r *Resolver) get(name string) (Ownership, bool) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if o, ok := r.scopes[i][name]; ok {
			return o, true
		}
	}
	return "", false
}

// Record binds name to ownership o in the current (innermost) scope.
func (r *Resolver) Record(name string, o Ownership) {
	r.set(name, o)
}

// AddImportAlias registers the file-local alias the Rewriter minted for a
// plain "import <name>" statement. isExternal marks name as coming from
// outside the project, so attribute access through alias stays untouched.
func (r *Resolver) AddImportAlias(name, alias string, isExternal bool) {
	r.importAliases[name] = alias
	if isExternal {
		r.externalAliases[alias] = true
	}
}

// NameOwnership classifies a bare identifier reference. A tracked scope
// binding wins; next, a name the mapper tagged likely-local-by-dynamic-usage
// resolves as unresolved (the lenient, rename-with-warning bucket); next, a
// name recorded as external at index time, or the alias of an external
// import, resolves external; a name that IS a project import alias, or the
// literal receiver name "self", resolves project_local. With no evidence at
// all the verdict is external — a bare, unannotated, untracked name is
// conservatively assumed to belong to someone else.
func (r *Resolver) NameOwnership(name string) Ownership {
	if o, ok := r.get(name); ok {
		return o
	}
	if r.rmap.LikelyLocalAttributes[name] {
		return OwnershipUnresolved
	}
	if r.idx.ExternalNames[name] {
		return OwnershipExternal
	}
	if r.externalAliases[name] {
		return OwnershipExternal
	}
	if r.isProjectImportName(name) {
		return OwnershipProjectLocal
	}
	if name == "self" || name == "cls" {
		return OwnershipProjectLocal
	}
	return OwnershipExternal
}

// isProjectImportName reports whether name is the original module name of a
// plain "import name" statement the Rewriter already aliased, and that
// module was classified project-local at index time. A reference to name
// still reads "mypkg" in the original source at the point the Resolver sees
// it — the alias substitution is a pending edit, not yet applied — so
// ownership has to key off the pre-rename exposed name, not the minted
// alias text.
func (r *Resolver) isProjectImportName(name string) bool {
	alias, ok := r.importAliases[name]
	if !ok {
		return false
	}
	return !r.externalAliases[alias]
}

// BaseOwnership classifies the receiver of an attribute access or dynamic
// call. A bare-identifier base defers to NameOwnership; any other base
// expression (a call, subscript, chained attribute, …) defaults to
// unresolved, the lenient bucket, matching the evidence the resolver can
// gather statically without a type system.
func (r *Resolver) BaseOwnership(base *sitter.Node, text func(*sitter.Node) string) Ownership {
	if base != nil && base.Type() == "identifier" {
		return r.NameOwnership(text(base))
	}
	return OwnershipUnresolved
}

// ShouldRenameCallKeywords reports whether a call's keyword arguments are
// eligible for renaming: only when the callee resolves to a project class,
// function, or method — never for a builtin or an externally-imported
// callable, even when a keyword name happens to collide with a project
// field name.
func (r *Resolver) ShouldRenameCallKeywords(fn *sitter.Node, text func(*sitter.Node) string) bool {
	if fn == nil {
		return false
	}
	switch fn.Type() {
	case "identifier":
		name := text(fn)
		if r.idx.ExternalNames[name] || r.externalAliases[name] {
			return false
		}
		if r.idx.ProjectClassNames[name] {
			return true
		}
		_, inMap := r.rmap.Mapping[name]
		return inMap
	case "attribute":
		attr := fn.ChildByFieldName("attribute")
		if attr == nil {
			return false
		}
		name := text(attr)
		return r.idx.ProjectAttributes[name] || r.idx.ProjectClassNames[name]
	default:
		return false
	}
}

// InferValueOwnership infers ownership for an assignment's right-hand-side
// expression, for propagation onto the assignment target(s). Returns an
// empty Ownership with ok=false when no rule applies; the caller then
// decides the target's binding (the Rewriter's handleAssignment tries the
// annotation next, and failing that binds a bare-name target to
// unresolved).
func (r *Resolver) InferValueOwnership(value *sitter.Node, text func(*sitter.Node) string) (Ownership, bool) {
	if value == nil {
		return "", false
	}
	switch value.Type() {
	case "identifier":
		name := text(value)
		if o, ok := r.get(name); ok {
			return o, true
		}
		if r.rmap.LikelyLocalAttributes[name] {
			return OwnershipUnresolved, true
		}
		return "", false
	case "call":
		return r.inferCallOwnership(value, text)
	default:
		return "", false
	}
}

func (r *Resolver) inferCallOwnership(call *sitter.Node, text func(*sitter.Node) string) (Ownership, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", false
	}
	args := callPositionalArgs(call)

	switch fn.Type() {
	case "identifier":
		name := text(fn)
		if r.idx.ExternalNames[name] || r.externalAliases[name] {
			return OwnershipExternal, true
		}
		switch name {
		case "enumerate":
			if len(args) > 0 {
				return r.InferIterOwnership(args[0], text)
			}
			return "", false
		case "sorted", "list", "tuple", "set", "reversed":
			if len(args) > 0 {
				return r.InferIterOwnership(args[0], text)
			}
			return "", false
		}
		if r.idx.ProjectClassNames[name] {
			return OwnershipProjectLocal, true
		}
		if _, inMap := r.rmap.Mapping[name]; inMap {
			return OwnershipUnresolved, true
		}
		return "", false
	case "attribute":
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		owner := r.BaseOwnership(obj, text)
		if owner == OwnershipExternal {
			return OwnershipExternal, true
		}
		if attr != nil && r.idx.ProjectClassNames[text(attr)] {
			return OwnershipProjectLocal, true
		}
		if attr != nil && (owner == OwnershipProjectLocal || owner == OwnershipUnresolved) && r.idx.ProjectAttributes[text(attr)] {
			return OwnershipUnresolved, true
		}
		return "", false
	default:
		return "", false
	}
}

// InferIterOwnership infers element ownership for a for-loop/comprehension
// iterable: sorted(…)/slicing/enumerate propagate from their source
// sequence; attribute access on a project container propagates leniently.
func (r *Resolver) InferIterOwnership(iterable *sitter.Node, text func(*sitter.Node) string) (Ownership, bool) {
	if iterable == nil {
		return "", false
	}
	switch iterable.Type() {
	case "identifier":
		if o, ok := r.get(text(iterable)); ok {
			return o, true
		}
		return "", false
	case "call":
		return r.inferCallOwnership(iterable, text)
	case "subscript":
		return r.InferIterOwnership(iterable.ChildByFieldName("value"), text)
	case "attribute":
		obj := iterable.ChildByFieldName("object")
		attr := iterable.ChildByFieldName("attribute")
		owner := r.BaseOwnership(obj, text)
		if owner == OwnershipExternal {
			return OwnershipExternal, true
		}
		if attr != nil && (r.idx.ProjectAttributes[text(attr)] || r.idx.ProjectClassNames[text(attr)]) {
			return OwnershipUnresolved, true
		}
		return owner, true
	default:
		return "", false
	}
}

// AnnotationOwnership inspects a type annotation for project-class names,
// returning project_local when one is found, external when the annotation
// names something else (a type was given but it isn't a project class), and
// ok=false when the annotation carries no identifier evidence at all (a
// forward-reference string literal, an ellipsis, …).
func (r *Resolver) AnnotationOwnership(annotation *sitter.Node, text func(*sitter.Node) string) (Ownership, bool) {
	if annotation == nil {
		return "", false
	}
	names := collectIdentifierNames(annotation, text)
	if len(names) == 0 {
		return "", false
	}
	for _, n := range names {
		if r.idx.ProjectClassNames[n] {
			return OwnershipProjectLocal, true
		}
	}
	return OwnershipExternal, true
}

func collectIdentifierNames(n *sitter.Node, text func(*sitter.Node) string) []string {
	var out []string
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "identifier" {
			out = append(out, text(n))
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(n)
	return out
}

func callPositionalArgs(call *sitter.Node) []*sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(args.ChildCount()); i++ {
		c := args.Child(i)
		if c == nil || !isPositionalArgNode(c.Type()) {
			continue
		}
		out = append(out, c)
	}
	return out
}

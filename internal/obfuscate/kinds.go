// Package obfuscate implements the project-wide identifier obfuscation
// engine: a two-pass indexer/rewriter pair that renames project-owned Python
// symbols to opaque tokens while leaving external references, dunder names,
// and string-literal contents untouched.
package obfuscate

import "strings"

// SymbolKind classifies the syntactic role of a declared or referenced name.
type SymbolKind string

const (
	KindModule         SymbolKind = "module"
	KindClass          SymbolKind = "class"
	KindFunction       SymbolKind = "function"
	KindMethod         SymbolKind = "method"
	KindParameter      SymbolKind = "parameter"
	KindLocal          SymbolKind = "local"
	KindClassAttribute SymbolKind = "class_attribute"
	KindImportAlias    SymbolKind = "import_alias"
)

// Ownership is the verdict the resolver assigns to a usage site.
type Ownership string

const (
	OwnershipProjectLocal Ownership = "project_local"
	OwnershipExternal     Ownership = "external"
	OwnershipUnresolved   Ownership = "unresolved"
)

// Provenance records the confidence behind a RenameMap entry.
type Provenance string

const (
	ProvenanceResolvedLocal Provenance = "resolved_local"
	ProvenanceLikelyLocal   Provenance = "likely_local"
)

// IsDunder reports whether name starts and ends with a double underscore,
// the one class of identifier the engine never renames.
func IsDunder(name string) bool {
	return len(name) >= 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

// dynamicCallNames are the reflective accessors whose string-literal name
// argument is a rewrite candidate.
var dynamicCallNames = map[string]bool{
	"getattr": true,
	"setattr": true,
	"hasattr": true,
}

// pythonKeywords blocks rename-map token collisions with language keywords,
// mirroring the original implementation's use of Python's keyword module.
var pythonKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
}

// pythonBuiltins blocks rename-map token collisions with builtin names,
// mirroring the original implementation's use of dir(builtins).
var pythonBuiltins = map[string]bool{
	"abs": true, "aiter": true, "anext": true, "all": true, "any": true,
	"ascii": true, "bin": true, "bool": true, "breakpoint": true, "bytearray": true,
	"bytes": true, "callable": true, "chr": true, "classmethod": true, "compile": true,
	"complex": true, "delattr": true, "dict": true, "dir": true, "divmod": true,
	"enumerate": true, "eval": true, "exec": true, "filter": true, "float": true,
	"format": true, "frozenset": true, "getattr": true, "globals": true, "hasattr": true,
	"hash": true, "help": true, "hex": true, "id": true, "input": true, "int": true,
	"isinstance": true, "issubclass": true, "iter": true, "len": true, "list": true,
	"locals": true, "map": true, "max": true, "memoryview": true, "min": true,
	"next": true, "object": true, "oct": true, "open": true, "ord": true, "pow": true,
	"print": true, "property": true, "range": true, "repr": true, "reversed": true,
	"round": true, "set": true, "setattr": true, "slice": true, "sorted": true,
	"staticmethod": true, "str": true, "sum": true, "super": true, "tuple": true,
	"type": true, "vars": true, "zip": true,
}

// blockedTokenNames returns the reserved-word portion of the token blocklist
// the rename mapper must never emit as a generated token.
func blockedTokenNames() map[string]bool {
	blocked := make(map[string]bool, len(pythonKeywords)+len(pythonBuiltins))
	for k := range pythonKeywords {
		blocked[k] = true
	}
	for k := range pythonBuiltins {
		blocked[k] = true
	}
	return blocked
}

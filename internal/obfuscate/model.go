package obfuscate

// Span is a byte and line/column range within one file.
type Span struct {
	StartByte, EndByte  uint32
	StartLine, StartCol int
	EndLine, EndCol     int
}

// DeclKey identifies one declaration record in the ProjectIndex.
type DeclKey struct {
	File      string
	ScopePath string
	Name      string
}

// Declaration records where and how a symbol was declared.
type Declaration struct {
	Kind SymbolKind
	Span Span
}

// ImportBinding records one local bind-name introduced by an import
// statement, with enough information to decide project ownership.
type ImportBinding struct {
	File            string
	LocalName       string
	SourceModule    string
	ImportedMember  string // "*module*" for a bare module import
	IsProjectModule bool
	Span            Span
}

// DynamicSite records one getattr/setattr/hasattr call site.
type DynamicSite struct {
	File           string
	Span           Span
	Kind           string // get, set, has
	ReceiverIsName bool
	ReceiverName   string
	HasNameLiteral bool
	NameLiteral    string
	NameArgSpan    Span
}

// ProjectIndex is the immutable cross-file aggregate built by the Indexer.
// The type itself, and the Rename Mapper that consumes it, carry no
// tree-sitter dependency, so they live here rather than in the CGO-gated
// CST walk that populates them.
type ProjectIndex struct {
	Declarations                 map[DeclKey]Declaration
	Imports                      map[string][]ImportBinding
	AttributeOwners              map[string]map[string]bool
	DynamicSites                 []DynamicSite
	TypeHints                    map[string]bool
	RenameCandidates             map[string]bool
	ExternalNames                map[string]bool
	ProjectClassNames            map[string]bool
	ProjectAttributes            map[string]bool
	LikelyLocalDynamicAttributes map[string]bool
}

func newProjectIndex() *ProjectIndex {
	return &ProjectIndex{
		Declarations:                 make(map[DeclKey]Declaration),
		Imports:                      make(map[string][]ImportBinding),
		AttributeOwners:              make(map[string]map[string]bool),
		TypeHints:                    make(map[string]bool),
		RenameCandidates:             make(map[string]bool),
		ExternalNames:                make(map[string]bool),
		ProjectClassNames:            make(map[string]bool),
		ProjectAttributes:            make(map[string]bool),
		LikelyLocalDynamicAttributes: make(map[string]bool),
	}
}

func isRenameable(name string) bool {
	if name == "" {
		return false
	}
	if IsDunder(name) {
		return false
	}
	return isIdentifierLike(name)
}

func isIdentifierLike(name string) bool {
	for i, r := range name {
		if i == 0 {
			if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
				return false
			}
			continue
		}
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

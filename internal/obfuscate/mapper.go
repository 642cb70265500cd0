package obfuscate

import "sort"

// RenameMap is the immutable, project-wide original-name to obfuscated-token
// mapping produced once from a ProjectIndex. It is read-only to every
// downstream component.
type RenameMap struct {
	// Mapping holds the original-symbol -> obfuscated-token pairs.
	Mapping map[string]string
	// Provenance records, per mapped symbol, whether a declaration site was
	// found in the index (resolved_local) or the symbol was only inferred
	// from usage evidence (likely_local).
	Provenance map[string]Provenance
	// LikelyLocalAttributes is the subset of mapped names the index flagged
	// likely-local: project attributes also read through a getattr/setattr/
	// hasattr call on a named, non-self, non-external receiver, plus any
	// likely_local override names; the Ownership Resolver treats a bare
	// name in this set as unresolved ownership.
	LikelyLocalAttributes map[string]bool
}

// TokenExhaustedError reports that the deterministic token generator could
// not find a non-colliding token within the configured alphabet.
type TokenExhaustedError struct {
	Symbol string
}

func (e *TokenExhaustedError) Error() string {
	return "rename mapper: token namespace exhausted for symbol " + e.Symbol
}

// BuildRenameMap constructs the RenameMap from idx. The domain is
// index.RenameCandidates ∪ index.ProjectAttributes, minus index.ExternalNames,
// minus non-identifier-like and dunder names, sorted lexicographically before
// allocation so that identical indexes always yield identical maps.
//
// alphabet is the lowercase token alphabet (defaults to a-z when empty);
// tokens are generated in bijective base-N order: a, b, …, z, aa, ab, ….
func BuildRenameMap(idx *ProjectIndex, alphabet string) (*RenameMap, error) {
	if alphabet == "" {
		alphabet = "abcdefghijklmnopqrstuvwxyz"
	}

	domain := make(map[string]bool)
	for name := range idx.RenameCandidates {
		domain[name] = true
	}
	for name := range idx.ProjectAttributes {
		domain[name] = true
	}
	for name := range idx.ExternalNames {
		delete(domain, name)
	}
	for name := range domain {
		if !isRenameable(name) {
			delete(domain, name)
		}
	}

	sorted := make([]string, 0, len(domain))
	for name := range domain {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	blocked := blockedTokenNames()
	for name := range domain {
		blocked[name] = true
	}
	for name := range idx.ExternalNames {
		blocked[name] = true
	}

	mapping := make(map[string]string, len(sorted))
	provenance := make(map[string]Provenance, len(sorted))
	generated := make(map[string]bool, len(sorted))

	for _, symbol := range sorted {
		token, err := nextToken(alphabet, blocked, generated, symbol)
		if err != nil {
			return nil, err
		}
		generated[token] = true
		mapping[symbol] = token
		provenance[symbol] = provenanceFor(idx, symbol)
	}

	likelyLocalAttrs := make(map[string]bool)
	for name := range idx.LikelyLocalDynamicAttributes {
		if _, ok := mapping[name]; ok {
			likelyLocalAttrs[name] = true
		}
	}

	return &RenameMap{
		Mapping:               mapping,
		Provenance:            provenance,
		LikelyLocalAttributes: likelyLocalAttrs,
	}, nil
}

// provenanceFor tags a mapped symbol resolved_local when a declaration site
// for it exists anywhere in the index, likely_local otherwise (e.g. an
// attribute only ever seen via self.<name> = ... or a dynamic-name call).
func provenanceFor(idx *ProjectIndex, symbol string) Provenance {
	for key := range idx.Declarations {
		if key.Name == symbol {
			return ProvenanceResolvedLocal
		}
	}
	if idx.ProjectClassNames[symbol] {
		return ProvenanceResolvedLocal
	}
	return ProvenanceLikelyLocal
}

// nextToken allocates the next bijective-base-N token not present in blocked
// or generated, starting the search over from the first token ("a") on
// each call; tokens already handed out are skipped via generated.
func nextToken(alphabet string, blocked, generated map[string]bool, symbol string) (string, error) {
	n := len(alphabet)
	maxAttempts := n*n*n + n*n + n + 64
	for counter := 0; counter < maxAttempts; counter++ {
		candidate := bijectiveBaseN(alphabet, counter)
		if blocked[candidate] || generated[candidate] {
			continue
		}
		return candidate, nil
	}
	return "", &TokenExhaustedError{Symbol: symbol}
}

// bijectiveBaseN renders counter (zero-based) as a bijective base-len(alphabet)
// numeral using alphabet's characters, the same scheme spreadsheet column
// names use: a, b, …, z, aa, ab, ….
func bijectiveBaseN(alphabet string, counter int) string {
	n := len(alphabet)
	var chars []byte
	idx := counter
	for {
		chars = append(chars, alphabet[idx%n])
		idx = idx/n - 1
		if idx < 0 {
			break
		}
	}
	for i, j := 0, len(chars)-1; i < j; i, j = i+1, j-1 {
		chars[i], chars[j] = chars[j], chars[i]
	}
	return string(chars)
}

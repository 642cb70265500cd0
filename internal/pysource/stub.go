//go:build !cgo

package pysource

import (
	"context"
	"errors"
)

// ErrNoCGO is returned when Python parsing is unavailable because the
// binary was built without CGO (tree-sitter requires it).
var ErrNoCGO = errors.New("python parsing requires CGO (tree-sitter)")

// Tree is a stub for non-CGO builds.
type Tree struct {
	Source []byte
}

// RootNode is unavailable in non-CGO builds.
func (t *Tree) RootNode() any { return nil }

// Close is a no-op in non-CGO builds.
func (t *Tree) Close() {}

// Parser is a stub for non-CGO builds.
type Parser struct{}

// NewParser returns a stub parser. Parse always fails.
func NewParser() *Parser {
	return &Parser{}
}

// Parse always fails in non-CGO builds.
func (p *Parser) Parse(ctx context.Context, source []byte) (*Tree, error) {
	return nil, ErrNoCGO
}

// IsAvailable reports whether the CGO-backed parser is usable in this build.
func IsAvailable() bool {
	return false
}

// SyntaxError reports the position of a parse failure.
type SyntaxError struct {
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	return "syntax error"
}

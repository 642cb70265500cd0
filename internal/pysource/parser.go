//go:build cgo

// Package pysource wraps a tree-sitter Python grammar to provide the parse
// facade the obfuscation engine builds on: a concrete syntax tree with byte
// spans for every node, used both to index symbols and to validate rewritten
// output re-parses cleanly.
package pysource

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Tree owns a parsed syntax tree together with the source bytes it was
// parsed from. Callers must call Close when done to release the underlying
// tree-sitter tree.
type Tree struct {
	tree   *sitter.Tree
	Source []byte
}

// RootNode returns the tree's root node.
func (t *Tree) RootNode() *sitter.Node {
	return t.tree.RootNode()
}

// Close releases the tree-sitter tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
	}
}

// Parser wraps a tree-sitter parser configured for Python.
type Parser struct {
	parser *sitter.Parser
}

// NewParser creates a new Python parser.
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{parser: p}
}

// Parse parses Python source and returns its concrete syntax tree. A parse
// error is reported via err, never via panic: a tree containing ERROR or
// MISSING nodes is closed and reported as a *SyntaxError at the first such
// node's position, so no tree with errors is returned.
func (p *Parser) Parse(ctx context.Context, source []byte) (*Tree, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	root := tree.RootNode()
	if root.HasError() {
		errNode := firstErrorNode(root)
		pos := errNode.StartPoint()
		tree.Close()
		return nil, &SyntaxError{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1}
	}

	return &Tree{tree: tree, Source: source}, nil
}

// IsAvailable reports whether the CGO-backed parser is usable in this build.
func IsAvailable() bool {
	return true
}

func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if child.HasError() {
			return firstErrorNode(child)
		}
	}
	return n
}

// SyntaxError reports the position of a parse failure.
type SyntaxError struct {
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d", e.Line, e.Column)
}

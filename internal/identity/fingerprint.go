// Package identity computes stable content fingerprints for the
// duplicate-scanner's code-block comparison step.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// BlockKind identifies the syntactic unit a fingerprint was computed over.
type BlockKind string

const (
	KindFunction BlockKind = "function"
	KindMethod   BlockKind = "method"
	KindClass    BlockKind = "class"
)

// BlockFingerprint contains the components used to generate a stable content
// hash for a candidate duplicate block.
type BlockFingerprint struct {
	QualifiedContainer  string    `json:"qualifiedContainer"`            // e.g., "mypkg.MyClass"
	Name                string    `json:"name"`
	Kind                BlockKind `json:"kind"`
	Arity               int       `json:"arity,omitempty"`
	SignatureNormalized string    `json:"signatureNormalized,omitempty"`
	BodyNormalized      string    `json:"bodyNormalized,omitempty"`
}

// ComputeStableFingerprint creates a deterministic hash from fingerprint
// components: container, name, kind, and (when set) arity, normalized
// signature and normalized body. Any change to one of these, including the
// name, changes the hash; the fields are hashed as given, so whitespace
// stability depends on the caller normalizing them first.
func ComputeStableFingerprint(fp *BlockFingerprint) string {
	if fp == nil {
		return ""
	}

	parts := []string{
		"container:" + fp.QualifiedContainer,
		"name:" + fp.Name,
		"kind:" + string(fp.Kind),
	}

	if fp.Arity > 0 {
		parts = append(parts, fmt.Sprintf("arity:%d", fp.Arity))
	}
	if fp.SignatureNormalized != "" {
		parts = append(parts, "sig:"+fp.SignatureNormalized)
	}
	if fp.BodyNormalized != "" {
		parts = append(parts, "body:"+fp.BodyNormalized)
	}

	sort.Strings(parts)

	canonical := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// GenerateBlockId creates the full stable ID from a project name and
// fingerprint, suitable as a primary key in the persistence layer.
// Format: dupscan:<project>:block:<fingerprint-hash>
func GenerateBlockId(projectName string, fingerprint *BlockFingerprint) string {
	if fingerprint == nil {
		return ""
	}

	sanitized := sanitizeProjectName(projectName)
	fingerprintHash := ComputeStableFingerprint(fingerprint)

	return fmt.Sprintf("dupscan:%s:block:%s", sanitized, fingerprintHash)
}

// sanitizeProjectName converts a project name to a safe, deterministic format.
func sanitizeProjectName(projectName string) string {
	sanitized := strings.ReplaceAll(projectName, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")
	sanitized = strings.ReplaceAll(sanitized, ":", "-")
	sanitized = strings.ToLower(sanitized)
	sanitized = strings.Trim(sanitized, "-")

	if sanitized == "" {
		sanitized = "unknown"
	}

	return sanitized
}

// NormalizeSignature strips whitespace from a signature so two
// formatting-only variants hash identically.
func NormalizeSignature(signature string) string {
	normalized := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, signature)

	return normalized
}

// ExtractArity extracts the parameter count from a signature. This is a
// simple heuristic; the analyzer has the real parameter list available and
// should prefer that when possible.
func ExtractArity(signature string) int {
	if !strings.Contains(signature, "(") {
		return 0
	}

	start := strings.Index(signature, "(")
	end := strings.LastIndex(signature, ")")
	if start == -1 || end == -1 || start >= end {
		return 0
	}

	params := signature[start+1 : end]
	params = strings.TrimSpace(params)

	if params == "" {
		return 0
	}

	return strings.Count(params, ",") + 1
}

// ComputeBodyVersionId computes a hash from the block body with all spaces,
// tabs and newlines removed. It changes whenever the body's non-whitespace
// content changes, independent of signature or container; whitespace-only
// edits leave it unchanged.
func ComputeBodyVersionId(body string) string {
	if body == "" {
		return ""
	}

	normalized := NormalizeSignature(body)
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:])
}

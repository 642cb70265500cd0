//go:build cgo

package obfuscate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	obferrors "github.com/zskulcsar/codeobfuscator/internal/errors"
	"github.com/zskulcsar/codeobfuscator/internal/logging"
	"github.com/zskulcsar/codeobfuscator/internal/pysource"
)

// TransformSummary aggregates the counters the Orchestrator accumulates
// across every file in one run.
type TransformSummary struct {
	PythonFilesDiscovered     int
	PythonFilesProcessed      int
	PythonFilesUnchanged      int
	SymbolsDiscovered         int
	SymbolsRenamed            int
	SymbolsSkippedExternal    int
	SymbolsRenamedLikelyLocal int
	DynamicNameRewrites       int
}

// RunResult is the Orchestrator's full output: the summary counters, the
// built RenameMap (for persistence/export), and every warning the Rewriter
// raised across the whole run.
type RunResult struct {
	Summary   TransformSummary
	RenameMap *RenameMap
	Warnings  []RewriteWarning
}

// Orchestrator drives the index -> map -> rewrite -> validate pipeline
// across every discovered file, in lexicographic path order so that a run
// against the same tree is fully deterministic.
type Orchestrator struct {
	log             *logging.Logger
	projectRelPaths []string
	srcLayoutDirs   []string
	tokenAlphabet   string

	overrideExternal    []string
	overrideLikelyLocal []string
}

// NewOrchestrator creates an Orchestrator. projectRelPaths lists every
// discovered *.py file relative to root, srcLayoutDirs the configured
// src-layout prefixes to strip when deriving top-level module names (see
// config.ObfuscationConfig.SrcLayout), and tokenAlphabet the Rename
// Mapper's token alphabet (empty defaults to a-z).
func NewOrchestrator(log *logging.Logger, projectRelPaths, srcLayoutDirs []string, tokenAlphabet string) *Orchestrator {
	sorted := append([]string(nil), projectRelPaths...)
	sort.Strings(sorted)
	return &Orchestrator{
		log:             log,
		projectRelPaths: sorted,
		srcLayoutDirs:   srcLayoutDirs,
		tokenAlphabet:   tokenAlphabet,
	}
}

// SetOverrides applies the project's .obfuscator/overrides.toml decisions
// ahead of the next Run. external names are added to the index's external
// names, so they never enter the rename map, and a project root module of
// the same name is not treated as a project module when imports are
// indexed. likelyLocal names are added to the index's likely-local
// attribute set: a bare reference with no scope binding to such a name
// resolves as unresolved ownership when the name is in the rename map. A
// likelyLocal name is not added to the rename map by this, and it does not
// override an external classification.
func (o *Orchestrator) SetOverrides(external, likelyLocal []string) {
	o.overrideExternal = external
	o.overrideLikelyLocal = likelyLocal
}

// Run executes one full transform against root, reading and rewriting every
// file in o.projectRelPaths in place. It fails fast on the first fatal
// error (parse failure, token exhaustion, rewrite-validation failure, I/O
// failure); ownership-ambiguity and dynamic-name-uncertain events are
// collected as warnings and never abort the run.
func (o *Orchestrator) Run(ctx context.Context, root string) (*RunResult, error) {
	o.log.Info("transform:start", map[string]interface{}{"root": root, "files": len(o.projectRelPaths)})

	sources := make(map[string][]byte, len(o.projectRelPaths))
	parser := pysource.NewParser()

	indexer := NewIndexer(o.projectRelPaths, o.srcLayoutDirs)
	for _, name := range o.overrideExternal {
		delete(indexer.projectRootModules, name)
	}
	idx := newProjectIndex()

	for _, rel := range o.projectRelPaths {
		abs := filepath.Join(root, rel)
		src, err := os.ReadFile(abs)
		if err != nil {
			return nil, obferrors.New(obferrors.IOFailure, "failed to read source file", err).WithPath(rel)
		}
		sources[rel] = src

		tree, err := parser.Parse(ctx, src)
		if err != nil {
			return nil, obferrors.New(obferrors.ParseError, "failed to parse source file", err).WithPath(rel)
		}
		indexer.IndexFile(idx, rel, tree.RootNode(), src)
		tree.Close()
	}

	for _, name := range o.overrideExternal {
		idx.ExternalNames[name] = true
	}
	for _, name := range o.overrideLikelyLocal {
		idx.LikelyLocalDynamicAttributes[name] = true
	}

	skippedExternal := 0
	for name := range idx.RenameCandidates {
		if idx.ExternalNames[name] {
			skippedExternal++
		}
	}

	indexer.Finalize(idx)

	rmap, err := BuildRenameMap(idx, o.tokenAlphabet)
	if err != nil {
		return nil, obferrors.New(obferrors.TokenExhausted, "rename mapper exhausted its token alphabet", err)
	}

	summary := TransformSummary{
		PythonFilesDiscovered:  len(o.projectRelPaths),
		SymbolsDiscovered:      len(idx.RenameCandidates),
		SymbolsSkippedExternal: skippedExternal,
	}

	rewriter := NewRewriter()
	var warnings []RewriteWarning

	for _, rel := range o.projectRelPaths {
		result, err := rewriter.Rewrite(ctx, rel, sources[rel], idx, rmap)
		if err != nil {
			return nil, obferrors.New(obferrors.RewriteValidationFailed, "rewritten output failed to re-parse", err).WithPath(rel)
		}

		summary.SymbolsRenamed += result.SymbolsRenamed
		summary.SymbolsRenamedLikelyLocal += result.LikelyLocalRenames
		summary.DynamicNameRewrites += result.DynamicNameRewrites
		warnings = append(warnings, result.Warnings...)

		if !result.Changed {
			summary.PythonFilesUnchanged++
			continue
		}

		abs := filepath.Join(root, rel)
		if err := os.WriteFile(abs, result.Source, 0644); err != nil {
			return nil, obferrors.New(obferrors.IOFailure, "failed to write rewritten source file", err).WithPath(rel)
		}
		summary.PythonFilesProcessed++

		for _, w := range result.Warnings {
			o.logWarning(w)
		}
	}

	o.log.Info("transform:done", map[string]interface{}{
		"files_processed": summary.PythonFilesProcessed,
		"symbols_renamed":  summary.SymbolsRenamed,
		"warnings":         len(warnings),
	})

	return &RunResult{Summary: summary, RenameMap: rmap, Warnings: warnings}, nil
}

func (o *Orchestrator) logWarning(w RewriteWarning) {
	o.log.Warn(w.Message, map[string]interface{}{
		"file": w.File,
		"code": w.Code,
		"line": w.Span.StartLine,
	})
}

// DiscoverPythonFiles walks root and returns every *.py file path relative
// to root, skipping any directory (by base name) listed in excludeDirs.
// Results are lexicographically sorted so a run is always processed in the
// same deterministic order.
func DiscoverPythonFiles(root string, excludeDirs []string) ([]string, error) {
	excluded := make(map[string]bool, len(excludeDirs))
	for _, d := range excludeDirs {
		excluded[d] = true
	}

	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && excluded[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".py") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover python files: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

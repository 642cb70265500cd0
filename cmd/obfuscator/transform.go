package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zskulcsar/codeobfuscator/internal/config"
	cobferrors "github.com/zskulcsar/codeobfuscator/internal/errors"
	"github.com/zskulcsar/codeobfuscator/internal/logging"
	"github.com/zskulcsar/codeobfuscator/internal/obfuscate"
	"github.com/zskulcsar/codeobfuscator/internal/slogutil"
	"github.com/zskulcsar/codeobfuscator/internal/storage"
)

var (
	transformInput  string
	transformOutput string
	transformFormat string
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Copy a project tree and rename every in-project identifier",
	RunE:  runTransform,
}

func init() {
	transformCmd.Flags().StringVar(&transformInput, "input", "", "source project directory (required)")
	transformCmd.Flags().StringVar(&transformOutput, "output", "", "destination directory for the transformed project (required)")
	transformCmd.Flags().StringVar(&transformFormat, "format", "json", "run summary export format: json or yaml")
	transformCmd.MarkFlagRequired("input")
	transformCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(transformCmd)
}

func newTransformLogger() *logging.Logger {
	level := logging.InfoLevel
	if verbose {
		level = logging.DebugLevel
	}
	return logging.NewLogger(logging.Config{Format: logging.HumanFormat, Level: level})
}

func runTransform(cmd *cobra.Command, args []string) error {
	logger := newTransformLogger()

	fmt.Println("validation:start")
	if err := validateTransformPaths(transformInput, transformOutput); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Println("status=failure")
		os.Exit(2)
	}
	fmt.Println("validation:done")

	cfg, err := config.LoadConfig(transformInput)
	if err != nil {
		return fail(err)
	}
	overrides, err := config.LoadOverrides(transformInput)
	if err != nil {
		return fail(err)
	}
	knownExternal, err := config.LoadKnownExternal(transformInput)
	if err != nil {
		return fail(err)
	}

	fmt.Println("copy:start")
	if err := copyTree(transformInput, transformOutput, cfg.Obfuscation.ExcludeDirs); err != nil {
		return fail(err)
	}
	fmt.Println("copy:done")

	relPaths, err := obfuscate.DiscoverPythonFiles(transformOutput, cfg.Obfuscation.ExcludeDirs)
	if err != nil {
		return fail(err)
	}

	orch := obfuscate.NewOrchestrator(logger, relPaths, cfg.Obfuscation.SrcLayout, cfg.Rename.TokenAlphabet)
	orch.SetOverrides(append(overrides.External, knownExternal.Modules...), overrides.LikelyLocal)

	fmt.Println("transform:start")
	result, runErr := orch.Run(context.Background(), transformOutput)
	if runErr != nil {
		fmt.Println("transform:done")
		fmt.Println("status=failure")
		if persistErr := persistFailedRun(cfg, transformOutput, logger, runErr); persistErr != nil {
			logger.Warn("failed to persist run failure", map[string]interface{}{"error": persistErr.Error()})
		}
		return runErr
	}
	fmt.Println("transform:done")

	if logErr := writeWarningsLog(transformOutput, result.Warnings); logErr != nil {
		logger.Warn("failed to write warnings log", map[string]interface{}{"error": logErr.Error()})
	}

	runID := uuid.NewString()
	if cfg.Persistence.Enabled {
		id, persistErr := persistSuccessfulRun(cfg, transformOutput, logger, result)
		if persistErr != nil {
			logger.Warn("failed to persist run", map[string]interface{}{"error": persistErr.Error()})
		} else {
			runID = id
		}
	}

	if err := writeRunSummary(transformOutput, runID, transformFormat, result); err != nil {
		logger.Warn("failed to write run summary", map[string]interface{}{"error": err.Error()})
	}

	fmt.Println("status=success")
	return nil
}

func fail(err error) error {
	fmt.Println("status=failure")
	return err
}

// validateTransformPaths enforces spec.md §6's collaborator contract: input
// must be an existing directory containing a .gitignore; output must not
// already be a non-empty directory; the two paths must not nest.
func validateTransformPaths(input, output string) error {
	info, err := os.Stat(input)
	if err != nil || !info.IsDir() {
		return cobferrors.New(cobferrors.InternalError, "input must be an existing directory", err).WithPath(input)
	}
	if _, err := os.Stat(filepath.Join(input, ".gitignore")); err != nil {
		return cobferrors.New(cobferrors.InternalError, "input directory must contain a .gitignore", err).WithPath(input)
	}

	if outInfo, err := os.Stat(output); err == nil {
		if !outInfo.IsDir() {
			return cobferrors.New(cobferrors.InternalError, "output must be a directory", nil).WithPath(output)
		}
		entries, err := os.ReadDir(output)
		if err != nil {
			return cobferrors.New(cobferrors.InternalError, "failed to read output directory", err).WithPath(output)
		}
		if len(entries) > 0 {
			return cobferrors.New(cobferrors.InternalError, "output must not be a non-empty directory", nil).WithPath(output)
		}
	}

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	absOut, err := filepath.Abs(output)
	if err != nil {
		return err
	}
	if pathsNest(absIn, absOut) {
		return cobferrors.New(cobferrors.InternalError, "input and output paths must not nest", nil)
	}
	return nil
}

func pathsNest(a, b string) bool {
	rel, err := filepath.Rel(a, b)
	if err == nil && !strings.HasPrefix(rel, "..") {
		return true
	}
	rel, err = filepath.Rel(b, a)
	return err == nil && !strings.HasPrefix(rel, "..")
}

// copyTree recursively copies src to dst, skipping any directory whose base
// name is in excludeDirs.
func copyTree(src, dst string, excludeDirs []string) error {
	excluded := make(map[string]bool, len(excludeDirs))
	for _, d := range excludeDirs {
		excluded[d] = true
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			if rel != "." && excluded[d.Name()] {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0755)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}

func persistSuccessfulRun(cfg *config.Config, outputRoot string, logger *logging.Logger, result *obfuscate.RunResult) (string, error) {
	db, err := storage.Open(outputRoot, cfg.Persistence.DBPath, logger)
	if err != nil {
		return "", err
	}
	defer db.Close()

	runs := storage.NewRunRepository(db)
	runID, err := runs.StartRun(outputRoot)
	if err != nil {
		return "", err
	}

	summary := storage.ObfuscationRunSummary{
		PythonFilesDiscovered:     result.Summary.PythonFilesDiscovered,
		PythonFilesProcessed:      result.Summary.PythonFilesProcessed,
		PythonFilesUnchanged:      result.Summary.PythonFilesUnchanged,
		SymbolsDiscovered:         result.Summary.SymbolsDiscovered,
		SymbolsRenamed:            result.Summary.SymbolsRenamed,
		SymbolsSkippedExternal:    result.Summary.SymbolsSkippedExternal,
		SymbolsRenamedLikelyLocal: result.Summary.SymbolsRenamedLikelyLocal,
		DynamicNameRewrites:       result.Summary.DynamicNameRewrites,
	}
	if err := runs.FinishRun(runID, summary, nil); err != nil {
		return runID, err
	}

	entries := make([]storage.RenameMapEntry, 0, len(result.RenameMap.Mapping))
	for original, token := range result.RenameMap.Mapping {
		entries = append(entries, storage.RenameMapEntry{
			RunID:          runID,
			OriginalName:   original,
			ObfuscatedName: token,
			Kind:           "identifier",
			Ownership:      "project_local",
			Provenance:     string(result.RenameMap.Provenance[original]),
		})
	}
	return runID, runs.SaveRenameMap(runID, entries)
}

func persistFailedRun(cfg *config.Config, outputRoot string, logger *logging.Logger, runErr error) error {
	if !cfg.Persistence.Enabled {
		return nil
	}
	db, err := storage.Open(outputRoot, cfg.Persistence.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	runs := storage.NewRunRepository(db)
	runID, err := runs.StartRun(outputRoot)
	if err != nil {
		return err
	}
	return runs.FinishRun(runID, storage.ObfuscationRunSummary{}, runErr)
}

// writeWarningsLog tees the Rewriter's ambiguous_ownership and
// dynamic_name_uncertain events into a size-rotated .obfuscator/obfuscator.log
// so a long run's warning trail survives independent of stdout buffering.
func writeWarningsLog(outputRoot string, warnings []obfuscate.RewriteWarning) error {
	if len(warnings) == 0 {
		return nil
	}

	logPath := filepath.Join(outputRoot, ".obfuscator", "obfuscator.log")
	wl, err := slogutil.OpenWarningLog(logPath, 10*1024*1024, 3)
	if err != nil {
		return err
	}
	defer wl.Close()

	for _, w := range warnings {
		if err := wl.Record(w.Code, w.File, w.Span.StartLine, w.Message); err != nil {
			return err
		}
	}
	return nil
}

// runSummaryDoc is the serialized shape written to .obfuscator/runs/.
type runSummaryDoc struct {
	RunID    string                     `json:"runId" yaml:"runId"`
	Summary  obfuscate.TransformSummary `json:"summary" yaml:"summary"`
	Warnings []obfuscate.RewriteWarning `json:"warnings" yaml:"warnings"`
}

func writeRunSummary(outputRoot, runID, format string, result *obfuscate.RunResult) error {
	doc := runSummaryDoc{RunID: runID, Summary: result.Summary, Warnings: result.Warnings}

	var data []byte
	var err error
	var ext string
	switch strings.ToLower(format) {
	case "yaml", "yml":
		data, err = yaml.Marshal(doc)
		ext = "yaml"
	default:
		data, err = json.MarshalIndent(doc, "", "  ")
		ext = "json"
	}
	if err != nil {
		return err
	}

	runsDir := filepath.Join(outputRoot, ".obfuscator", "runs")
	if err := os.MkdirAll(runsDir, 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}

	path := filepath.Join(runsDir, fmt.Sprintf("%s.%s.gz", runID, ext))
	return os.WriteFile(path, buf.Bytes(), 0644)
}

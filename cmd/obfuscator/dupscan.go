package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zskulcsar/codeobfuscator/internal/config"
	"github.com/zskulcsar/codeobfuscator/internal/dupscan"
	"github.com/zskulcsar/codeobfuscator/internal/identity"
	"github.com/zskulcsar/codeobfuscator/internal/llmintent"
	"github.com/zskulcsar/codeobfuscator/internal/logging"
	"github.com/zskulcsar/codeobfuscator/internal/obfuscate"
	"github.com/zskulcsar/codeobfuscator/internal/pysource"
	"github.com/zskulcsar/codeobfuscator/internal/storage"
)

var (
	dupscanInput     string
	dupscanThreshold float64
)

var dupscanCmd = &cobra.Command{
	Use:   "dupscan",
	Short: "Scan a project tree for duplicate functions and methods",
	RunE:  runDupscan,
}

func init() {
	dupscanCmd.Flags().StringVar(&dupscanInput, "input", "", "project directory to scan (required)")
	dupscanCmd.Flags().Float64Var(&dupscanThreshold, "threshold", 0.85, "fuzzy-match ratio threshold in [0,1]")
	dupscanCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(dupscanCmd)
}

func runDupscan(cmd *cobra.Command, args []string) error {
	logger := newTransformLogger()

	cfg, err := config.LoadConfig(dupscanInput)
	if err != nil {
		return err
	}

	relPaths, err := obfuscate.DiscoverPythonFiles(dupscanInput, cfg.Obfuscation.ExcludeDirs)
	if err != nil {
		return err
	}

	blocks, err := extractBlocks(dupscanInput, relPaths)
	if err != nil {
		return err
	}
	logger.Info("dupscan:extracted", map[string]interface{}{"blocks": len(blocks)})

	scanBlocks := make([]dupscan.Block, 0, len(blocks))
	for _, b := range blocks {
		scanBlocks = append(scanBlocks, dupscan.Block{
			ID:         b.id,
			FilePath:   b.filePath,
			Normalized: b.normalized,
			Hash:       dupscan.HashBlock(b.normalized),
		})
	}

	groups := dupscan.GroupDuplicates(scanBlocks, dupscanThreshold)
	logger.Info("dupscan:grouped", map[string]interface{}{"groups": len(groups)})

	var intentClient *llmintent.Client
	if cfg.ModelClient.Enabled {
		intentClient = llmintent.NewClient(cfg.ModelClient.Endpoint, "code-intent",
			timeoutFromMs(cfg.ModelClient.TimeoutMs))
	}

	if cfg.Persistence.Enabled {
		if err := persistDupscan(cfg, dupscanInput, logger, blocks, groups, intentClient); err != nil {
			logger.Warn("failed to persist dupscan results", map[string]interface{}{"error": err.Error()})
		}
	}

	for _, g := range groups {
		fmt.Printf("group (%s): ", g.MatchType)
		names := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			names = append(names, m.FilePath)
		}
		fmt.Println(strings.Join(names, ", "))
	}

	return nil
}

type extractedBlock struct {
	id            string
	filePath      string
	qualifiedName string
	kind          string
	normalized    string
	startLine     int
	endLine       int
}

// extractBlocks walks every discovered file with the Project Indexer and
// pulls out every function/method/class declaration's source span as a
// duplicate-scan candidate block.
func extractBlocks(root string, relPaths []string) ([]extractedBlock, error) {
	parser := pysource.NewParser()
	indexer := obfuscate.NewIndexer(relPaths, nil)
	idx := &obfuscate.ProjectIndex{
		Declarations:                 make(map[obfuscate.DeclKey]obfuscate.Declaration),
		Imports:                      make(map[string][]obfuscate.ImportBinding),
		AttributeOwners:              make(map[string]map[string]bool),
		TypeHints:                    make(map[string]bool),
		RenameCandidates:             make(map[string]bool),
		ExternalNames:                make(map[string]bool),
		ProjectClassNames:            make(map[string]bool),
		ProjectAttributes:            make(map[string]bool),
		LikelyLocalDynamicAttributes: make(map[string]bool),
	}

	sources := make(map[string][]byte, len(relPaths))
	for _, rel := range relPaths {
		src, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			return nil, err
		}
		sources[rel] = src

		tree, err := parser.Parse(context.Background(), src)
		if err != nil {
			continue // unparsable files are skipped for the duplicate scan, not fatal
		}
		indexer.IndexFile(idx, rel, tree.RootNode(), src)
		tree.Close()
	}

	var out []extractedBlock
	for key, decl := range idx.Declarations {
		blockKind, ok := toBlockKind(decl.Kind)
		if !ok {
			continue
		}
		src := sources[key.File]
		if src == nil || decl.Span.EndByte > uint32(len(src)) {
			continue
		}
		text := string(src[decl.Span.StartByte:decl.Span.EndByte])
		normalized := dupscan.Normalize(text)
		if normalized == "" {
			continue
		}

		fp := &identity.BlockFingerprint{
			QualifiedContainer:  key.ScopePath,
			Name:                key.Name,
			Kind:                blockKind,
			SignatureNormalized: identity.NormalizeSignature(firstLine(text)),
			BodyNormalized:      normalized,
		}
		fp.Arity = identity.ExtractArity(firstLine(text))

		out = append(out, extractedBlock{
			id:            identity.GenerateBlockId(filepath.Base(root), fp),
			filePath:      key.File,
			qualifiedName: key.ScopePath + "." + key.Name,
			kind:          string(decl.Kind),
			normalized:    normalized,
			startLine:     decl.Span.StartLine,
			endLine:       decl.Span.EndLine,
		})
	}
	return out, nil
}

func toBlockKind(k obfuscate.SymbolKind) (identity.BlockKind, bool) {
	switch k {
	case obfuscate.KindFunction:
		return identity.KindFunction, true
	case obfuscate.KindMethod:
		return identity.KindMethod, true
	case obfuscate.KindClass:
		return identity.KindClass, true
	default:
		return "", false
	}
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

func persistDupscan(cfg *config.Config, root string, logger *logging.Logger, blocks []extractedBlock, groups []dupscan.Group, intentClient *llmintent.Client) error {
	db, err := storage.Open(root, cfg.Persistence.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := storage.NewDuplicateRepository(db)
	runID, err := repo.StartScan(root)
	if err != nil {
		return err
	}

	storageBlocks := make([]storage.DuplicateBlock, 0, len(blocks))
	for _, b := range blocks {
		storageBlocks = append(storageBlocks, storage.DuplicateBlock{
			ID:              b.id,
			RunID:           runID,
			FilePath:        b.filePath,
			QualifiedName:   b.qualifiedName,
			Kind:            b.kind,
			FingerprintHash: b.id,
			ContentHash:     dupscan.HashBlock(b.normalized),
			StartLine:       b.startLine,
			EndLine:         b.endLine,
		})
	}
	if err := repo.SaveBlocks(storageBlocks); err != nil {
		return err
	}

	for _, g := range groups {
		if len(g.Members) == 0 {
			continue
		}
		memberIDs := make([]string, 0, len(g.Members))
		similarity := make(map[string]float64, len(g.Members))
		for _, m := range g.Members {
			memberIDs = append(memberIDs, m.ID)
			similarity[m.ID] = 1.0
		}

		var intentSummary string
		if intentClient != nil {
			if summary, err := intentClient.GenerateIntent(context.Background(), g.Members[0].Normalized); err == nil {
				intentSummary = summary
			} else {
				logger.Warn("intent generation failed", map[string]interface{}{"error": err.Error()})
			}
		}

		group := storage.DuplicateGroup{
			RunID:                 runID,
			RepresentativeBlockID: g.Members[0].ID,
		}
		if intentSummary != "" {
			group.IntentSummary.String = intentSummary
			group.IntentSummary.Valid = true
		}
		if err := repo.SaveGroup(group, memberIDs, similarity); err != nil {
			return err
		}
	}

	return repo.FinishScan(runID, len(blocks), len(groups))
}

func timeoutFromMs(ms int) time.Duration {
	if ms <= 0 {
		return 30 * time.Second
	}
	return time.Duration(ms) * time.Millisecond
}

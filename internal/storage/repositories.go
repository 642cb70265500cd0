package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ObfuscationRun is a persisted record of one orchestrator invocation.
type ObfuscationRun struct {
	ID                        string
	ProjectRoot               string
	StartedAt                 time.Time
	FinishedAt                sql.NullTime
	Status                    string
	PythonFilesDiscovered     int
	PythonFilesProcessed      int
	PythonFilesUnchanged      int
	SymbolsDiscovered         int
	SymbolsRenamed            int
	SymbolsSkippedExternal    int
	SymbolsRenamedLikelyLocal int
	DynamicNameRewrites       int
	ErrorMessage              sql.NullString
}

// RenameMapEntry is a persisted row of a run's rename map, used for audit
// trails and for re-running the duplicate scanner against obfuscated output.
type RenameMapEntry struct {
	RunID          string
	OriginalName   string
	ObfuscatedName string
	Kind           string
	Ownership      string
	Provenance     string
}

// RunRepository persists obfuscation-run records and their rename maps.
type RunRepository struct {
	db *DB
}

// NewRunRepository returns a repository bound to db.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// StartRun inserts a new running obfuscation_runs row and returns its ID.
func (r *RunRepository) StartRun(projectRoot string) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(
		`INSERT INTO obfuscation_runs (id, project_root, started_at, status)
		 VALUES (?, ?, ?, 'running')`,
		id, projectRoot, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun records the final summary counters and marks the run completed,
// or failed (with runErr's message) when runErr is non-nil.
func (r *RunRepository) FinishRun(runID string, summary ObfuscationRunSummary, runErr error) error {
	status := "completed"
	var errMsg sql.NullString
	if runErr != nil {
		status = "failed"
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err := r.db.Exec(
		`UPDATE obfuscation_runs SET
			finished_at = ?, status = ?,
			python_files_discovered = ?, python_files_processed = ?, python_files_unchanged = ?,
			symbols_discovered = ?, symbols_renamed = ?, symbols_skipped_external = ?,
			symbols_renamed_likely_local = ?, dynamic_name_rewrites = ?, error_message = ?
		 WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), status,
		summary.PythonFilesDiscovered, summary.PythonFilesProcessed, summary.PythonFilesUnchanged,
		summary.SymbolsDiscovered, summary.SymbolsRenamed, summary.SymbolsSkippedExternal,
		summary.SymbolsRenamedLikelyLocal, summary.DynamicNameRewrites, errMsg,
		runID,
	)
	return err
}

// ObfuscationRunSummary mirrors the orchestrator's TransformSummary counters
// for persistence, decoupling the storage layer from the obfuscate package.
type ObfuscationRunSummary struct {
	PythonFilesDiscovered     int
	PythonFilesProcessed      int
	PythonFilesUnchanged      int
	SymbolsDiscovered         int
	SymbolsRenamed            int
	SymbolsSkippedExternal    int
	SymbolsRenamedLikelyLocal int
	DynamicNameRewrites       int
}

// SaveRenameMap persists the final rename map entries for a run in one
// transaction.
func (r *RunRepository) SaveRenameMap(runID string, entries []RenameMapEntry) error {
	return r.db.WithTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO rename_map_entries (run_id, original_name, obfuscated_name, kind, ownership, provenance)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(run_id, original_name, kind) DO UPDATE SET
				obfuscated_name = excluded.obfuscated_name,
				ownership = excluded.ownership,
				provenance = excluded.provenance`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.Exec(runID, e.OriginalName, e.ObfuscatedName, e.Kind, e.Ownership, e.Provenance); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRun loads a run's summary row by ID.
func (r *RunRepository) GetRun(runID string) (*ObfuscationRun, error) {
	row := r.db.QueryRow(
		`SELECT id, project_root, started_at, finished_at, status,
			python_files_discovered, python_files_processed, python_files_unchanged,
			symbols_discovered, symbols_renamed, symbols_skipped_external,
			symbols_renamed_likely_local, dynamic_name_rewrites, error_message
		 FROM obfuscation_runs WHERE id = ?`,
		runID,
	)

	var run ObfuscationRun
	var startedAt string
	var finishedAt sql.NullString
	if err := row.Scan(
		&run.ID, &run.ProjectRoot, &startedAt, &finishedAt, &run.Status,
		&run.PythonFilesDiscovered, &run.PythonFilesProcessed, &run.PythonFilesUnchanged,
		&run.SymbolsDiscovered, &run.SymbolsRenamed, &run.SymbolsSkippedExternal,
		&run.SymbolsRenamedLikelyLocal, &run.DynamicNameRewrites, &run.ErrorMessage,
	); err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		run.StartedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			run.FinishedAt = sql.NullTime{Time: t, Valid: true}
		}
	}

	return &run, nil
}

// DuplicateBlock is a persisted candidate block from the duplicate scanner.
type DuplicateBlock struct {
	ID              string
	RunID           string
	FilePath        string
	QualifiedName   string
	Kind            string
	FingerprintHash string
	ContentHash     string
	StartLine       int
	EndLine         int
}

// DuplicateGroup is a persisted cluster of blocks judged similar enough to
// be duplicates.
type DuplicateGroup struct {
	ID                    string
	RunID                 string
	RepresentativeBlockID string
	MemberCount           int
	IntentSummary         sql.NullString
}

// DuplicateRepository persists duplicate-scan runs, candidate blocks, and
// the groups the similarity pass produces.
type DuplicateRepository struct {
	db *DB
}

// NewDuplicateRepository returns a repository bound to db.
func NewDuplicateRepository(db *DB) *DuplicateRepository {
	return &DuplicateRepository{db: db}
}

// StartScan inserts a new running duplicate_scan_runs row and returns its ID.
func (r *DuplicateRepository) StartScan(projectRoot string) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(
		`INSERT INTO duplicate_scan_runs (id, project_root, started_at, status)
		 VALUES (?, ?, ?, 'running')`,
		id, projectRoot, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// SaveBlocks persists the candidate blocks discovered for a scan.
func (r *DuplicateRepository) SaveBlocks(blocks []DuplicateBlock) error {
	return r.db.WithTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO duplicate_blocks
				(id, run_id, file_path, qualified_name, kind, fingerprint_hash, content_hash, start_line, end_line)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range blocks {
			if b.ID == "" {
				b.ID = uuid.NewString()
			}
			if _, err := stmt.Exec(
				b.ID, b.RunID, b.FilePath, b.QualifiedName, b.Kind,
				b.FingerprintHash, b.ContentHash, b.StartLine, b.EndLine,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveGroup persists a duplicate group and its members atomically.
func (r *DuplicateRepository) SaveGroup(group DuplicateGroup, memberBlockIDs []string, similarity map[string]float64) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}

	return r.db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO duplicate_groups (id, run_id, representative_block_id, member_count, intent_summary)
			 VALUES (?, ?, ?, ?, ?)`,
			group.ID, group.RunID, group.RepresentativeBlockID, len(memberBlockIDs), group.IntentSummary,
		); err != nil {
			return err
		}

		stmt, err := tx.Prepare(
			`INSERT INTO duplicate_group_members (group_id, block_id, similarity_score)
			 VALUES (?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, blockID := range memberBlockIDs {
			if _, err := stmt.Exec(group.ID, blockID, similarity[blockID]); err != nil {
				return err
			}
		}
		return nil
	})
}

// FinishScan marks a duplicate-scan run complete with its final counters.
func (r *DuplicateRepository) FinishScan(runID string, blocksScanned, groupsFound int) error {
	_, err := r.db.Exec(
		`UPDATE duplicate_scan_runs SET finished_at = ?, status = 'completed',
			blocks_scanned = ?, duplicate_groups_found = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), blocksScanned, groupsFound, runID,
	)
	return err
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/drydock-pm/drydock/modules/workitems/services"
	"github.com/drydock-pm/drydock/pkg/prompt"
)

type migrateOptions struct {
	yes         bool
	noHierarchy bool
	skipBackup  bool
	backupDir   string
	lockPath    string
}

func newMigrateCmd(g *globalOptions, p prompt.Prompter) *cobra.Command {
	var opts migrateOptions

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Analyze, back up, preview, confirm, then rewrite legacy ids and validate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), g, func(s *session) error {
				return runMigrate(s, cmd.OutOrStdout(), p, opts)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.yes, "yes", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&opts.noHierarchy, "no-hierarchy", false, "Do not re-point children to their parent's new id")
	cmd.Flags().BoolVar(&opts.skipBackup, "skip-backup", false, "Do not write a backup before migrating")
	cmd.Flags().StringVar(&opts.backupDir, "backup-dir", "", "Backup directory (default WORKITEM_ID_BACKUP_DIR)")
	cmd.Flags().StringVar(&opts.lockPath, "lock-file", filepath.Join(os.TempDir(), "workitem-ids-migrate.lock"), "Host-wide lock file")
	return cmd
}

type migrateSummary struct {
	Status          string                     `json:"status"`
	Phase           string                     `json:"phase"`
	LegacyCount     int                        `json:"legacy_count"`
	MigratedCount   int                        `json:"migrated_count"`
	ErrorCount      int                        `json:"error_count"`
	ReparentedCount int64                      `json:"reparented_count"`
	BackupPath      string                     `json:"backup_path,omitempty"`
	Errors          []services.MigrationError  `json:"errors,omitempty"`
	Validation      *services.ValidationResult `json:"validation,omitempty"`
	Mappings        []services.IDMapping       `json:"mappings,omitempty"`
	Recommendations []services.Recommendation  `json:"recommendations,omitempty"`
}

func runMigrate(s *session, out io.Writer, p prompt.Prompter, opts migrateOptions) error {
	lock := flock.New(opts.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return withCode(exitSafetyNet, fmt.Errorf("lock %s: %w", opts.lockPath, err))
	}
	if !locked {
		return withCode(exitSafetyNet, fmt.Errorf("another migration holds %s", opts.lockPath))
	}
	defer func() { _ = lock.Unlock() }()

	migrator := s.module.Migrator

	analysis, err := migrator.Analyze(s.ctx)
	if err != nil {
		return withCode(exitDB, err)
	}
	if analysis.LegacyCount == 0 {
		return writeJSONLine(out, migrateSummary{Status: "noop", Phase: "analyze"})
	}

	var backupPath string
	if !opts.skipBackup {
		path, _, err := migrator.CreateBackup(s.ctx, backupDir(opts.backupDir, s))
		if err != nil {
			return withCode(exitDB, err)
		}
		backupPath = path
	}

	preview, err := migrator.MigrateToNewFormat(s.ctx, services.MigrateOptions{DryRun: true, PreserveHierarchy: !opts.noHierarchy})
	if err != nil {
		return withCode(exitDB, err)
	}
	recs, err := migrator.GetMigrationRecommendations(s.ctx)
	if err != nil {
		return withCode(exitDB, err)
	}
	if err := writeJSONLine(out, migrateSummary{
		Status:          "preview",
		Phase:           "dry_run",
		LegacyCount:     preview.LegacyCount,
		MigratedCount:   preview.MigratedCount,
		ErrorCount:      len(preview.Errors),
		BackupPath:      backupPath,
		Errors:          preview.Errors,
		Mappings:        preview.Mappings,
		Recommendations: recs.Items,
	}); err != nil {
		return err
	}

	if !opts.yes {
		ok, err := p.Confirm(
			fmt.Sprintf("Rewrite %d legacy work item ids?", preview.LegacyCount),
			"The change runs in one transaction. Answer no to leave the store untouched.",
			false,
		)
		if errors.Is(err, prompt.ErrNonInteractive) {
			return withCode(exitSafetyNet, fmt.Errorf("refusing to migrate without --yes in non-interactive mode"))
		}
		if err != nil {
			return withCode(exitUsage, err)
		}
		if !ok {
			return writeJSONLine(out, migrateSummary{Status: "aborted", Phase: "confirm", LegacyCount: preview.LegacyCount, BackupPath: backupPath})
		}
	}

	res, err := migrator.MigrateToNewFormat(s.ctx, services.MigrateOptions{PreserveHierarchy: !opts.noHierarchy})
	if err != nil {
		return withCode(exitDB, err)
	}
	if !res.Success {
		_ = writeJSONLine(out, migrateSummary{Status: "rolled_back", Phase: "commit", LegacyCount: res.LegacyCount, BackupPath: backupPath})
		return withCode(exitDBWrite, fmt.Errorf("migration rolled back: %s", res.Error))
	}

	validation, err := migrator.ValidateMigration(s.ctx)
	if err != nil {
		return withCode(exitDB, err)
	}

	status := "applied"
	if len(res.Errors) > 0 {
		status = "applied_with_errors"
	}
	if err := writeJSONLine(out, migrateSummary{
		Status:          status,
		Phase:           "validate",
		LegacyCount:     res.LegacyCount,
		MigratedCount:   res.MigratedCount,
		ErrorCount:      len(res.Errors),
		ReparentedCount: res.ReparentedCount,
		BackupPath:      backupPath,
		Errors:          res.Errors,
		Validation:      validation,
	}); err != nil {
		return err
	}
	if !validation.IsValid {
		return withCode(exitValidation, fmt.Errorf(
			"post-migration validation failed: legacy=%d duplicates=%d orphans=%d",
			len(validation.LegacyIDs), len(validation.DuplicateIDs), len(validation.Orphans),
		))
	}
	return nil
}

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drydock-pm/drydock/modules/workitems/services"
)

func newAnalyzeCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Count legacy and DD/MM/YY/NNN ids (read-only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), g, func(s *session) error {
				analysis, err := s.module.Migrator.Analyze(s.ctx)
				if err != nil {
					return withCode(exitDB, err)
				}
				return writeJSONLine(cmd.OutOrStdout(), analysis)
			})
		},
	}
}

func newRecommendCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend",
		Short: "Print migration advice for the current store (read-only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), g, func(s *session) error {
				rec, err := s.module.Migrator.GetMigrationRecommendations(s.ctx)
				if err != nil {
					return withCode(exitDB, err)
				}
				return writeJSONLine(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func newBackupCmd(g *globalOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot every work item to a timestamped JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), g, func(s *session) error {
				path, backup, err := s.module.Migrator.CreateBackup(s.ctx, backupDir(dir, s))
				if err != nil {
					return withCode(exitDB, err)
				}
				return writeJSONLine(cmd.OutOrStdout(), backupSummary{Status: "written", Path: path, TotalItems: backup.TotalItems})
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Backup directory (default WORKITEM_ID_BACKUP_DIR)")
	return cmd
}

type backupSummary struct {
	Status     string `json:"status"`
	Path       string `json:"path"`
	TotalItems int    `json:"total_items"`
}

func backupDir(flag string, s *session) string {
	if strings.TrimSpace(flag) != "" {
		return flag
	}
	return s.opts.BackupDir
}

func newDryRunCmd(g *globalOptions) *cobra.Command {
	var report string
	var noHierarchy bool
	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Preview the legacy -> DD/MM/YY/NNN id mapping without writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), g, func(s *session) error {
				res, err := s.module.Migrator.MigrateToNewFormat(s.ctx, services.MigrateOptions{
					DryRun:            true,
					PreserveHierarchy: !noHierarchy,
				})
				if err != nil {
					return withCode(exitDB, err)
				}
				if report != "" {
					if err := writeReport(report, func(w io.Writer) error { return services.WriteMigrationReport(w, res) }); err != nil {
						return err
					}
				}
				return writeJSONLine(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&report, "report", "", "Also write the mapping to this .xlsx file")
	cmd.Flags().BoolVar(&noHierarchy, "no-hierarchy", false, "Preview without re-pointing children")
	return cmd
}

func newValidateCmd(g *globalOptions) *cobra.Command {
	var report string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check for legacy ids, duplicates and orphaned parents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), g, func(s *session) error {
				res, err := s.module.Migrator.ValidateMigration(s.ctx)
				if err != nil {
					return withCode(exitDB, err)
				}
				if report != "" {
					if err := writeReport(report, func(w io.Writer) error { return services.WriteValidationReport(w, res) }); err != nil {
						return err
					}
				}
				if err := writeJSONLine(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.IsValid {
					return withCode(exitValidation, fmt.Errorf(
						"validation failed: legacy=%d duplicates=%d orphans=%d",
						len(res.LegacyIDs), len(res.DuplicateIDs), len(res.Orphans),
					))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&report, "report", "", "Also write offending ids to this .xlsx file")
	return cmd
}

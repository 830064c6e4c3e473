package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/drydock-pm/drydock/modules/workitems/infrastructure/persistence"
)

func newSchemaCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the work_items table (postgres only)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPostgres(cmd, g, func(s *session) error {
				applied, err := persistence.MigrateUp(s.ctx, s.pool)
				if err != nil {
					return withCode(exitDBWrite, err)
				}
				return writeJSONLine(cmd.OutOrStdout(), map[string]any{"status": "applied", "versions": applied})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List schema migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPostgres(cmd, g, func(s *session) error {
				statuses, err := persistence.SchemaStatus(s.ctx, s.pool)
				if err != nil {
					return withCode(exitDB, err)
				}
				return writeJSONLine(cmd.OutOrStdout(), statuses)
			})
		},
	})
	return cmd
}

func withPostgres(cmd *cobra.Command, g *globalOptions, fn func(s *session) error) error {
	if g.store == storeMemory {
		return withCode(exitUsage, errors.New("schema commands need --store=postgres"))
	}
	return withSession(cmd.Context(), g, fn)
}

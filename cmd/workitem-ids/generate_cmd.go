package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drydock-pm/drydock/modules/workitems/services"
)

func newGenerateCmd(g *globalOptions) *cobra.Command {
	var (
		projectID string
		date      string
		count     int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Preview the next DD/MM/YY/NNN ids for a project (does not insert)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(projectID) == "" {
				return withCode(exitUsage, errors.New("--project is required"))
			}
			if count < 1 {
				return withCode(exitUsage, fmt.Errorf("--count must be at least 1, got %d", count))
			}
			return withSession(cmd.Context(), g, func(s *session) error {
				ref, err := parseRefDate(date, s.opts.Location())
				if err != nil {
					return err
				}

				var ids []string
				if count == 1 {
					id, err := s.module.Allocator.GenerateOne(s.ctx, projectID, ref)
					if err != nil {
						return withCode(exitDB, err)
					}
					ids = []string{id}
				} else {
					ids, err = s.module.Allocator.GenerateBatch(s.ctx, projectID, count, ref)
					if errors.Is(err, services.ErrBucketExhausted) {
						return withCode(exitValidation, err)
					}
					if err != nil {
						return withCode(exitDB, err)
					}
				}
				return writeJSONLine(cmd.OutOrStdout(), generateSummary{ProjectID: projectID, IDs: ids})
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project id (required)")
	cmd.Flags().StringVar(&date, "date", "", "Bucket day as YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&count, "count", 1, "How many ids to preview")
	return cmd
}

type generateSummary struct {
	ProjectID string   `json:"project_id"`
	IDs       []string `json:"ids"`
}

// parseRefDate returns noon of the given day in loc, or the zero time for "today".
func parseRefDate(date string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(date) == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, withCode(exitUsage, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date))
	}
	return t.Add(12 * time.Hour), nil
}

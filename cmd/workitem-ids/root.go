package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drydock-pm/drydock/pkg/prompt"
)

func newRootCmd(p prompt.Prompter) *cobra.Command {
	var g globalOptions

	cmd := &cobra.Command{
		Use:           "workitem-ids",
		Short:         "Allocate DD/MM/YY/NNN work item ids and migrate legacy ids",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.store, "store", storePostgres, "Store backend: postgres or memory")
	cmd.PersistentFlags().StringVar(&g.statePath, "state", "", "JSON state file loaded and saved by --store=memory")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level for progress output on stderr")

	if p == nil {
		p = defaultPrompter()
	}

	cmd.AddCommand(newAnalyzeCmd(&g))
	cmd.AddCommand(newBackupCmd(&g))
	cmd.AddCommand(newDryRunCmd(&g))
	cmd.AddCommand(newMigrateCmd(&g, p))
	cmd.AddCommand(newValidateCmd(&g))
	cmd.AddCommand(newRecommendCmd(&g))
	cmd.AddCommand(newGenerateCmd(&g))
	cmd.AddCommand(newSchemaCmd(&g))
	return cmd
}

// defaultPrompter prompts only when stdin is a terminal.
func defaultPrompter() prompt.Prompter {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return &prompt.NoopPrompter{}
	}
	return prompt.NewHuhPrompter()
}

// withSession opens the store for one command and always closes it.
func withSession(ctx context.Context, g *globalOptions, fn func(s *session) error) (err error) {
	s, err := openSession(ctx, *g)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := s.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()
	return fn(s)
}

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(nil).ExecuteContext(ctx); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		cancel()
		os.Exit(code)
	}
}

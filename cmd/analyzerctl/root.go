package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"interview-analyzer/internal/bootstrap"
)

type appBuilder func(ctx context.Context) (*bootstrap.App, error)

type commandContext struct {
	build    appBuilder
	lockFlag *string
	jsonFlag *bool

	appOnce sync.Once
	app     *bootstrap.App
	appErr  error
}

func newRootCommand(build appBuilder) *cobra.Command {
	var lockFlag string
	var jsonFlag bool

	ctx := &commandContext{
		build:    build,
		lockFlag: &lockFlag,
		jsonFlag: &jsonFlag,
	}

	rootCmd := &cobra.Command{
		Use:           "analyzerctl",
		Short:         "Operate the interview analysis orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&lockFlag, "lock-file", "", "Path to the scan lock file")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newEnqueueCommand(ctx))
	rootCmd.AddCommand(newDrainCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newEvaluationsCommand(ctx))
	rootCmd.AddCommand(newInventoryCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand())

	return rootCmd
}

func (c *commandContext) ensureApp(ctx context.Context) (*bootstrap.App, error) {
	c.appOnce.Do(func() {
		if c.build == nil {
			c.appErr = errors.New("application builder not configured")
			return
		}
		c.app, c.appErr = c.build(ctx)
	})
	return c.app, c.appErr
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

// withOrchestrator runs fn with the orchestrator's worker started and waits
// for it to stop afterwards.
func (c *commandContext) withOrchestrator(ctx context.Context, fn func(app *bootstrap.App) error) error {
	app, err := c.ensureApp(ctx)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	app.Orchestrator.Start(runCtx)
	defer func() {
		cancel()
		app.Orchestrator.Wait()
	}()
	return fn(app)
}

func (c *commandContext) lockPath() string {
	if c.lockFlag != nil && strings.TrimSpace(*c.lockFlag) != "" {
		return *c.lockFlag
	}
	return filepath.Join(os.TempDir(), "analyzerctl-scan.lock")
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/codemode/codemode/engine/sandbox"
	"github.com/codemode/codemode/engine/schedule"
	"github.com/codemode/codemode/engine/template"
	"github.com/codemode/codemode/engine/workflow"
	"github.com/codemode/codemode/pkg/config"
	"github.com/codemode/codemode/pkg/logger"
)

func testrunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testrun <template-id>",
		Short: "Validate a template config and execute it once in a sandbox",
		Args:  cobra.ExactArgs(1),
		RunE:  runTestRun,
	}
	cmd.Flags().String("config", "{}", "JSON configuration overriding template defaults")
	cmd.Flags().String("repository", "", "repository id handed to capability proxies")
	return cmd
}

func runTestRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)
	ctx := logger.ContextWithLogger(cmd.Context(), log)

	rawConfig, _ := cmd.Flags().GetString("config")
	var userConfig map[string]any
	if err := json.Unmarshal([]byte(rawConfig), &userConfig); err != nil {
		return fmt.Errorf("invalid --config JSON: %w", err)
	}
	repositoryID, _ := cmd.Flags().GetString("repository")

	store := template.NewFSStore(afero.NewOsFs(), cfg.Catalog.TemplateDir)
	catalog := template.NewCatalog(store, template.NewValidator())
	manager := sandbox.NewManager(sandbox.NewLocalBackend(), sandbox.NewStaticResolver(), sandbox.Config{
		MaxPoolSize: cfg.Sandbox.MaxPoolSize,
		MaxAge:      cfg.Sandbox.MaxAge,
		ExecTimeout: cfg.Sandbox.ExecTimeout,
	})
	svc := workflow.NewService(catalog, schedule.NewStandardParser(), manager, cfg.Schedule.Timezone)

	result, err := svc.TestRun(ctx, args[0], userConfig, repositoryID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

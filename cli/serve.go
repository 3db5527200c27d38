package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/codemode/codemode/engine/core"
	"github.com/codemode/codemode/engine/sandbox"
	"github.com/codemode/codemode/engine/schedule"
	"github.com/codemode/codemode/engine/template"
	"github.com/codemode/codemode/engine/webhook"
	"github.com/codemode/codemode/engine/workflow"
	"github.com/codemode/codemode/pkg/config"
	"github.com/codemode/codemode/pkg/logger"
	"github.com/codemode/codemode/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the workflow engine service",
		RunE:  runServe,
	}
}

func newLogger(cmd *cobra.Command, cfg *config.Config) logger.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = cfg.Log.Level
	}
	jsonOut, _ := cmd.Flags().GetBool("log-json")
	return logger.NewLogger(&logger.Config{
		Level:      logger.LogLevel(level),
		JSON:       jsonOut || cfg.Log.JSON,
		TimeFormat: "15:04:05",
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.ContextWithLogger(ctx, log)

	// Composition root: every component is constructed and injected here;
	// nothing is a process-wide singleton.
	store := template.NewFSStore(afero.NewOsFs(), cfg.Catalog.TemplateDir)
	catalog := template.NewCatalog(store, template.NewValidator())
	if err := catalog.Initialize(ctx); err != nil {
		return err
	}

	manager := sandbox.NewManager(sandbox.NewLocalBackend(), sandbox.NewStaticResolver(), sandbox.Config{
		MaxPoolSize:     cfg.Sandbox.MaxPoolSize,
		MaxAge:          cfg.Sandbox.MaxAge,
		CleanupInterval: cfg.Sandbox.CleanupInterval,
		ExecTimeout:     cfg.Sandbox.ExecTimeout,
	})
	manager.StartCleanup(ctx)
	defer manager.Stop()

	registry := workflow.NewRegistry()
	execute := executionTrigger(registry, catalog, manager)

	parser := schedule.NewStandardParser()
	scheduler := schedule.NewScheduler(parser, execute, cfg.Schedule.PollInterval,
		schedule.WithTimezone(cfg.Schedule.Timezone))
	scheduler.Start(ctx)
	defer scheduler.Stop()

	metrics, err := webhook.NewMetrics(otel.GetMeterProvider().Meter("codemode/webhook"))
	if err != nil {
		return err
	}
	webhooks := webhook.NewService(cfg.Server.BaseURL, func(ctx context.Context, event webhook.Event) {
		execute(ctx, event.WorkflowID, core.MustNewID())
	}, metrics)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return server.New(addr, catalog, scheduler, webhooks, log).Run(ctx)
}

// executionTrigger resolves a workflow id to its code and declared
// capability servers, then runs it. Trigger outcome never propagates to
// the scheduler or webhook caller; it only lands in logs.
func executionTrigger(
	registry *workflow.Registry,
	catalog *template.Catalog,
	manager *sandbox.Manager,
) func(ctx context.Context, workflowID, executionID core.ID) {
	return func(ctx context.Context, workflowID, executionID core.ID) {
		log := logger.FromContext(ctx)
		wf, err := registry.Get(workflowID)
		if err != nil {
			log.Error("trigger for unknown workflow", "workflow_id", workflowID, "error", err)
			return
		}
		var mcpServers []string
		if tpl, err := catalog.Get(ctx, wf.TemplateID); err == nil {
			mcpServers = tpl.MCPServers
		}
		result := manager.ExecuteTemplate(ctx, executionID, wf.Code, wf.Config, mcpServers, wf.Owners.RepositoryID)
		registry.MarkExecuted(workflowID, time.Now())
		if result.Status == core.StatusFailed {
			log.Error("execution failed",
				"workflow_id", workflowID, "execution_id", executionID,
				"error", result.Error.Message, "retryable", result.Error.IsRetryable)
			return
		}
		log.Info("execution finished",
			"workflow_id", workflowID, "execution_id", executionID, "duration", result.Duration)
	}
}

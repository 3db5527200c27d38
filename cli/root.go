package cli

import (
	"github.com/spf13/cobra"
)

// RootCmd builds the codemode command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codemode",
		Short: "Template-driven workflow automation engine",
		Long: "codemode registers parameterized code templates, instantiates them " +
			"into workflows and runs them on cron schedules or verified webhooks " +
			"inside pooled execution sandboxes.",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("log-json", false, "emit JSON logs")
	root.AddCommand(serveCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(testrunCmd())
	return root
}

package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/codemode/codemode/engine/template"
	"github.com/codemode/codemode/pkg/logger"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <template-dir>",
		Short: "Validate every template under a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	log := logger.NewLogger(logger.DefaultConfig())
	ctx := logger.ContextWithLogger(cmd.Context(), log)
	store := template.NewFSStore(afero.NewOsFs(), args[0])
	templates, err := store.LoadAll(ctx)
	if err != nil {
		return err
	}
	validator := template.NewValidator()
	failed := 0
	for _, tpl := range templates {
		result := validator.Validate(tpl)
		if result.Valid {
			fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%d warnings)\n", tpl.ID, len(result.Warnings))
			continue
		}
		failed++
		fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n", tpl.ID)
		for _, e := range result.Errors {
			if e.Line > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s (line %d, col %d)\n", e.Type, e.Message, e.Line, e.Column)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s\n", e.Type, e.Message)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d templates failed validation", failed, len(templates))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d templates valid\n", len(templates))
	return nil
}

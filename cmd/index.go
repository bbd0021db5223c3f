package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <url>",
		Short: "Re-index a single page without starting the HTTP server",
		Args:  cobra.ExactArgs(1),
		RunE:  runIndexCommand,
	}
	return cmd
}

func runIndexCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ok, err := appInstance.Coordinator().IndexPage(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("index page: %w", err)
	}
	if !ok {
		appInstance.Logger().Warn("url outside configured sites", zap.String("url", args[0]))
		return fmt.Errorf("url is outside configured sites: %s", args[0])
	}
	appInstance.Logger().Info("page indexed", zap.String("url", args[0]))
	return nil
}

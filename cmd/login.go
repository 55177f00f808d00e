package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/internal/browser"
)

// newLoginCmd creates the `login` command: establish a session interactively
// and persist it for later headless runs.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in interactively and persist the session for headless runs",
		Long: `Opens a visible browser window on the login page and waits for you to
sign in. Once the logged-in state is detected, the session (cookies and web
storage) is saved so collect and scrape can run headless afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := *appConfig
			// The operator has to see the window to log in.
			cfg.Browser.Headless = false

			rt, err := newRuntime(ctx, &cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			page, err := rt.manager.NewPage(ctx)
			if err != nil {
				return err
			}
			defer page.Close(browser.Detach(ctx))

			if err := rt.auth.EnsureAuthenticated(ctx, page); err != nil {
				return err
			}

			rt.logger.Info("Login complete; session persisted.",
				zap.String("path", cfg.Auth.SessionPath))
			return nil
		},
	}
}

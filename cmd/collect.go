package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/internal/browser"
	"github.com/kestrelmoor/harvester-cli/internal/collect"
	"github.com/kestrelmoor/harvester-cli/internal/extract"
	"github.com/kestrelmoor/harvester-cli/internal/output"
	"github.com/kestrelmoor/harvester-cli/internal/recipe"
)

// newCollectCmd creates the `collect` command: walk the saved-jobs listing
// and write the deduplicated job URLs to a file.
func newCollectCmd() *cobra.Command {
	collectCmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect item URLs from the paginated saved-jobs listing",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("collect.output", cmd.Flags().Lookup("output")); err != nil {
				return err
			}
			if err := viper.BindPFlag("collect.max_pages", cmd.Flags().Lookup("max-pages")); err != nil {
				return err
			}
			return viper.BindPFlag("collect.listing_url", cmd.Flags().Lookup("listing"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := appConfig
			cfg.Collect.Output = viper.GetString("collect.output")
			cfg.Collect.MaxPages = viper.GetInt("collect.max_pages")
			cfg.Collect.ListingURL = viper.GetString("collect.listing_url")

			rt, err := newRuntime(ctx, cfg)
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
			if err := page.Navigate(ctx, cfg.Collect.ListingURL); err != nil {
				return err
			}

			extractor, err := extract.New(page, cfg.Extract, rt.sink, cfg.Collect.ListingURL, rt.logger)
			if err != nil {
				return err
			}
			source, err := recipe.NewSavedJobsSource(page, extractor, cfg.Collect, rt.logger)
			if err != nil {
				return err
			}
			source.DismissOverlays(ctx)

			collector, err := collect.NewCollector(cfg.Collect, rt.sink, rt.logger)
			if err != nil {
				return err
			}

			urls, err := collector.Collect(ctx, source, cfg.Collect.ListingURL)
			if err != nil {
				return err
			}

			if err := output.WriteURLList(urls, cfg.Collect.Output); err != nil {
				return err
			}
			rt.logger.Info("URL list written.",
				zap.String("path", cfg.Collect.Output),
				zap.Int("urls", len(urls)))
			return nil
		},
	}

	collectCmd.Flags().StringP("output", "o", "saved_job_urls.txt", "file to write collected URLs to")
	collectCmd.Flags().Int("max-pages", 25, "maximum listing pages to walk (0 = unlimited)")
	collectCmd.Flags().String("listing", "", "listing URL to collect from (defaults to the saved-jobs page)")
	return collectCmd
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/internal/orchestrator"
	"github.com/kestrelmoor/harvester-cli/internal/output"
	"github.com/kestrelmoor/harvester-cli/internal/recipe"
)

// newScrapeCmd creates the `scrape` command: visit each target URL and
// write the extracted job records as a JSON array.
func newScrapeCmd() *cobra.Command {
	scrapeCmd := &cobra.Command{
		Use:   "scrape [targets...]",
		Short: "Scrape job details from target URLs into a JSON file",
		Long: `Scrapes every target URL with the job details recipe. Targets come from
the command line, or from a newline-delimited file via --input (typically
the output of collect). Duplicate targets are scraped once.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("scrape.input", cmd.Flags().Lookup("input")); err != nil {
				return err
			}
			if err := viper.BindPFlag("scrape.output", cmd.Flags().Lookup("output")); err != nil {
				return err
			}
			if err := viper.BindPFlag("scrape.concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			return viper.BindPFlag("scrape.target_delay", cmd.Flags().Lookup("delay"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := appConfig
			cfg.Scrape.Input = viper.GetString("scrape.input")
			cfg.Scrape.Output = viper.GetString("scrape.output")
			cfg.Scrape.Concurrency = viper.GetInt("scrape.concurrency")
			cfg.Scrape.TargetDelay = viper.GetDuration("scrape.target_delay")
			if err := cfg.Validate(); err != nil {
				return err
			}

			targets := args
			if cfg.Scrape.Input != "" {
				fromFile, err := output.ReadURLList(cfg.Scrape.Input)
				if err != nil {
					return err
				}
				targets = append(targets, fromFile...)
			}
			if len(targets) == 0 {
				return fmt.Errorf("no targets: pass URLs as arguments or a list via --input")
			}

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			orch, err := orchestrator.New(&pageFactory{manager: rt.manager}, rt.auth, cfg, rt.sink, rt.logger)
			if err != nil {
				return err
			}

			records, runErr := orch.ScrapeAll(ctx, targets, recipe.NewJobDetails())

			// Write whatever was scraped even when the run aborted, so a
			// rate-limited run does not lose its partial results.
			if len(records) > 0 || runErr == nil {
				if err := output.WriteRecords(records, cfg.Scrape.Output); err != nil {
					return err
				}
				rt.logger.Info("Records written.",
					zap.String("path", cfg.Scrape.Output),
					zap.Int("records", len(records)))
			}
			return runErr
		},
	}

	scrapeCmd.Flags().StringP("input", "i", "", "newline-delimited file of target URLs")
	scrapeCmd.Flags().StringP("output", "o", "records.json", "file to write scraped records to")
	scrapeCmd.Flags().Int("concurrency", 1, "number of parallel browser tabs")
	scrapeCmd.Flags().Duration("delay", 0, "minimum delay between target visits")
	return scrapeCmd
}

// Command polly-merge polls open Bitbucket Server pull requests authored by
// the token's user and merges those whose description or comments carry a
// "@polly merge" or "@polly merge-after <pr-url>" directive.
//
// It is meant to be run from cron or another scheduler; every invocation
// is a single pass with no state kept between runs.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nhle/polly-merge/internal/command"
	"github.com/nhle/polly-merge/internal/config"
	"github.com/nhle/polly-merge/internal/merger"
	"github.com/nhle/polly-merge/internal/report"
	"github.com/nhle/polly-merge/internal/source/bitbucket"
	"github.com/nhle/polly-merge/internal/ui/progress"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "polly-merge",
		Short: "Merge Bitbucket pull requests that ask for it with @polly",
		Long: `polly-merge merges your open Bitbucket Server pull requests whose
description or comments contain one of:

  @polly merge                    merge now
  @polly merge-after <pr-url>     merge once <pr-url> is merged

Settings come from POLLY_MERGE_* environment variables (a .env file in the
working directory is read too), an optional --config YAML file, and flags.
POLLY_MERGE_BITBUCKET_API_TOKEN and POLLY_MERGE_BITBUCKET_URL are required.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Options{
				ConfigFile: configFile,
				EnvFile:    ".env",
				Flags:      cmd.Flags(),
			})
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.String("url", "", "Bitbucket Server base URL (POLLY_MERGE_BITBUCKET_URL)")
	flags.String("trigger", config.DefaultTrigger, "directive prefix (POLLY_MERGE_TRIGGER_COMMENT)")
	flags.String("log-file", "", "append result lines to this file instead of stdout (POLLY_MERGE_LOG_FILE)")
	flags.Duration("timeout", config.DefaultTimeout, "per-request timeout (POLLY_MERGE_TIMEOUT)")
	flags.Int("page-size", config.DefaultPageSize, "page size for paginated API calls (POLLY_MERGE_PAGE_SIZE)")
	flags.Bool("dry-run", false, "report what would be merged without merging (POLLY_MERGE_DRY_RUN)")
	flags.BoolP("verbose", "v", false, "log diagnostics to stderr (POLLY_MERGE_VERBOSE)")

	return cmd
}

// run performs one pass. Result lines go to stdout (or the log file) and
// progress to stderr. Only setup and listing errors are returned.
func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	out := stdout
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		out = f
	}

	runID := uuid.New().String()

	logf := func(string, ...interface{}) {}
	if cfg.Verbose {
		diag := log.New(stderr, "polly-merge: ", log.LstdFlags)
		logf = func(format string, args ...interface{}) {
			diag.Printf("[%s] "+format, append([]interface{}{runID[:8]}, args...)...)
		}
	}

	parser := command.NewParser(cfg.TriggerComment)
	logf("run %s against %s (trigger @%s)", runID, cfg.BitbucketURL, parser.Trigger())

	adapter := bitbucket.NewAdapter(cfg.BitbucketURL, cfg.APIToken, bitbucket.Options{
		Timeout:  cfg.Timeout,
		PageSize: cfg.PageSize,
	})
	runner := merger.New(adapter, parser, merger.Options{
		DryRun: cfg.DryRun,
		Logf:   logf,
	})

	ind := progress.Start(stderr, "Loading open PRs")
	prs, err := runner.List(ctx)
	if err != nil {
		ind.Fail()
		return err
	}
	ind.Succeed()

	ind = progress.Start(stderr, "Checking PRs for merge comment")
	results := runner.ProcessAll(ctx, prs)
	ind.Succeed()

	report.New(out).Results(results)

	s := report.Summarize(results)
	logf("checked %d PR(s): %d merged, %d deferred, %d skipped, %d failed",
		len(prs), s.Merged, s.Deferred, s.Skipped, s.Failed)

	return ctx.Err()
}

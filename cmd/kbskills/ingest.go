// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Stellven/KBSkills/internal/httputil"
	"github.com/Stellven/KBSkills/internal/ingest"
	"github.com/Stellven/KBSkills/internal/resilience"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest local files and web pages into the knowledge base",
	Long: `Ingest loads text files from a directory (--dir) and web pages listed one
per line in a file (--urls), splits them into chunks, embeds them, and
indexes them in the knowledge base. Re-ingesting a source replaces it.

With --watch, ingest keeps running after the first pass and re-indexes files
under --dir as they change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		urls, _ := cmd.Flags().GetString("urls")
		include, _ := cmd.Flags().GetStringSlice("include")
		watch, _ := cmd.Flags().GetBool("watch")

		if dir == "" && urls == "" {
			return fmt.Errorf("provide at least one of --dir or --urls")
		}
		if watch && dir == "" {
			return fmt.Errorf("--watch requires --dir")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := openServices(ctx, viper.GetViper())
		if err != nil {
			return err
		}
		defer svc.Close()

		if len(include) == 0 {
			include = svc.cfg.Ingest.Include
		}
		out := cmd.OutOrStdout()
		fetcher := ingest.NewWebFetcher(httputil.NewClient(svc.cfg.Ingest.HTTPConfig), svc.logger)
		loader := ingest.NewLoader(include, svc.logger)
		policy := resilience.NewPolicy(resilience.OpGraphInsert, svc.cfg.Retry)
		pipeline := ingest.NewPipeline(svc.store, fetcher, loader, policy, svc.logger, out)

		summary, err := pipeline.Ingest(ctx, dir, urls)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nIngestion complete: %d indexed, %d skipped, %d failed\n",
			summary.Indexed, summary.Skipped, summary.Failed)

		if !watch {
			return nil
		}
		w, err := ingest.NewWatcher(dir, svc.cfg.Ingest.DebounceDelay, pipeline, svc.logger)
		if err != nil {
			return err
		}
		w.OnFlush = func(s ingest.Summary) {
			fmt.Fprintf(out, "re-indexed: %d indexed, %d failed\n", s.Indexed, s.Failed)
		}
		fmt.Fprintf(out, "Watching %s for changes (Ctrl-C to stop)\n", dir)
		return w.Run(ctx)
	},
}

func init() {
	ingestCmd.Flags().String("dir", "", "local directory to ingest")
	ingestCmd.Flags().String("urls", "", "text file containing URLs, one per line")
	ingestCmd.Flags().StringSlice("include", nil, "doublestar glob selecting files under --dir (repeatable)")
	ingestCmd.Flags().Bool("watch", false, "keep watching --dir and re-index changed files")

	rootCmd.AddCommand(ingestCmd)
}

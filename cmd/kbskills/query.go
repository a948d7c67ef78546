// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Stellven/KBSkills/internal/agent"
	"github.com/Stellven/KBSkills/internal/metrics"
	"github.com/Stellven/KBSkills/internal/resilience"
	"github.com/Stellven/KBSkills/internal/skills"
	"github.com/Stellven/KBSkills/pkg/types"
)

var queryCmd = &cobra.Command{
	Use:   "query TOPIC",
	Short: "Generate an outline for a topic from the knowledge base",
	Long: `Query decomposes TOPIC into sub-topics, activates matching thinking skills,
retrieves knowledge for every sub-topic, identifies the concerns the
knowledge base emphasizes, and writes a markdown outline to the output
directory (or to --output).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := args[0]
		output, _ := cmd.Flags().GetString("output")
		modeFlag, _ := cmd.Flags().GetString("mode")
		stats, _ := cmd.Flags().GetBool("stats")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := openServices(ctx, viper.GetViper())
		if err != nil {
			return err
		}
		defer svc.Close()

		if modeFlag == "" {
			modeFlag = svc.cfg.DefaultSearchMode
		}
		mode, err := types.ParseSearchMode(modeFlag)
		if err != nil {
			return err
		}

		all, err := skills.NewLoader(svc.cfg.SkillMatchDefaultThreshold, svc.logger).Load(svc.cfg.SkillsDir)
		if err != nil {
			return err
		}

		recorder := metrics.NewRecorder()
		retry := resilience.NewPolicy("", svc.cfg.Retry)
		retry.Notify = recorder.ObserveRetry
		retry.Logger = svc.logger

		matcher := skills.NewMatcher(svc.ai, svc.cfg.SkillMatchTopK,
			skills.WithPolicy(retry.WithOperation(resilience.OpEmbedding)),
			skills.WithLogger(svc.logger))

		out := cmd.OutOrStdout()
		orchestrator := agent.New(agent.Config{
			Generator: svc.ai,
			Retriever: svc.store,
			Matcher:   matcher,
			Skills:    all,
			Mode:      mode,
			Workers:   svc.cfg.RetrieveWorkers,
			Retry:     retry,
			Observer:  recorder,
			Logger:    svc.logger,
			Progress:  out,
		})

		res, runErr := orchestrator.Run(ctx, topic)
		if stats {
			defer printStats(out, recorder)
		}
		if runErr != nil {
			return runErr
		}

		path, err := agent.SaveOutline(svc.cfg.OutputDir, topic, res.Document, output, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nOutline generated: %s\n", path)
		if res.FailedQueries > 0 {
			fmt.Fprintf(out, "%d of %d sub-topic queries failed; the outline uses the rest\n",
				res.FailedQueries, len(res.SubTopics))
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringP("output", "o", "", "output file path (default: generated in the output directory)")
	queryCmd.Flags().String("mode", "", "search mode: naive, local, global, hybrid (default: from config)")
	queryCmd.Flags().Bool("stats", false, "print retry counts and stage timings after the run")

	rootCmd.AddCommand(queryCmd)
}

func printStats(w io.Writer, r *metrics.Recorder) {
	lines, err := r.Summary()
	if err != nil {
		fmt.Fprintf(w, "stats unavailable: %v\n", err)
		return
	}
	fmt.Fprintln(w, "\nRun statistics:")
	for _, line := range lines {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

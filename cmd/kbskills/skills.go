// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Stellven/KBSkills/internal/resilience"
	"github.com/Stellven/KBSkills/internal/skills"
	"github.com/Stellven/KBSkills/pkg/types"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect thinking skills",
	Long: `Skills lists the thinking skills in the skills directory, shows one in
detail, or tests which skills a topic would activate without running a
query.`,
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available skills",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		results, err := skills.NewLoader(cfg.SkillMatchDefaultThreshold, slog.Default()).LoadDir(cfg.SkillsDir)
		if err != nil {
			return err
		}
		printSkillList(cmd.OutOrStdout(), results)
		return nil
	},
}

var skillsShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show details of a skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		all, err := skills.NewLoader(cfg.SkillMatchDefaultThreshold, slog.Default()).Load(cfg.SkillsDir)
		if err != nil {
			return err
		}
		skill, ok := skills.Find(all, args[0])
		if !ok {
			return fmt.Errorf("skill %q not found in %s", args[0], cfg.SkillsDir)
		}
		printSkill(cmd.OutOrStdout(), skill)
		return nil
	},
}

var skillsMatchCmd = &cobra.Command{
	Use:   "match TOPIC",
	Short: "Show which skills a topic activates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices(cmd.Context(), viper.GetViper())
		if err != nil {
			return err
		}
		defer svc.Close()

		all, err := skills.NewLoader(svc.cfg.SkillMatchDefaultThreshold, svc.logger).Load(svc.cfg.SkillsDir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(all) == 0 {
			fmt.Fprintln(out, "No skills found.")
			return nil
		}

		matcher := skills.NewMatcher(svc.ai, svc.cfg.SkillMatchTopK,
			skills.WithPolicy(resilience.NewPolicy(resilience.OpEmbedding, svc.cfg.Retry)),
			skills.WithLogger(svc.logger))
		matches, err := matcher.Match(cmd.Context(), args[0], all)
		if err != nil {
			return err
		}
		printMatches(out, args[0], matches)
		return nil
	},
}

func init() {
	skillsCmd.AddCommand(skillsListCmd, skillsShowCmd, skillsMatchCmd)
	rootCmd.AddCommand(skillsCmd)
}

func printSkillList(w io.Writer, results []skills.FileResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No skills found. Add YAML files to the skills directory.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDISPLAY NAME\tVERSION\tDESCRIPTION\tDOMAINS")
	var skipped []skills.FileResult
	for _, r := range results {
		if r.Skipped() {
			skipped = append(skipped, r)
			continue
		}
		m := r.Skill.Metadata
		domains := m.Trigger.Domains
		if len(domains) > 3 {
			domains = domains[:3]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Name, m.DisplayName, m.Version, m.Description, strings.Join(domains, ", "))
	}
	tw.Flush()
	for _, r := range skipped {
		fmt.Fprintf(w, "skipped %s: %v\n", r.Path, r.Err)
	}
}

func printSkill(w io.Writer, s types.Skill) {
	m := s.Metadata
	fmt.Fprintf(w, "%s (v%s)\n", m.DisplayName, m.Version)
	if m.Description != "" {
		fmt.Fprintf(w, "%s\n", m.Description)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Trigger domains: %s\n", strings.Join(m.Trigger.Domains, ", "))
	fmt.Fprintf(w, "Keywords:        %s\n", strings.Join(m.Trigger.Keywords, ", "))
	if len(m.Trigger.IntentPatterns) > 0 {
		fmt.Fprintf(w, "Intent patterns: %s\n", strings.Join(m.Trigger.IntentPatterns, ", "))
	}
	fmt.Fprintf(w, "Threshold:       %.2f\n", m.Trigger.Threshold)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Thinking framework:")
	fmt.Fprintln(w, s.ThinkingFramework.Description)
	if len(s.ThinkingFramework.Steps) > 0 {
		fmt.Fprintln(w, "\nSteps:")
		for i, step := range s.ThinkingFramework.Steps {
			fmt.Fprintf(w, "  %d. %s\n", i+1, step.Name)
		}
	}
	if len(s.Tools) > 0 {
		fmt.Fprintln(w, "\nTools:")
		for _, t := range s.Tools {
			fmt.Fprintf(w, "  - %s: %s\n", t.Name, t.Description)
		}
	}
}

func printMatches(w io.Writer, topic string, matches []types.SkillMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No skills matched for this topic.")
		return
	}
	fmt.Fprintf(w, "Skill matches for: %s\n\n", topic)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SKILL\tSCORE\tMATCHED DOMAINS\tMATCHED KEYWORDS")
	for _, m := range matches {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\n", m.Skill.Metadata.DisplayName, m.Score,
			strings.Join(m.MatchedDomains, ", "), strings.Join(m.MatchedKeywords, ", "))
	}
	tw.Flush()
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Stellven/KBSkills/internal/knowledge"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge base status",
	Long: `Status reports the knowledge base location, how many documents and chunks
it holds, how many chunks carry embeddings, and its size on disk. With
--export it also writes the document list to a YAML or JSON file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		kb := cfg.KnowledgeBase()

		if _, err := os.Stat(knowledge.DatabasePath(kb.Dir)); os.IsNotExist(err) {
			fmt.Fprintf(out, "Knowledge base not initialized at %s; run 'kbskills ingest' first\n", kb.Dir)
			return nil
		}

		store, err := knowledge.NewStore(kb, nil, slog.Default())
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := store.Status(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(out, st, cfg.DefaultSearchMode)

		if path, _ := cmd.Flags().GetString("export"); path != "" {
			if err := store.Export(cmd.Context(), path); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nExported documents to %s\n", path)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("export", "", "write the document list to this file (.json for JSON, otherwise YAML)")

	rootCmd.AddCommand(statusCmd)
}

func printStatus(w io.Writer, st knowledge.Status, mode string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tVALUE")
	fmt.Fprintf(tw, "path\t%s\n", st.Path)
	fmt.Fprintf(tw, "initialized\t%t\n", st.Initialized())
	fmt.Fprintf(tw, "documents\t%d\n", st.Documents)
	fmt.Fprintf(tw, "chunks\t%d\n", st.Chunks)
	fmt.Fprintf(tw, "embedded chunks\t%d\n", st.EmbeddedChunks)
	fmt.Fprintf(tw, "size\t%s\n", st.Size())
	fmt.Fprintf(tw, "default search mode\t%s\n", mode)
	tw.Flush()
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//go:embed examples/*.yaml
var exampleSkills embed.FS

const defaultConfigFile = "kbskills.yaml"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the configuration and create the project directories",
	Long: `Init saves the configuration (including the Gemini API key when given)
to kbskills.yaml, creates the data, output, and skills directories, and
installs the bundled example skills when the skills directory has none.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey, _ := cmd.Flags().GetString("api-key")
		if apiKey != "" {
			viper.Set("gemini_api_key", apiKey)
		}
		path := viper.ConfigFileUsed()
		if path == "" {
			path = defaultConfigFile
		}
		return initProject(viper.GetViper(), path, cmd.OutOrStdout())
	},
}

func init() {
	initCmd.Flags().String("api-key", "", "Gemini API key to store in the config file")

	rootCmd.AddCommand(initCmd)
}

// initProject creates the configured directories, installs example skills,
// and writes v to path.
func initProject(v *viper.Viper, path string, w io.Writer) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	for _, dir := range []string{cfg.DataDir, cfg.KnowledgeDir(), cfg.OutputDir, cfg.SkillsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	n, err := installExampleSkills(cfg.SkillsDir)
	if err != nil {
		return err
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(w, "Configuration saved to %s\n", path)
	fmt.Fprintf(w, "Data directory:   %s\n", cfg.DataDir)
	fmt.Fprintf(w, "Skills directory: %s\n", cfg.SkillsDir)
	fmt.Fprintf(w, "Output directory: %s\n", cfg.OutputDir)
	if n > 0 {
		fmt.Fprintf(w, "Installed %d example skills\n", n)
	}
	if cfg.GeminiAPIKey == "" {
		fmt.Fprintln(w, "No Gemini API key configured; pass --api-key or set GEMINI_API_KEY")
	}
	return nil
}

// installExampleSkills copies the bundled skills into dir unless it already
// holds a skill file. It returns the number of files written.
func installExampleSkills(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading skills directory: %w", err)
	}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			return 0, nil
		}
	}

	examples, err := exampleSkills.ReadDir("examples")
	if err != nil {
		return 0, err
	}
	for _, e := range examples {
		data, err := exampleSkills.ReadFile("examples/" + e.Name())
		if err != nil {
			return 0, err
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name()), data, 0o644); err != nil {
			return 0, fmt.Errorf("installing skill %s: %w", e.Name(), err)
		}
	}
	return len(examples), nil
}

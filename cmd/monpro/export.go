package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/monpro/monpro/internal/schema"
	"github.com/monpro/monpro/internal/ui"
)

// exportDoc is the YAML export envelope.
type exportDoc struct {
	UserID   string            `yaml:"user_id"`
	Projects []*schema.Project `yaml:"projects"`
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "advanced",
	Short:   "Export all projects as YAML",
	Long: `Write the full project list as YAML to stdout or a file.

The export reflects what this client sees: the remote state when online,
the local cache (including unsynced changes) when not.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		projects, err := a.engine.LoadProjects(ctx)
		if err != nil {
			return err
		}

		doc := exportDoc{
			UserID:   a.cfg.UserID,
			Projects: projects,
		}

		out := os.Stdout
		outPath, _ := cmd.Flags().GetString("out")
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outPath, err)
			}
			defer f.Close()
			out = f
		}

		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode export: %w", err)
		}
		if err := enc.Close(); err != nil {
			return err
		}

		if outPath != "" {
			fmt.Fprintf(os.Stderr, "%s Exported %d project(s) to %s\n",
				ui.RenderPass("✓"), len(projects), outPath)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("out", "o", "", "Write to a file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

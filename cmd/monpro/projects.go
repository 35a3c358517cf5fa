package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/monpro/monpro/internal/schema"
	"github.com/monpro/monpro/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	GroupID: "projects",
	Aliases: []string{"p"},
	Short:   "Create, list, and manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a project",
	Long: `Create a project, remotely when the backend is reachable and queued
locally otherwise.

With no arguments an interactive form collects the details. Dates accept
natural language ("next friday", "in 2 weeks") as well as 2006-01-02.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		p := &schema.Project{}
		if len(args) > 0 {
			p.Name = args[0]
		}
		p.Description, _ = cmd.Flags().GetString("description")
		startStr, _ := cmd.Flags().GetString("start")
		endStr, _ := cmd.Flags().GetString("end")

		if p.Name == "" {
			if err := runProjectForm(p, &startStr, &endStr); err != nil {
				return err
			}
		}

		if p.StartDate, err = parseDate(startStr); err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
		if p.EndDate, err = parseDate(endStr); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}

		created, err := a.engine.CreateProject(ctx, p)
		if err != nil {
			return err
		}

		if created.Synced() {
			fmt.Printf("%s Created project %s (%s)\n", ui.RenderPass("✓"), ui.RenderBold(created.Name), created.ID)
		} else {
			fmt.Printf("%s Created project %s locally (%s)\n", ui.RenderWarn("⚠"), ui.RenderBold(created.Name), created.ClientRef)
			fmt.Printf("   Offline: the create is queued and will sync when the backend is reachable\n")
		}
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects, newest first",
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

		if !a.monitor.Online() {
			fmt.Printf("%s Offline: showing cached projects\n\n", ui.RenderWarn("⚠"))
		}
		if len(projects) == 0 {
			fmt.Println("No projects yet. Run 'monpro project create' to add one.")
			return nil
		}

		for _, p := range projects {
			marker := ui.RenderPass("●")
			if !p.Synced() {
				marker = ui.RenderWarn("○")
			}
			fmt.Printf("%s %s %s\n", marker, ui.RenderBold(p.Name), ui.RenderDim(p.Ref()))
			if p.Description != "" {
				fmt.Printf("   %s\n", p.Description)
			}
		}

		pending, err := a.engine.PendingCount(ctx)
		if err == nil && pending > 0 {
			fmt.Printf("\n%s %d operation(s) pending sync\n", ui.RenderWarn("⚠"), pending)
		}
		return nil
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <ref>",
	Short: "Show a project's details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := findProject(ctx, a, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("\n%s %s\n\n", ui.RenderAccent("▸"), ui.RenderBold(p.Name))
		fmt.Printf("Ref: %s\n", p.Ref())
		if !p.Synced() {
			fmt.Printf("Sync: %s\n", ui.RenderWarn("pending"))
		}
		if p.Description != "" {
			fmt.Printf("Description: %s\n", p.Description)
		}
		if p.Explanation != "" {
			fmt.Printf("Explanation: %s\n", p.Explanation)
		}
		if p.StartDate != nil {
			fmt.Printf("Start: %s\n", p.StartDate.Format("2006-01-02"))
		}
		if p.EndDate != nil {
			fmt.Printf("End: %s\n", p.EndDate.Format("2006-01-02"))
		}
		printList("Features", p.Features)
		printList("Technologies", p.Technologies)
		printList("Characteristics", p.Characteristics)
		if len(p.Links) > 0 {
			fmt.Println("Links:")
			for name, url := range p.Links {
				fmt.Printf("  %s: %s\n", name, url)
			}
		}

		// Tasks live only on the backend.
		if a.monitor.Online() && p.Synced() {
			tasks, err := a.gw.TasksForProject(ctx, p.ID)
			if err == nil && len(tasks) > 0 {
				progress := schema.SummarizeTasks(tasks)
				fmt.Printf("\nTasks (%d%% done):\n", progress.Percent())
				for _, t := range tasks {
					fmt.Printf("  [%s] %s\n", t.Status, t.Title)
				}
			}
		}
		fmt.Println()
		return nil
	},
}

var projectEditCmd = &cobra.Command{
	Use:   "edit <ref>",
	Short: "Edit a project",
	Long: `Edit a project's fields. Flags set individual fields; omitted flags
leave the field unchanged. Offline edits queue and replay later.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := findProject(ctx, a, args[0])
		if err != nil {
			return err
		}

		if v, _ := cmd.Flags().GetString("name"); v != "" {
			p.Name = v
		}
		if cmd.Flags().Changed("description") {
			p.Description, _ = cmd.Flags().GetString("description")
		}
		if cmd.Flags().Changed("explanation") {
			p.Explanation, _ = cmd.Flags().GetString("explanation")
		}
		if v, _ := cmd.Flags().GetString("start"); v != "" {
			if p.StartDate, err = parseDate(v); err != nil {
				return fmt.Errorf("invalid start date: %w", err)
			}
		}
		if v, _ := cmd.Flags().GetString("end"); v != "" {
			if p.EndDate, err = parseDate(v); err != nil {
				return fmt.Errorf("invalid end date: %w", err)
			}
		}
		if v, _ := cmd.Flags().GetStringSlice("feature"); len(v) > 0 {
			p.Features = append(p.Features, v...)
		}
		if v, _ := cmd.Flags().GetStringSlice("tech"); len(v) > 0 {
			p.Technologies = append(p.Technologies, v...)
		}

		updated, err := a.engine.EditProject(ctx, p)
		if err != nil {
			return err
		}

		if a.monitor.Online() && updated.Synced() {
			fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), ui.RenderBold(updated.Name))
		} else {
			fmt.Printf("%s Updated %s locally (sync pending)\n", ui.RenderWarn("⚠"), ui.RenderBold(updated.Name))
		}
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:     "delete <ref>",
	Aliases: []string{"rm"},
	Short:   "Delete a project",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := findProject(ctx, a, args[0])
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			var confirmed bool
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Delete project %q?", p.Name)).
				Description("Remote tasks are deleted with it.").
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Aborted")
				return nil
			}
		}

		if err := a.engine.DeleteProject(ctx, p.Ref()); err != nil {
			return err
		}

		if a.monitor.Online() || !p.Synced() {
			fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), p.Name)
		} else {
			fmt.Printf("%s Deleted %s locally (sync pending)\n", ui.RenderWarn("⚠"), p.Name)
		}
		return nil
	},
}

// runProjectForm collects project details interactively.
func runProjectForm(p *schema.Project, startStr, endStr *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project name").
				Value(&p.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Lines(3).
				Value(&p.Description),
			huh.NewInput().
				Title("Start date (optional, e.g. \"next monday\")").
				Value(startStr),
			huh.NewInput().
				Title("End date (optional)").
				Value(endStr),
		),
	)
	return form.Run()
}

// findProject resolves a ref against the cache, with a prefix fallback on
// name so "monpro project show blog" works.
func findProject(ctx context.Context, a *app, ref string) (*schema.Project, error) {
	p, err := a.engine.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	projects, err := a.engine.LoadProjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, candidate := range projects {
		if strings.EqualFold(candidate.Name, ref) ||
			strings.HasPrefix(strings.ToLower(candidate.Name), strings.ToLower(ref)) {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("no project matching %q", ref)
}

// parseDate accepts 2006-01-02 or natural language via the when parser.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if t, err := time.Parse("2006-01-02", s); err == nil {
		t = t.UTC()
		return &t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, time.Now())
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("could not understand %q", s)
	}
	t := r.Time.UTC()
	return &t, nil
}

func printList(label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("%s: %s\n", label, strings.Join(items, ", "))
}

func init() {
	projectCreateCmd.Flags().StringP("description", "d", "", "Project description")
	projectCreateCmd.Flags().String("start", "", "Start date")
	projectCreateCmd.Flags().String("end", "", "End date")

	projectEditCmd.Flags().String("name", "", "New name")
	projectEditCmd.Flags().StringP("description", "d", "", "New description")
	projectEditCmd.Flags().String("explanation", "", "New explanation")
	projectEditCmd.Flags().String("start", "", "New start date")
	projectEditCmd.Flags().String("end", "", "New end date")
	projectEditCmd.Flags().StringSlice("feature", nil, "Append a feature (repeatable)")
	projectEditCmd.Flags().StringSlice("tech", nil, "Append a technology (repeatable)")

	projectDeleteCmd.Flags().BoolP("force", "f", false, "Skip confirmation")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectEditCmd)
	projectCmd.AddCommand(projectDeleteCmd)
	rootCmd.AddCommand(projectCmd)
}

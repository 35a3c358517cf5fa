package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/monpro/monpro/internal/schema"
	"github.com/monpro/monpro/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "projects",
	Short:   "Manage a project's tasks",
	Long: `Manage a project's tasks.

Tasks live only on the backend and require connectivity; they are never
queued for offline replay.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add <project-ref> <title>",
	Short: "Add a task to a project",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.monitor.Online() {
			return fmt.Errorf("tasks require connectivity; the backend is unreachable")
		}

		p, err := findProject(ctx, a, args[0])
		if err != nil {
			return err
		}
		if !p.Synced() {
			return fmt.Errorf("project %q has not synced yet; tasks need a server-side project", p.Name)
		}

		task := &schema.Task{
			ProjectID: p.ID,
			Title:     strings.Join(args[1:], " "),
		}
		task.SetDefaults()

		created, err := a.gw.InsertTask(ctx, task)
		if err != nil {
			return err
		}

		fmt.Printf("%s Added task %s to %s (%s)\n",
			ui.RenderPass("✓"), ui.RenderBold(created.Title), p.Name, created.ID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list <project-ref>",
	Aliases: []string{"ls"},
	Short:   "List a project's tasks with progress",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.monitor.Online() {
			return fmt.Errorf("tasks require connectivity; the backend is unreachable")
		}

		p, err := findProject(ctx, a, args[0])
		if err != nil {
			return err
		}
		if !p.Synced() {
			return fmt.Errorf("project %q has not synced yet", p.Name)
		}

		tasks, err := a.gw.TasksForProject(ctx, p.ID)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Printf("No tasks in %s yet\n", p.Name)
			return nil
		}

		progress := schema.SummarizeTasks(tasks)
		fmt.Printf("\n%s %s  %s\n\n",
			ui.RenderAccent("▸"), ui.RenderBold(p.Name),
			ui.RenderDim(fmt.Sprintf("%d%% done (%d/%d)", progress.Percent(), progress.Done, progress.Total)))

		for _, t := range tasks {
			fmt.Printf("%s %s %s\n", statusMarker(t.Status), t.Title, ui.RenderDim(t.ID))
		}
		fmt.Println()
		return nil
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <task-id> <status>",
	Short: "Move a task between todo, in_progress, and done",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.monitor.Online() {
			return fmt.Errorf("tasks require connectivity; the backend is unreachable")
		}

		status := schema.TaskStatus(args[1])
		if !schema.ValidTaskStatus(status) {
			return fmt.Errorf("invalid status %q (want todo, in_progress, or done)", args[1])
		}

		if err := a.gw.UpdateTaskStatus(ctx, args[0], status); err != nil {
			return err
		}

		fmt.Printf("%s Moved task to %s\n", ui.RenderPass("✓"), status)
		return nil
	},
}

func statusMarker(status schema.TaskStatus) string {
	switch status {
	case schema.StatusDone:
		return ui.RenderPass("[x]")
	case schema.StatusInProgress:
		return ui.RenderAccent("[~]")
	default:
		return ui.RenderDim("[ ]")
	}
}

func init() {
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskMoveCmd)
	rootCmd.AddCommand(taskCmd)
}

package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	tasklinesdk "taskline/sdk/go"
)

func remoteClient() *tasklinesdk.Client {
	return tasklinesdk.New(viper.GetString("server"), viper.GetString("token"))
}

func loginCmd() *cobra.Command {
	var username, password, newPassword string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in against a running server and print the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := remoteClient().Login(cmd.Context(), username, password, newPassword)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": tok})
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "new password when a change is required")
	return cmd
}

func projectRows(items []tasklinesdk.Project) []table.Row {
	rows := make([]table.Row, 0, len(items))
	for _, p := range items {
		rows = append(rows, table.Row{p.ID, p.Name, p.Description, p.OwnerID, p.UpdatedAt})
	}
	return rows
}

var projectHeader = table.Row{"ID", "Name", "Description", "Owner", "Updated"}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{
		Use:   "project",
		Short: "Manage projects on a running server",
		Long:  "Projects are visible only to their owner. Creating, updating and deleting them requires the admin group.",
	}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectGetCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, info, err := remoteClient().ListProjects(cmd.Context(), page, limit)
			if err != nil {
				return err
			}
			if err := printJSONOrTable(items, projectHeader, projectRows(items)); err != nil {
				return err
			}
			if !viper.GetBool("json") {
				printPageInfo(info)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number (needs --limit)")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (needs --page)")
	return cmd
}

func projectGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one of your projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := remoteClient().GetProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOrTable(p, projectHeader, projectRows([]tasklinesdk.Project{p}))
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := remoteClient().CreateProject(cmd.Context(), name, desc)
			if err != nil {
				return err
			}
			return printJSONOrTable(p, projectHeader, projectRows([]tasklinesdk.Project{p}))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "project description")
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update project (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := remoteClient().UpdateProject(cmd.Context(), args[0], tasklinesdk.ProjectUpdate{
				Name:        optionalString(cmd, "name", name),
				Description: optionalString(cmd, "description", desc),
			})
			if err != nil {
				return err
			}
			return printJSONOrTable(p, projectHeader, projectRows([]tasklinesdk.Project{p}))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&desc, "description", "", "new description")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete project and every task referencing it (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := remoteClient().DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}
}

func taskRows(items []tasklinesdk.Task) []table.Row {
	rows := make([]table.Row, 0, len(items))
	for _, t := range items {
		rows = append(rows, table.Row{t.ID, t.Title, t.Status, t.ProjectID, t.UpdatedAt})
	}
	return rows
}

var taskHeader = table.Row{"ID", "Title", "Status", "Project", "Updated"}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks on a running server",
		Long:  "Tasks belong to their creator. Statuses are todo, in-progress and done. Deleting a task requires the admin group.",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, info, err := remoteClient().ListTasks(cmd.Context(), page, limit)
			if err != nil {
				return err
			}
			if err := printJSONOrTable(items, taskHeader, taskRows(items)); err != nil {
				return err
			}
			if !viper.GetBool("json") {
				printPageInfo(info)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number (needs --limit)")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (needs --page)")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one of your tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := remoteClient().GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOrTable(t, taskHeader, taskRows([]tasklinesdk.Task{t}))
		},
	}
}

func taskCreateCmd() *cobra.Command {
	var t tasklinesdk.Task
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := remoteClient().CreateTask(cmd.Context(), t)
			if err != nil {
				return err
			}
			return printJSONOrTable(created, taskHeader, taskRows([]tasklinesdk.Task{created}))
		},
	}
	cmd.Flags().StringVar(&t.Title, "title", "", "task title")
	cmd.Flags().StringVar(&t.Description, "description", "", "task description")
	cmd.Flags().StringVar(&t.Status, "status", "todo", "todo|in-progress|done")
	cmd.Flags().StringVar(&t.ProjectID, "project", "", "project id")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, desc, status, projectID string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update one of your tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := remoteClient().UpdateTask(cmd.Context(), args[0], tasklinesdk.TaskUpdate{
				Title:       optionalString(cmd, "title", title),
				Description: optionalString(cmd, "description", desc),
				Status:      optionalString(cmd, "status", status),
				ProjectID:   optionalString(cmd, "project", projectID),
			})
			if err != nil {
				return err
			}
			return printJSONOrTable(t, taskHeader, taskRows([]tasklinesdk.Task{t}))
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&desc, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "todo|in-progress|done")
	cmd.Flags().StringVar(&projectID, "project", "", "move to project")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete any task (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := remoteClient().DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}
}

func printPageInfo(info tasklinesdk.PageInfo) {
	if info.Page == 0 {
		fmt.Printf("%d total (all)\n", info.Total)
		return
	}
	fmt.Printf("page %d/%d, limit %d, %d total\n", info.Page, info.TotalPages, info.Limit, info.Total)
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tutor/internal/app"
	"tutor/internal/tui"
)

var (
	configPath string
	useMock    bool
)

func main() {
	root := &cobra.Command{
		Use:   "tutor",
		Short: "A personal tutor that plans a course around you and remembers it",
		Long: `tutor runs learning workspaces. Each workspace starts with a short
inquiry about your background and goals, then turns into a course with a
study plan, exercises, and progress notes, all stored on disk so you can
resume any time.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yml (default: user config dir)")
	root.PersistentFlags().BoolVar(&useMock, "mock", false, "use a canned offline model, for trying the UI")

	root.AddCommand(newCmd(), listCmd(), chatCmd(), askCmd(), planCmd(), progressCmd(), gradeCmd(), exportCmd(), deleteCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildApplication() (*app.Application, error) {
	path := configPath
	if path == "" {
		path = app.DefaultConfigPath()
	}
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(os.Stderr)
	if useMock {
		return app.NewApplicationWithCompleter(cfg, &app.MockCompleter{}, logger)
	}
	return app.NewApplication(cfg, logger)
}

func newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <topic>",
		Short: "Create a workspace for a new topic and start chatting",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			defer application.Close()
			ws, err := application.CreateWorkspace(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Printf("created workspace %s\n", ws.ID)
			return tui.Run(application, ws)
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			defer application.Close()
			infos, err := application.ListWorkspaces()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no workspaces yet; run: tutor new <topic>")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("%-28s  %-8s  %6d msgs  %s\n", info.ID, info.Phase, info.MessageCount, info.Topic)
			}
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <workspace-id>",
		Short: "Resume an existing workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			defer application.Close()
			ws, err := application.LoadWorkspace(args[0])
			if err != nil {
				return err
			}
			return tui.Run(application, ws)
		},
	}
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <workspace-id> <message>",
		Short: "Send one message without the interactive UI",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			defer application.Close()
			reply, err := application.RunTurn(context.Background(), args[0], strings.Join(args[1:], " "), func(ev app.TurnEvent) {
				if ev.Kind == "delta" {
					fmt.Print(ev.Text)
				}
			})
			if err != nil {
				return err
			}
			if reply != "" {
				fmt.Println()
			}
			return nil
		},
	}
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <workspace-id>",
		Short: "Print the workspace's study plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			defer application.Close()
			ws, err := application.LoadWorkspace(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(ws.StudyPlan) == "" {
				fmt.Println("no study plan yet; finish the inquiry conversation first")
				return nil
			}
			fmt.Println(ws.StudyPlan)
			return nil
		},
	}
}

func progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <workspace-id>",
		Short: "Print the workspace's progress notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			defer application.Close()
			ws, err := application.LoadWorkspace(args[0])
			if err != nil {
				return err
			}
			fmt.Println(ws.ProgressNotes)
			return nil
		},
	}
}

func gradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grade <workspace-id> <exercise-path> <answer>...",
		Short: "Check your answers to a saved exercise",
		Long: `grade loads an exercise saved by the tutor (e.g.
exercises/20260830_101500_ab12cd34.json) and checks your answers against it.
Give one answer per blank for fill exercises, or the chosen option text for
choice exercises. Short-answer exercises are discussed in chat instead.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			defer application.Close()
			ws, err := application.LoadWorkspace(args[0])
			if err != nil {
				return err
			}
			ex, err := application.Store.LoadExercise(ws, args[1])
			if err != nil {
				return err
			}
			result, err := ex.Grade(args[2:])
			if err != nil {
				return err
			}
			if result.Correct {
				fmt.Println("correct!")
			} else {
				fmt.Printf("not quite; expected: %s\n", strings.Join(result.Expected, ", "))
			}
			if result.Explanation != "" {
				fmt.Println(result.Explanation)
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <workspace-id>",
		Short: "Export the course as a markdown file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			defer application.Close()
			path, err := application.ExportWorkspace(args[0], out)
			if err != nil {
				return err
			}
			fmt.Printf("exported to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default: <workspace-id>.md)")
	return cmd
}

func deleteCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <workspace-id>",
		Short: "Delete a workspace and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			defer application.Close()
			if !force {
				fmt.Printf("delete workspace %s and all its files? [y/N] ", args[0])
				var answer string
				fmt.Scanln(&answer)
				if !strings.EqualFold(strings.TrimSpace(answer), "y") {
					fmt.Println("aborted")
					return nil
				}
			}
			if err := application.DeleteWorkspace(args[0]); err != nil {
				return err
			}
			fmt.Println("deleted")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	return cmd
}

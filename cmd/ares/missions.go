package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"ares/internal/app"
	"ares/internal/domain"
	"ares/internal/engine"
)

func missionCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "mission",
		Short: "Manage missions",
		Long:  "A mission follows one test script through its lifecycle. Every change records history, an audit event and the side effects to run.",
	}
	m.AddCommand(missionListCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionAdvanceCmd())
	m.AddCommand(missionRescheduleCmd())
	m.AddCommand(missionRotateCmd())
	m.AddCommand(missionDeleteCmd())
	m.AddCommand(missionHistoryCmd())
	m.AddCommand(missionChangelistCmd())
	return m
}

func parseLocation(raw string) (domain.Location, error) {
	loc := domain.Location(strings.ToLower(strings.TrimSpace(raw)))
	if !loc.Valid() {
		return "", fmt.Errorf("--type must be create or update, got %q", raw)
	}
	return loc, nil
}

// readMission loads a mission payload from a JSON or YAML file.
func readMission(path string) (domain.Mission, error) {
	var m domain.Mission
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return m, fmt.Errorf("parse %s: %w", path, err)
		}
		if data, err = json.Marshal(raw); err != nil {
			return m, err
		}
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

func renderMissions(items []domain.Mission) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Name", "Status", "Phase", "Current", "Version", "Progress", "Modified"})
	for _, m := range items {
		tw.AppendRow(table.Row{m.ScriptName, m.Status, m.Phase, m.Current, m.ScriptVersion, fmt.Sprintf("%d%%", m.Progress), m.ModifiedDate})
	}
	tw.Render()
}

func missionListCmd() *cobra.Command {
	var q engine.ListQuery
	var loc string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions of one store",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := parseLocation(loc)
			if err != nil {
				return err
			}
			q.Location = l
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				page, err := a.Engine.ListMissions(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				renderMissions(page.Items)
				fmt.Printf("page %d, %d of %d missions\n", page.Page, len(page.Items), page.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&loc, "type", "create", "store: create or update")
	cmd.Flags().StringVar(&q.Keyword, "keyword", "", "name filter")
	cmd.Flags().IntVar(&q.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&q.Size, "size", 20, "page size")
	return cmd
}

func missionShowCmd() *cobra.Command {
	var loc string
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.GetMission(ctx, domain.Location(loc), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&loc, "type", "", "store: create or update (default both)")
	return cmd
}

func missionCreateCmd() *cobra.Command {
	var file, again string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission from a JSON or YAML file",
		Long:  "With --again the named create-store mission is resubmitted from the file instead; a different script_name renames it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readMission(file)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var m domain.Mission
				if again != "" {
					m, err = a.Engine.ModifyMission(ctx, again, payload, viper.GetString("actor-id"))
				} else {
					m, err = a.Engine.CreateMission(ctx, payload, viper.GetString("actor-id"))
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				fmt.Printf("mission %s is %s (revision %d)\n", m.ScriptName, m.Status, m.Revision)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "mission payload file")
	cmd.Flags().StringVar(&again, "again", "", "resubmit this create-store mission")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func missionAdvanceCmd() *cobra.Command {
	var loc, order, comment, file string
	cmd := &cobra.Command{
		Use:   "advance <name>",
		Short: "Move a mission one step",
		Long:  "Without --file the stored record is resubmitted unchanged apart from the comment.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := parseLocation(loc)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				current, err := a.Engine.GetMission(ctx, l, args[0])
				if err != nil {
					return err
				}
				payload := domain.Mission{Author: current.Author}
				if file != "" {
					if payload, err = readMission(file); err != nil {
						return err
					}
				}
				payload.ScriptName = current.ScriptName
				if payload.Status == "" {
					payload.Status = current.Status
				}
				if payload.Revision == 0 {
					payload.Revision = current.Revision
				}
				if comment != "" {
					payload.Comment = comment
				}
				m, err := a.Engine.UpdateMission(ctx, payload, l, domain.Order(order), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				fmt.Printf("mission %s: %s -> %s (%s, %d%%)\n", m.ScriptName, current.Status, m.Status, m.Phase, m.Progress)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&loc, "type", "create", "store: create or update")
	cmd.Flags().StringVar(&order, "order", "next", "next or prev")
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "history comment")
	cmd.Flags().StringVarP(&file, "file", "f", "", "edited mission payload")
	return cmd
}

func missionRescheduleCmd() *cobra.Command {
	var r domain.Reschedule
	var loc string
	cmd := &cobra.Command{
		Use:   "reschedule <name>",
		Short: "Move a mission's schedule dates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := parseLocation(loc)
			if err != nil {
				return err
			}
			r.Name, r.Type = args[0], l
			if r.Submitter == "" {
				r.Submitter = viper.GetString("actor-id")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.RescheduleMission(ctx, r, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m.Schedules)
			})
		},
	}
	cmd.Flags().StringVar(&loc, "type", "create", "store: create or update")
	cmd.Flags().StringVar(&r.Submitter, "submitter", "", "who asks for the change (default actor-id)")
	cmd.Flags().StringVarP(&r.Comment, "comment", "m", "", "reason")
	cmd.Flags().StringVar(&r.Schedules.Expected, "expected", "", "expected date YYYY-MM-DD")
	cmd.Flags().StringVar(&r.Schedules.Development, "development", "", "development date YYYY-MM-DD")
	cmd.Flags().StringVar(&r.Schedules.Validation, "validation", "", "validation date YYYY-MM-DD")
	cmd.Flags().StringVar(&r.Schedules.Release, "release", "", "release date YYYY-MM-DD")
	return cmd
}

func missionRotateCmd() *cobra.Command {
	var r domain.Rotate
	var loc string
	cmd := &cobra.Command{
		Use:   "rotate <name>",
		Short: "Replace a mission's testers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := parseLocation(loc)
			if err != nil {
				return err
			}
			r.Name, r.Type = args[0], l
			if r.Submitter == "" {
				r.Submitter = viper.GetString("actor-id")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.RotateTesters(ctx, r, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				fmt.Printf("mission %s testers: %s (current %s)\n", m.ScriptName, m.TEName, m.Current)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&loc, "type", "create", "store: create or update")
	cmd.Flags().StringVar(&r.Submitter, "submitter", "", "who asks for the change (default actor-id)")
	cmd.Flags().StringVarP(&r.Comment, "comment", "m", "", "reason")
	cmd.Flags().StringVar(&r.TEName, "te", "", "new testers, ;-separated")
	cmd.Flags().StringVar(&r.Current, "current", "", "new current assignee")
	_ = cmd.MarkFlagRequired("te")
	return cmd
}

func missionDeleteCmd() *cobra.Command {
	var loc string
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a create-store mission or roll back an update",
		Long:  "Update-store missions roll back to the record saved when their update started. Use --force to remove them instead.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := parseLocation(loc)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.DeleteMission(ctx, args[0], l, viper.GetBool("force"), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				fmt.Printf("mission %s: done\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&loc, "type", "create", "store: create or update")
	return cmd
}

func missionHistoryCmd() *cobra.Command {
	var loc string
	cmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Show mission history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.History(ctx, domain.Location(loc), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Phase", "Author", "Progress", "Comment"})
				for _, h := range items {
					tw.AppendRow(table.Row{h.Datetime, h.Phase, h.Author, h.Progress, h.Comment})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&loc, "type", "", "store: create or update (default both)")
	return cmd
}

func missionChangelistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelist <name>",
		Short: "Show the release notes of each version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Changelist(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Version", "Date", "Author", "Comment"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.Version, c.Date, c.Entry.Author, c.Entry.Comment})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

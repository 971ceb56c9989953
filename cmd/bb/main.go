package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"backbeat/internal/app"
	"backbeat/internal/config"
	"backbeat/internal/db"
	"backbeat/internal/domain"
	"backbeat/internal/engine"
	"backbeat/internal/migrate"
	"backbeat/internal/repo"
	"backbeat/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bb",
	Short: "Backbeat CLI",
	Long: `Backbeat plans release-anchored posting schedules for a creator's team.
Core concepts:
- Workspace: your .backbeat directory with only the database; configs are stored in the DB and imported explicitly.
- Galaxy: one creator's content universe, owned by a team.
- Profile: the structured intake (releases, preferred days, footage, roster) that drives everything.
- Schedule: posting slots computed fresh on every request, classified teaser/promo/audience_builder around release dates.
- Events: schedule slots realized into the shared calendar, deduplicated per date.
- Tasks: the team's work items; members see only what's assigned to them, admins see everything.
- Deadlines: backward-planned shoot/edit/shot-list/treatment dates for any posting date.
- Log: diary of changes, view with 'bb log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BACKBEAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("viewer-id", "local-user", "viewer identifier")
	rootCmd.PersistentFlags().String("galaxy", "", "galaxy id (overrides single-galaxy default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("viewer-id", rootCmd.PersistentFlags().Lookup("viewer-id"))
	_ = viper.BindPFlag("galaxy", rootCmd.PersistentFlags().Lookup("galaxy"))
}

func registerCommands() {
	rootCmd.AddCommand(galaxyCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func galaxyCmd() *cobra.Command {
	g := &cobra.Command{Use: "galaxy", Short: "Manage galaxies"}
	g.AddCommand(galaxyCreateCmd())
	g.AddCommand(galaxyShowCmd())
	g.AddCommand(galaxyDeleteCmd())
	g.AddCommand(galaxyConfigCmd())
	return g
}

func galaxyCreateCmd() *cobra.Command {
	var id, team, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create galaxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if team == "" {
				team = id + "-team"
			}
			if name == "" {
				name = id
			}
			return withConn(cmd.Context(), func(ctx context.Context, conn repo.Repo) error {
				e := engine.New(conn.DB, config.Default(id), newLogger())
				if err := e.InitGalaxy(ctx, team, id, name, viper.GetString("viewer-id")); err != nil {
					return err
				}
				// A workspace backbeat.yml overrides the seeded defaults.
				cfg, err := config.LoadOptional(viper.GetString("workspace"))
				if err != nil {
					return err
				}
				if cfg != nil {
					if err := conn.UpsertGalaxyConfig(ctx, id, cfg); err != nil {
						return err
					}
				}
				return printJSONOrIndent(map[string]string{"id": id, "team_id": team})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "galaxy id")
	cmd.Flags().StringVar(&team, "team", "", "team id (defaults to <id>-team)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func galaxyShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active galaxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				teamID, err := e.Repo.GetGalaxy(ctx, galaxyID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(map[string]string{"id": galaxyID, "team_id": teamID})
			})
		},
	}
	return cmd
}

func galaxyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <galaxy-id>",
		Short: "Delete a galaxy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteGalaxy(ctx, args[0])
			})
		},
	}
}

func galaxyConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage galaxy config"}
	cfg.AddCommand(galaxyConfigInitCmd())
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show galaxy config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				return printJSONOrIndent(e.Config)
			})
		},
	})
	var filePath string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import galaxy config into the DB (from --file or the workspace backbeat.yml)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			var err error
			if filePath != "" {
				cfg, err = config.FromFile(filePath)
			} else {
				cfg, err = config.Load(viper.GetString("workspace"))
			}
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				target := cfg.Galaxy.ID
				if target == "" {
					target = galaxyID
				}
				if err := e.Repo.UpsertGalaxyConfig(ctx, target, cfg); err != nil {
					return err
				}
				return printJSONOrIndent(cfg)
			})
		},
	}
	importCmd.Flags().StringVar(&filePath, "file", "", "path to YAML config (defaults to <workspace>/backbeat.yml)")
	cfg.AddCommand(importCmd)
	return cfg
}

func galaxyConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter backbeat.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			galaxyID := viper.GetString("galaxy")
			if galaxyID == "" {
				galaxyID = "my-galaxy"
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(galaxyID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func profileCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "profile",
		Short: "Manage the content profile",
		Long:  "The content profile is the structured intake: releases and dates, posting frequency, preferred days, footage, strategy notes, and roster. It is imported as a whole and drives the schedule.",
	}
	p.AddCommand(profileImportCmd())
	p.AddCommand(profileShowCmd())
	return p
}

func profileImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a content profile from YAML or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var profile domain.ContentProfile
			if json.Valid(data) {
				err = json.Unmarshal(data, &profile)
			} else {
				err = yaml.Unmarshal(data, &profile)
			}
			if err != nil {
				return fmt.Errorf("invalid profile: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				profile.GalaxyID = galaxyID
				v, err := viewerFor(ctx, e, galaxyID)
				if err != nil {
					return err
				}
				saved, err := e.SaveProfile(ctx, v, profile)
				if err != nil {
					return err
				}
				return printJSONOrIndent(saved)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to profile YAML/JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func profileShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored content profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				profile, err := e.Repo.GetProfile(ctx, galaxyID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(profile)
			})
		},
	}
	return cmd
}

func scheduleCmd() *cobra.Command {
	var weeks int
	var noSync bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Compute the posting schedule",
		Long:  "Computes the release-anchored posting schedule from the stored profile and, unless --no-sync, realizes the slots into shared calendar events.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				profile, err := e.Repo.GetProfile(ctx, galaxyID)
				if err != nil {
					return err
				}
				slots, err := e.GenerateSchedule(profile, weeks)
				if err != nil {
					return err
				}
				var sync *engine.SyncResult
				if !noSync {
					v, err := viewerFor(ctx, e, galaxyID)
					if err != nil {
						return err
					}
					if v.Admin {
						res, err := e.SyncEvents(ctx, v, galaxyID, slots)
						if err != nil {
							fmt.Fprintf(os.Stderr, "warning: schedule computed but not saved: %v\n", err)
						} else {
							sync = &res
						}
					}
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"slots": slots, "sync": sync})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Week", "Post Type"})
				for _, s := range slots {
					tw.AppendRow(table.Row{s.Date, s.Week, s.PostType})
				}
				tw.Render()
				if sync != nil {
					fmt.Printf("calendar: %d created, %d repaired, %d unchanged\n", sync.Created, sync.Repaired, sync.Unchanged)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&weeks, "weeks", 0, "planning window in weeks (default from config)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "compute only, do not write calendar events")
	return cmd
}

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <posting-date>",
		Short: "Backward-plan production deadlines for a posting date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				d, err := e.PlanDeadlines(args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Date"})
				tw.AppendRow(table.Row{"treatment", d.TreatmentDeadline})
				tw.AppendRow(table.Row{"shot list", d.ShotListDeadline})
				tw.AppendRow(table.Row{"shoot", d.ShootDate})
				tw.AppendRow(table.Row{"edit", d.EditDeadline})
				tw.AppendRow(table.Row{"post", d.PostingDate})
				tw.Render()
				if len(d.Late) > 0 {
					fmt.Printf("late stages: %s\n", strings.Join(d.Late, ", "))
				}
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are the team's work items. Members see only tasks assigned to them; admins see everything including the synthesized default chain when the store is empty.",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskRescheduleCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskUpdateCmd())
	return task
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks visible to the viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				v, err := viewerFor(ctx, e, galaxyID)
				if err != nil {
					return err
				}
				tasks, err := e.TasksForViewer(ctx, v, galaxyID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Status", "Date", "Assignee"})
				for _, t := range tasks {
					assignee := ""
					if t.AssignedTo != nil {
						assignee = *t.AssignedTo
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Type, t.Status, t.Date, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskAddCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				opts.GalaxyID = galaxyID
				v, err := viewerFor(ctx, e, galaxyID)
				if err != nil {
					return err
				}
				t, err := e.CreateTask(ctx, v, opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Category, "category", "task", "category (task or event)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "task type (prep, shoot, edit, post, ...)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.StartTime, "start", "", "start time (HH:MM)")
	cmd.Flags().StringVar(&opts.EndTime, "end", "", "end time (HH:MM)")
	cmd.Flags().StringVar(&opts.AssignedTo, "assign", "", "assignee viewer id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskAssignCmd() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "assign <task-id>",
		Short: "Assign a task (default-* ids are materialized first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				v, err := viewerFor(ctx, e, galaxyID)
				if err != nil {
					return err
				}
				t, err := e.AssignTask(ctx, v, galaxyID, args[0], assignee)
				if err != nil {
					return err
				}
				return printJSONOrIndent(t)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "to", "", "assignee viewer id")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func taskRescheduleCmd() *cobra.Command {
	var date, start, end string
	cmd := &cobra.Command{
		Use:   "reschedule <task-id>",
		Short: "Change a task's date or times",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				v, err := viewerFor(ctx, e, galaxyID)
				if err != nil {
					return err
				}
				t, err := e.Reschedule(ctx, v, args[0], date, start, end)
				if err != nil {
					return err
				}
				return printJSONOrIndent(t)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "new date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "start time")
	cmd.Flags().StringVar(&end, "end", "", "end time")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <task-id>",
		Short: "Complete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				v, err := viewerFor(ctx, e, galaxyID)
				if err != nil {
					return err
				}
				t, err := e.CompleteTask(ctx, v, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var status, postStatus, notes, caption, videoRef string
	var hashtags []string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update task status or post pipeline fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{Status: status, PostStatus: postStatus}
			if cmd.Flags().Changed("notes") {
				opts.Notes = &notes
			}
			if cmd.Flags().Changed("caption") {
				opts.Caption = &caption
			}
			if cmd.Flags().Changed("video-ref") {
				opts.VideoRef = &videoRef
			}
			if cmd.Flags().Changed("hashtag") {
				opts.Hashtags = hashtags
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				v, err := viewerFor(ctx, e, galaxyID)
				if err != nil {
					return err
				}
				t, err := e.UpdateTask(ctx, v, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&postStatus, "post-status", "", "new post status")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&caption, "caption", "", "caption")
	cmd.Flags().StringVar(&videoRef, "video-ref", "", "video reference")
	cmd.Flags().StringArrayVar(&hashtags, "hashtag", []string{}, "hashtag (repeatable)")
	return cmd
}

func teamCmd() *cobra.Command {
	team := &cobra.Command{Use: "team", Short: "Manage the team"}
	member := &cobra.Command{Use: "member", Short: "Manage team members"}
	member.AddCommand(memberAddCmd())
	member.AddCommand(memberListCmd())
	member.AddCommand(memberRemoveCmd())
	team.AddCommand(member)
	return team
}

func memberAddCmd() *cobra.Command {
	var id, name, role string
	var admin bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a team member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				teamID, err := e.Repo.GetGalaxy(ctx, galaxyID)
				if err != nil {
					return err
				}
				m := domain.Member{TeamID: teamID, ViewerID: id, Name: name, Role: role, Admin: admin}
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				return printJSONOrIndent(m)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "viewer id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "role (editor, videographer, ...)")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant admin")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func memberListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List team members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				teamID, err := e.Repo.GetGalaxy(ctx, galaxyID)
				if err != nil {
					return err
				}
				team, err := e.Repo.GetTeam(ctx, teamID)
				if err != nil {
					return err
				}
				members, err := e.Repo.ListMembers(ctx, teamID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				fmt.Printf("%s (%s)\n", team.Name, team.ID)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Viewer", "Name", "Role", "Admin"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.ViewerID, m.Name, m.Role, m.Admin})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <viewer-id>",
		Short: "Remove a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				teamID, err := e.Repo.GetGalaxy(ctx, galaxyID)
				if err != nil {
					return err
				}
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := e.Repo.RemoveMember(ctx, tx, teamID, args[0]); err != nil {
					return err
				}
				return tx.Commit()
			})
		},
	}
	return cmd
}

func notificationCmd() *cobra.Command {
	n := &cobra.Command{Use: "notification", Short: "Notifications"}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications for the viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				items, err := e.Repo.ListNotifications(ctx, viper.GetString("viewer-id"), limit)
				if err != nil {
					return err
				}
				return printJSONOrIndent(items)
			})
		},
	}
	list.Flags().IntVar(&limit, "n", 50, "number of notifications")
	n.AddCommand(list)
	return n
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP server"}

	var name, forViewer string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the key is printed once and only its hash is stored)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				viewerID := forViewer
				if viewerID == "" {
					viewerID = viper.GetString("viewer-id")
				}
				raw := make([]byte, 32)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "bk_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:       uuid.New().String(),
					ViewerID: viewerID,
					Name:     name,
					KeyHash:  repo.HashAPIKey(secret),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSONOrIndent(map[string]string{
					"id":        key.ID,
					"viewer_id": key.ViewerID,
					"key":       secret,
				})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	create.Flags().StringVar(&forViewer, "for", "", "viewer the key authenticates as (defaults to --viewer-id)")
	k.AddCommand(create)

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, forViewer)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Viewer", "Name", "Created"})
				for _, key := range keys {
					tw.AppendRow(table.Row{key.ID, key.ViewerID, key.Name, key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&forViewer, "for", "", "filter by viewer id")
	k.AddCommand(list)

	k.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return k
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
		Long:  "The diary of everything that happened: schedule syncs, task changes, assignments, and more.",
	}
	var n int
	var follow bool
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, galaxyID string) error {
				events, err := e.Repo.LatestEvents(ctx, n, galaxyID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if err := printJSONOrIndent(events); err != nil {
					return err
				}
				if !follow {
					return nil
				}
				cursor, err := e.Repo.LatestEventID(ctx, galaxyID)
				if err != nil {
					return err
				}
				ticker := time.NewTicker(2 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
					batch, err := e.Repo.EventsAfter(ctx, 100, cursor, galaxyID)
					if err != nil {
						return err
					}
					for _, ev := range batch {
						if err := printJSONOrIndent(ev); err != nil {
							return err
						}
						cursor = ev.ID
					}
				}
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of entries")
	tail.Flags().BoolVar(&follow, "follow", false, "keep polling for new entries")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	log.AddCommand(tail)
	return log
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			log := newLogger()
			log.Info().Str("store", db.Path(workspace)).Msg("store ready")
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveGalaxyAndConfig(cmd.Context(), viper.GetString("galaxy"), viper.GetString("viewer-id"), r, initGalaxyFn(conn, log))
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg, log)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("BACKBEAT_JWT_SECRET"), Logger: log}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("BACKBEAT_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			stopDispatch := server.StartNotificationDispatcher(e)
			defer stopDispatch()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Backbeat API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

func initGalaxyFn(conn *sql.DB, log zerolog.Logger) func(context.Context, string, string, string, string) error {
	return func(ctx context.Context, teamID, galaxyID, name, viewerID string) error {
		e := engine.New(conn, config.Default(galaxyID), log)
		return e.InitGalaxy(ctx, teamID, galaxyID, name, viewerID)
	}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	log := newLogger()
	r := repo.Repo{DB: conn}
	galaxyID, cfg, err := app.ResolveGalaxyAndConfig(ctx, viper.GetString("galaxy"), viper.GetString("viewer-id"), r, initGalaxyFn(conn, log))
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg, log)
	return fn(ctx, e, galaxyID)
}

func withConn(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func viewerFor(ctx context.Context, e engine.Engine, galaxyID string) (engine.Viewer, error) {
	viewerID := viper.GetString("viewer-id")
	teamID, err := e.Repo.GetGalaxy(ctx, galaxyID)
	if err != nil {
		return engine.Viewer{}, err
	}
	admin, err := e.Repo.IsAdmin(ctx, teamID, viewerID)
	if err != nil {
		return engine.Viewer{}, err
	}
	return engine.Viewer{TeamID: teamID, ViewerID: viewerID, Admin: admin}, nil
}

func printJSONOrIndent(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"ares/internal/app"
	"ares/internal/config"
	"ares/internal/migrate"
	"ares/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noOutbox bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and the outbox dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				cfg := a.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				authCfg := server.AuthConfig{
					JWTSecret:              cfg.Server.JWTSecret,
					AllowLegacyActorHeader: cfg.Server.AllowActorHeader,
					Logger:                 a.Logger.WithPrefix("auth"),
				}
				if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
					return fmt.Errorf("server.jwt_secret (or ARES_JWT_SECRET) is required unless allow_actor_header is set")
				}
				handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				wait := func() {}
				if !noOutbox {
					wait = a.Dispatcher().Start(ctx)
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				a.Logger.Info("serving ARES API", "addr", "http://"+addr+basePath, "docs", "/docs", "outbox", !noOutbox)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				wait()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	cmd.Flags().BoolVar(&noOutbox, "no-outbox", false, "do not run side effects in this process")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := migrate.Version(ctx, a.DB)
				if err != nil {
					return err
				}
				fmt.Printf("schema version %d\n", v)
				return nil
			})
		},
	}
}

func remindCmd() *cobra.Command {
	var run bool
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Queue due notices for idle missions",
		Long:  "Missions idle for two days or more get a reminder; owners and TA managers are copied as the delay grows. Weekends and configured holidays are skipped unless --force is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				report, err := a.Engine.Remind(ctx, viper.GetBool("force"))
				if err != nil {
					return err
				}
				if run && len(report.Sent) > 0 {
					if _, err := a.Dispatcher().RunOnce(ctx); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				if report.Skipped {
					fmt.Println("skipped:", report.Reason)
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Mission", "Idle days", "CC"})
				for _, r := range report.Sent {
					tw.AppendRow(table.Row{r.Mission, r.Days, fmt.Sprint(r.CC)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&run, "run", false, "send the queued notices right away")
	return cmd
}

func outboxCmd() *cobra.Command {
	o := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and run queued side effects",
	}
	o.AddCommand(outboxRunCmd())
	o.AddCommand(outboxListCmd())
	o.AddCommand(outboxRetryCmd())
	return o
}

func outboxRunCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute pending side effects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d := a.Dispatcher()
				if watch {
					d.Start(ctx)()
					return nil
				}
				stats, err := d.RunOnce(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("done %d, failed %d, skipped %d\n", stats.Done, stats.Failed, stats.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep polling until interrupted")
	return cmd
}

func outboxListCmd() *cobra.Command {
	var status, mission string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List side effects, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Effects(ctx, status, mission, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Mission", "Kind", "Status", "Attempts", "Last error"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.Mission, e.Kind, e.Status, e.Attempts, e.LastError})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending, done or failed")
	cmd.Flags().StringVar(&mission, "mission", "", "mission filter")
	cmd.Flags().IntVar(&limit, "n", 50, "number of rows")
	return cmd
}

func outboxRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Queue a failed side effect again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.RetryEffect(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("side effect %s queued\n", args[0])
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Read the audit log",
	}
	var n int
	var mission string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.AuditLog(ctx, mission, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "When", "Type", "Mission", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&mission, "mission", "", "mission filter")
	l.AddCommand(tail)
	return l
}

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "ares.yml holds the portal address, mail and repository settings, the directory of managers and roles, and the outbox and reminder knobs.",
	}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate ares.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default ares.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !viper.GetBool("force") {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	return c
}
